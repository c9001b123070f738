package lock

import "fmt"

// Kind identifies one backend synchronization mechanism.
type Kind int

const (
	// KindAuto selects the first usable backend from the probe chain.
	KindAuto Kind = iota
	// KindSpin is a test-and-set spinlock on a shared word. Its relaxed
	// acquire path applies exponential pause backoff.
	KindSpin
	// KindYieldSpin is a spinlock that yields the scheduler between
	// attempts instead of backing off.
	KindYieldSpin
	// KindFutex is a kernel-blocking mutex built on futex wait/wake.
	KindFutex
	// KindFutexPI is a priority-inheriting futex mutex. The lock holder
	// inherits the scheduling priority of its highest-priority waiter.
	KindFutexPI
	// KindSem is a counting semaphore, initialized to one, built on
	// futex wait/wake in the shared word.
	KindSem
	// KindSysvSem is a kernel-persistent System V semaphore set. Slots
	// allocate their set under a randomly probed key and must release it
	// at deinit or it outlives the process.
	KindSysvSem
	// KindFcntl is a portable fallback using blocking record locks on
	// the arena file. It excludes processes, not goroutines sharing one
	// descriptor.
	KindFcntl
	// KindUnavailable always fails. It keeps degraded platforms linking
	// and running.
	KindUnavailable
)

var kindNames = map[Kind]string{
	KindAuto:        "auto",
	KindSpin:        "spin",
	KindYieldSpin:   "yieldspin",
	KindFutex:       "futex",
	KindFutexPI:     "futexpi",
	KindSem:         "sem",
	KindSysvSem:     "sysvsem",
	KindFcntl:       "fcntl",
	KindUnavailable: "unavailable",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind maps a backend name, as accepted by command line tools, to
// its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindAuto, fmt.Errorf("lock: unknown backend %q", s)
}

// autoProbeOrder is the priority chain used by KindAuto. Spin comes last
// among the real mechanisms because it is always usable; Fcntl and
// Unavailable are reachable only by explicit request.
var autoProbeOrder = []Kind{KindFutex, KindFutexPI, KindSem, KindSysvSem, KindYieldSpin, KindSpin}
