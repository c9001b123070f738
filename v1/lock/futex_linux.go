//go:build linux

package lock

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Futex operations without FUTEX_PRIVATE_FLAG: the words live in a
// MAP_SHARED mapping and must be visible across processes.
const (
	futexOpWait      = 0
	futexOpWake      = 1
	futexOpLockPI    = 6
	futexOpUnlockPI  = 7
	futexOpTrylockPI = 8
)

// futexWait blocks until the value at addr is observed to differ from
// val. Spurious wakeups are expected; callers re-check their condition.
func futexWait(addr *uint32, val uint32) error {
	// Re-check before entering the kernel to close the lost-wake window
	// between the caller's snapshot and the syscall.
	if atomic.LoadUint32(addr) != val {
		return nil
	}
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), futexOpWait, uintptr(val), 0, 0, 0)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	default:
		return fmt.Errorf("lock: futex wait: %w", errno)
	}
}

// futexWake wakes up to n waiters on addr.
func futexWake(addr *uint32, n int) error {
	_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)), futexOpWake, uintptr(n), 0, 0, 0)
	if errno != 0 {
		return fmt.Errorf("lock: futex wake: %w", errno)
	}
	return nil
}

func futexPI(addr *uint32, op uintptr) error {
	for {
		_, _, errno := unix.Syscall6(unix.SYS_FUTEX,
			uintptr(unsafe.Pointer(addr)), op, 0, 0, 0, 0)
		switch errno {
		case 0:
			return nil
		case unix.EINTR:
			continue
		default:
			return fmt.Errorf("lock: futex pi: %w", errno)
		}
	}
}

// futexBackend is a three-state mutex (0 free, 1 locked, 2 locked with
// waiters) that parks contended acquirers in the kernel.
type futexBackend struct{}

func newFutexBackend() backend { return futexBackend{} }

func (futexBackend) kind() Kind { return KindFutex }

func (b futexBackend) probe() error { return probeScratch(b) }

func (futexBackend) init(s *slot) error {
	atomic.StoreUint32(&s.word, 0)
	return nil
}

func (futexBackend) deinit(s *slot) error { return nil }

func (futexBackend) acquire(ctx context.Context, s *slot) error {
	w := &s.word
	if atomic.CompareAndSwapUint32(w, 0, 1) {
		return nil
	}
	for {
		// Mark contended; whoever swapped out 0 owns the lock.
		if atomic.SwapUint32(w, 2) == 0 {
			return nil
		}
		if err := futexWait(w, 2); err != nil {
			return err
		}
	}
}

func (b futexBackend) acquireRelax(ctx context.Context, s *slot) error {
	return b.acquire(ctx, s)
}

func (futexBackend) release(s *slot) error {
	if atomic.SwapUint32(&s.word, 0) == 2 {
		return futexWake(&s.word, 1)
	}
	return nil
}

// futexPIBackend uses the kernel's priority-inheritance futex protocol.
// The word holds the owner's TID, so the holder must stay on one OS
// thread for the critical section; acquire pins the thread and release
// unpins it.
type futexPIBackend struct{}

func newFutexPIBackend() backend { return futexPIBackend{} }

func (futexPIBackend) kind() Kind { return KindFutexPI }

func (futexPIBackend) probe() error {
	// TRYLOCK_PI on a scratch word detects kernels without PI futex
	// support without ever blocking. The kernel checks that unlock comes
	// from the owning TID, so the goroutine must not migrate threads
	// between the two calls.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	var word uint32
	if err := futexPI(&word, futexOpTrylockPI); err != nil {
		return err
	}
	if atomic.LoadUint32(&word) == 0 {
		return nil
	}
	return futexPI(&word, futexOpUnlockPI)
}

func (futexPIBackend) init(s *slot) error {
	atomic.StoreUint32(&s.word, 0)
	return nil
}

func (futexPIBackend) deinit(s *slot) error { return nil }

func (futexPIBackend) acquire(ctx context.Context, s *slot) error {
	runtime.LockOSThread()
	tid := uint32(unix.Gettid())
	if atomic.CompareAndSwapUint32(&s.word, 0, tid) {
		return nil
	}
	if err := futexPI(&s.word, futexOpLockPI); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}

func (b futexPIBackend) acquireRelax(ctx context.Context, s *slot) error {
	return b.acquire(ctx, s)
}

func (futexPIBackend) release(s *slot) error {
	defer runtime.UnlockOSThread()
	tid := uint32(unix.Gettid())
	if atomic.CompareAndSwapUint32(&s.word, tid, 0) {
		return nil
	}
	// Waiters flagged in the word; the kernel hands the lock over.
	return futexPI(&s.word, futexOpUnlockPI)
}

// semBackend is a counting semaphore initialized to one: acquire is
// decrement-or-block, release is increment-and-wake.
type semBackend struct{}

func newSemBackend() backend { return semBackend{} }

func (semBackend) kind() Kind { return KindSem }

func (b semBackend) probe() error { return probeScratch(b) }

func (semBackend) init(s *slot) error {
	atomic.StoreUint32(&s.word, 1)
	return nil
}

func (semBackend) deinit(s *slot) error { return nil }

func (semBackend) acquire(ctx context.Context, s *slot) error {
	w := &s.word
	for {
		c := atomic.LoadUint32(w)
		if c > 0 {
			if atomic.CompareAndSwapUint32(w, c, c-1) {
				return nil
			}
			continue
		}
		if err := futexWait(w, 0); err != nil {
			return err
		}
	}
}

func (b semBackend) acquireRelax(ctx context.Context, s *slot) error {
	return b.acquire(ctx, s)
}

func (semBackend) release(s *slot) error {
	atomic.AddUint32(&s.word, 1)
	return futexWake(&s.word, 1)
}
