//go:build linux

package relax

import "golang.org/x/sys/unix"

// Yield relinquishes the CPU to the kernel scheduler. Unlike Pause it is
// a full syscall and may deschedule the calling thread. x/sys exposes no
// sched_yield wrapper, so the syscall is issued directly; it cannot fail.
func Yield() {
	_, _, _ = unix.Syscall(unix.SYS_SCHED_YIELD, 0, 0, 0)
}
