//go:build !linux

package relax

import "runtime"

// Yield relinquishes the CPU to the Go scheduler.
func Yield() {
	runtime.Gosched()
}
