//go:build !linux

package lock

// Kernel-backed mechanisms exist only on Linux; elsewhere their
// constructors return the failing backend and the auto probe chain falls
// through to the spinlocks.

func newFutexBackend() backend   { return unavailableBackend{} }
func newFutexPIBackend() backend { return unavailableBackend{} }
func newSemBackend() backend     { return unavailableBackend{} }

func newSysvBackend(attempts int) backend { return unavailableBackend{} }

func newFcntlBackend(p *Pool) backend { return unavailableBackend{} }
