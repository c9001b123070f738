package relax

// Pause executes one iteration of the architecture's spin-wait hint.
// It never blocks and never yields the goroutine on architectures that
// have a native hint.
func Pause() {
	pause()
}

// Spin executes n iterations of the pause hint. It is the building block
// for exponential backoff between lock attempts.
func Spin(n int) {
	for i := 0; i < n; i++ {
		pause()
	}
}
