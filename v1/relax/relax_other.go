//go:build !amd64 && !arm64

package relax

import "runtime"

// No native spin hint on this architecture; give the scheduler a chance
// to run something else instead.
func pause() {
	runtime.Gosched()
}
