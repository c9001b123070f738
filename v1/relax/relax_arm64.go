//go:build arm64

package relax

// pause emits the AArch64 YIELD instruction, the closest analogue of the
// x86 PAUSE hint.
//
//go:noescape
func pause()
