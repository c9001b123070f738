//go:build amd64

package relax

// pause emits the x86 PAUSE instruction. It hints the pipeline that the
// caller is in a spin-wait loop, which lowers power draw and frees
// execution resources on SMT siblings.
//
//go:noescape
func pause()
