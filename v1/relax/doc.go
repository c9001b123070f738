// Package relax provides the low-power pause hint used by busy-wait loops.
// On amd64 and arm64 the hint is the native PAUSE/YIELD instruction; other
// architectures fall back to yielding the scheduler.
package relax
