// Package shm manages the shared memory regions that back lock pools.
// Regions are file-backed mappings under /dev/shm so that cooperating
// processes, which in Go are spawned rather than forked, can attach to
// the same memory by path.
package shm
