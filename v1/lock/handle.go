package lock

// Handle references one allocated lock slot. It is a plain value: any
// process that attached the same pool may use it, and it remains cheap to
// copy across process boundaries.
//
// A handle is valid only while its slot stays allocated. Destroying the
// slot bumps the generation, so stale handles are rejected by construction
// rather than by a sentinel comparison.
type Handle struct {
	// Index is the slot position inside the arena. Index 0 is the
	// meta-lock and never appears in a handle returned to callers.
	Index uint32
	// Gen is the slot generation the handle was created under.
	Gen uint32
}
