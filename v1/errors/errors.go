// Package errors defines the sentinel errors shared by the shmlock packages.
package errors

import "errors"

var (
	// ErrInvalidHandle is returned when a handle fails slot validation:
	// the slot is free, the generation is stale, or the handle never
	// belonged to this pool.
	ErrInvalidHandle = errors.New("shmlock: invalid handle")

	// ErrExhausted is returned when the pool has no free slot or a
	// backend-specific resource could not be allocated.
	ErrExhausted = errors.New("shmlock: resources exhausted")

	// ErrTimeout is returned when a spin acquire exceeded its wall-clock
	// ceiling while cancellation was requested.
	ErrTimeout = errors.New("shmlock: timeout")

	// ErrBackendUnavailable is returned when no usable synchronization
	// primitive exists for this build or platform. It is reported at
	// first use, not at pool creation.
	ErrBackendUnavailable = errors.New("shmlock: backend unavailable")

	// ErrUnmapped is returned for operations on a pool whose region has
	// been torn down.
	ErrUnmapped = errors.New("shmlock: pool unmapped")
)
