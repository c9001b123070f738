package lock

import (
	"context"

	shmerrors "github.com/mirkobrombin/go-shmlock/v1/errors"
)

// unavailableBackend fails every operation. Platforms with no usable
// primitive still link and run, they just cannot lock.
type unavailableBackend struct{}

func (unavailableBackend) kind() Kind { return KindUnavailable }

func (unavailableBackend) probe() error { return shmerrors.ErrBackendUnavailable }

func (unavailableBackend) init(s *slot) error { return shmerrors.ErrBackendUnavailable }

func (unavailableBackend) deinit(s *slot) error { return shmerrors.ErrBackendUnavailable }

func (unavailableBackend) acquire(ctx context.Context, s *slot) error {
	return shmerrors.ErrBackendUnavailable
}

func (unavailableBackend) acquireRelax(ctx context.Context, s *slot) error {
	return shmerrors.ErrBackendUnavailable
}

func (unavailableBackend) release(s *slot) error { return shmerrors.ErrBackendUnavailable }
