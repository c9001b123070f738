package lock

import (
	"context"
	"fmt"

	shmerrors "github.com/mirkobrombin/go-shmlock/v1/errors"
)

// backend is the capability set every synchronization mechanism
// implements. Exactly one backend is active per pool.
//
// AcquireRelax differs from Acquire only in the retry policy between
// attempts; backends that suspend in the kernel have nothing to relax and
// treat the two as identical. Kernel-blocking waits are not cancellable
// by this package: the context is sampled between retries where retries
// exist, never while blocked.
type backend interface {
	kind() Kind
	// probe reports whether the mechanism is usable on this system.
	probe() error
	init(s *slot) error
	deinit(s *slot) error
	acquire(ctx context.Context, s *slot) error
	acquireRelax(ctx context.Context, s *slot) error
	release(s *slot) error
}

// newBackend constructs the backend for a pinned kind. Construction never
// probes; an unusable backend surfaces its error at first use.
func newBackend(k Kind, p *Pool) (backend, error) {
	switch k {
	case KindSpin:
		return newSpinBackend(), nil
	case KindYieldSpin:
		return yieldSpinBackend{}, nil
	case KindFutex:
		return newFutexBackend(), nil
	case KindFutexPI:
		return newFutexPIBackend(), nil
	case KindSem:
		return newSemBackend(), nil
	case KindSysvSem:
		return newSysvBackend(p.sysvAttempts), nil
	case KindFcntl:
		return newFcntlBackend(p), nil
	case KindUnavailable:
		return unavailableBackend{}, nil
	default:
		return nil, fmt.Errorf("lock: no backend for kind %s", k)
	}
}

// selectBackend walks the probe chain and returns the first usable
// backend. It only runs for KindAuto; a pinned kind skips probing.
func selectBackend(p *Pool) (backend, error) {
	for _, k := range autoProbeOrder {
		b, err := newBackend(k, p)
		if err != nil {
			continue
		}
		if err := b.probe(); err != nil {
			continue
		}
		return b, nil
	}
	return nil, shmerrors.ErrBackendUnavailable
}

// probeScratch exercises init/acquire/release/deinit on a throwaway slot.
// It is the generic probe for backends whose state lives entirely in the
// slot word.
func probeScratch(b backend) error {
	var s slot
	if err := b.init(&s); err != nil {
		return err
	}
	defer b.deinit(&s)
	if err := b.acquire(context.Background(), &s); err != nil {
		return err
	}
	return b.release(&s)
}
