package lock

import (
	"context"
	"sync/atomic"

	"github.com/mirkobrombin/go-shmlock/v1/relax"
)

// spinBackend is a test-and-set spinlock on the slot word. It is the one
// backend with a meaningful relaxed path and the one place a time-bounded
// cooperative exit exists.
type spinBackend struct {
	policy spinPolicy
}

func newSpinBackend() *spinBackend {
	return &spinBackend{policy: defaultSpinPolicy()}
}

func (*spinBackend) kind() Kind { return KindSpin }

func (*spinBackend) probe() error { return nil }

func (*spinBackend) init(s *slot) error {
	atomic.StoreUint32(&s.word, 0)
	return nil
}

func (*spinBackend) deinit(s *slot) error { return nil }

func (b *spinBackend) acquire(ctx context.Context, s *slot) error {
	return b.policy.spinAcquire(ctx, &s.word, false)
}

func (b *spinBackend) acquireRelax(ctx context.Context, s *slot) error {
	return b.policy.spinAcquire(ctx, &s.word, true)
}

func (*spinBackend) release(s *slot) error {
	atomic.StoreUint32(&s.word, 0)
	return nil
}

// yieldSpinBackend spins but hands the CPU back to the scheduler after
// every failed attempt. The OS already throttles the loop, so the relaxed
// acquire is identical to the plain one.
type yieldSpinBackend struct{}

func (yieldSpinBackend) kind() Kind { return KindYieldSpin }

func (b yieldSpinBackend) probe() error { return probeScratch(b) }

func (yieldSpinBackend) init(s *slot) error {
	atomic.StoreUint32(&s.word, 0)
	return nil
}

func (yieldSpinBackend) deinit(s *slot) error { return nil }

func (yieldSpinBackend) acquire(ctx context.Context, s *slot) error {
	for !atomic.CompareAndSwapUint32(&s.word, 0, 1) {
		relax.Yield()
	}
	return nil
}

func (b yieldSpinBackend) acquireRelax(ctx context.Context, s *slot) error {
	return b.acquire(ctx, s)
}

func (yieldSpinBackend) release(s *slot) error {
	atomic.StoreUint32(&s.word, 0)
	return nil
}
