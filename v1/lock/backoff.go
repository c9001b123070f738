package lock

import (
	"context"
	"sync/atomic"
	"time"

	shmerrors "github.com/mirkobrombin/go-shmlock/v1/errors"
	"github.com/mirkobrombin/go-shmlock/v1/relax"
)

const (
	// spinCeiling bounds how long a spin acquire keeps burning CPU once
	// the caller has asked to stop. The ceiling alone never aborts the
	// loop: both the ceiling and cancellation must hold.
	spinCeiling = 5 * time.Second

	// maxSpinBackoff caps the exponential pause count between attempts.
	maxSpinBackoff = 1 << 18
)

// spinPolicy parameterizes the busy-wait loop so tests can shrink the
// ceiling and count pause calls.
type spinPolicy struct {
	ceiling time.Duration
	maxOff  int
	pause   func(n int)
}

func defaultSpinPolicy() spinPolicy {
	return spinPolicy{ceiling: spinCeiling, maxOff: maxSpinBackoff, pause: relax.Spin}
}

// spinAcquire loops a test-and-set on word until it wins. With relaxed
// set, each failed attempt executes an exponentially growing number of
// pause hints, starting at one and doubling up to the cap, which keeps
// contended cache lines quieter without changing the loop's semantics.
//
// Cancellation is cooperative: the context is sampled between attempts,
// and the loop aborts with ErrTimeout only when the ceiling has elapsed
// and the context reports cancellation.
func (p spinPolicy) spinAcquire(ctx context.Context, word *uint32, relaxed bool) error {
	backoff := 1
	start := time.Now()
	for {
		if atomic.CompareAndSwapUint32(word, 0, 1) {
			return nil
		}
		if time.Since(start) > p.ceiling && ctx.Err() != nil {
			return shmerrors.ErrTimeout
		}
		if relaxed {
			p.pause(backoff)
			if backoff < p.maxOff {
				backoff <<= 1
			}
		}
	}
}
