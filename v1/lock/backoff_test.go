package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	shmerrors "github.com/mirkobrombin/go-shmlock/v1/errors"
)

func TestSpinAcquireUncontended(t *testing.T) {
	var word uint32
	calls := 0
	pol := spinPolicy{ceiling: time.Second, maxOff: 8, pause: func(int) { calls++ }}
	if err := pol.spinAcquire(context.Background(), &word, true); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if word != 1 {
		t.Fatalf("word = %d, want 1", word)
	}
	if calls != 0 {
		t.Fatalf("pause called %d times on uncontended acquire", calls)
	}
}

func TestSpinBackoffDoublesUpToCap(t *testing.T) {
	word := uint32(1) // held, never released
	var seq []int
	pol := spinPolicy{ceiling: time.Millisecond, maxOff: 16, pause: func(n int) { seq = append(seq, n) }}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pol.spinAcquire(ctx, &word, true)
	if !errors.Is(err, shmerrors.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if len(seq) == 0 {
		t.Fatal("pause never called")
	}
	if seq[0] != 1 {
		t.Fatalf("first backoff = %d, want 1", seq[0])
	}
	for i := 1; i < len(seq); i++ {
		want := seq[i-1] * 2
		if want > pol.maxOff {
			want = pol.maxOff
		}
		if seq[i] != want {
			t.Fatalf("backoff[%d] = %d, want %d", i, seq[i], want)
		}
	}
	if seq[len(seq)-1] != pol.maxOff {
		t.Fatalf("backoff never reached cap %d", pol.maxOff)
	}
}

func TestSpinCancellationAloneDoesNotAbort(t *testing.T) {
	// Ceiling exceeded but context live: the loop must keep retrying
	// until the word is released.
	var word uint32
	atomic.StoreUint32(&word, 1)
	pol := spinPolicy{ceiling: time.Nanosecond, maxOff: 4, pause: func(int) {}}

	go func() {
		time.Sleep(20 * time.Millisecond)
		atomic.StoreUint32(&word, 0)
	}()
	if err := pol.spinAcquire(context.Background(), &word, true); err != nil {
		t.Fatalf("acquire: %v", err)
	}
}

func TestSpinCeilingHonoredBeforeTimeout(t *testing.T) {
	// Context cancelled but ceiling not reached: the loop must keep
	// retrying until the word is released.
	var word uint32
	atomic.StoreUint32(&word, 1)
	pol := spinPolicy{ceiling: 10 * time.Second, maxOff: 4, pause: func(int) {}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	go func() {
		time.Sleep(20 * time.Millisecond)
		atomic.StoreUint32(&word, 0)
	}()
	if err := pol.spinAcquire(ctx, &word, true); err != nil {
		t.Fatalf("acquire: %v", err)
	}
}

func TestDefaultSpinPolicy(t *testing.T) {
	pol := defaultSpinPolicy()
	if pol.ceiling != 5*time.Second {
		t.Fatalf("ceiling = %v, want 5s", pol.ceiling)
	}
	if pol.maxOff != 1<<18 {
		t.Fatalf("max backoff = %d, want %d", pol.maxOff, 1<<18)
	}
}
