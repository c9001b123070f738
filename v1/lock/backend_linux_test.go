//go:build linux

package lock

import (
	"context"
	"errors"
	"sync"
	"testing"

	shmerrors "github.com/mirkobrombin/go-shmlock/v1/errors"
)

// Backends whose availability depends on the kernel or host configuration
// may be skipped; the portable ones must work everywhere the tests run.
var optionalKinds = map[Kind]bool{
	KindFutexPI: true,
	KindSysvSem: true,
	KindFcntl:   true,
}

func TestEveryBackendAcquireRelease(t *testing.T) {
	kinds := []Kind{KindSpin, KindYieldSpin, KindFutex, KindFutexPI, KindSem, KindSysvSem, KindFcntl}
	for _, k := range kinds {
		k := k
		t.Run(k.String(), func(t *testing.T) {
			p, err := Map("backend", WithBackend(k), WithCapacity(2))
			if err != nil {
				if optionalKinds[k] {
					t.Skipf("backend %s unusable here: %v", k, err)
				}
				t.Fatalf("map: %v", err)
			}
			defer p.Unmap()

			ctx := context.Background()
			h, err := p.Create(ctx, "probe")
			if err != nil {
				if optionalKinds[k] {
					t.Skipf("backend %s unusable here: %v", k, err)
				}
				t.Fatalf("create: %v", err)
			}
			if err := p.Acquire(ctx, h); err != nil {
				t.Fatalf("acquire: %v", err)
			}
			if err := p.Release(h); err != nil {
				t.Fatalf("release: %v", err)
			}
			if err := p.AcquireRelax(ctx, h); err != nil {
				t.Fatalf("acquire relax: %v", err)
			}
			if err := p.Release(h); err != nil {
				t.Fatalf("release: %v", err)
			}
			if err := p.Destroy(ctx, h); err != nil {
				t.Fatalf("destroy: %v", err)
			}
		})
	}
}

func TestBlockingBackendsExclude(t *testing.T) {
	// The fcntl backend is excluded: OFD locks do not separate
	// goroutines sharing one descriptor.
	kinds := []Kind{KindFutex, KindFutexPI, KindSem, KindSysvSem}
	for _, k := range kinds {
		k := k
		t.Run(k.String(), func(t *testing.T) {
			p, err := Map("excl", WithBackend(k), WithCapacity(2))
			if err != nil {
				if optionalKinds[k] {
					t.Skipf("backend %s unusable here: %v", k, err)
				}
				t.Fatalf("map: %v", err)
			}
			defer p.Unmap()

			ctx := context.Background()
			h, err := p.Create(ctx, "excl")
			if err != nil {
				if optionalKinds[k] {
					t.Skipf("backend %s unusable here: %v", k, err)
				}
				t.Fatalf("create: %v", err)
			}

			const goroutines, iters = 4, 100
			var counter int
			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := 0; i < iters; i++ {
						if err := p.Acquire(ctx, h); err != nil {
							t.Errorf("acquire: %v", err)
							return
						}
						counter++
						if err := p.Release(h); err != nil {
							t.Errorf("release: %v", err)
							return
						}
					}
				}()
			}
			wg.Wait()
			if counter != goroutines*iters {
				t.Fatalf("counter = %d, want %d", counter, goroutines*iters)
			}
		})
	}
}

func TestAutoSelectionPrefersKernelBackends(t *testing.T) {
	p, err := Map("auto")
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	defer p.Unmap()
	// On Linux the probe chain should never fall through to a raw spin.
	if k := p.Kind(); k == KindSpin || k == KindUnavailable {
		t.Fatalf("auto selected %v", k)
	}
}

func TestUnavailableBackendFailsAtFirstUse(t *testing.T) {
	p, err := Map("degraded", WithBackend(KindUnavailable))
	// Map itself initializes the meta-lock, which is the first use.
	if err == nil {
		defer p.Unmap()
		_, cerr := p.Create(context.Background(), "never")
		if !errors.Is(cerr, shmerrors.ErrBackendUnavailable) {
			t.Fatalf("create: %v, want ErrBackendUnavailable", cerr)
		}
		return
	}
	if !errors.Is(err, shmerrors.ErrBackendUnavailable) {
		t.Fatalf("map: %v, want ErrBackendUnavailable", err)
	}
}

func TestFutexPIProbeRepeatable(t *testing.T) {
	// The probe locks and unlocks a scratch word with the kernel's PI
	// protocol, which demands both calls come from the same TID. Run it
	// many times so an unpinned goroutine migrating between the two
	// syscalls would show up as a spurious failure.
	b := futexPIBackend{}
	if err := b.probe(); err != nil {
		t.Skipf("pi futex unsupported here: %v", err)
	}
	for i := 0; i < 200; i++ {
		if err := b.probe(); err != nil {
			t.Fatalf("probe %d: %v", i, err)
		}
	}
}

func TestSysvKeyAttemptsConfigurable(t *testing.T) {
	b, ok := newSysvBackend(3).(*sysvBackend)
	if !ok {
		t.Fatal("unexpected backend type")
	}
	if b.attempts != 3 {
		t.Fatalf("attempts = %d, want 3", b.attempts)
	}
	if def := newSysvBackend(0).(*sysvBackend); def.attempts != defaultSysvKeyAttempts {
		t.Fatalf("default attempts = %d, want %d", def.attempts, defaultSysvKeyAttempts)
	}
}
