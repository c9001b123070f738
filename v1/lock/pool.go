package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	shmerrors "github.com/mirkobrombin/go-shmlock/v1/errors"
	"github.com/mirkobrombin/go-shmlock/v1/metrics"
	"github.com/mirkobrombin/go-shmlock/v1/shm"
)

var tracer = otel.Tracer("github.com/mirkobrombin/go-shmlock/v1/lock")

const (
	// defaultWorkers sizes the arena when the caller gives no hint. A
	// worker may hold two locks at once, hence capacity 2n.
	defaultWorkers = 32

	// defaultSysvKeyAttempts bounds the System V random key probe.
	// Collision likelihood depends on how many unrelated processes on
	// the host allocate keys, so the bound is configurable per pool.
	defaultSysvKeyAttempts = 256
)

// Pool is the lock subsystem context: one shared arena of lock slots plus
// the backend driving them. Map creates a pool once per process group;
// other processes Attach by path. All methods are safe for concurrent use
// by multiple processes and goroutines, except Unmap which must not race
// with in-flight operations on the same Pool value.
type Pool struct {
	mu     sync.Mutex
	region *shm.Region
	mem    []byte
	meta   *slot

	backend  backend
	capacity uint32
	owns     bool

	// configuration prior to mapping
	kindOpt      Kind
	workers      int
	capOpt       int
	sysvAttempts int

	createCounter  prometheus.Counter
	destroyCounter prometheus.Counter
	occupancyGauge prometheus.Gauge
	acquireHist    prometheus.Histogram
	traceEnabled   bool
}

// Option configures Map and Attach.
type Option func(*Pool)

// WithWorkers declares how many worker processes will share the pool.
// Capacity is twice that, since a worker may hold two locks concurrently.
func WithWorkers(n int) Option {
	return func(p *Pool) { p.workers = n }
}

// WithCapacity sets the usable slot count directly, overriding
// WithWorkers. The meta-lock slot is not counted.
func WithCapacity(n int) Option {
	return func(p *Pool) { p.capOpt = n }
}

// WithBackend pins the synchronization mechanism instead of probing the
// priority chain. An unusable pinned backend fails at first use, not at
// Map time.
func WithBackend(k Kind) Option {
	return func(p *Pool) { p.kindOpt = k }
}

// WithSysvKeyAttempts overrides how many random keys the System V
// semaphore backend probes before reporting exhaustion.
func WithSysvKeyAttempts(n int) Option {
	return func(p *Pool) { p.sysvAttempts = n }
}

// WithMetrics enables Prometheus metrics collection using the provided
// registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(p *Pool) {
		p.createCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmlock_pool_creates_total",
			Help: "Total number of lock slots allocated from this pool",
		})
		p.destroyCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shmlock_pool_destroys_total",
			Help: "Total number of lock slots returned to this pool",
		})
		p.occupancyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shmlock_pool_slots_in_use",
			Help: "Lock slots currently allocated from this pool",
		})
		p.acquireHist = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "shmlock_pool_acquire_seconds",
			Help:    "Latency of lock acquisitions",
			Buckets: prometheus.DefBuckets,
		})
		reg.MustRegister(p.createCounter, p.destroyCounter, p.occupancyGauge, p.acquireHist)
	}
}

// WithTracing enables OpenTelemetry tracing for pool operations.
func WithTracing() Option {
	return func(p *Pool) { p.traceEnabled = true }
}

func newPool(opts []Option) *Pool {
	p := &Pool{
		workers:      defaultWorkers,
		sysvAttempts: defaultSysvKeyAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Map creates the shared arena and bootstraps the meta-lock. It must run
// once, before workers are spawned; workers then Attach via Path. The
// name is diagnostic only.
func Map(name string, opts ...Option) (*Pool, error) {
	p := newPool(opts)
	capacity := p.capOpt
	if capacity <= 0 {
		capacity = 2 * p.workers
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("lock: invalid capacity %d", capacity)
	}

	region, err := shm.Create(name, arenaBytes(capacity))
	if err != nil {
		return nil, err
	}
	p.region = region
	p.mem = region.Mem
	p.owns = true
	p.capacity = uint32(capacity)

	var b backend
	if p.kindOpt == KindAuto {
		b, err = selectBackend(p)
	} else {
		b, err = newBackend(p.kindOpt, p)
	}
	if err != nil {
		region.Close(true)
		return nil, err
	}
	p.backend = b

	hdr := headerAt(p.mem)
	hdr.magic = arenaMagic
	hdr.version = arenaVersion
	hdr.capacity = uint32(capacity)
	hdr.kind = uint32(b.kind())

	// The pool's own safety bootstraps from a single backend instance:
	// slot 0 is initialized here and stays allocated until Unmap.
	meta := slotAt(p.mem, 0)
	if err := b.init(meta); err != nil {
		region.Close(true)
		return nil, fmt.Errorf("lock: meta-lock init: %w", err)
	}
	atomic.StoreUint32(&meta.gen, 1)
	atomic.StoreUint32(&meta.marker, slotInUse)
	p.meta = meta
	return p, nil
}

// Attach joins an arena mapped by another process. The backend kind
// recorded at Map time is authoritative; options that would change it are
// ignored.
func Attach(path string, opts ...Option) (*Pool, error) {
	p := newPool(opts)
	region, err := shm.Open(path)
	if err != nil {
		return nil, err
	}
	p.region = region
	p.mem = region.Mem

	if len(p.mem) < int(headerSize) {
		region.Close(false)
		return nil, fmt.Errorf("lock: region %s too small for arena header", path)
	}
	hdr := headerAt(p.mem)
	if hdr.magic != arenaMagic {
		region.Close(false)
		return nil, fmt.Errorf("lock: region %s is not a lock arena", path)
	}
	if hdr.version != arenaVersion {
		region.Close(false)
		return nil, fmt.Errorf("lock: arena version %d, want %d", hdr.version, arenaVersion)
	}
	if len(p.mem) < arenaBytes(int(hdr.capacity)) {
		region.Close(false)
		return nil, fmt.Errorf("lock: region %s truncated", path)
	}
	p.capacity = hdr.capacity

	b, err := newBackend(Kind(hdr.kind), p)
	if err != nil {
		region.Close(false)
		return nil, err
	}
	p.backend = b

	meta := slotAt(p.mem, 0)
	if !meta.inUse() {
		region.Close(false)
		return nil, fmt.Errorf("lock: arena %s has no meta-lock", path)
	}
	p.meta = meta
	return p, nil
}

// Path returns the arena's backing path, for workers to Attach.
func (p *Pool) Path() string {
	if p.region == nil {
		return ""
	}
	return p.region.Path
}

// Kind returns the active backend mechanism.
func (p *Pool) Kind() Kind {
	if p.backend == nil {
		return KindUnavailable
	}
	return p.backend.kind()
}

// Capacity returns the number of usable lock slots.
func (p *Pool) Capacity() int { return int(p.capacity) }

// InUse counts currently allocated slots, the meta-lock excluded.
func (p *Pool) InUse() int {
	if p.mem == nil {
		return 0
	}
	n := 0
	for i := uint32(1); i <= p.capacity; i++ {
		if slotAt(p.mem, i).inUse() {
			n++
		}
	}
	return n
}

// Unmap tears down the arena. Every outstanding handle becomes invalid;
// the backing file is removed only by the pool's creator. Unmap is
// idempotent.
func (p *Pool) Unmap() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mem == nil {
		return nil
	}
	if p.owns && p.meta != nil {
		_ = p.backend.deinit(p.meta)
	}
	err := p.region.Close(p.owns)
	p.region = nil
	p.mem = nil
	p.meta = nil
	return err
}

// lookup validates a handle against its slot. It is the only defense
// between a stale or foreign handle and backend state.
func (p *Pool) lookup(h Handle) (*slot, error) {
	if p.mem == nil {
		return nil, shmerrors.ErrUnmapped
	}
	if h.Index == 0 || h.Index > p.capacity {
		return nil, shmerrors.ErrInvalidHandle
	}
	s := slotAt(p.mem, h.Index)
	if atomic.LoadUint32(&s.marker) != slotInUse || atomic.LoadUint32(&s.gen) != h.Gen {
		return nil, shmerrors.ErrInvalidHandle
	}
	return s, nil
}

// Create allocates a lock slot and returns its handle. Allocation is
// serialized by the meta-lock, so racing processes get distinct slots.
// The name is a diagnostic label with no functional effect.
func (p *Pool) Create(ctx context.Context, name string) (Handle, error) {
	if p.mem == nil {
		return Handle{}, shmerrors.ErrUnmapped
	}
	var span trace.Span
	if p.traceEnabled {
		ctx, span = tracer.Start(ctx, "Pool.Create")
		defer span.End()
		span.SetAttributes(
			attribute.String("shmlock.name", name),
			attribute.String("shmlock.backend", p.Kind().String()),
		)
	}

	if err := p.backend.acquire(ctx, p.meta); err != nil {
		return Handle{}, err
	}

	var (
		idx uint32
		s   *slot
	)
	for i := uint32(1); i <= p.capacity; i++ {
		if c := slotAt(p.mem, i); !c.inUse() {
			idx, s = i, c
			break
		}
	}
	if s == nil {
		_ = p.backend.release(p.meta)
		return Handle{}, fmt.Errorf("lock: no free slot in pool of %d: %w", p.capacity, shmerrors.ErrExhausted)
	}

	// Backend state must be live before the marker says so.
	if err := p.backend.init(s); err != nil {
		s.reset()
		_ = p.backend.release(p.meta)
		if shmErr(err) {
			return Handle{}, err
		}
		return Handle{}, fmt.Errorf("lock: backend init: %v: %w", err, shmerrors.ErrExhausted)
	}
	gen := atomic.LoadUint32(&s.gen) + 1
	atomic.StoreUint32(&s.gen, gen)
	atomic.StoreUint32(&s.marker, slotInUse)

	if err := p.backend.release(p.meta); err != nil {
		// The caller gets no handle, so the slot must not stay
		// allocated.
		_ = p.backend.deinit(s)
		s.reset()
		return Handle{}, err
	}

	metrics.CreateCounter.Inc()
	metrics.OccupancyGauge.Inc()
	if p.createCounter != nil {
		p.createCounter.Inc()
	}
	if p.occupancyGauge != nil {
		p.occupancyGauge.Inc()
	}
	if p.traceEnabled {
		span.SetAttributes(attribute.Int("shmlock.slot", int(idx)))
	}
	return Handle{Index: idx, Gen: gen}, nil
}

// Destroy gives a slot back to the pool. The handle, and any copy of it
// in other processes, is invalid afterwards.
func (p *Pool) Destroy(ctx context.Context, h Handle) error {
	s, err := p.lookup(h)
	if err != nil {
		return err
	}
	var span trace.Span
	if p.traceEnabled {
		ctx, span = tracer.Start(ctx, "Pool.Destroy")
		defer span.End()
		span.SetAttributes(attribute.Int("shmlock.slot", int(h.Index)))
	}

	if err := p.backend.deinit(s); err != nil {
		return err
	}
	if err := p.backend.acquire(ctx, p.meta); err != nil {
		return err
	}
	s.reset()
	err = p.backend.release(p.meta)

	metrics.DestroyCounter.Inc()
	metrics.OccupancyGauge.Dec()
	if p.destroyCounter != nil {
		p.destroyCounter.Inc()
	}
	if p.occupancyGauge != nil {
		p.occupancyGauge.Dec()
	}
	return err
}

// Acquire blocks until the lock is held. Kernel-blocking backends cannot
// be cancelled mid-wait; the spin backend honors ctx once its wall-clock
// ceiling has passed.
func (p *Pool) Acquire(ctx context.Context, h Handle) error {
	s, err := p.lookup(h)
	if err != nil {
		return err
	}
	return p.instrument(ctx, "Pool.Acquire", h, func(ctx context.Context) error {
		return p.backend.acquire(ctx, s)
	})
}

// AcquireRelax is Acquire with backoff between attempts where the backend
// distinguishes the two; kernel-blocking backends treat them identically.
func (p *Pool) AcquireRelax(ctx context.Context, h Handle) error {
	s, err := p.lookup(h)
	if err != nil {
		return err
	}
	return p.instrument(ctx, "Pool.AcquireRelax", h, func(ctx context.Context) error {
		return p.backend.acquireRelax(ctx, s)
	})
}

// Release unlocks a held lock. Releasing a lock the caller does not hold
// is undefined, exactly as with the underlying primitives.
func (p *Pool) Release(h Handle) error {
	s, err := p.lookup(h)
	if err != nil {
		return err
	}
	if err := p.backend.release(s); err != nil {
		return err
	}
	metrics.ReleaseCounter.Inc()
	return nil
}

func (p *Pool) instrument(ctx context.Context, op string, h Handle, fn func(context.Context) error) error {
	var span trace.Span
	var start time.Time
	if p.traceEnabled {
		ctx, span = tracer.Start(ctx, op)
		defer span.End()
		span.SetAttributes(
			attribute.Int("shmlock.slot", int(h.Index)),
			attribute.String("shmlock.backend", p.Kind().String()),
		)
	}
	if p.acquireHist != nil || p.traceEnabled {
		start = time.Now()
	}
	err := fn(ctx)
	if p.acquireHist != nil {
		p.acquireHist.Observe(time.Since(start).Seconds())
	}
	if p.traceEnabled {
		span.SetAttributes(attribute.Int64("shmlock.wait_us", time.Since(start).Microseconds()))
	}
	if err == nil {
		metrics.AcquireCounter.Inc()
	}
	return err
}

// shmErr reports whether err already carries one of the package sentinel
// errors and should pass through unwrapped.
func shmErr(err error) bool {
	return errors.Is(err, shmerrors.ErrExhausted) ||
		errors.Is(err, shmerrors.ErrBackendUnavailable) ||
		errors.Is(err, shmerrors.ErrTimeout)
}
