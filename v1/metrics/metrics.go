package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CreateCounter tracks the number of lock slot allocations.
	CreateCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmlock_create_total",
		Help: "Total number of lock slot allocations",
	})
	// DestroyCounter tracks the number of lock slot deallocations.
	DestroyCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmlock_destroy_total",
		Help: "Total number of lock slot deallocations",
	})
	// AcquireCounter tracks successful lock acquisitions.
	AcquireCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmlock_acquire_total",
		Help: "Total number of successful lock acquisitions",
	})
	// ReleaseCounter tracks lock releases.
	ReleaseCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shmlock_release_total",
		Help: "Total number of lock releases",
	})
	// OccupancyGauge reports the number of allocated slots across pools.
	OccupancyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shmlock_slots_in_use",
		Help: "Current number of allocated lock slots",
	})
)

// NewRegistry creates a new Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers shmlock core metrics on the provided registry.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(CreateCounter, DestroyCounter, AcquireCounter, ReleaseCounter, OccupancyGauge)
}
