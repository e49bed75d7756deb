// Package metrics instruments a shared-state registry with Prometheus.
//
// A Collector implements registry.Recorder, so the registry itself never
// depends on Prometheus. Attach one at construction time:
//
//	reg := registry.New(registry.WithRecorder(metrics.NewCollector()))
//
// or to an existing registry:
//
//	collector := metrics.Instrument(reg, metrics.WithNamespace("myapp"))
//
// Metrics collected:
//   - statekit_sets_total{key, status}: writes by key, applied vs skipped
//   - statekit_notifications_total{key, kind}: listener and component fan-out
//   - statekit_set_duration_seconds{key}: accepted-write latency
//   - statekit_keys: number of keys holding a value
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/statekit-dev/statekit/pkg/registry"
)

// Config configures the Prometheus collector.
type Config struct {
	// Namespace is the metrics namespace (default: "statekit").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for set duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the Prometheus collector.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// defaultConfig returns the default collector configuration.
func defaultConfig() Config {
	return Config{
		Namespace: "statekit",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Collector holds the Prometheus instruments for registry traffic.
// It implements registry.Recorder.
type Collector struct {
	setsTotal          *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	setDuration        *prometheus.HistogramVec
	keys               prometheus.Gauge
}

// NewCollector creates a collector and registers its instruments.
func NewCollector(opts ...Option) *Collector {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	factory := promauto.With(config.Registry)

	return &Collector{
		setsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "sets_total",
			Help:        "Total number of writes by key, partitioned by applied/skipped",
			ConstLabels: config.ConstLabels,
		}, []string{"key", "status"}),

		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total notification fan-out per accepted write",
			ConstLabels: config.ConstLabels,
		}, []string{"key", "kind"}),

		setDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "set_duration_seconds",
			Help:        "Accepted write duration in seconds, notification included",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"key"}),

		keys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "keys",
			Help:        "Number of keys currently holding a value",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Instrument attaches a new collector to reg and returns it.
func Instrument(reg *registry.Registry, opts ...Option) *Collector {
	collector := NewCollector(opts...)
	reg.SetRecorder(collector)
	return collector
}

// SetApplied records an accepted write and its duration.
func (c *Collector) SetApplied(key string, d time.Duration) {
	c.setsTotal.WithLabelValues(key, "applied").Inc()
	c.setDuration.WithLabelValues(key).Observe(d.Seconds())
}

// SetSkipped records a write rejected by the equality check.
func (c *Collector) SetSkipped(key string) {
	c.setsTotal.WithLabelValues(key, "skipped").Inc()
}

// Notified records the fan-out of one accepted write.
func (c *Collector) Notified(key string, listeners, updates int) {
	if listeners > 0 {
		c.notificationsTotal.WithLabelValues(key, "listener").Add(float64(listeners))
	}
	if updates > 0 {
		c.notificationsTotal.WithLabelValues(key, "component").Add(float64(updates))
	}
}

// KeyCount records the number of keys holding a value.
func (c *Collector) KeyCount(n int) {
	c.keys.Set(float64(n))
}
