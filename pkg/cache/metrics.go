package cache

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/gqlclients/metric"
)

// cacheMetrics mirrors Statistics into Prometheus
type cacheMetrics struct {
	ops  *prometheus.CounterVec // op = hit | miss | set | delete | eviction
	size prometheus.Gauge

	registry *metric.MetricsRegistry
	name     string
}

func newCacheMetrics(registry *metric.MetricsRegistry, name string) (*cacheMetrics, error) {
	m := &cacheMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "gqlclients",
			Subsystem:   "cache",
			Name:        "operations_total",
			ConstLabels: prometheus.Labels{"cache": name},
			Help:        "Cache operations by kind",
		}, []string{"op"}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "gqlclients",
			Subsystem:   "cache",
			Name:        "size",
			ConstLabels: prometheus.Labels{"cache": name},
			Help:        "Current number of entries in cache",
		}),
		registry: registry,
		name:     name,
	}

	if err := registry.RegisterCounterVec(name, "cache_operations", m.ops); err != nil {
		return nil, err
	}
	if err := registry.Register(name, "cache_size", m.size); err != nil {
		registry.Unregister(name, "cache_operations")
		return nil, err
	}
	return m, nil
}

// observer records every cache event in the statistics and, when enabled,
// in Prometheus
type observer struct {
	stats   *Statistics
	metrics atomic.Pointer[cacheMetrics]
}

func (o *observer) op(name string) {
	if m := o.metrics.Load(); m != nil {
		m.ops.WithLabelValues(name).Inc()
	}
}

func (o *observer) hit()  { o.stats.Hit(); o.op("hit") }
func (o *observer) miss() { o.stats.Miss(); o.op("miss") }
func (o *observer) set()  { o.stats.Set(); o.op("set") }
func (o *observer) del()  { o.stats.Delete(); o.op("delete") }

func (o *observer) evicted(n int) {
	for i := 0; i < n; i++ {
		o.stats.Eviction()
		o.op("eviction")
	}
}

// release drops the Prometheus registration so the name can be reused
func (o *observer) release() {
	m := o.metrics.Swap(nil)
	if m == nil {
		return
	}
	m.registry.Unregister(m.name, "cache_operations")
	m.registry.Unregister(m.name, "cache_size")
}

func (o *observer) size(n int) {
	o.stats.UpdateSize(int64(n))
	if m := o.metrics.Load(); m != nil {
		m.size.Set(float64(n))
	}
}
