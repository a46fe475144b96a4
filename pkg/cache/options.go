package cache

import (
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/metric"
)

// Option configures a cache
type Option[V any] func(*cacheOptions[V])

type cacheOptions[V any] struct {
	metricsReg    *metric.MetricsRegistry
	metricsName   string
	evictCallback EvictCallback[V]
}

// WithMetrics exports the cache statistics to registry, labelled with name.
// Ignored when registry is nil or name is empty.
func WithMetrics[V any](registry *metric.MetricsRegistry, name string) Option[V] {
	return func(opts *cacheOptions[V]) {
		if registry != nil && name != "" {
			opts.metricsReg = registry
			opts.metricsName = name
		}
	}
}

// WithEvictionCallback sets the eviction callback
func WithEvictionCallback[V any](callback EvictCallback[V]) Option[V] {
	return func(opts *cacheOptions[V]) {
		opts.evictCallback = callback
	}
}

func applyOptions[V any](options ...Option[V]) *cacheOptions[V] {
	opts := &cacheOptions[V]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}

// newObserver builds the stats/metrics pair shared by every strategy
func newObserver[V any](opts *cacheOptions[V], constructor string) (*observer, error) {
	obs := &observer{stats: NewStatistics()}
	if opts.metricsReg != nil {
		m, err := newCacheMetrics(opts.metricsReg, opts.metricsName)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", constructor, "metrics registration")
		}
		obs.metrics.Store(m)
	}
	return obs, nil
}
