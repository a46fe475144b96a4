package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/gqlclients/errors"
)

// Strategy selects the eviction policy
type Strategy string

const (
	StrategySimple Strategy = "simple"
	StrategyLRU    Strategy = "lru"
	StrategyTTL    Strategy = "ttl"
	StrategyNone   Strategy = "none"
)

// Config selects and sizes a cache
type Config struct {
	Strategy        Strategy      `json:"strategy" yaml:"strategy"`
	MaxSize         int           `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	TTL             time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	CleanupInterval time.Duration `json:"cleanup_interval,omitempty" yaml:"cleanup_interval,omitempty"`
}

// Validate checks the strategy parameters
func (c Config) Validate() error {
	switch c.Strategy {
	case StrategySimple, StrategyNone, "":
	case StrategyLRU:
		if c.MaxSize <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidData, "cache", "Validate",
				fmt.Sprintf("max_size must be positive for LRU cache, got %d", c.MaxSize))
		}
	case StrategyTTL:
		if c.TTL <= 0 {
			return errors.WrapInvalid(errors.ErrInvalidData, "cache", "Validate",
				fmt.Sprintf("ttl must be positive for TTL cache, got %v", c.TTL))
		}
		if c.CleanupInterval < 0 {
			return errors.WrapInvalid(errors.ErrInvalidData, "cache", "Validate",
				fmt.Sprintf("cleanup_interval must not be negative, got %v", c.CleanupInterval))
		}
	default:
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "Validate",
			fmt.Sprintf("unknown cache strategy: %s", c.Strategy))
	}
	return nil
}

// New creates a cache for config. An empty strategy means simple. ctx bounds
// the lifetime of background sweepers.
func New[V any](ctx context.Context, config Config, options ...Option[V]) (Cache[V], error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "cache", "New", "config validation failed")
	}

	opts := applyOptions(options...)
	switch config.Strategy {
	case StrategySimple, "":
		return newSimpleCache[V](opts)
	case StrategyLRU:
		return newLRUCache[V](config.MaxSize, opts)
	case StrategyTTL:
		return newTTLCache[V](ctx, config.TTL, config.CleanupInterval, opts)
	default:
		return NewNoop[V](), nil
	}
}

// NewSimple creates a cache with no eviction
func NewSimple[V any](options ...Option[V]) (Cache[V], error) {
	return newSimpleCache[V](applyOptions(options...))
}

// NewLRU creates a cache holding at most maxSize entries
func NewLRU[V any](maxSize int, options ...Option[V]) (Cache[V], error) {
	return New[V](context.Background(), Config{Strategy: StrategyLRU, MaxSize: maxSize}, options...)
}

// NewTTL creates an expiring cache whose sweeper stops with ctx or Close
func NewTTL[V any](ctx context.Context, ttl, cleanupInterval time.Duration, options ...Option[V]) (Cache[V], error) {
	return New[V](ctx, Config{Strategy: StrategyTTL, TTL: ttl, CleanupInterval: cleanupInterval}, options...)
}

// NewNoop creates a cache where every read misses
func NewNoop[V any]() Cache[V] {
	return noopCache[V]{}
}

type noopCache[V any] struct{}

func (noopCache[V]) Get(string) (V, bool) {
	var zero V
	return zero, false
}
func (noopCache[V]) Set(string, V) (bool, error) { return false, nil }
func (noopCache[V]) Delete(string) (bool, error) { return false, nil }
func (noopCache[V]) Clear() error                { return nil }
func (noopCache[V]) Size() int                   { return 0 }
func (noopCache[V]) Keys() []string              { return nil }
func (noopCache[V]) Stats() *Statistics          { return nil }
func (noopCache[V]) Close() error                { return nil }
