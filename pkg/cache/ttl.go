package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e ttlEntry[V]) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// ttlCache expires entries ttl after their last Set. Expired entries are
// invisible immediately and removed by a background sweep.
type ttlCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	items   map[string]ttlEntry[V]
	obs     *observer
	evictFn EvictCallback[V]
	now     func() time.Time

	shutdown chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newTTLCache[V any](
	ctx context.Context, ttl, cleanupInterval time.Duration, opts *cacheOptions[V],
) (*ttlCache[V], error) {
	obs, err := newObserver(opts, "newTTLCache")
	if err != nil {
		return nil, err
	}
	if cleanupInterval <= 0 {
		cleanupInterval = ttl
	}

	c := &ttlCache[V]{
		ttl:      ttl,
		items:    make(map[string]ttlEntry[V]),
		obs:      obs,
		evictFn:  opts.evictCallback,
		now:      time.Now,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.sweepLoop(ctx, cleanupInterval)
	return c, nil
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	if !exists || entry.expired(c.now()) {
		c.obs.miss()
		var zero V
		return zero, false
	}
	c.obs.hit()
	return entry.value, true
}

func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	now := c.now()

	c.mu.Lock()
	old, exists := c.items[key]
	c.items[key] = ttlEntry[V]{value: value, expiresAt: now.Add(c.ttl)}
	size := len(c.items)
	c.mu.Unlock()

	c.obs.set()
	c.obs.size(size)
	return !exists || old.expired(now), nil
}

func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	entry, exists := c.items[key]
	delete(c.items, key)
	size := len(c.items)
	c.mu.Unlock()

	if !exists {
		return false, nil
	}
	c.obs.del()
	c.obs.size(size)
	if c.evictFn != nil {
		c.evictFn(key, entry.value)
	}
	return !entry.expired(c.now()), nil
}

func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	old := c.items
	c.items = make(map[string]ttlEntry[V])
	c.mu.Unlock()

	c.obs.size(0)
	if c.evictFn != nil {
		for key, entry := range old {
			c.evictFn(key, entry.value)
		}
	}
	return nil
}

// Size counts only live entries
func (c *ttlCache[V]) Size() int {
	return len(c.Keys())
}

// Keys skips entries that expired but were not swept yet
func (c *ttlCache[V]) Keys() []string {
	now := c.now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.items))
	for key, entry := range c.items {
		if !entry.expired(now) {
			keys = append(keys, key)
		}
	}
	return keys
}

func (c *ttlCache[V]) Stats() *Statistics { return c.obs.stats }

// Close stops the sweeper and releases the metrics registration
func (c *ttlCache[V]) Close() error {
	c.once.Do(func() { close(c.shutdown) })
	select {
	case <-c.done:
		c.obs.release()
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

func (c *ttlCache[V]) sweepLoop(ctx context.Context, interval time.Duration) {
	defer close(c.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *ttlCache[V]) sweep() {
	now := c.now()
	expired := make(map[string]V)

	c.mu.Lock()
	for key, entry := range c.items {
		if entry.expired(now) {
			expired[key] = entry.value
			delete(c.items, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	c.obs.evicted(len(expired))
	c.obs.size(size)
	if c.evictFn != nil {
		for key, value := range expired {
			c.evictFn(key, value)
		}
	}
}
