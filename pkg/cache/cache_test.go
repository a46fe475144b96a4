package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/metric"
)

func testBasicOperations(t *testing.T, c Cache[string]) {
	created, err := c.Set("User:1", "ada")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Set("User:1", "grace")
	require.NoError(t, err)
	assert.False(t, created)

	value, ok := c.Get("User:1")
	assert.True(t, ok)
	assert.Equal(t, "grace", value)

	_, ok = c.Get("User:2")
	assert.False(t, ok)

	deleted, err := c.Delete("User:1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = c.Delete("User:1")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = c.Set("", "x")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func testKeysAndClear(t *testing.T, c Cache[string]) {
	for i := 0; i < 3; i++ {
		_, err := c.Set(fmt.Sprintf("k%d", i), "v")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Size())

	keys := c.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"k0", "k1", "k2"}, keys)

	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Size())
	assert.Empty(t, c.Keys())
}

func testSuite(t *testing.T, create func() Cache[string]) {
	t.Run("basic", func(t *testing.T) {
		c := create()
		defer c.Close()
		testBasicOperations(t, c)
	})
	t.Run("keys and clear", func(t *testing.T) {
		c := create()
		defer c.Close()
		testKeysAndClear(t, c)
	})
}

func TestSimpleCache(t *testing.T) {
	testSuite(t, func() Cache[string] {
		c, err := NewSimple[string]()
		require.NoError(t, err)
		return c
	})
}

func TestLRUCache(t *testing.T) {
	testSuite(t, func() Cache[string] {
		c, err := NewLRU[string](10)
		require.NoError(t, err)
		return c
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		var evicted []string
		c, err := NewLRU[string](2, WithEvictionCallback[string](func(key, _ string) {
			evicted = append(evicted, key)
		}))
		require.NoError(t, err)

		_, _ = c.Set("a", "1")
		_, _ = c.Set("b", "2")
		_, _ = c.Get("a") // b is now the oldest
		_, _ = c.Set("c", "3")

		_, ok := c.Get("b")
		assert.False(t, ok)
		assert.Equal(t, []string{"c", "a"}, c.Keys())
		assert.Equal(t, []string{"b"}, evicted)
		assert.Equal(t, int64(1), c.Stats().Evictions())
	})

	t.Run("rejects non-positive size", func(t *testing.T) {
		_, err := NewLRU[string](0)
		assert.Error(t, err)
	})
}

type fakeClock struct{ nanos atomic.Int64 }

func (f *fakeClock) Now() time.Time          { return time.Unix(0, f.nanos.Load()) }
func (f *fakeClock) Advance(d time.Duration) { f.nanos.Add(int64(d)) }

func TestTTLCache(t *testing.T) {
	testSuite(t, func() Cache[string] {
		c, err := NewTTL[string](context.Background(), time.Minute, time.Minute)
		require.NoError(t, err)
		return c
	})

	t.Run("entries expire", func(t *testing.T) {
		clock := &fakeClock{}
		clock.nanos.Store(time.Now().UnixNano())

		var evicted []string
		c, err := newTTLCache[string](context.Background(), time.Second, time.Hour,
			applyOptions(WithEvictionCallback[string](func(key, _ string) {
				evicted = append(evicted, key)
			})))
		require.NoError(t, err)
		defer c.Close()
		c.now = clock.Now

		_, _ = c.Set("a", "1")
		clock.Advance(500 * time.Millisecond)
		_, _ = c.Set("b", "2")

		clock.Advance(600 * time.Millisecond)
		_, ok := c.Get("a")
		assert.False(t, ok, "a expired")
		v, ok := c.Get("b")
		assert.True(t, ok)
		assert.Equal(t, "2", v)
		assert.Equal(t, []string{"b"}, c.Keys())

		c.sweep()
		assert.Equal(t, []string{"a"}, evicted)
		assert.Equal(t, int64(1), c.Stats().Evictions())
	})

	t.Run("close stops sweeper", func(t *testing.T) {
		c, err := NewTTL[string](context.Background(), time.Second, 10*time.Millisecond)
		require.NoError(t, err)
		assert.NoError(t, c.Close())
		assert.NoError(t, c.Close())
	})
}

func TestNoopCache(t *testing.T) {
	c, err := New[string](context.Background(), Config{Strategy: StrategyNone})
	require.NoError(t, err)

	created, err := c.Set("a", "1")
	require.NoError(t, err)
	assert.False(t, created)
	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Nil(t, c.Stats())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty is simple", Config{}, false},
		{"simple", Config{Strategy: StrategySimple}, false},
		{"lru", Config{Strategy: StrategyLRU, MaxSize: 1}, false},
		{"lru without size", Config{Strategy: StrategyLRU}, true},
		{"ttl", Config{Strategy: StrategyTTL, TTL: time.Second}, false},
		{"ttl without ttl", Config{Strategy: StrategyTTL}, true},
		{"ttl negative cleanup", Config{Strategy: StrategyTTL, TTL: time.Second, CleanupInterval: -1}, true},
		{"unknown", Config{Strategy: "hybrid"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConcurrency(t *testing.T) {
	c, err := NewLRU[int](50)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%75)
				_, _ = c.Set(key, i)
				_, _ = c.Get(key)
				if i%10 == 0 {
					_, _ = c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 50)
}

func TestStatistics(t *testing.T) {
	c, err := NewSimple[string]()
	require.NoError(t, err)

	_, _ = c.Set("a", "1")
	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("b")
	_, _ = c.Delete("a")

	s := c.Stats().Summary()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.Equal(t, int64(1), s.Sets)
	assert.Equal(t, int64(1), s.Deletes)
	assert.Equal(t, int64(1), s.MaxSize)
	assert.Equal(t, int64(0), s.CurrentSize)
	assert.InDelta(t, 2.0/3.0, s.HitRatio, 0.001)
}

func TestWithMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()

	c, err := NewSimple[string](WithMetrics[string](registry, "gqlcache:main"))
	require.NoError(t, err)

	_, _ = c.Set("a", "1")
	_, _ = c.Get("a")
	_, _ = c.Get("missing")

	m := c.(*simpleCache[string]).obs.metrics.Load()
	require.NotNil(t, m)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ops.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.size))

	// a second cache with its own name registers alongside the first
	_, err = NewSimple[string](WithMetrics[string](registry, "gqlcache:other"))
	require.NoError(t, err)

	// the same name twice is a registration conflict
	_, err = NewSimple[string](WithMetrics[string](registry, "gqlcache:main"))
	assert.Error(t, err)

	// until the first cache is closed
	require.NoError(t, c.Close())
	again, err := NewSimple[string](WithMetrics[string](registry, "gqlcache:main"))
	require.NoError(t, err)
	require.NoError(t, again.Close())
}
