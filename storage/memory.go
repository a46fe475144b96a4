package storage

import (
	"context"
	"sync"
	"time"

	"github.com/c360/gqlclients/config"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// Memory is an in-process Store
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory creates an empty store
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

// Get implements Store
func (m *Memory) Get(_ context.Context, name string) (string, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[name]
	m.mu.RUnlock()

	if !ok || (!e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements Store. A negative MaxAge deletes name.
func (m *Memory) Set(ctx context.Context, name, value string, attrs config.CookieAttributes) error {
	if attrs.MaxAge < 0 {
		return m.Delete(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[name] = memoryEntry{value: value, expiresAt: Expiry(attrs, m.now())}
	return nil
}

// Delete implements Store
func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, name)
	return nil
}
