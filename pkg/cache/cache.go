package cache

import (
	"github.com/c360/gqlclients/errors"
)

// Cache is the interface every strategy implements
type Cache[V any] interface {
	// Get returns the value and true if key is present
	Get(key string) (V, bool)

	// Set stores value under key and reports whether the entry is new
	Set(key string, value V) (bool, error)

	// Delete removes key and reports whether it existed
	Delete(key string) (bool, error)

	// Clear removes all entries
	Clear() error

	// Size returns the number of live entries
	Size() int

	// Keys returns the live keys
	Keys() []string

	// Stats returns the statistics, nil for the noop cache
	Stats() *Statistics

	// Close releases background resources
	Close() error
}

// EvictCallback is called outside the cache lock whenever an entry leaves
// the cache through Delete, Clear, capacity eviction or expiry.
type EvictCallback[V any] func(key string, value V)

func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
