// Package boltstore keeps client tokens in a bbolt file so a native client
// survives restarts the way a browser's local-storage does.
package boltstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/pkg/retry"
	"github.com/c360/gqlclients/storage"
)

var bucketTokens = []byte("tokens")

// Store is a storage.Store backed by bbolt. Values are stored as an 8-byte
// big-endian unix expiry (0 = none) followed by the value.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Options tune Open
type Options struct {
	// LockTimeout bounds one attempt to take the file lock, default 1s
	LockTimeout time.Duration

	// Retry schedules further attempts while another process holds the
	// lock, default 3 attempts
	Retry retry.Config
}

func (o Options) withDefaults() Options {
	if o.LockTimeout <= 0 {
		o.LockTimeout = time.Second
	}
	if o.Retry == (retry.Config{}) {
		o.Retry = retry.Config{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		}
	}
	return o
}

// Open opens or creates the database at path. A lock held by another
// process is retried on the opts.Retry schedule; other failures are not.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	opts = opts.withDefaults()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.WrapFatal(err, "boltstore", "Open", "create data directory")
	}

	var db *bbolt.DB
	err := retry.Do(ctx, opts.Retry, func() error {
		var err error
		db, err = bbolt.Open(path, 0o600, &bbolt.Options{Timeout: opts.LockTimeout})
		if err != nil && !errors.Is(err, bbolt.ErrTimeout) {
			return retry.NonRetryable(err)
		}
		return err
	})
	if err != nil {
		return nil, errors.WrapTransient(fmt.Errorf("%w: %v", errors.ErrStorageUnavailable, err),
			"boltstore", "Open", "open database")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketTokens)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.WrapFatal(err, "boltstore", "Open", "create bucket")
	}
	return &Store{db: db, now: time.Now}, nil
}

// Get implements storage.Store. Expired values are reported missing.
func (s *Store) Get(_ context.Context, name string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketTokens).Get([]byte(name))
		if len(raw) < 8 {
			return nil
		}
		if exp := int64(binary.BigEndian.Uint64(raw[:8])); exp != 0 && s.now().Unix() >= exp {
			return nil
		}
		value, found = string(raw[8:]), true
		return nil
	})
	if err != nil {
		return "", false, errors.WrapTransient(err, "boltstore", "Get", name)
	}
	return value, found, nil
}

// Set implements storage.Store
func (s *Store) Set(ctx context.Context, name, value string, attrs config.CookieAttributes) error {
	if attrs.MaxAge < 0 {
		return s.Delete(ctx, name)
	}
	var exp int64
	if t := storage.Expiry(attrs, s.now()); !t.IsZero() {
		exp = t.Unix()
	}
	raw := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(raw[:8], uint64(exp))
	copy(raw[8:], value)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).Put([]byte(name), raw)
	})
	return errors.WrapTransient(err, "boltstore", "Set", name)
}

// Delete implements storage.Store
func (s *Store) Delete(_ context.Context, name string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(name))
	})
	return errors.WrapTransient(err, "boltstore", "Delete", name)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}
