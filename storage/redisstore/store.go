// Package redisstore shares client tokens between processes through Redis.
// Each token is one key, "<prefix><name>", whose Redis TTL carries MaxAge.
package redisstore

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/storage"
)

// DefaultPrefix namespaces token keys
const DefaultPrefix = "_gqlclients_token_"

type envelope struct {
	Value string    `json:"value"`
	SetAt time.Time `json:"set_at"`
}

// Store is a storage.Store backed by Redis
type Store struct {
	cli    redis.UniversalClient
	prefix string
}

var _ storage.Store = (*Store)(nil)

// New wraps cli. An empty prefix selects DefaultPrefix.
func New(cli redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{cli: cli, prefix: prefix}
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

// Get implements storage.Store
func (s *Store) Get(ctx context.Context, name string) (string, bool, error) {
	out, err := s.cli.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.WrapTransient(err, "redisstore", "Get", name)
	}

	var env envelope
	if err := json.Unmarshal(out, &env); err != nil {
		return "", false, errors.WrapInvalid(err, "redisstore", "Get", "decode "+name)
	}
	return env.Value, true, nil
}

// Set implements storage.Store
func (s *Store) Set(ctx context.Context, name, value string, attrs config.CookieAttributes) error {
	if attrs.MaxAge < 0 {
		return s.Delete(ctx, name)
	}
	out, err := json.Marshal(envelope{Value: value, SetAt: time.Now().UTC()})
	if err != nil {
		return errors.WrapInvalid(err, "redisstore", "Set", "encode "+name)
	}
	ttl := time.Duration(attrs.MaxAge) * time.Second
	if err := s.cli.Set(ctx, s.key(name), out, ttl).Err(); err != nil {
		return errors.WrapTransient(err, "redisstore", "Set", name)
	}
	return nil
}

// Delete implements storage.Store
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := s.cli.Del(ctx, s.key(name)).Err(); err != nil {
		return errors.WrapTransient(err, "redisstore", "Delete", name)
	}
	return nil
}

// Clear removes every token under the prefix
func (s *Store) Clear(ctx context.Context) error {
	iter := s.cli.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.cli.Del(ctx, iter.Val()).Err(); err != nil {
			return errors.WrapTransient(err, "redisstore", "Clear", iter.Val())
		}
	}
	return errors.WrapTransient(iter.Err(), "redisstore", "Clear", "scan")
}
