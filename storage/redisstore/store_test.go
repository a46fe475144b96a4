package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
)

func TestNew_DefaultPrefix(t *testing.T) {
	s := New(nil, "")
	assert.Equal(t, DefaultPrefix+"tok", s.key("tok"))
	assert.Equal(t, "x_tok", New(nil, "x_").key("tok"))
}

func TestStore_UnreachableIsTransient(t *testing.T) {
	cli := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer cli.Close()
	s := New(cli, "")

	_, _, err := s.Get(context.Background(), "tok")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	err = s.Set(context.Background(), "tok", "v", config.CookieAttributes{})
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}
