// Package storagetest holds the behavior every storage.Store must share.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/storage"
)

// Run exercises get, overwrite and delete of a token on s
func Run(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()
	const name = "apollo:default.token"

	_, ok, err := s.Get(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, name, "abc123", config.CookieAttributes{Path: "/"}))
	v, ok, err := s.Get(ctx, name)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)

	require.NoError(t, s.Set(ctx, name, "Bearer xyz", config.CookieAttributes{Path: "/"}))
	v, _, err = s.Get(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, "Bearer xyz", v)

	require.NoError(t, s.Delete(ctx, name))
	_, ok, err = s.Get(ctx, name)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, s.Delete(ctx, "never-set"))
}
