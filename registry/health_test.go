package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gqlclients/link"
	"github.com/c360/gqlclients/types"
)

func TestHealth(t *testing.T) {
	a := newAPI(t)
	cfg := parseConfig(t, "clients:\n  main: %s\n  live:\n    http_endpoint: %s\n    ws_endpoint: wss://a/graphql\n",
		a.srv.URL, a.srv.URL)
	r, err := New(Options{Config: cfg, Session: Session{Exec: types.Client()}})
	require.NoError(t, err)

	assert.True(t, r.Health().IsDegraded(), "not built yet")

	clients, err := r.BuildAll(context.Background())
	require.NoError(t, err)
	_, err = clients["main"].Query(context.Background(), &link.Operation{Query: meQuery}, "")
	require.NoError(t, err)

	status := r.Health()
	require.True(t, status.IsHealthy(), status.Message)
	require.Len(t, status.SubStatuses, 2)

	main := status.SubStatuses[0]
	assert.Equal(t, "main", main.Component)
	require.NotNil(t, main.Details)
	assert.Equal(t, "none", main.Details.Transport)
	assert.Positive(t, main.Details.CacheEntries)

	live := status.SubStatuses[1]
	assert.Equal(t, "live", live.Component)
	assert.Equal(t, "disconnected", live.Details.Transport, "lazy transport stays idle")
	assert.True(t, live.IsHealthy())

	require.NoError(t, r.Close())
	assert.True(t, r.Health().IsUnhealthy())
}
