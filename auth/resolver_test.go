package auth

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/hooks"
	"github.com/c360/gqlclients/metric"
	"github.com/c360/gqlclients/storage"
	"github.com/c360/gqlclients/types"
)

func scenarioConfig() config.ClientConfig {
	return config.ClientConfig{
		HTTPEndpoint: "https://api/graphql",
		WSEndpoint:   "wss://api/graphql",
		TokenStorage: config.TokenStorageCookie,
		TokenName:    "tok",
		AuthHeader:   "Authorization",
		AuthType:     "Bearer",
	}
}

func serverWithCookie(cookie string) types.ExecutionContext {
	r := httptest.NewRequest("POST", "/", nil)
	if cookie != "" {
		r.Header.Set("Cookie", cookie)
	}
	return types.Server(r)
}

func TestResolve_ServerCookieScenario(t *testing.T) {
	cfg := scenarioConfig()
	r := NewResolver(serverWithCookie("tok=abc123; other=x"), Options{})

	cred, err := r.Resolve(context.Background(), "default", cfg)
	require.NoError(t, err)
	assert.Equal(t, SourceCookie, cred.Source)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc123"}, cred.Header(cfg))
}

func TestResolve_SchemeNotDoubled(t *testing.T) {
	cfg := scenarioConfig()
	r := NewResolver(serverWithCookie("tok=Bearer xyz"), Options{})

	cred, err := r.Resolve(context.Background(), "default", cfg)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer xyz"}, cred.Header(cfg))
}

func TestResolve_ServerPrefersTokensWrittenDuringRequest(t *testing.T) {
	cfg := scenarioConfig()
	exec := serverWithCookie("tok=abc123; other=x")
	cookies := storage.NewRequestCookies(exec.Request, nil)
	r := NewResolver(exec, Options{Cookies: cookies})
	ctx := context.Background()

	require.NoError(t, cookies.Delete(ctx, "tok"))
	cred, err := r.Resolve(ctx, "default", cfg)
	require.NoError(t, err)
	assert.False(t, cred.Found(), "deleted during the request")

	require.NoError(t, cookies.Set(ctx, "tok", "newtok", config.CookieAttributes{}))
	cred, err = r.Resolve(ctx, "default", cfg)
	require.NoError(t, err)
	assert.Equal(t, "newtok", cred.Token)

	// Untouched names still go through the raw header scan
	cfg.TokenName = "other"
	cred, err = r.Resolve(ctx, "default", cfg)
	require.NoError(t, err)
	assert.Equal(t, "x", cred.Token)
}

func TestResolve_NothingFound(t *testing.T) {
	cfg := scenarioConfig()
	r := NewResolver(serverWithCookie("other=x"), Options{Hooks: hooks.New(nil)})

	cred, err := r.Resolve(context.Background(), "default", cfg)
	require.NoError(t, err)
	assert.False(t, cred.Found())
	assert.Equal(t, SourceNone, cred.Source)
	assert.Nil(t, cred.Header(cfg))
}

func TestResolve_HookWinsOverStorage(t *testing.T) {
	cfg := scenarioConfig()
	h := hooks.New(nil)
	h.OnAuth(func(_ context.Context, slot *hooks.AuthSlot) error {
		if slot.Client == "default" {
			slot.SetToken("from-hook")
		}
		return nil
	})
	r := NewResolver(serverWithCookie("tok=from-cookie"), Options{Hooks: h})

	cred, err := r.Resolve(context.Background(), "default", cfg)
	require.NoError(t, err)
	assert.Equal(t, Credential{Token: "from-hook", Source: SourceHook}, cred)

	cred, err = r.Resolve(context.Background(), "other", cfg)
	require.NoError(t, err)
	assert.Equal(t, Credential{Token: "from-cookie", Source: SourceCookie}, cred)
}

func TestResolve_HookErrorPropagates(t *testing.T) {
	h := hooks.New(nil)
	boom := fmt.Errorf("refresh failed")
	h.OnAuth(func(context.Context, *hooks.AuthSlot) error { return boom })

	_, err := NewResolver(types.Client(), Options{Hooks: h}).Resolve(context.Background(), "default", scenarioConfig())
	assert.ErrorIs(t, err, boom)
}

func TestResolve_ClientSideStores(t *testing.T) {
	ctx := context.Background()
	cookies := storage.NewMemory()
	local := storage.NewMemory()
	require.NoError(t, cookies.Set(ctx, "tok", "cookie-token", config.CookieAttributes{}))
	require.NoError(t, local.Set(ctx, "tok", "local-token", config.CookieAttributes{}))

	registry := metric.NewMetricsRegistry()
	m := registry.ClientMetrics()
	r := NewResolver(types.Client(), Options{Cookies: cookies, Local: local, Metrics: m})

	cfg := scenarioConfig()
	cred, err := r.Resolve(ctx, "default", cfg)
	require.NoError(t, err)
	assert.Equal(t, Credential{Token: "cookie-token", Source: SourceCookie}, cred)

	cfg.TokenStorage = config.TokenStorageLocalStorage
	cred, err = r.Resolve(ctx, "default", cfg)
	require.NoError(t, err)
	assert.Equal(t, Credential{Token: "local-token", Source: SourceLocalStorage}, cred)

	cfg.TokenStorage = config.TokenStorageNone
	cred, err = r.Resolve(ctx, "default", cfg)
	require.NoError(t, err)
	assert.False(t, cred.Found())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenResolutions.WithLabelValues("default", SourceCookie)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenResolutions.WithLabelValues("default", SourceLocalStorage)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenResolutions.WithLabelValues("default", SourceNone)))
}

func TestResolve_LocalStorageIgnoredOnServer(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	require.NoError(t, local.Set(ctx, "tok", "local-token", config.CookieAttributes{}))

	cfg := scenarioConfig()
	cfg.TokenStorage = config.TokenStorageLocalStorage
	cred, err := NewResolver(serverWithCookie("tok=cookie"), Options{Local: local}).Resolve(ctx, "default", cfg)
	require.NoError(t, err)
	assert.False(t, cred.Found())
}

type failingStore struct{ storage.Store }

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, fmt.Errorf("storage unavailable")
}

func TestResolve_StorageErrorPropagates(t *testing.T) {
	_, err := NewResolver(types.Client(), Options{Cookies: failingStore{}}).
		Resolve(context.Background(), "default", scenarioConfig())
	assert.Error(t, err)
}

func TestResolve_RawTokenWhenAuthTypeNone(t *testing.T) {
	cfg := scenarioConfig()
	cfg.AuthType = config.AuthTypeNone

	cred, err := NewResolver(serverWithCookie("tok=abc123"), Options{}).Resolve(context.Background(), "default", cfg)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "abc123"}, cred.Header(cfg))
}

func TestAuthHeader(t *testing.T) {
	cfg := scenarioConfig()

	name, value, ok, err := NewResolver(serverWithCookie("tok=abc123"), Options{}).
		AuthHeader(context.Background(), "default", cfg)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Authorization", name)
	assert.Equal(t, "Bearer abc123", value)

	_, _, ok, err = NewResolver(serverWithCookie(""), Options{}).
		AuthHeader(context.Background(), "default", cfg)
	require.NoError(t, err)
	assert.False(t, ok)
}
