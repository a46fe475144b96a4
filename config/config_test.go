package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/c360/gqlclients/errors"
)

const fullConfig = `
clients:
  main:
    http_endpoint: https://api/graphql
    browser_http_endpoint: /graphql
    ws_endpoint: wss://api/graphql
    token_storage: cookie
    token_name: tok
    auth_header: Authorization
    auth_type: Bearer
    http_link_options:
      headers:
        X-App: web
      timeout: 5s
    ws_link_options:
      connection_params:
        tenant: acme
      lazy: false
      retry_attempts: 3
  raw:
    http_endpoint: https://raw/graphql
    token_storage: localStorage
    auth_type: null
  short: https://short/graphql
client_awareness: true
proxy_cookies: false
`

func TestParse_FullDocument(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"main", "raw", "short"}, cfg.Clients.Keys())
	assert.True(t, cfg.ClientAwareness)
	assert.False(t, cfg.ShouldProxyCookies())

	main, ok := cfg.Clients.Get("main")
	require.True(t, ok)
	assert.Equal(t, "https://api/graphql", main.HTTPEndpoint)
	assert.Equal(t, "/graphql", main.BrowserHTTPEndpoint)
	assert.True(t, main.HasSubscriptions())
	assert.Equal(t, TokenStorageCookie, main.TokenStorage)
	assert.Equal(t, "tok", main.TokenName)
	assert.Equal(t, "web", main.HTTPLinkOptions.Headers["X-App"])
	assert.Equal(t, 5*time.Second, main.HTTPLinkOptions.Timeout)
	assert.Equal(t, "acme", main.WSLinkOptions.ConnectionParams["tenant"])
	assert.False(t, main.WSLinkOptions.IsLazy())
	assert.Equal(t, 3, main.WSLinkOptions.RetryAttempts)
	assert.Equal(t, ProtocolGraphQLTransportWS, main.WSLinkOptions.Protocol)

	raw, _ := cfg.Clients.Get("raw")
	assert.Equal(t, TokenStorageLocalStorage, raw.TokenStorage)
	assert.True(t, raw.RawToken(), "auth_type: null must select the raw token")

	short, _ := cfg.Clients.Get("short")
	assert.Equal(t, "https://short/graphql", short.HTTPEndpoint)
	assert.Equal(t, "apollo:short.token", short.TokenName)
	assert.Equal(t, "Authorization", short.AuthHeader)
	assert.Equal(t, "Bearer", short.AuthType)
	assert.Equal(t, "/", short.CookieAttributes.Path)
	assert.True(t, short.WSLinkOptions.IsLazy())
	assert.False(t, short.HasSubscriptions())
}

func TestParse_DuplicateClientKey(t *testing.T) {
	doc := `
clients:
  a: https://one/graphql
  a: https://two/graphql
`
	_, err := Parse([]byte(doc))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrDuplicateClient))
	assert.True(t, errors.IsFatal(err))
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		target error
	}{
		{"no clients", "clients: {}", errors.ErrMissingConfig},
		{"missing http endpoint", "clients:\n  a:\n    ws_endpoint: wss://x\n", errors.ErrMissingEndpoint},
		{"websockets only without ws", "clients:\n  a:\n    http_endpoint: https://x\n    websockets_only: true\n", errors.ErrMissingEndpoint},
		{"bad token storage", "clients:\n  a:\n    http_endpoint: https://x\n    token_storage: session\n", errors.ErrInvalidConfig},
		{"bad protocol", "clients:\n  a:\n    http_endpoint: https://x\n    ws_link_options: {protocol: sse}\n", errors.ErrInvalidConfig},
		{"lru without size", "clients:\n  a:\n    http_endpoint: https://x\n    cache: {strategy: lru}\n", errors.ErrInvalidConfig},
		{"unknown default", "clients:\n  a: https://x\ndefault_client: b\n", errors.ErrInvalidConfig},
		{"clients not a mapping", "clients: [a, b]", errors.ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clients.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Clients.Len())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestClientSet_GetReturnsCopy(t *testing.T) {
	cfg, err := Parse([]byte(fullConfig))
	require.NoError(t, err)

	first, _ := cfg.Clients.Get("main")
	first.HTTPLinkOptions.Headers["X-App"] = "mutated"
	first.WSLinkOptions.ConnectionParams["tenant"] = "mutated"

	second, _ := cfg.Clients.Get("main")
	assert.Equal(t, "web", second.HTTPLinkOptions.Headers["X-App"])
	assert.Equal(t, "acme", second.WSLinkOptions.ConnectionParams["tenant"])
}

func TestClientSet_AddProgrammatic(t *testing.T) {
	var set ClientSet
	require.NoError(t, set.Add("b", ClientConfig{HTTPEndpoint: "https://b"}))
	require.NoError(t, set.Add("a", ClientConfig{HTTPEndpoint: "https://a"}))

	err := set.Add("b", ClientConfig{HTTPEndpoint: "https://b2"})
	assert.True(t, errors.Is(err, errors.ErrDuplicateClient))
	assert.Error(t, set.Add("", ClientConfig{}))
	assert.Equal(t, []string{"b", "a"}, set.Keys())

	out, err := yaml.Marshal(Config{Clients: set})
	require.NoError(t, err)

	cfg, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, cfg.Clients.Keys())
}

func TestParseTokenStorage(t *testing.T) {
	assert.Equal(t, TokenStorageLocalStorage, ParseTokenStorage("localStorage"))
	assert.Equal(t, TokenStorageLocalStorage, ParseTokenStorage("local-storage"))
	assert.Equal(t, TokenStorageCookie, ParseTokenStorage("Cookie"))
	assert.Equal(t, TokenStorageNone, ParseTokenStorage("none"))
	assert.Equal(t, TokenStorage(""), ParseTokenStorage(""))
	assert.Equal(t, TokenStorage("session"), ParseTokenStorage("session"))
}
