package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clients.yaml")
	doc := "clients:\n  main:\n    http_endpoint: " + endpoint + "\n    token_storage: local-storage\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func TestValidateFlags(t *testing.T) {
	path := writeConfig(t, "https://api/graphql")
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"query", []string{"--config", path, "--query", "{ me }"}, false},
		{"validate only", []string{"--config", path, "--validate"}, false},
		{"missing query", []string{"--config", path}, true},
		{"missing config", []string{"--config", "/nonexistent.yaml", "--query", "{ me }"}, true},
		{"bad level", []string{"--config", path, "--query", "{ me }", "--log-level", "loud"}, true},
		{"bad format", []string{"--config", path, "--query", "{ me }", "--log-format", "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli, err := parseFlags(tt.args)
			require.NoError(t, err)
			if tt.wantErr {
				assert.Error(t, validateFlags(cli))
			} else {
				assert.NoError(t, validateFlags(cli))
			}
		})
	}
}

func TestRun_QueryWithToken(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"me":{"id":"1"}}}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--config", writeConfig(t, srv.URL),
		"--client", "main",
		"--token", "abc",
		"--query", "query Me($n: Int) { me { id } }",
		"--variables", `{"n":2}`,
	}, &stdout, &stderr)
	require.NoError(t, err)

	assert.Equal(t, "Bearer abc", gotAuth)
	assert.Equal(t, map[string]any{"n": float64(2)}, gotBody["variables"])

	var out map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, map[string]any{"me": map[string]any{"id": "1"}}, out["data"])
}

func TestRun_GraphQLErrorsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"nope"}]}`))
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--config", writeConfig(t, srv.URL), "--query", "{ me { id } }",
	}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, stdout.String(), "nope")
}

func TestRun_BoltTokenStorePersists(t *testing.T) {
	var auths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auths = append(auths, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	cfgPath := writeConfig(t, srv.URL)
	dbPath := filepath.Join(t.TempDir(), "tokens.db")
	var stdout, stderr bytes.Buffer

	require.NoError(t, run(context.Background(), []string{
		"--config", cfgPath, "--token-store", dbPath, "--token", "abc", "--query", "{ ok }",
	}, &stdout, &stderr))
	require.NoError(t, run(context.Background(), []string{
		"--config", cfgPath, "--token-store", dbPath, "--query", "{ ok }",
	}, &stdout, &stderr))

	assert.Equal(t, []string{"Bearer abc", "Bearer abc"}, auths)
}

func TestRun_Version(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"--version"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), Version)
}

func TestRun_JarTokenStoreSendsCookie(t *testing.T) {
	var cookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie = r.Header.Get("Cookie")
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "clients.yaml")
	doc := "clients:\n  main:\n    http_endpoint: " + srv.URL + "\n    token_name: tok\n    cookie_attributes: {path: /}\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{
		"--config", path, "--token-store", "jar", "--token", "abc", "--query", "{ ok }",
	}, &stdout, &stderr))
	assert.Equal(t, "tok=abc", cookie)
}

func TestParseFlags_EnvFallbacks(t *testing.T) {
	t.Setenv("GQLCLIENTS_CLIENT", "live")
	t.Setenv("GQLCLIENTS_QUERY", "subscription { tick }")
	t.Setenv("GQLCLIENTS_VARIABLES", `{"n":1}`)
	t.Setenv("GQLCLIENTS_SUBSCRIBE", "true")
	t.Setenv("GQLCLIENTS_CACHE_FILE", "/tmp/cache.txt")

	cli, err := parseFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "live", cli.Client)
	assert.Equal(t, "subscription { tick }", cli.Query)
	assert.Equal(t, `{"n":1}`, cli.Variables)
	assert.True(t, cli.Subscribe)
	assert.Equal(t, "/tmp/cache.txt", cli.CacheFile)

	cli, err = parseFlags([]string{"--client", "main", "--subscribe=false"})
	require.NoError(t, err)
	assert.Equal(t, "main", cli.Client, "flags win over the environment")
	assert.False(t, cli.Subscribe)
}

func TestParseFlags_InvalidBoolEnvKeepsDefault(t *testing.T) {
	t.Setenv("GQLCLIENTS_SUBSCRIBE", "sometimes")
	cli, err := parseFlags(nil)
	require.NoError(t, err)
	assert.False(t, cli.Subscribe)
}

func TestRun_RedisTokenStoreErrors(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1/graphql")
	tests := []struct {
		name  string
		store string
		want  string
	}{
		{"bad database", "redis://127.0.0.1:6379/notanumber", "parse token store url"},
		{"unreachable", "redis://127.0.0.1:1/0", "open token store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), []string{
				"--config", cfgPath, "--token-store", tt.store, "--query", "{ ok }",
			}, &stdout, &stderr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_CacheFileAnswersRepeatQuery(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"data":{"me":{"__typename":"User","id":"1","name":"Ada"}}}`))
	}))
	defer srv.Close()

	cfgPath := writeConfig(t, srv.URL)
	cachePath := filepath.Join(t.TempDir(), "cache.txt")
	args := []string{"--config", cfgPath, "--cache-file", cachePath, "--query", "{ me { __typename id name } }"}

	var first, second, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), args, &first, &stderr))
	require.FileExists(t, cachePath)
	require.NoError(t, run(context.Background(), args, &second, &stderr))

	assert.Equal(t, 1, calls, "second run is answered from the restored cache")
	assert.JSONEq(t, first.String(), second.String())
}

func TestRun_CorruptCacheFileFails(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.txt")
	require.NoError(t, os.WriteFile(cachePath, []byte("!!not-base64!!"), 0o600))

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{
		"--config", writeConfig(t, "http://127.0.0.1:1/graphql"),
		"--cache-file", cachePath, "--query", "{ ok }",
	}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode cache file")
}
