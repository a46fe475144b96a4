package link

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/subscription"
	"github.com/c360/gqlclients/types"
)

type wsFrame struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsServer acknowledges every connection and answers each subscribe frame
// with one result followed by complete
type wsServer struct {
	srv *httptest.Server

	mu    sync.Mutex
	inits []map[string]any
	ops   []string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{}
	upgrader := websocket.Upgrader{Subprotocols: []string{config.ProtocolGraphQLTransportWS}}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			var f wsFrame
			_, data, err := ws.ReadMessage()
			if err != nil || json.Unmarshal(data, &f) != nil {
				return
			}
			switch f.Type {
			case "connection_init":
				var params map[string]any
				_ = json.Unmarshal(f.Payload, &params)
				s.mu.Lock()
				s.inits = append(s.inits, params)
				s.mu.Unlock()
				_ = ws.WriteJSON(wsFrame{Type: "connection_ack"})
			case "subscribe":
				var req subscription.Request
				_ = json.Unmarshal(f.Payload, &req)
				s.mu.Lock()
				s.ops = append(s.ops, req.Query)
				s.mu.Unlock()
				_ = ws.WriteJSON(wsFrame{ID: f.ID, Type: "next", Payload: json.RawMessage(`{"data":{"via":"ws"}}`)})
				_ = ws.WriteJSON(wsFrame{ID: f.ID, Type: "complete"})
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) operations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *wsServer) lastInit() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inits[len(s.inits)-1]
}

func routedTo(t *testing.T, h Handler, query string) string {
	t.Helper()
	results := drain(t, h.Execute(context.Background(), &Operation{Query: query}))
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	var data struct {
		Via string `json:"via"`
	}
	require.NoError(t, json.Unmarshal(results[0].Response.Data, &data))
	return data.Via
}

func testConfig(httpURL, wsURL string) config.ClientConfig {
	return config.ClientConfig{
		HTTPEndpoint: httpURL,
		WSEndpoint:   wsURL,
		AuthHeader:   "Authorization",
		AuthType:     "Bearer",
		WSLinkOptions: config.WSLinkOptions{
			Protocol:      config.ProtocolGraphQLTransportWS,
			RetryAttempts: 2,
		},
	}
}

func build(t *testing.T, opts Options, cfg config.ClientConfig) *Built {
	t.Helper()
	built, err := NewBuilder(opts).Build(context.Background(), "main", cfg)
	require.NoError(t, err)
	if built.Transport != nil {
		t.Cleanup(built.Transport.Dispose)
	}
	return built
}

func TestBuild_SplitRouting(t *testing.T) {
	httpSrv, _ := graphqlServer(t, http.StatusOK, `{"data":{"via":"http"}}`)
	wsSrv := newWSServer(t)

	built := build(t, Options{Exec: types.Client()}, testConfig(httpSrv.URL, wsSrv.url()))
	require.NotNil(t, built.Transport)

	assert.Equal(t, "ws", routedTo(t, built.Link, "subscription { tick }"))
	assert.Equal(t, "http", routedTo(t, built.Link, "query { me }"))
	assert.Equal(t, "http", routedTo(t, built.Link, "mutation { login }"))
	assert.Equal(t, "ws", routedTo(t, built.Link, "subscription { tock }"))
	for _, op := range wsSrv.operations() {
		assert.True(t, strings.HasPrefix(op, "subscription"), "%q went over ws", op)
	}
}

func TestBuild_HTTPOnlyWithoutWSEndpoint(t *testing.T) {
	httpSrv, reqs := graphqlServer(t, http.StatusOK, `{"data":{"via":"http"}}`)

	built := build(t, Options{Exec: types.Client()}, testConfig(httpSrv.URL, ""))
	assert.Nil(t, built.Transport)

	assert.Equal(t, "http", routedTo(t, built.Link, "subscription { tick }"))
	req := <-reqs
	assert.Equal(t, "subscription { tick }", req.body["query"])
}

func TestBuild_WebsocketsOnly(t *testing.T) {
	wsSrv := newWSServer(t)
	cfg := testConfig("", wsSrv.url())
	cfg.WebsocketsOnly = true

	built := build(t, Options{Exec: types.Client()}, cfg)

	assert.Equal(t, "ws", routedTo(t, built.Link, "query { me }"))
	assert.Equal(t, "ws", routedTo(t, built.Link, "mutation { login }"))
}

func TestBuild_ServerNeverCreatesTransport(t *testing.T) {
	httpSrv, _ := graphqlServer(t, http.StatusOK, `{"data":{"via":"http"}}`)
	cfg := testConfig(httpSrv.URL, "wss://unused/graphql")

	built := build(t, Options{Exec: types.Server(httptest.NewRequest("GET", "/", nil))}, cfg)
	assert.Nil(t, built.Transport)
	assert.Equal(t, "http", routedTo(t, built.Link, "query { me }"))

	cfg.WebsocketsOnly = true
	cfg.HTTPEndpoint = ""
	built = build(t, Options{Exec: types.Server(httptest.NewRequest("GET", "/", nil))}, cfg)
	results := drain(t, built.Link.Execute(context.Background(), &Operation{Query: "query { me }"}))
	require.Len(t, results, 1)
	assert.True(t, errors.Is(results[0].Err, errors.ErrNoTransport))
}

func TestBuild_BrowserEndpointOnClientOnly(t *testing.T) {
	internal, _ := graphqlServer(t, http.StatusOK, `{"data":{"via":"internal"}}`)
	public, _ := graphqlServer(t, http.StatusOK, `{"data":{"via":"public"}}`)
	cfg := testConfig(internal.URL, "")
	cfg.BrowserHTTPEndpoint = public.URL

	client := build(t, Options{Exec: types.Client()}, cfg)
	assert.Equal(t, "public", routedTo(t, client.Link, "{ me }"))

	server := build(t, Options{Exec: types.Server(httptest.NewRequest("GET", "/", nil))}, cfg)
	assert.Equal(t, "internal", routedTo(t, server.Link, "{ me }"))
}

func TestBuild_AuthAndAwarenessHeaders(t *testing.T) {
	httpSrv, reqs := graphqlServer(t, http.StatusOK, `{"data":{"via":"http"}}`)
	cfg := testConfig(httpSrv.URL, "")
	cfg.HTTPLinkOptions.Headers = map[string]string{"X-App": "web"}

	incoming := httptest.NewRequest("GET", "/", nil)
	incoming.Header.Set("Cookie", "tok=abc123; other=x")

	built := build(t, Options{
		Exec:            types.Server(incoming),
		Credentials:     &staticCreds{value: "Bearer abc123"},
		ClientAwareness: true,
		ProxyCookies:    true,
	}, cfg)
	routedTo(t, built.Link, "{ me }")

	req := <-reqs
	assert.Equal(t, "Bearer abc123", req.header.Get("Authorization"))
	assert.Equal(t, "main", req.header.Get(HeaderClientName))
	assert.Equal(t, "web", req.header.Get("X-App"))
	assert.Equal(t, "tok=abc123; other=x", req.header.Get("Cookie"))
}

func TestBuild_NoCookieProxyOnClient(t *testing.T) {
	httpSrv, reqs := graphqlServer(t, http.StatusOK, `{"data":{"via":"http"}}`)

	built := build(t, Options{Exec: types.Client(), Credentials: &staticCreds{}, ProxyCookies: true},
		testConfig(httpSrv.URL, ""))
	routedTo(t, built.Link, "{ me }")

	req := <-reqs
	assert.Empty(t, req.header.Get("Cookie"))
	assert.Empty(t, req.header.Get("Authorization"))
	assert.Empty(t, req.header.Get(HeaderClientName))
}

func TestBuild_ConnectionParamsMergeAuthLast(t *testing.T) {
	httpSrv, _ := graphqlServer(t, http.StatusOK, `{"data":{"via":"http"}}`)
	wsSrv := newWSServer(t)
	cfg := testConfig(httpSrv.URL, wsSrv.url())
	cfg.WSLinkOptions.ConnectionParams = map[string]any{"tenant": "acme", "Authorization": "static"}

	creds := &staticCreds{value: "Bearer first"}
	built := build(t, Options{
		Exec:        types.Client(),
		Credentials: creds,
		ConnectionParams: map[string]subscription.ParamsFunc{
			"main": func(context.Context) (map[string]any, error) {
				return map[string]any{"locale": "en"}, nil
			},
		},
	}, cfg)

	routedTo(t, built.Link, "subscription { tick }")
	init := wsSrv.lastInit()
	assert.Equal(t, "acme", init["tenant"])
	assert.Equal(t, "en", init["locale"])
	assert.Equal(t, "Bearer first", init["Authorization"])

	// The next connection resolves again
	creds.set("Bearer second", nil)
	routedTo(t, built.Link, "subscription { tick }")
	assert.Equal(t, "Bearer second", wsSrv.lastInit()["Authorization"])
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBuilder(Options{Exec: types.Client()}).Build(ctx, "main", testConfig("https://x", ""))
	assert.Error(t, err)
}
