package registry

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/c360/gqlclients/hooks"
	"github.com/c360/gqlclients/storage"
	"github.com/c360/gqlclients/subscription"
	"github.com/c360/gqlclients/transfer"
	"github.com/c360/gqlclients/types"
)

// Session is what one application session supplies to its registry: a
// server render of one request, or one client process.
type Session struct {
	Exec types.ExecutionContext

	// Hooks receives auth, error and render:done callbacks. Nil creates an
	// empty registry.
	Hooks *hooks.Registry

	// Cookies is the client-side cookie store. On the server the request's
	// cookies are used and writes go to ResponseWriter.
	Cookies storage.Store

	// Local is the client-side local-storage. Ignored on the server.
	Local storage.Store

	// ResponseWriter receives Set-Cookie headers written during a server
	// render. Optional.
	ResponseWriter http.ResponseWriter

	// Payload carries cache state from a server render to the client. The
	// server writes into it on render:done; the client restores from it
	// while building. It must belong to this session alone.
	Payload *transfer.Payload

	// HTTPClient is the base HTTP client of every link
	HTTPClient *http.Client

	// Dialer overrides the websocket dialer of subscription transports
	Dialer *websocket.Dialer

	// ConnectionParams holds deferred connection params per client key
	ConnectionParams map[string]subscription.ParamsFunc

	// ClientVersion is sent as apollographql-client-version when client
	// awareness is on
	ClientVersion string
}

// withDefaults fills the stores a side needs
func (s Session) withDefaults() Session {
	if s.Hooks == nil {
		s.Hooks = hooks.New(nil)
	}
	if s.Exec.IsServer() {
		s.Cookies = storage.NewRequestCookies(s.Exec.Request, s.ResponseWriter)
		s.Local = nil
		return s
	}
	if s.Cookies == nil {
		s.Cookies = storage.NewMemory()
	}
	if s.Local == nil {
		s.Local = storage.NewMemory()
	}
	return s
}
