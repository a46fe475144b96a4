package subscription

import (
	"github.com/goccy/go-json"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/c360/gqlclients/config"
)

// Close codes used by graphql-transport-ws servers and by this client
const (
	CloseNormal       = 1000
	CloseBadRequest   = 4400
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
	CloseAckTimeout   = 4408
	CloseRestart      = 4205
)

// message is one frame of either protocol
type message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// protocol names the frame types of one subprotocol
type protocol struct {
	name string

	init      string
	ack       string
	initError string // empty when the protocol closes the socket instead
	keepAlive string // server keep-alive frame, ignored
	ping      string
	pong      string

	subscribe string
	next      string
	error     string
	complete  string // server to client
	stop      string // client to server
	terminate string // sent before a clean close, empty if none
}

var transportWS = protocol{
	name:      config.ProtocolGraphQLTransportWS,
	init:      "connection_init",
	ack:       "connection_ack",
	ping:      "ping",
	pong:      "pong",
	subscribe: "subscribe",
	next:      "next",
	error:     "error",
	complete:  "complete",
	stop:      "complete",
}

var legacyWS = protocol{
	name:      config.ProtocolGraphQLWS,
	init:      "connection_init",
	ack:       "connection_ack",
	initError: "connection_error",
	keepAlive: "ka",
	subscribe: "start",
	next:      "data",
	error:     "error",
	complete:  "complete",
	stop:      "stop",
	terminate: "connection_terminate",
}

// is reports whether frame type t is the protocol's want. Frames a protocol
// does not define never match.
func (p protocol) is(t, want string) bool {
	return want != "" && t == want
}

func protocolFor(name string) protocol {
	if name == config.ProtocolGraphQLWS {
		return legacyWS
	}
	return transportWS
}

// decodeErrors reads an error frame payload. graphql-transport-ws sends a
// list, the legacy protocol a single object.
func decodeErrors(payload json.RawMessage) gqlerror.List {
	var list gqlerror.List
	if err := json.Unmarshal(payload, &list); err == nil && len(list) > 0 {
		return list
	}
	var single gqlerror.Error
	if err := json.Unmarshal(payload, &single); err == nil && single.Message != "" {
		return gqlerror.List{&single}
	}
	return gqlerror.List{gqlerror.Errorf("subscription error: %s", string(payload))}
}
