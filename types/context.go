// Package types contains the execution-context types shared by every
// gqlclients package.
package types

import (
	"net/http"
	"strings"
)

// Side identifies where a session executes
type Side int

const (
	// SideClient is a long-lived client process (browser load equivalent)
	SideClient Side = iota
	// SideServer is a single server-side render of one incoming request
	SideServer
)

// String returns the string representation of Side
func (s Side) String() string {
	switch s {
	case SideClient:
		return "client"
	case SideServer:
		return "server"
	default:
		return "unknown"
	}
}

// ExecutionContext is threaded through every component instead of ambient
// environment checks. Request is only meaningful on the server side.
type ExecutionContext struct {
	Side    Side
	Request *http.Request
}

// Client returns a client-side execution context
func Client() ExecutionContext {
	return ExecutionContext{Side: SideClient}
}

// Server returns a server-side execution context for one incoming request
func Server(r *http.Request) ExecutionContext {
	return ExecutionContext{Side: SideServer, Request: r}
}

// IsServer reports whether the context is a server render
func (e ExecutionContext) IsServer() bool {
	return e.Side == SideServer
}

// IsClient reports whether the context is a client process
func (e ExecutionContext) IsClient() bool {
	return e.Side == SideClient
}

// CookieHeader returns the raw Cookie header of the incoming request, or ""
// on the client side. Repeated Cookie headers (HTTP/2) are joined with "; ".
func (e ExecutionContext) CookieHeader() string {
	if !e.IsServer() || e.Request == nil {
		return ""
	}
	return strings.Join(e.Request.Header.Values("Cookie"), "; ")
}
