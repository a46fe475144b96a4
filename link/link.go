package link

import (
	"context"
	"maps"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Operation is one outgoing GraphQL operation. Links never mutate an
// operation they receive; they pass a copy downstream instead.
type Operation struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`

	// Header holds per-operation request headers added by links
	Header http.Header `json:"-"`
}

// WithHeader returns a copy of op carrying one more header
func (op *Operation) WithHeader(name, value string) *Operation {
	out := *op
	out.Header = op.Header.Clone()
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	out.Header.Set(name, value)
	return &out
}

// Clone returns a copy that shares no maps with op
func (op *Operation) Clone() *Operation {
	out := *op
	out.Variables = maps.Clone(op.Variables)
	out.Extensions = maps.Clone(op.Extensions)
	out.Header = op.Header.Clone()
	return &out
}

// Response is the standard GraphQL JSON envelope
type Response struct {
	Data       json.RawMessage `json:"data,omitempty"`
	Errors     gqlerror.List   `json:"errors,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
}

// HasErrors reports whether the server returned GraphQL errors
func (r *Response) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// Result is one item of an operation's result stream. Queries and mutations
// yield exactly one; subscriptions yield until the stream closes. Err set
// means a network, server or auth failure; Response may still be present.
type Result struct {
	Response *Response
	Err      error
}

// Handler executes operations. The returned channel is closed when the
// operation has no more results.
type Handler interface {
	Execute(ctx context.Context, op *Operation) <-chan Result
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, op *Operation) <-chan Result

// Execute calls f(ctx, op)
func (f HandlerFunc) Execute(ctx context.Context, op *Operation) <-chan Result {
	return f(ctx, op)
}

// Middleware wraps a Handler
type Middleware func(Handler) Handler

// Chain wraps terminal with middlewares. The first middleware is the
// outermost and sees every operation first and every result last.
func Chain(terminal Handler, middlewares ...Middleware) Handler {
	h := terminal
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// single returns a closed channel carrying one result
func single(r Result) <-chan Result {
	out := make(chan Result, 1)
	out <- r
	close(out)
	return out
}

// Failed returns a closed channel carrying only err
func Failed(err error) <-chan Result {
	return single(Result{Err: err})
}
