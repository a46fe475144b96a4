// Package hooks is the ordered callback registry the client layer emits
// into. Three hooks exist:
//
//   - auth: awaited in registration order; the first callback that fills
//     the slot wins and the rest are skipped. Errors propagate.
//   - error: fire-and-forget; every callback observes every error on its own
//     goroutine. Panics are recovered and logged.
//   - render:done: awaited in registration order on the server after a
//     render; every callback runs and errors are joined.
package hooks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/c360/gqlclients/errors"
)

// Hook names
const (
	HookAuth       = "auth"
	HookError      = "error"
	HookRenderDone = "render:done"
)

// AuthSlot is the mutable slot handed to auth callbacks
type AuthSlot struct {
	Client string

	token  string
	filled bool
}

// NewAuthSlot returns an empty slot for client
func NewAuthSlot(client string) *AuthSlot {
	return &AuthSlot{Client: client}
}

// SetToken fills the slot. An empty token leaves it empty.
func (s *AuthSlot) SetToken(token string) {
	if token == "" {
		return
	}
	s.token = token
	s.filled = true
}

// Token returns the token and whether a callback provided one
func (s *AuthSlot) Token() (string, bool) {
	return s.token, s.filled
}

// ErrorResponse is what the error hook observes. At least one of
// GraphQLErrors and NetworkError is set.
type ErrorResponse struct {
	Client        string
	OperationName string
	OperationKind string
	GraphQLErrors gqlerror.List
	NetworkError  error
}

// Type returns a short label for metrics: graphql, network or both
func (e ErrorResponse) Type() string {
	switch {
	case e.NetworkError != nil && len(e.GraphQLErrors) > 0:
		return "both"
	case e.NetworkError != nil:
		return "network"
	default:
		return "graphql"
	}
}

type (
	// AuthFunc fills slot or leaves it for the next callback
	AuthFunc func(ctx context.Context, slot *AuthSlot) error
	// ErrorFunc observes an error
	ErrorFunc func(resp ErrorResponse)
	// RenderDoneFunc runs once a server render has finished
	RenderDoneFunc func(ctx context.Context) error
)

// Registry holds the callbacks of one application session
type Registry struct {
	mu         sync.RWMutex
	auth       []AuthFunc
	errs       []ErrorFunc
	renderDone []RenderDoneFunc

	logger   *slog.Logger
	inflight sync.WaitGroup
}

// New creates an empty registry
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger.With("component", "hooks")}
}

// OnAuth appends an auth callback
func (r *Registry) OnAuth(fn AuthFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auth = append(r.auth, fn)
}

// OnError appends an error observer
func (r *Registry) OnError(fn ErrorFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, fn)
}

// OnRenderDone appends a render:done callback
func (r *Registry) OnRenderDone(fn RenderDoneFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderDone = append(r.renderDone, fn)
}

// CallAuth runs the auth callbacks in order until one fills slot. Safe on a
// nil registry.
func (r *Registry) CallAuth(ctx context.Context, slot *AuthSlot) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	fns := append([]AuthFunc(nil), r.auth...)
	r.mu.RUnlock()

	for i, fn := range fns {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, slot); err != nil {
			return errors.Wrap(err, "hooks", "CallAuth", fmt.Sprintf("auth hook %d for %s", i, slot.Client))
		}
		if _, ok := slot.Token(); ok {
			return nil
		}
	}
	return nil
}

// EmitError hands resp to every error observer without waiting. Safe on a
// nil registry.
func (r *Registry) EmitError(resp ErrorResponse) {
	if r == nil {
		return
	}
	r.mu.RLock()
	fns := append([]ErrorFunc(nil), r.errs...)
	r.mu.RUnlock()

	for _, fn := range fns {
		r.inflight.Add(1)
		go func(fn ErrorFunc) {
			defer r.inflight.Done()
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("error hook panicked", "client", resp.Client, "panic", p)
				}
			}()
			fn(resp)
		}(fn)
	}
}

// CallRenderDone runs every render:done callback in order and joins their
// errors. Safe on a nil registry.
func (r *Registry) CallRenderDone(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	fns := append([]RenderDoneFunc(nil), r.renderDone...)
	r.mu.RUnlock()

	var errs []error
	for _, fn := range fns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Wait blocks until every error observer started so far has returned
func (r *Registry) Wait() {
	if r == nil {
		return
	}
	r.inflight.Wait()
}
