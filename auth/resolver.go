// Package auth resolves the credential of a client for one request or one
// connection attempt.
package auth

import (
	"context"
	"log/slog"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/hooks"
	"github.com/c360/gqlclients/metric"
	"github.com/c360/gqlclients/storage"
	"github.com/c360/gqlclients/types"
)

// Resolver resolves tokens in strict order: the auth hook, then cookie
// storage, then local-storage. The first source that yields a token wins.
type Resolver struct {
	exec    types.ExecutionContext
	hooks   *hooks.Registry
	cookies storage.Store
	local   storage.Store
	metrics *metric.Metrics
	logger  *slog.Logger
}

// Options wires a Resolver. Cookies is the cookie store. On the server the
// incoming Cookie header is scanned unless the store reports the token was
// written during the request. Local is only consulted on the client side.
type Options struct {
	Hooks   *hooks.Registry
	Cookies storage.Store
	Local   storage.Store
	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// NewResolver creates a resolver for one execution context
func NewResolver(exec types.ExecutionContext, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		exec:    exec,
		hooks:   opts.Hooks,
		cookies: opts.Cookies,
		local:   opts.Local,
		metrics: opts.Metrics,
		logger:  logger.With("component", "auth"),
	}
}

// ExecutionContext returns the context the resolver was built for
func (r *Resolver) ExecutionContext() types.ExecutionContext {
	return r.exec
}

// Resolve returns the credential for the client declared under key. A
// missing token is not an error. Hook and storage failures are returned and
// fail only the caller's request or connection attempt.
func (r *Resolver) Resolve(ctx context.Context, key string, cfg config.ClientConfig) (Credential, error) {
	cred, err := r.resolve(ctx, key, cfg)
	if err != nil {
		return Credential{}, err
	}
	r.metrics.RecordTokenResolution(key, cred.Source)
	return cred, nil
}

// AuthHeader resolves the credential and derives the header for it. ok is
// false when no token was found.
func (r *Resolver) AuthHeader(ctx context.Context, key string, cfg config.ClientConfig) (name, value string, ok bool, err error) {
	cred, err := r.Resolve(ctx, key, cfg)
	if err != nil {
		return "", "", false, err
	}
	value, ok = cred.HeaderValue(cfg)
	return cfg.AuthHeader, value, ok, nil
}

func (r *Resolver) resolve(ctx context.Context, key string, cfg config.ClientConfig) (Credential, error) {
	slot := hooks.NewAuthSlot(key)
	if err := r.hooks.CallAuth(ctx, slot); err != nil {
		return Credential{}, errors.Wrap(err, "Resolver", "Resolve", "auth hook for "+key)
	}
	if token, ok := slot.Token(); ok {
		return Credential{Token: token, Source: SourceHook}, nil
	}

	switch cfg.TokenStorage {
	case config.TokenStorageCookie:
		if r.exec.IsServer() {
			if token, ok := r.serverCookie(cfg.TokenName); ok {
				return Credential{Token: token, Source: SourceCookie}, nil
			}
		} else if token, ok, err := read(ctx, r.cookies, cfg.TokenName); err != nil {
			return Credential{}, errors.Wrap(err, "Resolver", "Resolve", "cookie "+cfg.TokenName)
		} else if ok {
			return Credential{Token: token, Source: SourceCookie}, nil
		}

	case config.TokenStorageLocalStorage:
		if r.exec.IsClient() {
			token, ok, err := read(ctx, r.local, cfg.TokenName)
			if err != nil {
				return Credential{}, errors.Wrap(err, "Resolver", "Resolve", "local-storage "+cfg.TokenName)
			}
			if ok {
				return Credential{Token: token, Source: SourceLocalStorage}, nil
			}
		}
	}

	r.logger.Debug("no credential", "client", key, "side", r.exec.Side.String())
	return Credential{Source: SourceNone}, nil
}

// overlay is implemented by server cookie stores that track writes made
// during the request
type overlay interface {
	Touched(name string) (value string, found, touched bool)
}

// serverCookie prefers a token set or deleted during this request and
// otherwise scans the raw request header
func (r *Resolver) serverCookie(name string) (string, bool) {
	if o, ok := r.cookies.(overlay); ok {
		if token, found, touched := o.Touched(name); touched {
			return token, found && token != ""
		}
	}
	token, ok := ScanCookieHeader(r.exec.CookieHeader(), name)
	return token, ok && token != ""
}

func read(ctx context.Context, s storage.Store, name string) (string, bool, error) {
	if s == nil {
		return "", false, nil
	}
	token, ok, err := s.Get(ctx, name)
	if err != nil || !ok || token == "" {
		return "", false, err
	}
	return token, true, nil
}
