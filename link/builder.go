package link

import (
	"context"
	"log/slog"
	"maps"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/hooks"
	"github.com/c360/gqlclients/metric"
	"github.com/c360/gqlclients/subscription"
	"github.com/c360/gqlclients/types"
)

// Options are shared by every client a Builder builds
type Options struct {
	Exec        types.ExecutionContext
	Credentials CredentialSource
	Hooks       *hooks.Registry
	Metrics     *metric.Metrics
	Logger      *slog.Logger

	// ClientAwareness sends the client key as apollographql-client-name
	ClientAwareness bool
	ClientVersion   string

	// ProxyCookies forwards the incoming request's Cookie header during
	// server renders
	ProxyCookies bool

	// HTTPClient is copied per client with that client's timeout. On the
	// client side it carries the cookie jar.
	HTTPClient *http.Client

	// Dialer overrides the websocket dialer
	Dialer *websocket.Dialer

	// ConnectionParams holds deferred connection params per client key.
	// Their result is layered over the static connection_params.
	ConnectionParams map[string]subscription.ParamsFunc
}

// Built is the link chain of one client and the transport it owns
type Built struct {
	Link Handler

	// Transport is nil on the server side and when no ws endpoint is set
	Transport *subscription.Client
}

// Builder assembles link chains: error link, then auth link, then routing
type Builder struct {
	opts   Options
	logger *slog.Logger
}

// NewBuilder creates a builder for one execution context
func NewBuilder(opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{opts: opts, logger: logger}
}

// Build creates the link chain for the client declared under key. Routing:
// HTTP only without a usable ws transport, ws only when websockets_only is
// set, otherwise subscriptions over ws and everything else over HTTP. The
// ws transport exists only on the client side.
func (b *Builder) Build(ctx context.Context, key string, cfg config.ClientConfig) (*Built, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapTransient(err, "Builder", "Build", key)
	}

	var httpLink Handler
	if endpoint := b.httpEndpoint(cfg); endpoint != "" {
		l, err := NewHTTPLink(b.httpOptions(key, endpoint, cfg))
		if err != nil {
			return nil, errors.Wrap(err, "Builder", "Build", key)
		}
		httpLink = l
	}

	built := &Built{}
	if cfg.HasSubscriptions() && b.opts.Exec.IsClient() {
		opts := subscription.OptionsFrom(key, cfg)
		opts.ConnectionParams = b.connectionParams(key, cfg)
		opts.Dialer = b.opts.Dialer
		opts.Metrics = b.opts.Metrics
		opts.Logger = b.logger
		transport, err := subscription.New(opts)
		if err != nil {
			return nil, errors.Wrap(err, "Builder", "Build", key)
		}
		built.Transport = transport
	}

	var terminal Handler
	switch {
	case built.Transport == nil && httpLink == nil:
		terminal = noTransport(key)
	case built.Transport == nil:
		terminal = httpLink
	case cfg.WebsocketsOnly || httpLink == nil:
		terminal = NewSubscriptionLink(built.Transport)
	default:
		terminal = Split(IsSubscription, NewSubscriptionLink(built.Transport), httpLink)
	}

	middlewares := []Middleware{
		ErrorLink(key, b.opts.Hooks, b.opts.Metrics, b.logger),
	}
	if b.opts.Credentials != nil {
		middlewares = append(middlewares, AuthLink(key, cfg, b.opts.Credentials))
	}
	built.Link = Chain(terminal, middlewares...)

	b.logger.Debug("Built link chain",
		"component", "link", "client", key,
		"side", b.opts.Exec.Side.String(),
		"http", httpLink != nil,
		"ws", built.Transport != nil,
		"websockets_only", cfg.WebsocketsOnly)
	return built, nil
}

// httpEndpoint prefers the browser endpoint on the client side
func (b *Builder) httpEndpoint(cfg config.ClientConfig) string {
	if b.opts.Exec.IsClient() && cfg.BrowserHTTPEndpoint != "" {
		return cfg.BrowserHTTPEndpoint
	}
	return cfg.HTTPEndpoint
}

func (b *Builder) httpOptions(key, endpoint string, cfg config.ClientConfig) HTTPOptions {
	client := &http.Client{}
	if b.opts.HTTPClient != nil {
		c := *b.opts.HTTPClient
		client = &c
	}
	if cfg.HTTPLinkOptions.Timeout > 0 {
		client.Timeout = cfg.HTTPLinkOptions.Timeout
	}

	opts := HTTPOptions{
		Endpoint: endpoint,
		Headers:  maps.Clone(cfg.HTTPLinkOptions.Headers),
		Client:   client,
	}
	if b.opts.ClientAwareness {
		opts.ClientName = key
		opts.ClientVersion = b.opts.ClientVersion
	}
	if b.opts.ProxyCookies && b.opts.Exec.IsServer() {
		opts.Cookie = b.opts.Exec.CookieHeader()
	}
	return opts
}

// connectionParams builds the connection_init payload on every connect:
// static params, then deferred params, then the auth header, which wins on
// collision
func (b *Builder) connectionParams(key string, cfg config.ClientConfig) subscription.ParamsFunc {
	static := maps.Clone(cfg.WSLinkOptions.ConnectionParams)
	deferred := b.opts.ConnectionParams[key]
	creds := b.opts.Credentials

	return func(ctx context.Context) (map[string]any, error) {
		params := make(map[string]any, len(static)+1)
		maps.Copy(params, static)
		if deferred != nil {
			resolved, err := deferred(ctx)
			if err != nil {
				return nil, errors.Wrap(err, "Builder", "connectionParams", "resolve deferred params")
			}
			maps.Copy(params, resolved)
		}
		if creds != nil {
			name, value, ok, err := creds.AuthHeader(ctx, key, cfg)
			if err != nil {
				return nil, errors.Wrap(err, "Builder", "connectionParams", "resolve credential")
			}
			if ok {
				params[name] = value
			}
		}
		return params, nil
	}
}

func noTransport(key string) Handler {
	return HandlerFunc(func(context.Context, *Operation) <-chan Result {
		return Failed(errors.WrapInvalid(errors.ErrNoTransport, "Link", "Execute", key))
	})
}
