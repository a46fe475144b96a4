package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/c360/gqlclients/auth"
	"github.com/c360/gqlclients/client"
	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/gqlcache"
	"github.com/c360/gqlclients/hooks"
	"github.com/c360/gqlclients/link"
	"github.com/c360/gqlclients/metric"
	"github.com/c360/gqlclients/transfer"
)

// DefaultAlias is the key the default client is additionally reachable under
const DefaultAlias = "default"

// Options configure a Registry
type Options struct {
	Config  *config.Config
	Session Session

	// Metrics is optional. Per-client cache metrics are only exported on
	// the client side, where caches live for the whole process.
	Metrics *metric.MetricsRegistry

	// Namespace of cache transfer keys, default transfer.DefaultNamespace
	Namespace string

	Logger *slog.Logger
}

// Registry builds and owns every client of one session. It is populated
// once by BuildAll and read-only afterwards.
type Registry struct {
	cfg      *config.Config
	session  Session
	metrics  *metric.MetricsRegistry
	resolver *auth.Resolver
	builder  *link.Builder
	producer *transfer.Producer
	consumer *transfer.Consumer
	base     *slog.Logger
	logger   *slog.Logger

	// ctx bounds background work of the caches, cancelled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.RWMutex
	built      bool
	closed     bool
	clients    map[string]*client.Client
	defaultKey string
}

// New prepares a registry for the declared clients. Nothing is built until
// BuildAll.
func New(opts Options) (*Registry, error) {
	if opts.Config == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Registry", "New", "client configuration")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, errors.Wrap(err, "Registry", "New", "validate configuration")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	session := opts.Session.withDefaults()
	exec := session.Exec
	m := opts.Metrics.ClientMetrics()

	resolver := auth.NewResolver(exec, auth.Options{
		Hooks:   session.Hooks,
		Cookies: session.Cookies,
		Local:   session.Local,
		Metrics: m,
		Logger:  logger,
	})

	transferOpts := transfer.Options{Namespace: opts.Namespace, Metrics: m, Logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		cfg:      opts.Config,
		session:  session,
		metrics:  opts.Metrics,
		resolver: resolver,
		builder: link.NewBuilder(link.Options{
			Exec:             exec,
			Credentials:      resolver,
			Hooks:            session.Hooks,
			Metrics:          m,
			Logger:           logger,
			ClientAwareness:  opts.Config.ClientAwareness,
			ClientVersion:    session.ClientVersion,
			ProxyCookies:     opts.Config.ShouldProxyCookies(),
			HTTPClient:       session.HTTPClient,
			Dialer:           session.Dialer,
			ConnectionParams: session.ConnectionParams,
		}),
		base:   logger,
		logger: logger.With("component", "registry", "side", exec.Side.String()),
		ctx:    ctx,
		cancel: cancel,
	}
	if session.Payload != nil {
		if exec.IsServer() {
			r.producer = transfer.NewProducer(session.Payload, transferOpts)
		} else {
			r.consumer = transfer.NewConsumer(session.Payload, transferOpts)
		}
	}
	return r, nil
}

// BuildAll builds every declared client in declaration order and returns
// them keyed by client key, with the default client also under
// DefaultAlias. Any failure closes what was built and fails the whole
// build. A registry builds once; later calls return ErrAlreadyBuilt.
func (r *Registry) BuildAll(ctx context.Context) (map[string]*client.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.WrapFatal(errors.ErrDisposed, "Registry", "BuildAll", "registry closed")
	}
	if r.built {
		return nil, errors.WrapInvalid(errors.ErrAlreadyBuilt, "Registry", "BuildAll", "build clients")
	}

	keys := r.cfg.Clients.Keys()
	clients := make(map[string]*client.Client, len(keys))
	for _, key := range keys {
		c, err := r.build(ctx, key)
		if err != nil {
			for _, built := range clients {
				_ = built.Close()
			}
			return nil, errors.Wrap(err, "Registry", "BuildAll", fmt.Sprintf("client %q", key))
		}
		clients[key] = c
	}

	// Transfer is wired only once every client exists, so a failed build
	// leaves no render:done callback behind and takes no payload entry.
	for _, key := range keys {
		r.attachTransfer(key, clients[key])
	}

	r.clients = clients
	r.defaultKey = defaultKey(r.cfg, keys)
	r.built = true
	r.logger.Info("Clients built", "clients", len(keys), "default", r.defaultKey)
	return r.snapshot(), nil
}

// attachTransfer registers the server-side extraction of c's cache, or
// restores the client-side cache from the payload. BuildAll calls it before
// any client is exposed, so the first read sees restored state.
func (r *Registry) attachTransfer(key string, c *client.Client) {
	switch {
	case r.producer != nil:
		r.producer.Attach(r.session.Hooks, key, c.Cache())
	case r.consumer != nil:
		r.consumer.Restore(key, c.Cache())
	}
}

// build assembles one client
func (r *Registry) build(ctx context.Context, key string) (*client.Client, error) {
	cfg, _ := r.cfg.Clients.Get(key)

	built, err := r.builder.Build(ctx, key, cfg)
	if err != nil {
		return nil, err
	}
	cacheOpts := gqlcache.Options{Config: gqlcache.ConfigFrom(cfg.Cache), Name: key, Logger: r.base}
	if r.session.Exec.IsClient() {
		cacheOpts.Registry = r.metrics
	}
	cache, err := gqlcache.New(r.ctx, cacheOpts)
	if err != nil {
		if built.Transport != nil {
			built.Transport.Dispose()
		}
		return nil, err
	}

	c, err := client.New(client.Options{
		Key:       key,
		Config:    cfg,
		Exec:      r.session.Exec,
		Link:      built.Link,
		Cache:     cache,
		Transport: built.Transport,
		Logger:    r.base,
	})
	if err != nil {
		if built.Transport != nil {
			built.Transport.Dispose()
		}
		_ = cache.Close()
		return nil, err
	}
	return c, nil
}

// defaultKey applies the alias rule: the configured default, else a client
// literally named "default", else the first declared client
func defaultKey(cfg *config.Config, keys []string) string {
	if cfg.DefaultClient != "" {
		return cfg.DefaultClient
	}
	for _, k := range keys {
		if k == DefaultAlias {
			return k
		}
	}
	if len(keys) == 0 {
		return ""
	}
	return keys[0]
}

func (r *Registry) snapshot() map[string]*client.Client {
	out := make(map[string]*client.Client, len(r.clients)+1)
	for k, c := range r.clients {
		out[k] = c
	}
	if _, ok := out[DefaultAlias]; !ok && r.defaultKey != "" {
		out[DefaultAlias] = r.clients[r.defaultKey]
	}
	return out
}

// Clients returns the built clients, including the DefaultAlias entry
func (r *Registry) Clients() (map[string]*client.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.built {
		return nil, errors.WrapInvalid(errors.ErrNotBuilt, "Registry", "Clients", "read clients")
	}
	return r.snapshot(), nil
}

// Client returns the client declared under key. DefaultAlias resolves to
// the default client.
func (r *Registry) Client(key string) (*client.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.built {
		return nil, errors.WrapInvalid(errors.ErrNotBuilt, "Registry", "Client", key)
	}
	if c, ok := r.clients[key]; ok {
		return c, nil
	}
	if key == DefaultAlias && r.defaultKey != "" {
		return r.clients[r.defaultKey], nil
	}
	return nil, errors.WrapInvalid(
		fmt.Errorf("%q: %w", key, errors.ErrUnknownClient),
		"Registry", "Client", "lookup")
}

// Default returns the default client
func (r *Registry) Default() (*client.Client, error) {
	return r.Client(DefaultAlias)
}

// DefaultKey returns the key the default alias points at, empty before
// BuildAll
func (r *Registry) DefaultKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultKey
}

// Keys returns the declared client keys in declaration order
func (r *Registry) Keys() []string {
	return r.cfg.Clients.Keys()
}

// Hooks returns the session's hook registry
func (r *Registry) Hooks() *hooks.Registry {
	return r.session.Hooks
}

// Helpers returns the token and login facade of this registry
func (r *Registry) Helpers() *Helpers {
	return &Helpers{registry: r}
}

// Close closes every client concurrently and stops background cache work
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	clients := r.clients
	r.mu.Unlock()

	var g errgroup.Group
	for _, c := range clients {
		g.Go(c.Close)
	}
	err := g.Wait()
	r.cancel()
	r.session.Hooks.Wait()
	if err != nil {
		return errors.Wrap(err, "Registry", "Close", "close clients")
	}
	r.logger.Debug("Registry closed")
	return nil
}
