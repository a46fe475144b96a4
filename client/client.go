// Package client is the ready-to-use GraphQL client a registry hands out:
// one link chain, one normalized cache and the mode flags of the execution
// context it was built in.
package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/gqlcache"
	"github.com/c360/gqlclients/link"
	"github.com/c360/gqlclients/subscription"
	"github.com/c360/gqlclients/types"
)

// FetchPolicy decides how a query uses the cache
type FetchPolicy string

const (
	// CacheFirst answers from the cache and only goes to the network on a miss
	CacheFirst FetchPolicy = "cache-first"
	// NetworkOnly always goes to the network and writes the result
	NetworkOnly FetchPolicy = "network-only"
	// NoCache goes to the network and leaves the cache untouched
	NoCache FetchPolicy = "no-cache"
)

// DefaultForceFetchDelay is how long after construction a client-side
// client still treats network-only queries as cache-first, so hydrated
// state is not refetched on mount.
const DefaultForceFetchDelay = 100 * time.Millisecond

// Options assemble a Client
type Options struct {
	Key    string
	Config config.ClientConfig
	Exec   types.ExecutionContext

	Link      link.Handler
	Cache     *gqlcache.Cache
	Transport *subscription.Client

	// ForceFetchDelay overrides DefaultForceFetchDelay on the client side
	ForceFetchDelay time.Duration

	Logger *slog.Logger

	now func() time.Time
}

// Client is one configured GraphQL client
type Client struct {
	key       string
	cfg       config.ClientConfig
	ssrMode   bool
	link      link.Handler
	cache     *gqlcache.Cache
	transport *subscription.Client
	logger    *slog.Logger

	now          func() time.Time
	forceFetchAt time.Time

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// New assembles a client. On the server it runs in SSR mode; on the client
// network-only queries are served cache-first until the force-fetch delay
// has passed.
func New(opts Options) (*Client, error) {
	if opts.Link == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Client", "New", "link for "+opts.Key)
	}
	if opts.Cache == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Client", "New", "cache for "+opts.Key)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.now
	if now == nil {
		now = time.Now
	}

	c := &Client{
		key:       opts.Key,
		cfg:       opts.Config,
		ssrMode:   opts.Exec.IsServer(),
		link:      opts.Link,
		cache:     opts.Cache,
		transport: opts.Transport,
		logger:    logger.With("component", "client", "client", opts.Key),
		now:       now,
	}
	if !c.ssrMode {
		delay := opts.ForceFetchDelay
		if delay <= 0 {
			delay = DefaultForceFetchDelay
		}
		c.forceFetchAt = now().Add(delay)
	}
	return c, nil
}

// Key returns the key the client was declared under
func (c *Client) Key() string { return c.key }

// Config returns the client's declaration
func (c *Client) Config() config.ClientConfig { return c.cfg }

// SSRMode reports whether the client was built for a server render
func (c *Client) SSRMode() bool { return c.ssrMode }

// Cache returns the client's normalized cache
func (c *Client) Cache() *gqlcache.Cache { return c.cache }

// Transport returns the subscription transport, nil when the client has none
func (c *Client) Transport() *subscription.Client { return c.transport }

// Link returns the client's link chain
func (c *Client) Link() link.Handler { return c.link }

// Query executes a query under policy. An empty policy means cache-first.
// GraphQL errors are returned in the response, not as err.
func (c *Client) Query(ctx context.Context, op *link.Operation, policy FetchPolicy) (*link.Response, error) {
	if err := c.checkOpen("Query"); err != nil {
		return nil, err
	}
	policy = c.effectivePolicy(policy)

	if policy == CacheFirst {
		data, ok, err := c.cache.Read(op.Query, op.OperationName, op.Variables)
		if err != nil {
			return nil, errors.Wrap(err, "Client", "Query", "read cache")
		}
		if ok {
			return &link.Response{Data: data}, nil
		}
	}

	resp, err := c.execute(ctx, op)
	if err != nil {
		return resp, err
	}
	if policy != NoCache {
		c.store(op, resp)
	}
	return resp, nil
}

// Mutate executes a mutation over the network and normalizes its result
// into the cache so entities it returns are updated.
func (c *Client) Mutate(ctx context.Context, op *link.Operation) (*link.Response, error) {
	if err := c.checkOpen("Mutate"); err != nil {
		return nil, err
	}
	resp, err := c.execute(ctx, op)
	if err != nil {
		return resp, err
	}
	c.store(op, resp)
	return resp, nil
}

// Subscribe starts a subscription. Every result carrying data is written to
// the cache before it is forwarded. The channel closes when the stream ends
// or ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, op *link.Operation) (<-chan link.Result, error) {
	if err := c.checkOpen("Subscribe"); err != nil {
		return nil, err
	}
	in := c.link.Execute(ctx, op)
	out := make(chan link.Result)
	go func() {
		defer close(out)
		for r := range in {
			if r.Err == nil {
				c.store(op, r.Response)
			}
			select {
			case out <- r:
			case <-ctx.Done():
				for range in {
				}
				return
			}
		}
	}()
	return out, nil
}

// ResetStore empties the cache
func (c *Client) ResetStore() error {
	return c.cache.Reset()
}

// Close disposes the transport and releases the cache. Safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		if c.transport != nil {
			c.transport.Dispose()
		}
		if cerr := c.cache.Close(); cerr != nil {
			err = errors.Wrap(cerr, "Client", "Close", "close cache for "+c.key)
		}
		c.logger.Debug("Client closed")
	})
	return err
}

// Closed reports whether Close was called
func (c *Client) Closed() bool {
	return c.checkOpen("Closed") != nil
}

func (c *Client) checkOpen(method string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.WrapFatal(errors.ErrDisposed, "Client", method, c.key)
	}
	return nil
}

func (c *Client) effectivePolicy(policy FetchPolicy) FetchPolicy {
	if policy == "" {
		return CacheFirst
	}
	if policy == NetworkOnly && (c.ssrMode || c.now().Before(c.forceFetchAt)) {
		return CacheFirst
	}
	return policy
}

// execute returns the first result of op and drains the rest
func (c *Client) execute(ctx context.Context, op *link.Operation) (*link.Response, error) {
	results := c.link.Execute(ctx, op)
	var (
		first link.Result
		got   bool
	)
	for r := range results {
		if !got {
			first, got = r, true
		}
	}
	if !got {
		return nil, errors.WrapTransient(errors.ErrConnectionLost, "Client", "execute", "no result for "+c.key)
	}
	return first.Response, first.Err
}

func (c *Client) store(op *link.Operation, resp *link.Response) {
	if resp == nil || resp.HasErrors() || len(resp.Data) == 0 {
		return
	}
	if err := c.cache.Write(op.Query, op.OperationName, op.Variables, resp.Data); err != nil {
		c.logger.Debug("Result not cached", "operation", op.OperationName, "error", err)
	}
}
