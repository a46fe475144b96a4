package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/metric"
	"github.com/c360/gqlclients/pkg/retry"
)

// ParamsFunc builds the connection_init payload for one connection attempt.
// It is called again on every connect, so tokens read inside stay fresh.
type ParamsFunc func(ctx context.Context) (map[string]any, error)

// Options configure a Client
type Options struct {
	URL       string
	ClientKey string
	Protocol  string

	ConnectionParams ParamsFunc

	// Lazy defers dialing until the first subscription and closes the
	// socket when the last one ends
	Lazy bool

	Retry      retry.Config
	AckTimeout time.Duration
	KeepAlive  time.Duration

	// RestartOnAuthError reconnects after a 4401/4403 close, at most once
	// per AuthRestartInterval. Otherwise such a close fails every active
	// subscription.
	RestartOnAuthError  bool
	AuthRestartInterval time.Duration

	Dialer  *websocket.Dialer
	Metrics *metric.Metrics
	Logger  *slog.Logger
}

// OptionsFrom maps a client declaration onto transport options
func OptionsFrom(key string, cfg config.ClientConfig) Options {
	ws := cfg.WSLinkOptions
	r := retry.DefaultConfig()
	r.MaxAttempts = ws.RetryAttempts
	if ws.RetryInitialDelay > 0 {
		r.InitialDelay = ws.RetryInitialDelay
	}
	if ws.RetryMaxDelay > 0 {
		r.MaxDelay = ws.RetryMaxDelay
	}
	return Options{
		URL:                cfg.WSEndpoint,
		ClientKey:          key,
		Protocol:           ws.Protocol,
		Lazy:               ws.IsLazy(),
		Retry:              r,
		AckTimeout:         ws.ConnectionAckTimeout,
		KeepAlive:          ws.KeepAlive,
		RestartOnAuthError: ws.RestartOnAuthError,
	}
}

// Client is a restartable GraphQL-over-websocket transport. Active
// subscriptions survive reconnects: each new connection re-sends them after
// the handshake.
type Client struct {
	opts    Options
	proto   protocol
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	streams   map[string]*stream
	conn      *conn
	gen       uint64
	demand    bool
	disposed  bool
	connected chan struct{}
	failed    chan struct{}
	lastErr   error

	wake     chan struct{}
	loopDone chan struct{}
}

// New creates a transport and starts its connection loop. Non-lazy
// transports dial immediately.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.WrapFatal(errors.ErrMissingEndpoint, "Transport", "New", "ws endpoint")
	}
	if opts.AuthRestartInterval <= 0 {
		opts.AuthRestartInterval = time.Second
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: 45 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:      opts,
		proto:     protocolFor(opts.Protocol),
		dialer:    dialer,
		limiter:   rate.NewLimiter(rate.Every(opts.AuthRestartInterval), 1),
		logger:    logger.With("component", "subscription", "client", opts.ClientKey),
		ctx:       ctx,
		cancel:    cancel,
		streams:   make(map[string]*stream),
		demand:    !opts.Lazy,
		connected: make(chan struct{}),
		failed:    make(chan struct{}),
		wake:      make(chan struct{}, 1),
		loopDone:  make(chan struct{}),
	}
	go c.run()
	return c, nil
}

// Subscribe starts an operation and returns its event channel. The channel
// closes when the server completes the operation, on an error frame, when
// ctx ends, or when the transport gives up reconnecting.
func (c *Client) Subscribe(ctx context.Context, req Request) (<-chan Message, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.WrapInvalid(err, "Transport", "Subscribe", "encode request")
	}
	s := newStream(uuid.NewString(), payload)

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil, errors.WrapInvalid(errors.ErrDisposed, "Transport", "Subscribe", "start operation")
	}
	c.streams[s.id] = s
	cn := c.conn
	active := len(c.streams)
	c.mu.Unlock()

	c.opts.Metrics.RecordActiveSubscriptions(c.opts.ClientKey, active)

	// Without a connection the stream is sent when the next one is installed
	if cn != nil {
		if err := c.sendSubscribe(cn, s); err != nil {
			c.logger.Debug("Subscribe deferred to next connection", "id", s.id, "error", err)
		}
	}
	c.wakeUp()

	go func() {
		select {
		case <-ctx.Done():
			c.unsubscribe(s.id, true)
		case <-s.done:
		}
	}()
	return s.out, nil
}

// Connect keeps a connection open even without subscriptions and waits for
// it to be acknowledged
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrDisposed, "Transport", "Connect", "connect")
	}
	c.demand = true
	connected, failed := c.connected, c.failed
	c.mu.Unlock()
	c.wakeUp()

	select {
	case <-connected:
		return nil
	case <-failed:
		c.mu.Lock()
		err := c.lastErr
		c.mu.Unlock()
		return err
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Transport", "Connect", "wait for ack")
	case <-c.ctx.Done():
		return errors.WrapInvalid(errors.ErrDisposed, "Transport", "Connect", "wait for ack")
	}
}

// Restart drops the current connection and reconnects with freshly resolved
// connection params. Active subscriptions are replayed. It is safe to call
// at any time, including while a connection attempt is in flight: that
// attempt is discarded once acknowledged.
func (c *Client) Restart() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.gen++
	cn := c.conn
	c.mu.Unlock()

	c.logger.Info("Restarting subscription transport", "connected", cn != nil)
	if cn != nil {
		cn.close(CloseRestart, "client restart")
	}
	c.wakeUp()
}

// Dispose closes the connection, ends every subscription and stops the
// connection loop. Later calls are no-ops.
func (c *Client) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		<-c.loopDone
		return
	}
	c.disposed = true
	cn := c.conn
	streams := c.drainLocked()
	c.mu.Unlock()

	c.cancel()
	if cn != nil {
		cn.close(CloseNormal, "")
	}
	for _, s := range streams {
		s.finish()
	}
	<-c.loopDone

	c.opts.Metrics.RecordActiveSubscriptions(c.opts.ClientKey, 0)
	c.logger.Debug("Subscription transport disposed")
}

// Connected reports whether an acknowledged connection is open
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// LastError returns the error the transport last gave up with, nil if it
// never did
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Active returns the number of active subscriptions
func (c *Client) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// run is the connection loop. One connection exists at a time.
func (c *Client) run() {
	defer close(c.loopDone)

	var lastErr error
	attempt := 0
	everConnected := false

	for {
		if !c.waitForDemand() {
			return
		}

		attempt++
		if c.opts.Retry.Exhausted(attempt) {
			c.giveUp(lastErr)
			attempt = 0
			continue
		}
		if err := retry.Wait(c.ctx, c.opts.Retry.Delay(attempt)); err != nil {
			return
		}

		gen := c.generation()
		cn, err := c.connect()
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			lastErr = err
			c.opts.Metrics.RecordError(c.opts.ClientKey, "ws_connect")
			c.logger.Warn("Subscription transport connect failed", "attempt", attempt, "error", err)
			continue
		}

		streams, ok := c.install(cn, gen)
		if !ok {
			// Restarted or disposed while dialing
			cn.close(CloseNormal, "")
			attempt = 0
			continue
		}
		attempt = 0
		if everConnected {
			c.opts.Metrics.RecordWSReconnect(c.opts.ClientKey)
		}
		everConnected = true
		c.opts.Metrics.RecordWSStatus(c.opts.ClientKey, true)
		c.logger.Info("Subscription transport connected", "url", c.opts.URL, "replayed", len(streams))

		go cn.keepAlive(c.opts.KeepAlive)
		for _, s := range streams {
			if err := c.sendSubscribe(cn, s); err != nil {
				c.logger.Debug("Replay failed", "id", s.id, "error", err)
			}
		}

		info := c.readLoop(cn)
		cn.close(CloseNormal, "")
		c.uninstall(cn)
		c.opts.Metrics.RecordWSStatus(c.opts.ClientKey, false)

		if c.ctx.Err() != nil {
			return
		}
		c.logger.Info("Subscription transport disconnected", "code", info.code)
		lastErr = errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrConnectionLost, info.err),
			"Transport", "run", "read")

		if info.auth() {
			if !c.opts.RestartOnAuthError {
				c.giveUp(errors.WrapTransient(
					fmt.Errorf("closed with code %d: %w", info.code, errors.ErrSubscriptionFailed),
					"Transport", "run", "authenticate"))
				continue
			}
			if err := c.limiter.Wait(c.ctx); err != nil {
				return
			}
		}
	}
}

func (c *Client) waitForDemand() bool {
	for {
		c.mu.Lock()
		ok := !c.disposed && (c.demand || len(c.streams) > 0)
		c.mu.Unlock()
		if ok {
			return true
		}
		select {
		case <-c.ctx.Done():
			return false
		case <-c.wake:
		}
	}
}

func (c *Client) wakeUp() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// connect resolves connection params and dials
func (c *Client) connect() (*conn, error) {
	var params map[string]any
	if c.opts.ConnectionParams != nil {
		p, err := c.opts.ConnectionParams(c.ctx)
		if err != nil {
			return nil, errors.Wrap(err, "Transport", "connect", "resolve connection params")
		}
		params = p
	}
	return dial(c.ctx, c.dialer, c.opts.URL, c.proto, params, c.opts.AckTimeout)
}

// install publishes cn and snapshots the streams to replay on it
func (c *Client) install(cn *conn, gen uint64) ([]*stream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed || c.gen != gen {
		return nil, false
	}
	c.conn = cn
	close(c.connected)

	streams := make([]*stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	return streams, true
}

func (c *Client) uninstall(cn *conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == cn {
		c.conn = nil
		c.connected = make(chan struct{})
	}
}

// giveUp fails every active subscription after reconnects are exhausted and
// idles until new demand arrives
func (c *Client) giveUp(cause error) {
	err := cause
	if err == nil {
		err = errors.ErrConnectionLost
	}
	err = errors.WrapTransient(err, "Transport", "run", "reconnect")

	c.mu.Lock()
	streams := c.drainLocked()
	c.demand = false
	c.lastErr = err
	failed := c.failed
	c.failed = make(chan struct{})
	c.mu.Unlock()
	close(failed)

	c.logger.Error("Subscription transport gave up", "subscriptions", len(streams), "error", err)
	for _, s := range streams {
		s.deliver(Message{Err: err})
		s.finish()
	}
	c.opts.Metrics.RecordActiveSubscriptions(c.opts.ClientKey, 0)
}

func (c *Client) drainLocked() []*stream {
	streams := make([]*stream, 0, len(c.streams))
	for id, s := range c.streams {
		streams = append(streams, s)
		delete(c.streams, id)
	}
	return streams
}

func (c *Client) sendSubscribe(cn *conn, s *stream) error {
	return cn.send(message{ID: s.id, Type: c.proto.subscribe, Payload: s.payload})
}

// readLoop dispatches frames until the socket closes
func (c *Client) readLoop(cn *conn) closeInfo {
	p := c.proto
	for {
		msg, err := cn.read()
		if err != nil {
			if errors.IsInvalid(err) {
				c.logger.Debug("Dropping malformed frame", "error", err)
				continue
			}
			return closeInfoFor(err)
		}

		switch {
		case p.is(msg.Type, p.next):
			c.dispatch(msg.ID, Message{Payload: msg.Payload})
		case p.is(msg.Type, p.error):
			c.dispatch(msg.ID, Message{Err: decodeErrors(msg.Payload)})
			c.unsubscribe(msg.ID, false)
		case p.is(msg.Type, p.complete):
			c.unsubscribe(msg.ID, false)
		case p.is(msg.Type, p.ping):
			if err := cn.send(message{Type: p.pong}); err != nil {
				return closeInfoFor(err)
			}
		case p.is(msg.Type, p.pong), p.is(msg.Type, p.keepAlive):
		default:
			c.logger.Debug("Ignoring frame", "type", msg.Type)
		}
	}
}

func (c *Client) dispatch(id string, m Message) {
	c.mu.Lock()
	s := c.streams[id]
	c.mu.Unlock()
	if s != nil {
		s.deliver(m)
	}
}

// unsubscribe ends one stream. notify tells the server to stop it. A lazy
// transport closes the socket when its last stream ends.
func (c *Client) unsubscribe(id string, notify bool) {
	c.mu.Lock()
	s, ok := c.streams[id]
	if ok {
		delete(c.streams, id)
	}
	cn := c.conn
	remaining := len(c.streams)
	idle := c.opts.Lazy && remaining == 0 && !c.demand
	c.mu.Unlock()
	if !ok {
		return
	}

	if notify && cn != nil {
		if err := cn.send(message{ID: id, Type: c.proto.stop}); err != nil {
			c.logger.Debug("Stop not sent", "id", id, "error", err)
		}
	}
	s.finish()
	c.opts.Metrics.RecordActiveSubscriptions(c.opts.ClientKey, remaining)

	if idle && cn != nil {
		cn.close(CloseNormal, "")
	}
}
