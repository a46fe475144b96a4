// Package transfer moves client caches from a server render to the client
// that hydrates it.
//
// On the server, Producer.Attach registers a render:done callback per client
// that extracts the cache and writes it into the request's Payload under
// "<namespace>:<client>". On the client, Consumer.Restore takes that entry
// and restores it into the freshly built cache before the client serves
// its first operation. A missing, null or malformed entry means there is
// nothing to restore.
package transfer

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/goccy/go-json"

	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/gqlcache"
	"github.com/c360/gqlclients/hooks"
	"github.com/c360/gqlclients/metric"
)

// Extractor returns the complete normalized state of a cache
type Extractor interface {
	Extract() gqlcache.State
}

// Restorer replaces the content of a cache
type Restorer interface {
	Restore(state gqlcache.State) error
}

// Options are shared by Producer and Consumer
type Options struct {
	// Namespace defaults to DefaultNamespace
	Namespace string
	Metrics   *metric.Metrics
	Logger    *slog.Logger
}

func (o Options) namespace() string {
	if o.Namespace == "" {
		return DefaultNamespace
	}
	return o.Namespace
}

func (o Options) logger(role string) *slog.Logger {
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", "transfer", "role", role)
}

// Producer writes client caches into a payload when a render completes
type Producer struct {
	payload   *Payload
	namespace string
	metrics   *metric.Metrics
	logger    *slog.Logger
}

// NewProducer creates a producer writing into payload
func NewProducer(payload *Payload, opts Options) *Producer {
	return &Producer{
		payload:   payload,
		namespace: opts.namespace(),
		metrics:   opts.Metrics,
		logger:    opts.logger("producer"),
	}
}

// Attach registers the render:done callback that snapshots cache for client
func (p *Producer) Attach(h *hooks.Registry, client string, cache Extractor) {
	h.OnRenderDone(func(ctx context.Context) error {
		return p.Write(client, cache)
	})
}

// Write extracts cache now and stores it for client
func (p *Producer) Write(client string, cache Extractor) error {
	state := cache.Extract()
	data, err := json.Marshal(state)
	if err != nil {
		return errors.WrapInvalid(err, "Producer", "Write", "marshal state for "+client)
	}
	if err := p.payload.Write(Key(p.namespace, client), data); err != nil {
		return errors.Wrap(err, "Producer", "Write", client)
	}
	p.metrics.RecordCacheTransfer(client, "extract")
	p.logger.Debug("Cache extracted", "client", client, "entities", len(state), "bytes", len(data))
	return nil
}

// Consumer restores client caches from a payload
type Consumer struct {
	payload   *Payload
	namespace string
	metrics   *metric.Metrics
	logger    *slog.Logger
}

// NewConsumer creates a consumer reading from payload. A nil payload
// restores nothing.
func NewConsumer(payload *Payload, opts Options) *Consumer {
	return &Consumer{
		payload:   payload,
		namespace: opts.namespace(),
		metrics:   opts.Metrics,
		logger:    opts.logger("consumer"),
	}
}

// Restore takes the entry for client and restores it into cache. It
// reports whether state was restored. Failures are logged and treated as
// nothing to restore.
func (c *Consumer) Restore(client string, cache Restorer) bool {
	if c.payload == nil {
		return false
	}
	raw, ok := c.payload.Take(Key(c.namespace, client))
	if !ok {
		return false
	}

	state, ok := decodeState(raw)
	if !ok {
		c.logger.Debug("Ignoring malformed cache payload", "client", client)
		return false
	}
	if err := cache.Restore(state); err != nil {
		c.logger.Warn("Cache restore failed", "client", client, "error", err)
		return false
	}
	c.metrics.RecordCacheTransfer(client, "restore")
	c.logger.Debug("Cache restored", "client", client, "entities", len(state))
	return true
}

func decodeState(raw json.RawMessage) (gqlcache.State, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var state gqlcache.State
	if err := dec.Decode(&state); err != nil || state == nil {
		return nil, false
	}
	return state, true
}
