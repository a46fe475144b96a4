package gqlcache

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/goccy/go-json"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/metric"
	"github.com/c360/gqlclients/pkg/cache"
)

// Root entity ids and the reference marker
const (
	RootQuery        = "ROOT_QUERY"
	RootMutation     = "ROOT_MUTATION"
	RootSubscription = "ROOT_SUBSCRIPTION"
	RefKey           = "__ref"

	typenameField = "__typename"
)

// Entity is one normalized record: field name to value. Nested identifiable
// objects are replaced by {"__ref": id}.
type Entity = map[string]any

// State is the complete normalized content of a cache, keyed by entity id.
// It is what Extract returns and Restore accepts.
type State map[string]Entity

// Options configure a Cache
type Options struct {
	Config cache.Config

	// Registry and Name export the backing store's statistics
	Registry *metric.MetricsRegistry
	Name     string

	Logger *slog.Logger
}

// Cache is a normalized GraphQL result cache for one client
type Cache struct {
	// mu serializes read-modify-write of entities; the store has its own lock
	mu     sync.Mutex
	store  cache.Cache[Entity]
	logger *slog.Logger
}

// ConfigFrom maps a client's cache options onto the store configuration
func ConfigFrom(opts config.CacheOptions) cache.Config {
	return cache.Config{
		Strategy:        cache.Strategy(opts.Strategy),
		MaxSize:         opts.MaxSize,
		TTL:             opts.TTL,
		CleanupInterval: opts.CleanupInterval,
	}
}

// New creates an empty cache backed by the store selected in opts.Config.
// ctx bounds the lifetime of a TTL store's sweeper.
func New(ctx context.Context, opts Options) (*Cache, error) {
	store, err := cache.New[Entity](ctx, opts.Config, cache.WithMetrics[Entity](opts.Registry, opts.Name))
	if err != nil {
		return nil, errors.Wrap(err, "Cache", "New", "create store")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, logger: logger.With("component", "gqlcache", "cache", opts.Name)}, nil
}

// Identify returns the entity id of obj: "<__typename>:<id or _id>"
func Identify(obj map[string]any) (string, bool) {
	typename, _ := obj[typenameField].(string)
	if typename == "" {
		return "", false
	}
	id, ok := obj["id"]
	if !ok || id == nil {
		id, ok = obj["_id"]
	}
	if !ok || id == nil {
		return "", false
	}
	switch id.(type) {
	case string, json.Number, float64, int, int64:
		return fmt.Sprintf("%s:%v", typename, id), true
	default:
		return "", false
	}
}

// Write normalizes the data of a result for query into the cache
func (c *Cache) Write(query, operationName string, vars map[string]any, data json.RawMessage) error {
	doc, err := parse(query, operationName, vars)
	if err != nil {
		return err
	}
	fields, err := doc.rootFields()
	if err != nil {
		return err
	}
	obj, err := decodeObject(data)
	if err != nil {
		return err
	}
	if obj == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	root := c.copyEntity(doc.root)
	for _, f := range fields {
		value, ok := obj[f.field.Alias]
		if !ok {
			continue
		}
		normalized, err := c.normalize(value)
		if err != nil {
			return err
		}
		root[f.storeKey] = normalized
	}
	if _, err := c.store.Set(doc.root, root); err != nil {
		return errors.Wrap(err, "Cache", "Write", doc.root)
	}
	return nil
}

// Read answers query from the cache. ok is false when any selected field
// or referenced entity is missing.
func (c *Cache) Read(query, operationName string, vars map[string]any) (json.RawMessage, bool, error) {
	doc, err := parse(query, operationName, vars)
	if err != nil {
		return nil, false, err
	}
	fields, err := doc.rootFields()
	if err != nil {
		return nil, false, err
	}

	root, ok := c.store.Get(doc.root)
	if !ok {
		return nil, false, nil
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		value, ok := root[f.storeKey]
		if !ok {
			return nil, false, nil
		}
		resolved, ok := c.readValue(value, f.field.SelectionSet, doc)
		if !ok {
			return nil, false, nil
		}
		out[f.field.Alias] = resolved
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, false, errors.WrapInvalid(err, "Cache", "Read", "encode result")
	}
	return data, true, nil
}

// ReadEntity returns a copy of the normalized entity stored under id
func (c *Cache) ReadEntity(id string) (Entity, bool) {
	entity, ok := c.store.Get(id)
	if !ok {
		return nil, false
	}
	return cloneEntity(entity), true
}

// Extract returns a deep copy of the whole normalized state
func (c *Cache) Extract() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	state := make(State)
	for _, id := range c.store.Keys() {
		if entity, ok := c.store.Get(id); ok {
			state[id] = cloneEntity(entity)
		}
	}
	return state
}

// Restore replaces the cache content with state
func (c *Cache) Restore(state State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		return errors.Wrap(err, "Cache", "Restore", "clear")
	}
	for id, entity := range state {
		if id == "" || entity == nil {
			continue
		}
		if _, err := c.store.Set(id, cloneEntity(entity)); err != nil {
			return errors.Wrap(err, "Cache", "Restore", id)
		}
	}
	c.logger.Debug("Cache restored", "entities", len(state))
	return nil
}

// Reset empties the cache
func (c *Cache) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Clear()
}

// Size returns the number of stored entities, root ids included
func (c *Cache) Size() int {
	return c.store.Size()
}

// Stats exposes the backing store statistics
func (c *Cache) Stats() *cache.Statistics {
	return c.store.Stats()
}

// Close releases the backing store and logs its final statistics
func (c *Cache) Close() error {
	if stats := c.store.Stats(); stats != nil {
		s := stats.Summary()
		c.logger.Debug("Cache closed",
			"entities", s.CurrentSize,
			"max_entities", s.MaxSize,
			"hits", s.Hits,
			"misses", s.Misses,
			"evictions", s.Evictions,
			"hit_ratio", s.HitRatio,
			"uptime", s.Uptime)
	}
	return c.store.Close()
}

func (c *Cache) copyEntity(id string) Entity {
	if existing, ok := c.store.Get(id); ok {
		return cloneEntity(existing)
	}
	return make(Entity)
}

// normalize stores identifiable objects as entities and returns value with
// them replaced by references. Fields merge into existing entities.
func (c *Cache) normalize(value any) (any, error) {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, field := range v {
			n, err := c.normalize(field)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		id, ok := Identify(v)
		if !ok {
			return out, nil
		}
		entity := c.copyEntity(id)
		for k, field := range out {
			entity[k] = field
		}
		if _, err := c.store.Set(id, entity); err != nil {
			return nil, errors.Wrap(err, "Cache", "normalize", id)
		}
		return map[string]any{RefKey: id}, nil

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			n, err := c.normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil

	default:
		return v, nil
	}
}

// readValue resolves references in value along the selection set
func (c *Cache) readValue(value any, set ast.SelectionSet, doc *document) (any, bool) {
	switch v := value.(type) {
	case map[string]any:
		obj := v
		if ref, ok := v[RefKey].(string); ok {
			entity, ok := c.store.Get(ref)
			if !ok {
				return nil, false
			}
			obj = entity
		}
		if len(set) == 0 {
			return cloneValue(obj), true
		}
		out := make(map[string]any, len(set))
		if !c.readSelection(obj, set, doc, out, false) {
			return nil, false
		}
		return out, true

	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, ok := c.readValue(item, set, doc)
			if !ok {
				return nil, false
			}
			out[i] = resolved
		}
		return out, true

	default:
		return v, true
	}
}

// readSelection copies the selected fields of obj into out. Fields under a
// fragment are optional since the fragment may target another type.
func (c *Cache) readSelection(obj map[string]any, set ast.SelectionSet, doc *document, out map[string]any, optional bool) bool {
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			value, ok := obj[s.Alias]
			if !ok && s.Alias != s.Name {
				value, ok = obj[s.Name]
			}
			if !ok {
				if optional || s.Name == typenameField {
					continue
				}
				return false
			}
			resolved, ok := c.readValue(value, s.SelectionSet, doc)
			if !ok {
				return false
			}
			out[s.Alias] = resolved
		case *ast.InlineFragment:
			if !c.readSelection(obj, s.SelectionSet, doc, out, true) {
				return false
			}
		case *ast.FragmentSpread:
			if def := doc.fragments.ForName(s.Name); def != nil {
				if !c.readSelection(obj, def.SelectionSet, doc, out, true) {
					return false
				}
			}
		}
	}
	return true
}

func decodeObject(data json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%v: %w", err, errors.ErrInvalidData),
			"Cache", "Write", "decode data")
	}
	return obj, nil
}

func cloneEntity(e Entity) Entity {
	out, _ := cloneValue(e).(map[string]any)
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, field := range v {
			out[k] = cloneValue(field)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
