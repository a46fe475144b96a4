package transfer

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/c360/gqlclients/errors"
)

// DefaultNamespace prefixes every payload key written for a client cache
const DefaultNamespace = "apollo"

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil)
)

// Key returns the payload key of a client: "<namespace>:<client>"
func Key(namespace, client string) string {
	return namespace + ":" + client
}

// Payload is the state one server render hands to the client that hydrates
// it. Each key is written at most once and read at most once. A payload
// belongs to one request; never share it between concurrent renders.
type Payload struct {
	mu      sync.Mutex
	entries map[string]json.RawMessage
	taken   map[string]bool
}

// NewPayload returns an empty payload
func NewPayload() *Payload {
	return &Payload{
		entries: make(map[string]json.RawMessage),
		taken:   make(map[string]bool),
	}
}

// Write stores value under key. A second write to the same key fails with
// ErrAlreadyWritten.
func (p *Payload) Write(key string, value json.RawMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[key]; exists || p.taken[key] {
		return errors.WrapInvalid(
			fmt.Errorf("%q: %w", key, errors.ErrAlreadyWritten),
			"Payload", "Write", "store entry")
	}
	p.entries[key] = append(json.RawMessage(nil), value...)
	return nil
}

// Take returns the value under key and removes it, so a second Take of the
// same key reports false.
func (p *Payload) Take(key string) (json.RawMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	value, ok := p.entries[key]
	if !ok {
		return nil, false
	}
	delete(p.entries, key)
	p.taken[key] = true
	return value, true
}

// Keys returns the keys not yet taken, sorted
func (p *Payload) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries not yet taken
func (p *Payload) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// MarshalJSON encodes the untaken entries as one JSON object
func (p *Payload) MarshalJSON() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return json.Marshal(p.entries)
}

// Decode reads a payload produced by MarshalJSON. An empty or null document
// is an empty payload.
func Decode(data []byte) (*Payload, error) {
	p := NewPayload()
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return p, nil
	}
	if err := json.Unmarshal(trimmed, &p.entries); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
			"Payload", "Decode", "unmarshal payload")
	}
	if p.entries == nil {
		p.entries = make(map[string]json.RawMessage)
	}
	return p, nil
}

// EncodeCompact returns the payload as zstd-compressed, URL-safe base64
// text suitable for embedding in a rendered page.
func (p *Payload) EncodeCompact() (string, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return "", errors.WrapInvalid(err, "Payload", "EncodeCompact", "marshal payload")
	}
	return base64.RawURLEncoding.EncodeToString(encoder.EncodeAll(data, nil)), nil
}

// DecodeCompact reverses EncodeCompact
func DecodeCompact(s string) (*Payload, error) {
	if s == "" {
		return NewPayload(), nil
	}
	compressed, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%v: %w", err, errors.ErrInvalidData),
			"Payload", "DecodeCompact", "base64")
	}
	data, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%v: %w", err, errors.ErrInvalidData),
			"Payload", "DecodeCompact", "zstd")
	}
	return Decode(data)
}
