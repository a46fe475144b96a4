// Package config loads the declared GraphQL clients and the global flags that
// shape how they are built.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/c360/gqlclients/errors"
)

// Config is the whole client declaration document
type Config struct {
	// Clients in declaration order
	Clients ClientSet `yaml:"clients"`

	// DefaultClient names the client aliased as "default". Empty means the
	// client literally named "default", else the first declared client.
	DefaultClient string `yaml:"default_client,omitempty"`

	// ClientAwareness sends the client key as apollographql-client-name
	ClientAwareness bool `yaml:"client_awareness"`

	// ProxyCookies forwards the incoming request's cookies on server renders
	// (default true)
	ProxyCookies *bool `yaml:"proxy_cookies,omitempty"`
}

// ShouldProxyCookies reports whether server renders forward request cookies
func (c *Config) ShouldProxyCookies() bool {
	return c.ProxyCookies == nil || *c.ProxyCookies
}

// Load reads, defaults and validates a YAML document from path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapFatal(err, "Config", "Load", fmt.Sprintf("read %s", path))
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, "Config", "Load", path)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a YAML document
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		if errors.IsFatal(err) {
			return nil, err
		}
		return nil, errors.WrapFatal(
			fmt.Errorf("%v: %w", err, errors.ErrInvalidConfig),
			"Config", "Parse", "decode yaml")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset per-client fields
func (c *Config) ApplyDefaults() {
	for _, key := range c.Clients.keys {
		cc := c.Clients.byKey[key]
		cc.applyDefaults(key)
		c.Clients.byKey[key] = cc
	}
}

// Validate checks the whole document
func (c *Config) Validate() error {
	if c.Clients.Len() == 0 {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "at least one client")
	}
	for _, key := range c.Clients.keys {
		if err := c.Clients.byKey[key].Validate(key); err != nil {
			return err
		}
	}
	if c.DefaultClient != "" {
		if _, ok := c.Clients.Get(c.DefaultClient); !ok {
			return errors.WrapFatal(
				fmt.Errorf("default_client %q is not declared: %w", c.DefaultClient, errors.ErrInvalidConfig),
				"Config", "Validate", "default client")
		}
	}
	return nil
}

// ClientSet is an ordered set of client declarations with unique keys
type ClientSet struct {
	keys  []string
	byKey map[string]ClientConfig
}

// Add declares a client. Redeclaring a key is a configuration error.
func (s *ClientSet) Add(key string, cfg ClientConfig) error {
	if key == "" {
		return errors.WrapFatal(
			fmt.Errorf("empty client key: %w", errors.ErrInvalidConfig),
			"ClientSet", "Add", "declare client")
	}
	if s.byKey == nil {
		s.byKey = make(map[string]ClientConfig)
	}
	if _, exists := s.byKey[key]; exists {
		return errors.WrapFatal(
			fmt.Errorf("%q: %w", key, errors.ErrDuplicateClient),
			"ClientSet", "Add", "declare client")
	}
	s.keys = append(s.keys, key)
	s.byKey[key] = cfg
	return nil
}

// Keys returns the client keys in declaration order
func (s ClientSet) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Get returns a copy of the declaration for key
func (s ClientSet) Get(key string) (ClientConfig, bool) {
	cfg, ok := s.byKey[key]
	if !ok {
		return ClientConfig{}, false
	}
	return cfg.clone(), true
}

// Len returns the number of declared clients
func (s ClientSet) Len() int {
	return len(s.keys)
}

// UnmarshalYAML walks the mapping node so declaration order survives and
// duplicate keys surface as ErrDuplicateClient.
func (s *ClientSet) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.WrapFatal(
			fmt.Errorf("clients must be a mapping (line %d): %w", node.Line, errors.ErrInvalidConfig),
			"ClientSet", "UnmarshalYAML", "decode clients")
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]

		var cfg ClientConfig
		if err := valueNode.Decode(&cfg); err != nil {
			return errors.WrapFatal(
				fmt.Errorf("%v: %w", err, errors.ErrInvalidConfig),
				"ClientSet", "UnmarshalYAML", fmt.Sprintf("client %q", keyNode.Value))
		}
		if err := s.Add(keyNode.Value, cfg); err != nil {
			return err
		}
	}
	return nil
}

// MarshalYAML writes the clients back in declaration order
func (s ClientSet) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, key := range s.keys {
		var value yaml.Node
		if err := value.Encode(s.byKey[key]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			&value)
	}
	return node, nil
}
