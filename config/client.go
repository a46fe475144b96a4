package config

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/gqlclients/errors"
)

// TokenStorage selects where a client's auth token lives
type TokenStorage string

const (
	TokenStorageCookie       TokenStorage = "cookie"
	TokenStorageLocalStorage TokenStorage = "local-storage"
	TokenStorageNone         TokenStorage = "none"
)

// UnmarshalYAML accepts "localStorage" as a synonym for "local-storage"
func (t *TokenStorage) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*t = ParseTokenStorage(raw)
	return nil
}

// ParseTokenStorage normalizes a token storage name
func ParseTokenStorage(raw string) TokenStorage {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cookie":
		return TokenStorageCookie
	case "localstorage", "local-storage", "local_storage":
		return TokenStorageLocalStorage
	case "none":
		return TokenStorageNone
	case "":
		return ""
	default:
		return TokenStorage(raw)
	}
}

// AuthTypeNone makes the auth header carry the raw token without a scheme.
// A YAML null for auth_type decodes to this value.
const AuthTypeNone = "none"

// Protocol names for the subscription transport
const (
	ProtocolGraphQLTransportWS = "graphql-transport-ws"
	ProtocolGraphQLWS          = "graphql-ws"
)

// CookieAttributes are applied when a token is written to cookie storage
type CookieAttributes struct {
	MaxAge   int    `yaml:"max_age" json:"max_age"` // seconds
	Path     string `yaml:"path" json:"path"`
	Domain   string `yaml:"domain,omitempty" json:"domain,omitempty"`
	Secure   bool   `yaml:"secure" json:"secure"`
	HTTPOnly bool   `yaml:"http_only" json:"http_only"`
	SameSite string `yaml:"same_site,omitempty" json:"same_site,omitempty"` // lax | strict | none
}

// HTTPLinkOptions are passed through to the HTTP transport
type HTTPLinkOptions struct {
	Headers map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// WSLinkOptions are passed through to the subscription transport
type WSLinkOptions struct {
	// ConnectionParams is the static part of the connection_init payload
	ConnectionParams map[string]any `yaml:"connection_params,omitempty" json:"connection_params,omitempty"`

	// Lazy defers dialing until the first subscription (default true)
	Lazy *bool `yaml:"lazy,omitempty" json:"lazy,omitempty"`

	// Protocol is graphql-transport-ws (default) or the legacy graphql-ws
	Protocol string `yaml:"protocol,omitempty" json:"protocol,omitempty"`

	RetryAttempts        int           `yaml:"retry_attempts,omitempty" json:"retry_attempts,omitempty"`
	RetryInitialDelay    time.Duration `yaml:"retry_initial_delay,omitempty" json:"retry_initial_delay,omitempty"`
	RetryMaxDelay        time.Duration `yaml:"retry_max_delay,omitempty" json:"retry_max_delay,omitempty"`
	ConnectionAckTimeout time.Duration `yaml:"connection_ack_timeout,omitempty" json:"connection_ack_timeout,omitempty"`
	KeepAlive            time.Duration `yaml:"keep_alive,omitempty" json:"keep_alive,omitempty"`

	// RestartOnAuthError reconnects with fresh connection params when the
	// server closes the socket with 4401 or 4403
	RestartOnAuthError bool `yaml:"restart_on_auth_error" json:"restart_on_auth_error"`
}

// IsLazy reports whether the transport dials on first use
func (w WSLinkOptions) IsLazy() bool {
	return w.Lazy == nil || *w.Lazy
}

// CacheOptions configure the per-client normalized cache
type CacheOptions struct {
	Strategy        string        `yaml:"strategy,omitempty" json:"strategy,omitempty"` // simple | lru | ttl | none
	MaxSize         int           `yaml:"max_size,omitempty" json:"max_size,omitempty"`
	TTL             time.Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty" json:"cleanup_interval,omitempty"`
}

// ClientConfig describes one declared GraphQL client. It is read-only once
// loaded.
type ClientConfig struct {
	HTTPEndpoint        string           `yaml:"http_endpoint" json:"http_endpoint"`
	BrowserHTTPEndpoint string           `yaml:"browser_http_endpoint,omitempty" json:"browser_http_endpoint,omitempty"`
	WSEndpoint          string           `yaml:"ws_endpoint,omitempty" json:"ws_endpoint,omitempty"`
	WebsocketsOnly      bool             `yaml:"websockets_only" json:"websockets_only"`
	TokenStorage        TokenStorage     `yaml:"token_storage" json:"token_storage"`
	TokenName           string           `yaml:"token_name" json:"token_name"`
	AuthHeader          string           `yaml:"auth_header" json:"auth_header"`
	AuthType            string           `yaml:"auth_type" json:"auth_type"`
	CookieAttributes    CookieAttributes `yaml:"cookie_attributes" json:"cookie_attributes"`
	HTTPLinkOptions     HTTPLinkOptions  `yaml:"http_link_options" json:"http_link_options"`
	WSLinkOptions       WSLinkOptions    `yaml:"ws_link_options" json:"ws_link_options"`
	Cache               CacheOptions     `yaml:"cache" json:"cache"`
}

// UnmarshalYAML accepts either a bare endpoint string or a full mapping.
// An explicit `auth_type: null` selects AuthTypeNone.
func (c *ClientConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.HTTPEndpoint = node.Value
		return nil
	}

	type plain ClientConfig
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*c = ClientConfig(decoded)

	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "auth_type" && node.Content[i+1].Tag == "!!null" {
				c.AuthType = AuthTypeNone
			}
		}
	}
	return nil
}

// HasSubscriptions reports whether a subscription endpoint is configured
func (c ClientConfig) HasSubscriptions() bool {
	return c.WSEndpoint != ""
}

// RawToken reports whether the auth header carries the bare token
func (c ClientConfig) RawToken() bool {
	return strings.EqualFold(c.AuthType, AuthTypeNone)
}

// applyDefaults fills unset fields for the client declared under key
func (c *ClientConfig) applyDefaults(key string) {
	if c.TokenStorage == "" {
		c.TokenStorage = TokenStorageCookie
	}
	if c.TokenName == "" {
		c.TokenName = fmt.Sprintf("apollo:%s.token", key)
	}
	if c.AuthHeader == "" {
		c.AuthHeader = "Authorization"
	}
	if c.AuthType == "" {
		c.AuthType = "Bearer"
	}
	if c.CookieAttributes.Path == "" {
		c.CookieAttributes.Path = "/"
	}
	if c.CookieAttributes.MaxAge == 0 {
		c.CookieAttributes.MaxAge = 7 * 24 * 60 * 60
	}
	if c.HTTPLinkOptions.Timeout == 0 {
		c.HTTPLinkOptions.Timeout = 30 * time.Second
	}
	ws := &c.WSLinkOptions
	if ws.Protocol == "" {
		ws.Protocol = ProtocolGraphQLTransportWS
	}
	if ws.RetryAttempts == 0 {
		ws.RetryAttempts = 5
	}
	if ws.RetryInitialDelay == 0 {
		ws.RetryInitialDelay = 500 * time.Millisecond
	}
	if ws.RetryMaxDelay == 0 {
		ws.RetryMaxDelay = 10 * time.Second
	}
	if ws.ConnectionAckTimeout == 0 {
		ws.ConnectionAckTimeout = 10 * time.Second
	}
	if c.Cache.Strategy == "" {
		c.Cache.Strategy = "simple"
	}
}

// Validate checks one client declaration
func (c ClientConfig) Validate(key string) error {
	action := fmt.Sprintf("client %q", key)

	if c.WebsocketsOnly && c.WSEndpoint == "" {
		return errors.WrapFatal(
			fmt.Errorf("websockets_only requires ws_endpoint: %w", errors.ErrMissingEndpoint),
			"ClientConfig", "Validate", action)
	}
	if !c.WebsocketsOnly && c.HTTPEndpoint == "" {
		return errors.WrapFatal(
			fmt.Errorf("http_endpoint is required: %w", errors.ErrMissingEndpoint),
			"ClientConfig", "Validate", action)
	}

	switch c.TokenStorage {
	case TokenStorageCookie, TokenStorageLocalStorage, TokenStorageNone:
	default:
		return errors.WrapFatal(
			fmt.Errorf("unknown token_storage %q: %w", c.TokenStorage, errors.ErrInvalidConfig),
			"ClientConfig", "Validate", action)
	}

	switch c.WSLinkOptions.Protocol {
	case ProtocolGraphQLTransportWS, ProtocolGraphQLWS:
	default:
		return errors.WrapFatal(
			fmt.Errorf("unknown ws protocol %q: %w", c.WSLinkOptions.Protocol, errors.ErrInvalidConfig),
			"ClientConfig", "Validate", action)
	}

	switch c.Cache.Strategy {
	case "simple", "none":
	case "ttl":
		if c.Cache.TTL <= 0 {
			return errors.WrapFatal(
				fmt.Errorf("ttl cache needs a positive ttl: %w", errors.ErrInvalidConfig),
				"ClientConfig", "Validate", action)
		}
	case "lru":
		if c.Cache.MaxSize <= 0 {
			return errors.WrapFatal(
				fmt.Errorf("lru cache needs a positive max_size: %w", errors.ErrInvalidConfig),
				"ClientConfig", "Validate", action)
		}
	default:
		return errors.WrapFatal(
			fmt.Errorf("unknown cache strategy %q: %w", c.Cache.Strategy, errors.ErrInvalidConfig),
			"ClientConfig", "Validate", action)
	}

	return nil
}

// clone returns a copy that shares no maps with c
func (c ClientConfig) clone() ClientConfig {
	out := c
	out.HTTPLinkOptions.Headers = maps.Clone(c.HTTPLinkOptions.Headers)
	out.WSLinkOptions.ConnectionParams = maps.Clone(c.WSLinkOptions.ConnectionParams)
	if c.WSLinkOptions.Lazy != nil {
		lazy := *c.WSLinkOptions.Lazy
		out.WSLinkOptions.Lazy = &lazy
	}
	return out
}
