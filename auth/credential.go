package auth

import (
	"regexp"
	"strings"

	"github.com/c360/gqlclients/config"
)

// Token sources, also used as metric labels
const (
	SourceHook         = "hook"
	SourceCookie       = "cookie"
	SourceLocalStorage = "local-storage"
	SourceNone         = "none"
)

var schemePrefix = regexp.MustCompile(`^[A-Za-z]+\s`)

// Credential is the outcome of one resolution. It is never cached: tokens
// rotate, so every request and every connection attempt resolves again.
type Credential struct {
	Token  string
	Source string
}

// Found reports whether a token was resolved
func (c Credential) Found() bool {
	return c.Token != ""
}

// HeaderValue derives the auth header value for the configured client.
// ok is false when there is no credential.
func (c Credential) HeaderValue(cfg config.ClientConfig) (value string, ok bool) {
	if !c.Found() {
		return "", false
	}
	return HeaderValue(c.Token, cfg.AuthType), true
}

// Header returns the single-entry header map for the credential, or nil
func (c Credential) Header(cfg config.ClientConfig) map[string]string {
	value, ok := c.HeaderValue(cfg)
	if !ok {
		return nil
	}
	return map[string]string{cfg.AuthHeader: value}
}

// HasScheme reports whether token already starts with a scheme word
// followed by whitespace, such as "Bearer xyz"
func HasScheme(token string) bool {
	return schemePrefix.MatchString(token)
}

// HeaderValue returns token unchanged when it already carries a scheme or
// authType is "none", and "<authType> <token>" otherwise
func HeaderValue(token, authType string) string {
	if HasScheme(token) || authType == "" || strings.EqualFold(authType, config.AuthTypeNone) {
		return token
	}
	return authType + " " + token
}

// ScanCookieHeader returns the value of the first "<name>=" pair in a raw
// Cookie header, up to the next ';' or the end of the header. Leading spaces
// before a pair are skipped. The value is returned as found: no URL-decoding
// and no unquoting.
func ScanCookieHeader(header, name string) (string, bool) {
	if header == "" || name == "" {
		return "", false
	}
	prefix := name + "="
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimLeft(part, " ")
		if value, ok := strings.CutPrefix(part, prefix); ok {
			return value, true
		}
	}
	return "", false
}
