package storage

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/c360/gqlclients/config"
)

// Store is a named string store. It stands in for browser cookies and
// local-storage so token handling works the same on every side.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored under name and whether it exists
	Get(ctx context.Context, name string) (string, bool, error)

	// Set stores value under name. Backends that have no notion of cookie
	// attributes honor MaxAge as an expiry and ignore the rest.
	Set(ctx context.Context, name, value string, attrs config.CookieAttributes) error

	// Delete removes name. Deleting a missing name is not an error.
	Delete(ctx context.Context, name string) error
}

// Expiry converts MaxAge into an absolute expiry. The zero time means none.
func Expiry(attrs config.CookieAttributes, now time.Time) time.Time {
	if attrs.MaxAge <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(attrs.MaxAge) * time.Second)
}

// NewCookie builds the cookie written for name. A negative maxAge deletes it.
func NewCookie(name, value string, attrs config.CookieAttributes) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     attrs.Path,
		Domain:   attrs.Domain,
		MaxAge:   attrs.MaxAge,
		Secure:   attrs.Secure,
		HttpOnly: attrs.HTTPOnly,
	}
	if c.Path == "" {
		c.Path = "/"
	}
	switch strings.ToLower(attrs.SameSite) {
	case "lax":
		c.SameSite = http.SameSiteLaxMode
	case "strict":
		c.SameSite = http.SameSiteStrictMode
	case "none":
		c.SameSite = http.SameSiteNoneMode
	}
	return c
}

// Deleted returns attrs adjusted so the cookie is removed by the receiver
func Deleted(attrs config.CookieAttributes) config.CookieAttributes {
	attrs.MaxAge = -1
	return attrs
}
