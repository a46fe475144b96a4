package storage

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
)

// RequestCookies is the server-side cookie store of one request. Reads see
// the request's cookies overlaid with anything written during the request.
// Writes become Set-Cookie headers on w. w may be nil when the response is
// not writable, in which case writes only update the overlay.
type RequestCookies struct {
	r *http.Request
	w http.ResponseWriter

	mu      sync.Mutex
	overlay map[string]*string // nil value marks a deletion
}

// NewRequestCookies creates the store for one request
func NewRequestCookies(r *http.Request, w http.ResponseWriter) *RequestCookies {
	return &RequestCookies{r: r, w: w, overlay: make(map[string]*string)}
}

// Get implements Store
func (s *RequestCookies) Get(_ context.Context, name string) (string, bool, error) {
	if v, found, touched := s.Touched(name); touched {
		return v, found, nil
	}

	if s.r == nil {
		return "", false, nil
	}
	c, err := s.r.Cookie(name)
	if err != nil {
		return "", false, nil
	}
	return c.Value, true, nil
}

// Touched reports whether name was set or deleted during the request and,
// if so, its current value. found is false for a deletion.
func (s *RequestCookies) Touched(name string) (value string, found, touched bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, touched := s.overlay[name]
	if !touched || v == nil {
		return "", false, touched
	}
	return *v, true, true
}

// Set implements Store
func (s *RequestCookies) Set(ctx context.Context, name, value string, attrs config.CookieAttributes) error {
	if attrs.MaxAge < 0 {
		return s.Delete(ctx, name)
	}
	s.mu.Lock()
	s.overlay[name] = &value
	s.mu.Unlock()

	if s.w != nil {
		http.SetCookie(s.w, NewCookie(name, value, attrs))
	}
	return nil
}

// Delete implements Store
func (s *RequestCookies) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	s.overlay[name] = nil
	s.mu.Unlock()

	if s.w != nil {
		http.SetCookie(s.w, NewCookie(name, "", config.CookieAttributes{MaxAge: -1, Path: "/"}))
	}
	return nil
}

// JarCookies is the client-side cookie store. The jar is the one installed
// on the HTTP transport, so cookies set here are sent with every request to
// the same origin.
type JarCookies struct {
	jar http.CookieJar
	u   *url.URL
}

// NewJarCookies scopes jar to the origin of endpoint
func NewJarCookies(jar http.CookieJar, endpoint string) (*JarCookies, error) {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		if err == nil {
			err = errors.ErrMissingEndpoint
		}
		return nil, errors.WrapInvalid(err, "JarCookies", "NewJarCookies", "parse endpoint "+endpoint)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	return &JarCookies{jar: jar, u: &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"}}, nil
}

// Jar returns the underlying cookie jar
func (s *JarCookies) Jar() http.CookieJar {
	return s.jar
}

// Get implements Store
func (s *JarCookies) Get(_ context.Context, name string) (string, bool, error) {
	for _, c := range s.jar.Cookies(s.u) {
		if c.Name == name {
			return c.Value, true, nil
		}
	}
	return "", false, nil
}

// Set implements Store
func (s *JarCookies) Set(_ context.Context, name, value string, attrs config.CookieAttributes) error {
	s.jar.SetCookies(s.u, []*http.Cookie{NewCookie(name, value, attrs)})
	return nil
}

// Delete implements Store
func (s *JarCookies) Delete(_ context.Context, name string) error {
	s.jar.SetCookies(s.u, []*http.Cookie{NewCookie(name, "", Deleted(config.CookieAttributes{Path: "/"}))})
	return nil
}
