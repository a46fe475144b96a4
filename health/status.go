// Package health reports the state of a session's GraphQL clients
package health

import (
	"regexp"
	"strings"
	"time"
)

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(?i)(https?|wss?)://[^\s"]*[^\s":,.]`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex       = regexp.MustCompile(`:\d{2,5}\b`)
	schemeRegex     = regexp.MustCompile(`\b(Bearer|Basic|Token)\s+[^\s,;"]+`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential|authorization)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one client or of a whole session
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Details     *Details  `json:"details,omitempty"`
}

// Details describe a client
type Details struct {
	Transport           string  `json:"transport"` // none | connected | disconnected
	ActiveSubscriptions int     `json:"active_subscriptions"`
	CacheEntries        int     `json:"cache_entries"`
	CacheHitRatio       float64 `json:"cache_hit_ratio"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == StatusDegraded
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == StatusUnhealthy
}

// Serving reports whether operations can still be served, possibly
// without live subscriptions
func (s Status) Serving() bool {
	return !s.IsUnhealthy()
}

// WithDetails returns a copy of the status with details attached
func (s Status) WithDetails(d *Details) Status {
	s.Details = d
	return s
}

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == StatusHealthy,
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy creates a healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewDegraded creates a degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

// NewUnhealthy creates an unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// FromError creates a status whose message is err with endpoints and
// credentials removed
func FromError(component, status string, err error) Status {
	message := "unknown error"
	if err != nil {
		message = Sanitize(err.Error())
	}
	return newStatus(component, status, message)
}

// Aggregate combines sub-statuses: unhealthy if any is unhealthy, else
// degraded if any is degraded, else healthy
func Aggregate(component string, subs []Status) Status {
	if len(subs) == 0 {
		return NewHealthy(component, "no clients")
	}

	var unhealthy, degraded int
	for _, sub := range subs {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var s Status
	switch {
	case unhealthy > 0:
		s = NewUnhealthy(component, "one or more clients are unhealthy")
	case degraded > 0:
		s = NewDegraded(component, "one or more clients are degraded")
	default:
		s = NewHealthy(component, "all clients are healthy")
	}
	s.SubStatuses = make([]Status, len(subs))
	copy(s.SubStatuses, subs)
	return s
}

// Sanitize removes endpoints, addresses and credentials from an error
// message before it is exposed on a health endpoint.
func Sanitize(msg string) string {
	if msg == "" {
		return ""
	}
	out := urlRegex.ReplaceAllString(msg, "[URL]")
	out = ipAddrRegex.ReplaceAllString(out, "[IP]")
	out = portRegex.ReplaceAllString(out, "[PORT]")
	out = schemeRegex.ReplaceAllString(out, "[REDACTED]")

	lower := strings.ToLower(out)
	for _, word := range []string{"password", "token", "key", "secret", "credential", "authorization"} {
		if strings.Contains(lower, word) {
			out = credentialRegex.ReplaceAllString(out, "[REDACTED]")
			break
		}
	}
	return out
}
