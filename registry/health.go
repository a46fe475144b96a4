package registry

import (
	"github.com/c360/gqlclients/client"
	"github.com/c360/gqlclients/health"
)

// Health reports every built client and their aggregate. A client whose
// transport lost its connection while subscriptions were active is
// degraded: queries still work, live data does not.
func (r *Registry) Health() health.Status {
	r.mu.RLock()
	closed, built := r.closed, r.built
	clients := make([]*client.Client, 0, len(r.clients))
	for _, key := range r.cfg.Clients.Keys() {
		if c, ok := r.clients[key]; ok {
			clients = append(clients, c)
		}
	}
	r.mu.RUnlock()

	switch {
	case closed:
		return health.NewUnhealthy("registry", "registry closed")
	case !built:
		return health.NewDegraded("registry", "clients not built")
	}

	subs := make([]health.Status, 0, len(clients))
	for _, c := range clients {
		subs = append(subs, clientHealth(c))
	}
	return health.Aggregate("registry", subs)
}

func clientHealth(c *client.Client) health.Status {
	if c.Closed() {
		return health.NewUnhealthy(c.Key(), "client closed")
	}

	details := &health.Details{Transport: "none", CacheEntries: c.Cache().Size()}
	if stats := c.Cache().Stats(); stats != nil {
		details.CacheHitRatio = stats.HitRatio()
	}

	t := c.Transport()
	if t == nil {
		return health.NewHealthy(c.Key(), "http only").WithDetails(details)
	}
	details.ActiveSubscriptions = t.Active()
	if t.Connected() {
		details.Transport = "connected"
		return health.NewHealthy(c.Key(), "subscription transport connected").WithDetails(details)
	}
	details.Transport = "disconnected"
	if details.ActiveSubscriptions > 0 {
		if err := t.LastError(); err != nil {
			return health.FromError(c.Key(), health.StatusDegraded, err).WithDetails(details)
		}
		return health.NewDegraded(c.Key(), "subscription transport reconnecting").WithDetails(details)
	}
	return health.NewHealthy(c.Key(), "subscription transport idle").WithDetails(details)
}
