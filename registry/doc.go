// Package registry builds the GraphQL clients of one application session.
//
// A Registry is created per session with the declared clients and the
// session's execution context, hooks, storages and transfer payload.
// BuildAll then builds every client in declaration order:
//
//	reg, err := registry.New(registry.Options{
//		Config:  cfg,
//		Session: registry.Session{Exec: types.Server(r), ResponseWriter: w, Payload: payload},
//	})
//	clients, err := reg.BuildAll(ctx)
//	resp, err := clients["default"].Query(ctx, &link.Operation{Query: q}, client.CacheFirst)
//
// Each client gets its link chain from link.Builder, credentials from one
// shared auth.Resolver, and a fresh gqlcache.Cache. On the server the cache
// is registered for extraction on render:done; on the client it is restored
// from the payload before the client is returned.
//
// The default alias is decided once: default_client when configured, else
// a client literally named "default", else the first declared client.
package registry
