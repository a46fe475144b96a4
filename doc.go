// Package gqlclients orchestrates the GraphQL clients of an application.
//
// An application declares one or more named GraphQL endpoints. For every
// session (one server-side render, or the lifetime of a browser or native
// process) gqlclients builds one client per endpoint, resolves the bearer
// token each request should carry, multiplexes subscriptions over a
// graphql-ws connection and hands the server's normalized cache to the
// client side so the first render does not fetch twice.
//
// # Architecture
//
// The module is split into small packages that are wired together by the
// registry:
//
//	config        YAML declaration of the clients, defaults and validation
//	types         ExecutionContext: which side of the render a session is on
//	hooks         named callbacks (auth, error, render-done) per session
//	storage       cookie and local-storage stores (memory, bbolt, Redis)
//	auth          TokenResolver: hook, then cookie/local storage, then nothing
//	link          TransportLinkBuilder: HTTP, auth, error and split links
//	subscription  SubscriptionTransport: lazy graphql-ws client with reconnect
//	gqlcache      normalized result cache with Extract and Restore
//	client        one client: cache policy, SSR mode, force-fetch window
//	transfer      CacheTransferProtocol: write-once, read-once payload
//	registry      ClientRegistry: BuildAll, lookup, default alias, helpers
//	health        per-client and aggregate status
//	metric        Prometheus registry and scrape server
//
// # Data flow
//
// A query issued on a client goes through its cache first. A miss is sent
// down the link chain:
//
//	ErrorLink → AuthLink → Split ─┬─ subscription → SubscriptionLink → subscription.Client
//	                              └─ otherwise    → HTTPLink
//
// On the server the registry attaches a transfer.Producer to the
// render-done hook; every client's cache is extracted into the transfer
// payload once rendering finishes. On the client the registry restores each
// cache from that payload before the client is handed out.
//
// # Usage
//
//	cfg, err := config.Load("clients.yaml")
//	if err != nil {
//		return err
//	}
//	reg, err := registry.New(registry.Options{
//		Config:  cfg,
//		Session: registry.Session{Exec: types.Client()},
//		Logger:  logger,
//	})
//	if err != nil {
//		return err
//	}
//	defer reg.Close()
//
//	if _, err := reg.BuildAll(ctx); err != nil {
//		return err
//	}
//	c, err := reg.Default()
//	if err != nil {
//		return err
//	}
//	resp, err := c.Query(ctx, &link.Operation{Query: `{ me { id name } }`}, client.CacheFirst)
//
// # Command line
//
// cmd/gqlclients runs a single query, mutation or subscription against a
// configured client, optionally persisting its token in a bbolt file or a
// cookie jar, and can serve metrics and health while it runs.
package gqlclients
