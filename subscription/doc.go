// Package subscription implements the websocket transport used for GraphQL
// subscriptions.
//
// Both graphql-transport-ws and the legacy graphql-ws subprotocols are
// supported. A Client owns at most one socket. The connection_init payload
// comes from a ParamsFunc that runs on every connection attempt, so a token
// change followed by Restart reaches the server without recreating the
// client:
//
//	c, _ := subscription.New(subscription.Options{
//		URL: "wss://api/graphql",
//		ConnectionParams: func(ctx context.Context) (map[string]any, error) {
//			return map[string]any{"Authorization": currentToken()}, nil
//		},
//		Lazy: true,
//	})
//	events, _ := c.Subscribe(ctx, subscription.Request{Query: "subscription { ticks }"})
//	for ev := range events {
//		...
//	}
//
// Subscriptions that are active when a connection drops or restarts are sent
// again on the next connection. Reconnects follow the retry schedule in
// Options.Retry; once it is exhausted every active subscription receives the
// error and its channel closes.
package subscription
