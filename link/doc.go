// Package link implements the per-client transport chain every GraphQL
// operation passes through.
//
// A chain is built from Middleware around a terminal Handler:
//
//	ErrorLink -> AuthLink -> HTTPLink
//	                      -> SubscriptionLink            (websockets_only)
//	                      -> Split(IsSubscription, SubscriptionLink, HTTPLink)
//
// ErrorLink is outermost so it observes results after auth and routing have
// been applied. AuthLink resolves the credential on every operation and adds
// the auth header only when a token exists. Split inspects each operation's
// root definition, so one client can mix queries and subscriptions.
//
// Builder picks the terminal for a client declaration and owns the creation
// of the client's subscription transport.
package link
