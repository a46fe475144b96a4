// Package gqlcache is the normalized result cache each GraphQL client owns.
//
// Write splits a result into entities. Any object carrying __typename and id
// (or _id) is stored once under "<Typename>:<id>" and replaced in its parent
// by {"__ref": "<Typename>:<id>"}. Top-level fields live under ROOT_QUERY
// (ROOT_MUTATION, ROOT_SUBSCRIPTION) keyed by field name and arguments:
//
//	ROOT_QUERY: {"user({\"id\":\"1\"})": {"__ref": "User:1"}}
//	User:1:     {"__typename": "User", "id": "1", "name": "Ada"}
//
// Read walks the selection set of a query back through the references and
// reports a miss as soon as a selected field or referenced entity is absent.
//
// Extract and Restore move the whole normalized state, which is what the
// server hands to the client after a render.
package gqlcache
