// Package errors classifies failures raised while building and running GraphQL
// clients.
//
// # Classes
//
//   - Transient: network failures, socket drops, acknowledgement timeouts,
//     storage hiccups. The operation fails but the client stays usable and a
//     reconnect or retry is appropriate.
//   - Invalid: malformed payloads, unknown client keys, unparsable operations.
//     Retrying the same input will fail again.
//   - Fatal: configuration errors such as a duplicate client key or a declared
//     transport without an endpoint. Registry construction stops.
//
// # Wrapping
//
// Every package wraps with the same "component.method: action failed: %w"
// shape:
//
//	if err := cfg.Validate(); err != nil {
//	    return nil, errors.WrapFatal(err, "Registry", "BuildAll", "validate config")
//	}
//
// Classification survives wrapping, and the sentinels (ErrDuplicateClient,
// ErrMissingEndpoint, ErrDisposed, ...) stay reachable through errors.Is.
package errors
