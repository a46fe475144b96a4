package link

import (
	"context"

	"github.com/c360/gqlclients/config"
	"github.com/c360/gqlclients/errors"
)

// CredentialSource resolves the auth header for one operation. ok is false
// when no token is available.
type CredentialSource interface {
	AuthHeader(ctx context.Context, key string, cfg config.ClientConfig) (name, value string, ok bool, err error)
}

// AuthLink resolves the credential on every operation and sets the auth
// header only when one exists. A resolution failure fails that operation
// alone.
func AuthLink(key string, cfg config.ClientConfig, src CredentialSource) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, op *Operation) <-chan Result {
			name, value, ok, err := src.AuthHeader(ctx, key, cfg)
			if err != nil {
				return Failed(errors.Wrap(err, "AuthLink", "Execute", "resolve credential"))
			}
			if !ok {
				return next.Execute(ctx, op)
			}
			return next.Execute(ctx, op.WithHeader(name, value))
		})
	}
}
