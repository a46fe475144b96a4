package link

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360/gqlclients/hooks"
	"github.com/c360/gqlclients/metric"
)

// ServerError is returned for a non-2xx HTTP response. The decoded body, if
// it was a GraphQL envelope, is still delivered in Result.Response.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("response not successful: received status code %d", e.StatusCode)
}

// ErrorLink reports every failed result to the error hook and to metrics.
// Results pass through unchanged.
func ErrorLink(key string, h *hooks.Registry, m *metric.Metrics, logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "link", "client", key)

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, op *Operation) <-chan Result {
			start := time.Now()
			kind := op.Kind()
			in := next.Execute(ctx, op)
			out := make(chan Result)

			go func() {
				defer close(out)
				failed := false
				for r := range in {
					if r.Err != nil || r.Response.HasErrors() {
						failed = true
						report := hooks.ErrorResponse{
							Client:        key,
							OperationName: op.OperationName,
							OperationKind: kind,
							NetworkError:  r.Err,
						}
						if r.Response != nil {
							report.GraphQLErrors = r.Response.Errors
						}
						m.RecordError(key, report.Type())
						logger.Debug("Operation failed",
							"operation", op.OperationName, "kind", kind, "type", report.Type(), "error", r.Err)
						h.EmitError(report)
					}
					// Keep draining after cancellation so the upstream link can finish
					if ctx.Err() == nil {
						select {
						case out <- r:
						case <-ctx.Done():
						}
					}
				}
				m.RecordOperation(key, kind, failed, time.Since(start))
			}()
			return out
		})
	}
}
