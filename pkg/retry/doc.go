// Package retry provides exponential backoff for reconnecting transports.
//
// Config describes the schedule; Delay computes the wait before a given
// attempt and Do runs a function until it succeeds, returns a NonRetryable
// error, exhausts its attempts or the context ends.
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    return transport.dial(ctx)
//	})
package retry
