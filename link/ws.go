package link

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/c360/gqlclients/errors"
	"github.com/c360/gqlclients/subscription"
)

// Subscriber is the part of the subscription transport a link needs
type Subscriber interface {
	Subscribe(ctx context.Context, req subscription.Request) (<-chan subscription.Message, error)
}

// SubscriptionLink sends operations over the websocket transport. It serves
// every operation kind when the client is websockets-only.
type SubscriptionLink struct {
	transport Subscriber
}

// NewSubscriptionLink wraps a transport
func NewSubscriptionLink(transport Subscriber) *SubscriptionLink {
	return &SubscriptionLink{transport: transport}
}

// Execute implements Handler. Per-operation headers are not sent: the
// socket authenticates once per connection through its connection params.
func (l *SubscriptionLink) Execute(ctx context.Context, op *Operation) <-chan Result {
	events, err := l.transport.Subscribe(ctx, subscription.Request{
		Query:         op.Query,
		Variables:     op.Variables,
		OperationName: op.OperationName,
		Extensions:    op.Extensions,
	})
	if err != nil {
		return Failed(err)
	}

	out := make(chan Result)
	go func() {
		defer close(out)
		for ev := range events {
			r := toResult(ev)
			select {
			case out <- r:
			case <-ctx.Done():
				// The transport closes events once it sees ctx end
			}
		}
	}()
	return out
}

func toResult(ev subscription.Message) Result {
	if ev.Err != nil {
		// Error frames carry GraphQL errors, anything else is a transport failure
		var list gqlerror.List
		if errors.As(ev.Err, &list) {
			return Result{Response: &Response{Errors: list}}
		}
		return Result{Err: ev.Err}
	}
	var resp Response
	if err := json.Unmarshal(ev.Payload, &resp); err != nil {
		return Result{Err: errors.WrapInvalid(
			fmt.Errorf("%v: %w", err, errors.ErrParsingFailed),
			"SubscriptionLink", "Execute", "decode payload")}
	}
	return Result{Response: &resp}
}
