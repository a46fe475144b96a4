package subscription

import (
	"sync"

	"github.com/goccy/go-json"
)

// Request is one GraphQL operation sent over the socket
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables,omitempty"`
	OperationName string         `json:"operationName,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// Message is one event of a subscription. Payload holds an execution result
// ({"data", "errors"}); Err is set for error frames and transport failures.
// The channel closes after the final message.
type Message struct {
	Payload json.RawMessage
	Err     error
}

// stream is one active subscription. Only the connection's read loop and
// the failure paths deliver to out; finish closes it exactly once.
type stream struct {
	id      string
	payload json.RawMessage

	out      chan Message
	done     chan struct{}
	doneOnce sync.Once

	mu     sync.RWMutex
	closed bool
}

func newStream(id string, payload json.RawMessage) *stream {
	return &stream{
		id:      id,
		payload: payload,
		out:     make(chan Message, 16),
		done:    make(chan struct{}),
	}
}

// deliver blocks until the consumer takes m or the stream finishes
func (s *stream) deliver(m Message) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- m:
		return true
	case <-s.done:
		return false
	}
}

func (s *stream) finish() {
	s.doneOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		s.closed = true
		close(s.out)
		s.mu.Unlock()
	})
}
