package subscription

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/c360/gqlclients/errors"
)

const writeTimeout = 10 * time.Second

// conn is one acknowledged websocket connection
type conn struct {
	ws    *websocket.Conn
	proto protocol

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// closeInfo describes why a read loop ended
type closeInfo struct {
	code int
	err  error
}

func (ci closeInfo) auth() bool {
	return ci.code == CloseUnauthorized || ci.code == CloseForbidden
}

// dial opens the socket and completes the connection_init handshake
func dial(ctx context.Context, dialer *websocket.Dialer, url string, proto protocol,
	params map[string]any, ackTimeout time.Duration) (*conn, error) {

	d := *dialer
	d.Subprotocols = []string{proto.name}

	ws, resp, err := d.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, errors.WrapTransient(
				fmt.Errorf("handshake status %d: %w", resp.StatusCode, err),
				"Transport", "dial", url)
		}
		return nil, errors.WrapTransient(err, "Transport", "dial", url)
	}

	c := &conn{ws: ws, proto: proto, done: make(chan struct{})}

	stop := context.AfterFunc(ctx, func() { c.ws.Close() })
	defer stop()

	if err := c.handshake(params, ackTimeout); err != nil {
		c.close(CloseNormal, "")
		return nil, err
	}
	return c, nil
}

func (c *conn) handshake(params map[string]any, ackTimeout time.Duration) error {
	var payload json.RawMessage
	if len(params) > 0 {
		data, err := json.Marshal(params)
		if err != nil {
			return errors.WrapInvalid(err, "Transport", "handshake", "encode connection params")
		}
		payload = data
	}
	if err := c.send(message{Type: c.proto.init, Payload: payload}); err != nil {
		return err
	}

	if ackTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(ackTimeout))
	}
	for {
		msg, err := c.read()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return errors.WrapTransient(errors.ErrConnectionAckTimeout, "Transport", "handshake", "wait for ack")
			}
			return errors.WrapTransient(err, "Transport", "handshake", "wait for ack")
		}

		switch {
		case c.proto.is(msg.Type, c.proto.ack):
			_ = c.ws.SetReadDeadline(time.Time{})
			return nil
		case c.proto.is(msg.Type, c.proto.ping):
			if err := c.send(message{Type: c.proto.pong}); err != nil {
				return err
			}
		case c.proto.is(msg.Type, c.proto.keepAlive):
		case c.proto.is(msg.Type, c.proto.initError):
			return errors.WrapTransient(
				fmt.Errorf("connection rejected: %s: %w", string(msg.Payload), errors.ErrSubscriptionFailed),
				"Transport", "handshake", "wait for ack")
		default:
			return errors.WrapTransient(
				fmt.Errorf("unexpected %q before ack: %w", msg.Type, errors.ErrInvalidData),
				"Transport", "handshake", "wait for ack")
		}
	}
}

func (c *conn) read() (message, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return message{}, err
	}
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return message{}, errors.WrapInvalid(err, "Transport", "read", "decode frame")
	}
	return msg, nil
}

func (c *conn) send(msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.WrapInvalid(err, "Transport", "send", "encode frame")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.WrapTransient(err, "Transport", "send", msg.Type)
	}
	return nil
}

// close sends a close frame and drops the socket. Safe to call repeatedly.
func (c *conn) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		if c.proto.terminate != "" && code == CloseNormal {
			data, _ := json.Marshal(message{Type: c.proto.terminate})
			_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.ws.WriteMessage(websocket.TextMessage, data)
		}
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		c.writeMu.Unlock()

		close(c.done)
		c.ws.Close()
	})
}

// keepAlive pings the server every interval until the connection closes
func (c *conn) keepAlive(interval time.Duration) {
	if interval <= 0 || c.proto.ping == "" {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.send(message{Type: c.proto.ping}); err != nil {
				return
			}
		}
	}
}

// closeInfoFor maps a read error to a close code
func closeInfoFor(err error) closeInfo {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return closeInfo{code: ce.Code, err: err}
	}
	return closeInfo{code: websocket.CloseAbnormalClosure, err: err}
}
