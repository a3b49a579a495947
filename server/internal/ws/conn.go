package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drafftink/relay/server/internal/relay"
)

// closeGrace bounds the attempt to deliver a close frame.
const closeGrace = time.Second

// Options tunes the WebSocket transport. Zero fields fall back to the
// defaults from DefaultOptions.
type Options struct {
	// ReadLimit is the maximum size in bytes of one inbound message.
	ReadLimit int64

	// WriteTimeout is the deadline for a single write to a client.
	WriteTimeout time.Duration

	// PongWait is how long to wait for any inbound frame (including a pong)
	// before treating the connection as dead.
	PongWait time.Duration

	// PingPeriod controls how often ping frames are sent. Must be less than
	// PongWait.
	PingPeriod time.Duration

	// HandshakeTimeout bounds the wait for the join frame when the room is
	// not part of the URL.
	HandshakeTimeout time.Duration

	// MaxRoomLen rejects room identifiers longer than this many bytes;
	// 0 disables the check.
	MaxRoomLen int

	// AllowedOrigins lists acceptable Origin headers. Empty or "*" accepts
	// every origin.
	AllowedOrigins []string
}

// DefaultOptions returns the transport defaults.
func DefaultOptions() Options {
	return Options{
		ReadLimit:        1 << 20,
		WriteTimeout:     10 * time.Second,
		PongWait:         60 * time.Second,
		PingPeriod:       54 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxRoomLen:       256,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	return o
}

// conn adapts a gorilla/websocket connection to relay.Conn. Reads happen on
// the Serve goroutine, data writes on the session's send loop; pings and the
// close frame go through WriteControl, which gorilla allows concurrently.
type conn struct {
	ws   *websocket.Conn
	opts Options

	done      chan struct{}
	closeOnce sync.Once
}

func newConn(c *websocket.Conn, opts Options) *conn {
	wc := &conn{
		ws:   c,
		opts: opts,
		done: make(chan struct{}),
	}
	c.SetReadLimit(opts.ReadLimit)
	c.SetReadDeadline(time.Now().Add(opts.PongWait)) //nolint:errcheck
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	go wc.keepalive()
	return wc
}

// keepalive sends ping frames until the connection is closed. After a failed
// ping it stops; the read deadline then expires and Receive reports the
// timeout.
func (c *conn) keepalive() {
	t := time.NewTicker(c.opts.PingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// Receive returns the next text or binary message. Control frames are handled
// by gorilla's handlers and never surface here.
func (c *conn) Receive() (relay.Message, error) {
	typ, data, err := c.ws.ReadMessage()
	if err != nil {
		return relay.Message{}, c.readErr(err)
	}
	// Any inbound data frame also proves liveness.
	c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait)) //nolint:errcheck

	switch typ {
	case websocket.BinaryMessage:
		return relay.Message{Type: relay.BinaryMessage, Data: data}, nil
	default:
		return relay.Message{Type: relay.TextMessage, Data: data}, nil
	}
}

func (c *conn) readErr(err error) error {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return fmt.Errorf("ws: peer closed: %w", relay.ErrConnClosed)
	}
	select {
	case <-c.done:
		// We closed the socket ourselves; the read error is a consequence.
		return relay.ErrConnClosed
	default:
	}
	if errors.Is(err, net.ErrClosed) {
		return relay.ErrConnClosed
	}
	return fmt.Errorf("ws: read: %w", err)
}

// Send writes one message with the configured write deadline.
func (c *conn) Send(m relay.Message) error {
	typ := websocket.TextMessage
	if m.Type == relay.BinaryMessage {
		typ = websocket.BinaryMessage
	}
	c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)) //nolint:errcheck
	if err := c.ws.WriteMessage(typ, m.Data); err != nil {
		return fmt.Errorf("ws: write: %w", err)
	}
	return nil
}

// Close sends a normal closure frame and closes the socket.
func (c *conn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

// CloseWithError closes the socket with a status code describing reason.
func (c *conn) CloseWithError(reason error) error {
	code, text := closeCode(reason)
	return c.closeWith(code, text)
}

// closeWith returns immediately; the close frame and socket teardown run in
// the background because the caller may be a broadcaster evicting a peer
// whose socket is stalled.
func (c *conn) closeWith(code int, text string) error {
	c.closeOnce.Do(func() {
		close(c.done)
		go func() {
			msg := websocket.FormatCloseMessage(code, text)
			// Best effort: the peer may already be gone.
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
			c.ws.Close() //nolint:errcheck
		}()
	})
	return nil
}

// closeCode maps an eviction reason to a WebSocket close status.
func closeCode(reason error) (int, string) {
	switch {
	case errors.Is(reason, relay.ErrSlowConsumer):
		return websocket.CloseTryAgainLater, "slow consumer"
	case errors.Is(reason, relay.ErrShuttingDown), errors.Is(reason, context.Canceled):
		return websocket.CloseGoingAway, "server shutting down"
	case errors.Is(reason, relay.ErrConnClosed):
		return websocket.CloseNormalClosure, ""
	default:
		return websocket.CloseInternalServerErr, "internal error"
	}
}
