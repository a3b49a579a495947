package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Forwarder publishes locally received messages to other relay instances.
// Forward is called from the receive loop and should return promptly.
type Forwarder interface {
	Forward(ctx context.Context, roomID string, msg Message) error
}

// Option configures a Hub.
type Option func(*Hub)

// WithQueueSize sets the outbound queue depth for new sessions.
func WithQueueSize(n int) Option {
	return func(h *Hub) { h.SetQueueSize(n) }
}

// WithForwarder publishes every inbound message through f in addition to the
// local broadcast.
func WithForwarder(f Forwarder) Option {
	return func(h *Hub) { h.fwd = f }
}

// Hub is the per-connection entry point. It owns no room state itself; it
// drives sessions through the Registry it was built with.
type Hub struct {
	registry *Registry
	obs      Observer
	fwd      Forwarder

	queueSize atomic.Int64
	nextID    atomic.Uint64
	active    atomic.Int64

	mu       sync.Mutex // guards wg.Add against Shutdown
	wg       sync.WaitGroup
	draining atomic.Bool
}

// New creates a Hub bound to reg.
func New(reg *Registry, opts ...Option) *Hub {
	h := &Hub{
		registry: reg,
		obs:      reg.obs,
	}
	h.queueSize.Store(DefaultQueueSize)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Registry returns the registry the hub joins sessions into.
func (h *Hub) Registry() *Registry { return h.registry }

// SetQueueSize changes the outbound queue depth used for sessions created
// from now on. Values below 1 are ignored.
func (h *Hub) SetQueueSize(n int) {
	if n < 1 {
		return
	}
	h.queueSize.Store(int64(n))
}

// QueueSize returns the queue depth new sessions are created with.
func (h *Hub) QueueSize() int { return int(h.queueSize.Load()) }

// Active returns the number of connections currently being served.
func (h *Hub) Active() int { return int(h.active.Load()) }

// Draining reports whether Shutdown has been called.
func (h *Hub) Draining() bool { return h.draining.Load() }

// Serve runs one connection until it terminates: it joins conn to roomID,
// relays every inbound message to the other members, and on termination
// leaves the room and releases the connection. It blocks for the lifetime of
// the connection and always closes conn before returning.
//
// Cancelling ctx closes the connection. The returned error is the
// termination cause: nil for an orderly peer close, ErrSlowConsumer or
// ErrShuttingDown for evictions, or the transport error otherwise.
func (h *Hub) Serve(ctx context.Context, roomID string, conn Conn) error {
	h.mu.Lock()
	if h.draining.Load() {
		h.mu.Unlock()
		closeConn(conn, ErrShuttingDown)
		return ErrShuttingDown
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	h.active.Add(1)
	defer h.active.Add(-1)

	s := newSession(SessionID(h.nextID.Add(1)), roomID, conn, h.QueueSize())

	rm := h.registry.Join(roomID, s)
	s.setState(StateJoined)
	h.obs.SessionOpened(roomID)
	s.start()
	slog.Debug("relay: session joined", "room", roomID, "session", s.id)

	// Shutdown may have missed a session that joined after its sweep.
	if h.draining.Load() {
		s.Evict(ErrShuttingDown)
	}

	stop := context.AfterFunc(ctx, func() { s.Evict(context.Cause(ctx)) })
	defer stop()

	s.setState(StateRelaying)
	var cause error
	for {
		msg, err := conn.Receive()
		if err != nil {
			cause = err
			break
		}
		msg.From = s.id
		rm.Broadcast(s.id, msg)

		if h.fwd != nil {
			if err := h.fwd.Forward(ctx, roomID, msg); err != nil {
				slog.Warn("relay: forward failed", "room", roomID, "session", s.id, "err", err)
			}
		}
	}

	s.setState(StateClosing)
	h.registry.Leave(roomID, s)
	s.Close() //nolint:errcheck
	s.Wait()
	s.setState(StateClosed)

	// An eviction reason explains the read error it caused.
	if reason := s.Err(); reason != nil {
		cause = reason
	}
	if errors.Is(cause, ErrConnClosed) {
		cause = nil
	}

	h.obs.SessionClosed(roomID, cause)
	slog.Debug("relay: session closed", "room", roomID, "session", s.id, "cause", cause)
	return cause
}

// Shutdown stops accepting new connections, evicts every session with
// ErrShuttingDown and waits for all Serve calls to return or ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.draining.Store(true)
	h.mu.Unlock()

	h.registry.CloseAll(ErrShuttingDown)

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// closeConn closes conn, passing reason to transports that can report it.
func closeConn(conn Conn, reason error) {
	var err error
	if rc, ok := conn.(reasonCloser); ok {
		err = rc.CloseWithError(reason)
	} else {
		err = conn.Close()
	}
	if err != nil {
		slog.Debug("relay: close conn", "err", err)
	}
}
