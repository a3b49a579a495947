package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultQueueSize is the outbound queue depth used when none is configured.
const DefaultQueueSize = 256

// Session binds one Conn to its room and owns the outbound queue for it.
// The send loop started by newSession is the only writer to the Conn.
type Session struct {
	id   SessionID
	room string
	conn Conn

	queue chan Message
	done  chan struct{} // closed by Close; stops the send loop
	exit  chan struct{} // closed when the send loop has returned

	closeOnce sync.Once
	closed    atomic.Bool
	state     atomic.Int32

	errMu sync.Mutex
	err   error // first close reason, nil for a clean close
}

// newSession creates a session in StateConnecting. The send loop is not
// started until start is called.
func newSession(id SessionID, room string, conn Conn, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Session{
		id:    id,
		room:  room,
		conn:  conn,
		queue: make(chan Message, queueSize),
		done:  make(chan struct{}),
		exit:  make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() SessionID { return s.id }

// Room returns the room this session belongs to.
func (s *Session) Room() string { return s.room }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Err returns the reason the session was closed, if any.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Enqueue queues msg for delivery without blocking. It returns ErrQueueFull
// when the queue is at capacity and ErrSessionClosed once the session has
// been closed.
func (s *Session) Enqueue(msg Message) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// start launches the send loop.
func (s *Session) start() {
	go s.sendLoop()
}

// sendLoop drains the queue in FIFO order until the session is closed or a
// write fails.
func (s *Session) sendLoop() {
	defer close(s.exit)
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			// Close may have raced the dequeue; do not write to a conn that
			// is being torn down.
			if s.closed.Load() {
				return
			}
			if err := s.conn.Send(msg); err != nil {
				slog.Debug("relay: send failed", "room", s.room, "session", s.id, "err", err)
				s.Evict(err)
				return
			}
		}
	}
}

// Close shuts the session down without a fault reason.
func (s *Session) Close() error {
	s.shutdown(nil)
	return nil
}

// Evict shuts the session down, recording reason as its cause. When the Conn
// can carry a close reason to the peer, reason is passed along.
func (s *Session) Evict(reason error) {
	s.shutdown(reason)
}

// shutdown runs exactly once no matter how many goroutines race into it
// (peer close in the receive loop, eviction by a broadcaster, send failure).
func (s *Session) shutdown(reason error) {
	s.closeOnce.Do(func() {
		s.errMu.Lock()
		s.err = reason
		s.errMu.Unlock()

		s.closed.Store(true)
		close(s.done)

		var err error
		if rc, ok := s.conn.(reasonCloser); ok && reason != nil {
			err = rc.CloseWithError(reason)
		} else {
			err = s.conn.Close()
		}
		if err != nil {
			slog.Debug("relay: close conn", "room", s.room, "session", s.id, "err", err)
		}
	})
}

// Wait blocks until the send loop has returned. It must only be called after
// start.
func (s *Session) Wait() {
	<-s.exit
}
