package relay

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// errTestTimeout is returned by mockConn.recv when nothing arrived in time.
var errTestTimeout = errors.New("test: timed out")

// mockConn is an in-memory Conn. Tests push client-originated messages into
// fromClient and read what the relay wrote from fromServer.
//
// When hold is non-nil, Send blocks until hold is closed or the conn is
// closed, simulating a peer that stopped reading.
type mockConn struct {
	fromClient chan Message
	fromServer chan Message
	hold       chan struct{}

	stop      chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32

	mu     sync.Mutex
	reason error
}

func newMockConn() *mockConn {
	return &mockConn{
		fromClient: make(chan Message),
		fromServer: make(chan Message, 100),
		stop:       make(chan struct{}),
	}
}

// newStalledConn returns a conn whose Send never completes.
func newStalledConn() *mockConn {
	c := newMockConn()
	c.hold = make(chan struct{})
	return c
}

func (c *mockConn) Receive() (Message, error) {
	select {
	case m := <-c.fromClient:
		return m, nil
	case <-c.stop:
		return Message{}, ErrConnClosed
	}
}

func (c *mockConn) Send(m Message) error {
	if c.hold != nil {
		select {
		case <-c.hold:
		case <-c.stop:
			return ErrConnClosed
		}
	}
	select {
	case <-c.stop:
		return ErrConnClosed
	default:
	}
	select {
	case c.fromServer <- m:
		return nil
	case <-c.stop:
		return ErrConnClosed
	}
}

func (c *mockConn) Close() error {
	c.closes.Add(1)
	c.closeOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *mockConn) CloseWithError(reason error) error {
	c.mu.Lock()
	c.reason = reason
	c.mu.Unlock()
	return c.Close()
}

func (c *mockConn) closeReason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

func (c *mockConn) isClosed() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// send simulates the client sending data to the relay.
func (c *mockConn) send(t *testing.T, data string) {
	t.Helper()
	select {
	case c.fromClient <- Message{Type: TextMessage, Data: []byte(data)}:
	case <-c.stop:
		t.Fatalf("send %q: conn closed", data)
	case <-time.After(2 * time.Second):
		t.Fatalf("send %q: relay is not reading", data)
	}
}

// recv waits up to timeout for a message written by the relay.
func (c *mockConn) recv(timeout time.Duration) (Message, error) {
	select {
	case m := <-c.fromServer:
		return m, nil
	case <-time.After(timeout):
		return Message{}, errTestTimeout
	}
}

// waitFor polls cond until it holds or two seconds elapse.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
