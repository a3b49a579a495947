package relay

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSession_SendLoopPreservesOrder(t *testing.T) {
	conn := newMockConn()
	s := newSession(1, "alpha", conn, 16)
	s.start()
	defer func() {
		s.Close() //nolint:errcheck
		s.Wait()
	}()

	for _, m := range []string{"a", "b", "c", "d"} {
		if err := s.Enqueue(text(m)); err != nil {
			t.Fatalf("Enqueue %q: %v", m, err)
		}
	}
	for _, want := range []string{"a", "b", "c", "d"} {
		got, err := conn.recv(time.Second)
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if string(got.Data) != want {
			t.Errorf("recv: got %q, want %q", got.Data, want)
		}
	}
}

func TestSession_EnqueueFullQueue(t *testing.T) {
	s := newSession(1, "alpha", newMockConn(), 2)

	for i := 0; i < 2; i++ {
		if err := s.Enqueue(text("x")); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if err := s.Enqueue(text("x")); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue on full queue: got %v, want ErrQueueFull", err)
	}
}

func TestSession_EnqueueAfterClose(t *testing.T) {
	s := newSession(1, "alpha", newMockConn(), 2)
	s.Close() //nolint:errcheck

	if err := s.Enqueue(text("x")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Enqueue after Close: got %v, want ErrSessionClosed", err)
	}
}

func TestSession_CloseRunsOnce(t *testing.T) {
	conn := newMockConn()
	s := newSession(1, "alpha", conn, 2)
	s.start()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Close() //nolint:errcheck
		}()
		go func() {
			defer wg.Done()
			s.Evict(ErrSlowConsumer)
		}()
	}
	wg.Wait()
	s.Wait()

	if got := conn.closes.Load(); got != 1 {
		t.Errorf("conn closes: got %d, want 1", got)
	}
}

func TestSession_CloseUnblocksStalledSend(t *testing.T) {
	conn := newStalledConn()
	s := newSession(1, "alpha", conn, 2)
	s.start()

	if err := s.Enqueue(text("stuck")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	time.Sleep(10 * time.Millisecond) // let the send loop pick it up

	s.Evict(ErrSlowConsumer)

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("send loop did not exit after Evict")
	}
	if !errors.Is(s.Err(), ErrSlowConsumer) {
		t.Errorf("Err: got %v, want ErrSlowConsumer", s.Err())
	}
}

func TestSession_SendFailureClosesSession(t *testing.T) {
	conn := newMockConn()
	s := newSession(1, "alpha", conn, 2)
	conn.Close() //nolint:errcheck
	s.start()

	if err := s.Enqueue(text("x")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	s.Wait()

	if !errors.Is(s.Err(), ErrConnClosed) {
		t.Errorf("Err: got %v, want ErrConnClosed", s.Err())
	}
	if err := s.Enqueue(text("y")); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Enqueue after failure: got %v, want ErrSessionClosed", err)
	}
}

func TestSession_DefaultQueueSize(t *testing.T) {
	s := newSession(1, "alpha", newMockConn(), 0)
	if got := cap(s.queue); got != DefaultQueueSize {
		t.Errorf("queue cap: got %d, want %d", got, DefaultQueueSize)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateConnecting: "connecting",
		StateJoined:     "joined",
		StateRelaying:   "relaying",
		StateClosing:    "closing",
		StateClosed:     "closed",
		State(42):       "invalid",
	}
	for st, want := range cases {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String: got %q, want %q", st, got, want)
		}
	}
}
