package ws_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drafftink/relay/server/internal/relay"
	"github.com/drafftink/relay/server/internal/ws"
)

// --- helpers ----------------------------------------------------------------

// startRelay mounts a Handler at /ws and /ws/ on a test server.
// Returns the ws:// base URL and the hub behind it.
func startRelay(t *testing.T, opts ws.Options) (string, *relay.Hub) {
	t.Helper()

	hub := relay.New(relay.NewRegistry(nil))
	h := ws.NewHandler(hub, "/ws", opts)

	mux := http.NewServeMux()
	mux.Handle("/ws", h)
	mux.Handle("/ws/", h)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		hub.Shutdown(ctx) //nolint:errcheck
		srv.Close()
	})

	return "ws" + strings.TrimPrefix(srv.URL, "http"), hub
}

// dial connects a WebSocket client to url and returns the connection.
func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitMembers polls until room has n members.
func waitMembers(t *testing.T, hub *relay.Hub, room string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Registry().MemberCount(room) == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room %q: got %d members, want %d", room, hub.Registry().MemberCount(room), n)
}

// readMessage reads one message from conn with a short deadline.
func readMessage(t *testing.T, conn *websocket.Conn) (int, []byte) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	return typ, msg
}

// readClose reads until a close frame arrives and returns its code.
func readClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return ce.Code
		}
		t.Fatalf("ReadMessage: got %v, want a close frame", err)
	}
}

func write(t *testing.T, conn *websocket.Conn, typ int, data []byte) {
	t.Helper()
	if err := conn.WriteMessage(typ, data); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

// --- tests ------------------------------------------------------------------

func TestHandler_QueryRoomRelays(t *testing.T) {
	url, hub := startRelay(t, ws.Options{})
	a := dial(t, url+"/ws?room=alpha")
	b := dial(t, url+"/ws?room=alpha")
	waitMembers(t, hub, "alpha", 2)

	write(t, a, websocket.TextMessage, []byte("hello"))

	typ, msg := readMessage(t, b)
	if typ != websocket.TextMessage {
		t.Errorf("type: got %d, want text", typ)
	}
	if string(msg) != "hello" {
		t.Errorf("payload: got %q, want %q", msg, "hello")
	}
}

func TestHandler_SenderDoesNotReceiveOwnMessage(t *testing.T) {
	url, hub := startRelay(t, ws.Options{})
	a := dial(t, url+"/ws?room=alpha")
	b := dial(t, url+"/ws?room=alpha")
	waitMembers(t, hub, "alpha", 2)

	write(t, a, websocket.TextMessage, []byte("M"))
	readMessage(t, b)

	a.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	var ne net.Error
	if _, msg, err := a.ReadMessage(); !errors.As(err, &ne) || !ne.Timeout() {
		t.Errorf("sender: got %q / %v, want read timeout", msg, err)
	}
}

func TestHandler_PathAndQueryShareRoom(t *testing.T) {
	url, hub := startRelay(t, ws.Options{})
	a := dial(t, url+"/ws/alpha")
	b := dial(t, url+"/ws?room=alpha")
	waitMembers(t, hub, "alpha", 2)

	write(t, a, websocket.TextMessage, []byte("via-path"))
	if _, msg := readMessage(t, b); string(msg) != "via-path" {
		t.Errorf("payload: got %q, want via-path", msg)
	}
}

func TestHandler_JoinHandshake(t *testing.T) {
	url, hub := startRelay(t, ws.Options{})
	a := dial(t, url+"/ws")
	write(t, a, websocket.TextMessage, []byte(`{"type":"join","room":"alpha"}`))
	b := dial(t, url+"/ws?room=alpha")
	waitMembers(t, hub, "alpha", 2)

	write(t, b, websocket.TextMessage, []byte("after-join"))
	if _, msg := readMessage(t, a); string(msg) != "after-join" {
		t.Errorf("payload: got %q, want after-join", msg)
	}
}

func TestHandler_BadHandshakeClosesPolicyViolation(t *testing.T) {
	url, _ := startRelay(t, ws.Options{})
	cases := map[string][]byte{
		"not json":     []byte("hello"),
		"wrong type":   []byte(`{"type":"update","room":"alpha"}`),
		"missing room": []byte(`{"type":"join"}`),
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			c := dial(t, url+"/ws")
			write(t, c, websocket.TextMessage, frame)
			if code := readClose(t, c); code != websocket.ClosePolicyViolation {
				t.Errorf("close code: got %d, want %d", code, websocket.ClosePolicyViolation)
			}
		})
	}
}

func TestHandler_BinaryFramePreserved(t *testing.T) {
	url, hub := startRelay(t, ws.Options{})
	a := dial(t, url+"/ws?room=doc")
	b := dial(t, url+"/ws?room=doc")
	waitMembers(t, hub, "doc", 2)

	payload := []byte{0x00, 0x01, 0xfe, 0xff}
	write(t, a, websocket.BinaryMessage, payload)

	typ, msg := readMessage(t, b)
	if typ != websocket.BinaryMessage {
		t.Errorf("type: got %d, want binary", typ)
	}
	if string(msg) != string(payload) {
		t.Errorf("payload: got %x, want %x", msg, payload)
	}
}

func TestHandler_RoomTooLongRejected(t *testing.T) {
	url, _ := startRelay(t, ws.Options{MaxRoomLen: 8})
	_, resp, err := websocket.DefaultDialer.Dial(url+"/ws?room=much-too-long", nil)
	if err == nil {
		t.Fatal("dial: expected error for oversized room id")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %v, want 400", resp)
	}
}

func TestHandler_PlainHTTPRejected(t *testing.T) {
	url, _ := startRelay(t, ws.Options{})
	resp, err := http.Get("http" + strings.TrimPrefix(url, "ws") + "/ws?room=alpha")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestHandler_OriginAllowList(t *testing.T) {
	url, _ := startRelay(t, ws.Options{AllowedOrigins: []string{"app.example.com"}})

	hdr := http.Header{"Origin": []string{"https://evil.example.org"}}
	if _, resp, err := websocket.DefaultDialer.Dial(url+"/ws?room=alpha", hdr); err == nil {
		t.Error("dial from foreign origin: expected error")
	} else if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("status: got %v, want 403", resp)
	}

	hdr = http.Header{"Origin": []string{"https://app.example.com"}}
	c, _, err := websocket.DefaultDialer.Dial(url+"/ws?room=alpha", hdr)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	c.Close()
}

func TestHandler_ShutdownSendsGoingAway(t *testing.T) {
	url, hub := startRelay(t, ws.Options{})
	c := dial(t, url+"/ws?room=alpha")
	waitMembers(t, hub, "alpha", 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hub.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if code := readClose(t, c); code != websocket.CloseGoingAway {
		t.Errorf("close code: got %d, want %d", code, websocket.CloseGoingAway)
	}
}

func TestHandler_ClientCloseLeavesRoom(t *testing.T) {
	url, hub := startRelay(t, ws.Options{})
	c := dial(t, url+"/ws?room=alpha")
	waitMembers(t, hub, "alpha", 1)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)) //nolint:errcheck

	waitMembers(t, hub, "alpha", 0)
	if n := hub.Registry().RoomCount(); n != 0 {
		t.Errorf("RoomCount: got %d, want 0", n)
	}
}

func TestHandler_JoinWhileDrainingSendsGoingAway(t *testing.T) {
	url, hub := startRelay(t, ws.Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := hub.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	c := dial(t, url+"/ws?room=alpha")
	if code := readClose(t, c); code != websocket.CloseGoingAway {
		t.Errorf("close code: got %d, want %d", code, websocket.CloseGoingAway)
	}
	if n := hub.Registry().RoomCount(); n != 0 {
		t.Errorf("RoomCount: got %d, want 0", n)
	}
}

func TestHandler_SlowConsumerClosedTryAgainLater(t *testing.T) {
	url, hub := startRelay(t, ws.Options{})
	hub.SetQueueSize(4)

	sender := dial(t, url+"/ws?room=flood")
	stalled := dial(t, url+"/ws?room=flood") // never reads until evicted
	waitMembers(t, hub, "flood", 2)

	// Flood until the stalled member's queue overflows. Its close frame
	// waits behind unread data for at most a second, so the flood is kept
	// short and draining starts right after.
	payload := make([]byte, 256<<10)
	start := time.Now()
	for i := 0; i < 128 && time.Since(start) < 300*time.Millisecond; i++ {
		if hub.Registry().MemberCount("flood") < 2 {
			break
		}
		write(t, sender, websocket.BinaryMessage, payload)
	}

	if code := readClose(t, stalled); code != websocket.CloseTryAgainLater {
		t.Errorf("close code: got %d, want %d", code, websocket.CloseTryAgainLater)
	}
	waitMembers(t, hub, "flood", 1)

	// The sender keeps relaying after the eviction.
	late := dial(t, url+"/ws?room=flood")
	waitMembers(t, hub, "flood", 2)
	write(t, sender, websocket.TextMessage, []byte("still here"))
	if _, msg := readMessage(t, late); string(msg) != "still here" {
		t.Errorf("payload: got %q, want %q", msg, "still here")
	}
}
