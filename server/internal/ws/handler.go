package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/drafftink/relay/server/internal/relay"
)

var (
	errBadJoin  = errors.New("ws: first frame must be a join message")
	errNoRoom   = errors.New("ws: room is required")
	errRoomSize = errors.New("ws: room identifier too long")
)

// joinFrame is the handshake message expected when the room id is not part
// of the URL: {"type":"join","room":"<id>"}.
type joinFrame struct {
	Type string `json:"type"`
	Room string `json:"room"`
}

// Handler upgrades HTTP requests to WebSocket connections and hands them to
// the hub.
type Handler struct {
	hub      *relay.Hub
	prefix   string
	opts     Options
	upgrader websocket.Upgrader
}

// NewHandler returns a Handler serving connections under path (e.g. "/ws").
// The room is taken from the "room" query parameter, from the path segment
// after path ("/ws/<room>"), or from a join frame sent first.
func NewHandler(hub *relay.Hub, path string, opts Options) *Handler {
	opts = opts.withDefaults()
	h := &Handler{
		hub:    hub,
		prefix: strings.TrimSuffix(path, "/"),
		opts:   opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

// ServeHTTP blocks for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	room := h.roomFromRequest(r)
	if h.opts.MaxRoomLen > 0 && len(room) > h.opts.MaxRoomLen {
		http.Error(w, errRoomSize.Error(), http.StatusBadRequest)
		return
	}

	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		slog.Debug("ws: upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	if room == "" {
		room, err = h.awaitJoin(c)
		if err != nil {
			slog.Debug("ws: handshake failed", "remote", r.RemoteAddr, "err", err)
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
			_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
			c.Close() //nolint:errcheck
			return
		}
	}

	err = h.hub.Serve(r.Context(), room, newConn(c, h.opts))
	switch {
	case err == nil:
		slog.Debug("ws: connection closed", "room", room, "remote", r.RemoteAddr)
	case errors.Is(err, relay.ErrSlowConsumer):
		slog.Info("ws: slow consumer disconnected", "room", room, "remote", r.RemoteAddr)
	default:
		slog.Debug("ws: connection ended", "room", room, "remote", r.RemoteAddr, "err", err)
	}
}

// roomFromRequest extracts the room from ?room= or from /<prefix>/<room>.
func (h *Handler) roomFromRequest(r *http.Request) string {
	if room := r.URL.Query().Get("room"); room != "" {
		return room
	}
	rest, ok := strings.CutPrefix(r.URL.Path, h.prefix+"/")
	if !ok {
		return ""
	}
	return rest
}

// awaitJoin reads the handshake frame. The frame is consumed, never relayed.
func (h *Handler) awaitJoin(c *websocket.Conn) (string, error) {
	c.SetReadLimit(h.opts.ReadLimit)
	c.SetReadDeadline(time.Now().Add(h.opts.HandshakeTimeout)) //nolint:errcheck

	typ, data, err := c.ReadMessage()
	if err != nil {
		return "", err
	}
	if typ != websocket.TextMessage {
		return "", errBadJoin
	}
	var jf joinFrame
	if err := json.Unmarshal(data, &jf); err != nil || jf.Type != "join" {
		return "", errBadJoin
	}
	if jf.Room == "" {
		return "", errNoRoom
	}
	if h.opts.MaxRoomLen > 0 && len(jf.Room) > h.opts.MaxRoomLen {
		return "", errRoomSize
	}
	return jf.Room, nil
}

// originChecker accepts every origin when allowed is empty or contains "*";
// otherwise the Origin header's host must match one entry (either a bare
// host or a full origin URL).
func originChecker(allowed []string) func(*http.Request) bool {
	for _, a := range allowed {
		if a == "*" {
			allowed = nil
			break
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
				return true
			}
		}
		return false
	}
}
