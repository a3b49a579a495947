package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/drafftink/relay/server/internal/relay"
)

// Options configures the handler.
type Options struct {
	// WSPath is the WebSocket endpoint advertised by the index banner.
	WSPath string

	// UIDir, when set, replaces the banner with a static UI.
	UIDir string

	// Guard wraps the /api/v1 routes (e.g. auth.Guard.Middleware).
	// Nil leaves them open.
	Guard func(http.Handler) http.Handler
}

// Handler serves the index, health and introspection routes.
// It reads room state from the hub's registry and never mutates it.
type Handler struct {
	hub  *relay.Hub
	reg  *relay.Registry
	opts Options
	mux  *http.ServeMux
}

// New creates a Handler for hub and registers all routes.
func New(hub *relay.Hub, opts Options) http.Handler {
	if opts.WSPath == "" {
		opts.WSPath = "/ws"
	}
	guard := opts.Guard
	if guard == nil {
		guard = func(h http.Handler) http.Handler { return h }
	}

	h := &Handler{hub: hub, reg: hub.Registry(), opts: opts, mux: http.NewServeMux()}

	h.mux.HandleFunc("/health", h.health)
	h.mux.Handle("/api/v1/rooms", guard(http.HandlerFunc(h.listRooms)))
	h.mux.Handle("/api/v1/rooms/", guard(http.HandlerFunc(h.getRoom))) // subtree, extracts {id}
	h.mux.Handle("/api/v1/snapshot", guard(http.HandlerFunc(h.snapshot)))

	if opts.UIDir != "" {
		h.mux.Handle("/", newStaticHandler(opts.UIDir))
	} else {
		h.mux.HandleFunc("/", h.index)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// index returns GET / as a plain-text banner.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "DrafftInk Relay Server - Connect via WebSocket at %s\n", h.opts.WSPath)
}

// health returns GET /health. It reads aggregate counters only.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	resp := HealthResponse{
		Status:      "ok",
		Rooms:       h.reg.RoomCount(),
		Connections: h.reg.SessionCount(),
	}
	code := http.StatusOK
	if h.hub.Draining() {
		resp.Status = "draining"
		code = http.StatusServiceUnavailable
	}
	jsonResp(w, code, resp)
}

// listRooms returns GET /api/v1/rooms.
func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if id := r.URL.Query().Get("id"); id != "" {
		h.writeRoom(w, id)
		return
	}
	jsonResp(w, http.StatusOK, h.rooms())
}

// getRoom returns GET /api/v1/rooms/{id}. The id is taken from the escaped
// path so that %2F stays part of it; ids that the mux would clean (".."
// or "//") can be looked up with GET /api/v1/rooms?id=<id> instead.
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw := strings.TrimPrefix(r.URL.EscapedPath(), "/api/v1/rooms/")
	id, err := url.PathUnescape(raw)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid room id")
		return
	}
	if id == "" {
		h.listRooms(w, r)
		return
	}
	h.writeRoom(w, id)
}

func (h *Handler) writeRoom(w http.ResponseWriter, id string) {
	rm, ok := h.reg.Room(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "room not found")
		return
	}
	jsonResp(w, http.StatusOK, RoomResponse{ID: rm.ID(), Members: rm.Len()})
}

// snapshot returns GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rooms := h.rooms()
	sessions := 0
	for _, rm := range rooms {
		sessions += rm.Members
	}
	jsonResp(w, http.StatusOK, SnapshotResponse{
		Rooms:       rooms,
		Sessions:    sessions,
		Active:      h.hub.Active(),
		QueueSize:   h.hub.QueueSize(),
		Draining:    h.hub.Draining(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// --- helpers ----------------------------------------------------------------

func (h *Handler) rooms() []RoomResponse {
	infos := h.reg.Rooms()
	out := make([]RoomResponse, 0, len(infos))
	for _, ri := range infos {
		out = append(out, RoomResponse{ID: ri.ID, Members: ri.Members})
	}
	return out
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
