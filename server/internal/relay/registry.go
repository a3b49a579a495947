package relay

import (
	"log/slog"
	"sort"
	"sync"
)

// RoomInfo is a point-in-time view of one room.
type RoomInfo struct {
	ID      string
	Members int
}

// Registry maps room IDs to rooms. All membership changes go through Join
// and Leave, which share one mutex so that create-if-absent and
// remove-if-empty are atomic with respect to each other.
type Registry struct {
	obs Observer

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry. A nil obs is replaced by
// NopObserver.
func NewRegistry(obs Observer) *Registry {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Registry{
		obs:   obs,
		rooms: make(map[string]*Room),
	}
}

// Join adds s to the room roomID, creating the room if it does not exist,
// and returns the room.
func (g *Registry) Join(roomID string, s *Session) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[roomID]
	if !ok {
		rm = newRoom(roomID, g.obs)
		g.rooms[roomID] = rm
		g.obs.RoomCreated(roomID)
		slog.Debug("relay: room created", "room", roomID)
	}
	rm.add(s)
	return rm
}

// Leave removes s from roomID. The room is deleted when s was its last
// member. Leaving an unknown room, or a room s is not in, is a no-op.
func (g *Registry) Leave(roomID string, s *Session) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm, ok := g.rooms[roomID]
	if !ok || !rm.remove(s) {
		return
	}
	if rm.Len() == 0 {
		delete(g.rooms, roomID)
		g.obs.RoomDestroyed(roomID)
		slog.Debug("relay: room destroyed", "room", roomID)
	}
}

// Room returns the room for roomID if it currently exists.
func (g *Registry) Room(roomID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rm, ok := g.rooms[roomID]
	return rm, ok
}

// RoomCount returns the number of live rooms.
func (g *Registry) RoomCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// MemberCount returns the number of members in roomID, 0 if it does not
// exist.
func (g *Registry) MemberCount(roomID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rm, ok := g.rooms[roomID]; ok {
		return rm.Len()
	}
	return 0
}

// SessionCount returns the number of members across all rooms.
func (g *Registry) SessionCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, rm := range g.rooms {
		n += rm.Len()
	}
	return n
}

// Rooms returns every live room sorted by ID.
func (g *Registry) Rooms() []RoomInfo {
	g.mu.Lock()
	out := make([]RoomInfo, 0, len(g.rooms))
	for id, rm := range g.rooms {
		out = append(out, RoomInfo{ID: id, Members: rm.Len()})
	}
	g.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Deliver broadcasts msg to every local member of roomID, excluding
// msg.From. It returns the number of recipients; an unknown room yields 0.
func (g *Registry) Deliver(roomID string, msg Message) int {
	rm, ok := g.Room(roomID)
	if !ok {
		return 0
	}
	return rm.Broadcast(msg.From, msg)
}

// CloseAll evicts every session with reason. Sessions leave their rooms
// through their own Serve goroutines.
func (g *Registry) CloseAll(reason error) {
	g.mu.Lock()
	var all []*Session
	for _, rm := range g.rooms {
		rm.mu.RLock()
		for _, s := range rm.members {
			all = append(all, s)
		}
		rm.mu.RUnlock()
	}
	g.mu.Unlock()

	for _, s := range all {
		s.Evict(reason)
	}
}
