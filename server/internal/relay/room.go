package relay

import (
	"errors"
	"log/slog"
	"sync"
)

// Room is a named broadcast domain. Membership is mutated only by the
// Registry; Broadcast may run concurrently with it from any goroutine.
type Room struct {
	id  string
	obs Observer

	mu      sync.RWMutex
	members map[SessionID]*Session
}

func newRoom(id string, obs Observer) *Room {
	return &Room{
		id:      id,
		obs:     obs,
		members: make(map[SessionID]*Session),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Len returns the current number of members.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns the IDs of the current members in no particular order.
func (r *Room) Members() []SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionID, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

func (r *Room) add(s *Session) {
	r.mu.Lock()
	r.members[s.id] = s
	r.mu.Unlock()
}

// remove deletes s and reports whether it was a member. A different session
// registered under the same ID is left alone.
func (r *Room) remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.members[s.id]
	if !ok || cur != s {
		return false
	}
	delete(r.members, s.id)
	return true
}

// Broadcast queues msg on every member except from and returns how many
// sessions accepted it. It holds the room lock only while copying the member
// list; a member whose queue is full is evicted with ErrSlowConsumer.
func (r *Room) Broadcast(from SessionID, msg Message) int {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.members))
	for id, s := range r.members {
		if id != from {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		switch err := s.Enqueue(msg); {
		case err == nil:
			delivered++
		case errors.Is(err, ErrQueueFull):
			slog.Warn("relay: evicting slow consumer", "room", r.id, "session", s.id)
			r.obs.SlowConsumer(r.id)
			s.Evict(ErrSlowConsumer)
		default:
			// Already closed; its own Serve goroutine handles the leave.
		}
	}
	r.obs.MessageRelayed(r.id, delivered, len(msg.Data))
	return delivered
}
