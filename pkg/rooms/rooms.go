// Package rooms keeps the ephemeral broadcast fan-out sets: which live
// sessions are subscribed to which room right now. Durable membership
// is the store's business; this registry only answers "who hears a
// broadcast to this room at this instant".
package rooms

import "sync"

// Conn is the outbound half of a session as the registry sees it.
type Conn interface {
	Send(line string)
}

// Registry maps room names to the sessions currently subscribed.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{}
}

// NewRegistry creates an empty room registry
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[Conn]struct{})}
}

// Subscribe adds a session to a room's live set
func (r *Registry) Subscribe(room string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[room]
	if !ok {
		set = make(map[Conn]struct{})
		r.rooms[room] = set
	}
	set[c] = struct{}{}
}

// Unsubscribe removes a session from a room's live set, dropping the
// room entry entirely once the set empties. Idempotent.
func (r *Registry) Unsubscribe(room string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.rooms, room)
	}
}

// Broadcast delivers a line to every session subscribed to the room,
// except the excluded one. Silently a no-op when the room has no live
// subscribers. The member set is snapshotted before sending so
// concurrent joins and leaves never race the iteration.
func (r *Registry) Broadcast(room, line string, except Conn) {
	r.mu.RLock()
	set, ok := r.rooms[room]
	if !ok {
		r.mu.RUnlock()
		return
	}
	conns := make([]Conn, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if c != except {
			c.Send(line)
		}
	}
}

// Occupancy returns the live subscriber count per room
func (r *Registry) Occupancy() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int, len(r.rooms))
	for room, set := range r.rooms {
		out[room] = len(set)
	}
	return out
}

// Count returns the number of rooms with at least one live subscriber
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
