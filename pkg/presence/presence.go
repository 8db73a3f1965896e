// Package presence tracks which usernames currently hold a live session
// and what status they advertise. It is the single source of truth for
// "who is reachable right now"; durable state never lives here.
package presence

import (
	"sort"
	"sync"

	"gochatd/pkg/protocol"
)

// Conn is the outbound half of a session as the registry sees it.
type Conn interface {
	Send(line string)
}

// Registry maps online usernames to their session and status. At most
// one session may hold a username at a time. Every mutation pushes a
// refreshed online list and status snapshot to all online sessions.
type Registry struct {
	mu       sync.RWMutex
	online   map[string]Conn
	statuses map[string]string
}

// NewRegistry creates an empty presence registry
func NewRegistry() *Registry {
	return &Registry{
		online:   make(map[string]Conn),
		statuses: make(map[string]string),
	}
}

// Register atomically binds a username to a session. It returns false
// without side effects when the username is already bound.
func (r *Registry) Register(user string, c Conn) bool {
	r.mu.Lock()
	if _, taken := r.online[user]; taken {
		r.mu.Unlock()
		return false
	}
	r.online[user] = c
	r.statuses[user] = protocol.StatusOnline
	r.mu.Unlock()

	r.broadcastSnapshots()
	return true
}

// Unregister removes presence and status entries. Idempotent.
func (r *Registry) Unregister(user string) {
	r.mu.Lock()
	delete(r.online, user)
	delete(r.statuses, user)
	r.mu.Unlock()

	r.broadcastSnapshots()
}

// Get returns the session currently bound to the username
func (r *Registry) Get(user string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.online[user]
	return c, ok
}

// SetStatus updates a user's status, normalizing unknown values to
// online. A no-op when the user is not currently online.
func (r *Registry) SetStatus(user, status string) {
	r.mu.Lock()
	if _, ok := r.online[user]; !ok {
		r.mu.Unlock()
		return
	}
	r.statuses[user] = protocol.NormalizeStatus(status)
	r.mu.Unlock()

	r.BroadcastStatuses()
}

// OnlineSnapshot returns the sorted list of online usernames
func (r *Registry) OnlineSnapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedUsersLocked()
}

func (r *Registry) sortedUsersLocked() []string {
	users := make([]string, 0, len(r.online))
	for u := range r.online {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// StatusSnapshot returns sorted "user:status" pairs for online users
func (r *Registry) StatusSnapshot() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pairs := make([]string, 0, len(r.online))
	for _, u := range r.sortedUsersLocked() {
		status, ok := r.statuses[u]
		if !ok {
			status = protocol.StatusOnline
		}
		pairs = append(pairs, u+":"+status)
	}
	return pairs
}

// Count returns the number of online sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}

// Broadcast sends a line to every online session. Iteration runs over a
// snapshot so concurrent registration changes never race the send loop.
func (r *Registry) Broadcast(line string) {
	r.mu.RLock()
	conns := make([]Conn, 0, len(r.online))
	for _, c := range r.online {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.Send(line)
	}
}

// BroadcastOnlineList pushes the current online list to everyone
func (r *Registry) BroadcastOnlineList() {
	r.Broadcast(protocol.OnlineLine(r.OnlineSnapshot()))
}

// BroadcastStatuses pushes the current status snapshot to everyone
func (r *Registry) BroadcastStatuses() {
	r.Broadcast(protocol.StatusesLine(r.StatusSnapshot()))
}

func (r *Registry) broadcastSnapshots() {
	r.BroadcastOnlineList()
	r.BroadcastStatuses()
}
