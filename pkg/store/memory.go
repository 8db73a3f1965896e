package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"gochatd/pkg/chaterr"
)

// MemoryStore is an in-memory Store used by tests and by the server's
// own hermetic test harness. It mirrors the SQL backends' semantics,
// including the sentinel errors, but keeps credentials in plain text.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]string              // username -> password
	friends  map[string]map[string]struct{} // user -> friend set
	requests map[string]map[string]struct{} // from -> to set
	rooms    map[string]*memRoom
	messages []memMessage
	activity []ActivityEntry
}

type memRoom struct {
	owner   string
	members map[string]struct{}
	invites map[string]string // invitee -> inviter
}

type memMessage struct {
	dm         bool
	from, to   string // to is the room name for room messages
	body, sent string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]string),
		friends:  make(map[string]map[string]struct{}),
		requests: make(map[string]map[string]struct{}),
		rooms:    make(map[string]*memRoom),
	}
}

func (s *MemoryStore) RegisterUser(username, password string) RegisterResult {
	username = strings.TrimSpace(username)
	if username == "" {
		return RegisterInvalidUsername
	}
	if !ValidPassword(password) {
		return RegisterInvalidPassword
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; ok {
		return RegisterUsernameTaken
	}
	s.users[username] = password
	return RegisterOK
}

func (s *MemoryStore) VerifyLogin(username, password string) LoginResult {
	username = strings.TrimSpace(username)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.users[username]
	if !ok {
		return LoginNoSuchUser
	}
	if stored != password {
		return LoginWrongPassword
	}
	return LoginOK
}

func (s *MemoryStore) requireUser(username string) error {
	if _, ok := s.users[username]; !ok {
		return chaterr.ErrUserNotFound
	}
	return nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *MemoryStore) GetFriends(user string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireUser(user); err != nil {
		return nil, err
	}
	return sortedKeys(s.friends[user]), nil
}

func (s *MemoryStore) SendFriendRequest(from, to string) error {
	if from == to {
		return chaterr.ErrSelfRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUser(from); err != nil {
		return err
	}
	if err := s.requireUser(to); err != nil {
		return err
	}
	if _, ok := s.friends[from][to]; ok {
		return chaterr.ErrAlreadyFriends
	}
	if _, ok := s.requests[from][to]; ok {
		return chaterr.ErrDuplicateRequest
	}
	if _, ok := s.requests[to][from]; ok {
		return chaterr.ErrDuplicateRequest
	}

	if s.requests[from] == nil {
		s.requests[from] = make(map[string]struct{})
	}
	s.requests[from][to] = struct{}{}
	return nil
}

func (s *MemoryStore) GetIncomingRequests(user string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireUser(user); err != nil {
		return nil, err
	}

	var incoming []string
	for from, targets := range s.requests {
		if _, ok := targets[user]; ok {
			incoming = append(incoming, from)
		}
	}
	sort.Strings(incoming)
	return incoming, nil
}

func (s *MemoryStore) AcceptFriendRequest(to, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUser(to); err != nil {
		return err
	}
	if err := s.requireUser(from); err != nil {
		return err
	}
	if _, ok := s.requests[from][to]; !ok {
		return chaterr.ErrNoSuchRequest
	}

	delete(s.requests[from], to)
	if s.friends[to] == nil {
		s.friends[to] = make(map[string]struct{})
	}
	if s.friends[from] == nil {
		s.friends[from] = make(map[string]struct{})
	}
	s.friends[to][from] = struct{}{}
	s.friends[from][to] = struct{}{}
	return nil
}

func (s *MemoryStore) DeclineFriendRequest(to, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUser(to); err != nil {
		return err
	}
	if err := s.requireUser(from); err != nil {
		return err
	}
	if _, ok := s.requests[from][to]; !ok {
		return chaterr.ErrNoSuchRequest
	}
	delete(s.requests[from], to)
	return nil
}

func (s *MemoryStore) RemoveFriend(user, friend string) error {
	if user == friend {
		return chaterr.ErrSelfRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUser(user); err != nil {
		return err
	}
	if err := s.requireUser(friend); err != nil {
		return err
	}
	delete(s.friends[user], friend)
	delete(s.friends[friend], user)
	return nil
}

func (s *MemoryStore) RoomExists(room string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.rooms[room]
	return ok, nil
}

func (s *MemoryStore) EnsureRoom(room, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUser(owner); err != nil {
		return err
	}

	r, ok := s.rooms[room]
	if !ok {
		r = &memRoom{
			owner:   owner,
			members: make(map[string]struct{}),
			invites: make(map[string]string),
		}
		s.rooms[room] = r
	}
	r.members[owner] = struct{}{}
	return nil
}

func (s *MemoryStore) getRoom(room string) (*memRoom, error) {
	r, ok := s.rooms[room]
	if !ok {
		return nil, chaterr.ErrRoomNotFound
	}
	return r, nil
}

func (s *MemoryStore) IsRoomMember(room, user string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.getRoom(room)
	if err != nil {
		return false, err
	}
	if err := s.requireUser(user); err != nil {
		return false, err
	}
	_, ok := r.members[user]
	return ok, nil
}

func (s *MemoryStore) AddRoomMember(room, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRoom(room)
	if err != nil {
		return err
	}
	if err := s.requireUser(user); err != nil {
		return err
	}
	r.members[user] = struct{}{}
	return nil
}

func (s *MemoryStore) RemoveRoomMember(room, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRoom(room)
	if err != nil {
		return err
	}
	if err := s.requireUser(user); err != nil {
		return err
	}
	delete(r.members, user)
	return nil
}

func (s *MemoryStore) RoomInviteExists(room, user string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.getRoom(room)
	if err != nil {
		return false, err
	}
	if err := s.requireUser(user); err != nil {
		return false, err
	}
	_, ok := r.invites[user]
	return ok, nil
}

func (s *MemoryStore) CreateRoomInvite(room, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRoom(room)
	if err != nil {
		return err
	}
	if err := s.requireUser(from); err != nil {
		return err
	}
	if err := s.requireUser(to); err != nil {
		return err
	}
	if _, ok := r.invites[to]; ok {
		return chaterr.ErrDuplicateInvite
	}
	r.invites[to] = from
	return nil
}

func (s *MemoryStore) DeleteRoomInvite(room, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRoom(room)
	if err != nil {
		return err
	}
	if err := s.requireUser(user); err != nil {
		return err
	}
	if _, ok := r.invites[user]; !ok {
		return chaterr.ErrNoInvite
	}
	delete(r.invites, user)
	return nil
}

func (s *MemoryStore) SaveDirectMessage(from, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUser(from); err != nil {
		return err
	}
	if err := s.requireUser(to); err != nil {
		return err
	}
	s.messages = append(s.messages, memMessage{
		dm: true, from: from, to: to, body: body,
		sent: time.Now().Format(time.RFC3339),
	})
	return nil
}

func (s *MemoryStore) SaveRoomMessage(from, room, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUser(from); err != nil {
		return err
	}
	if _, err := s.getRoom(room); err != nil {
		return err
	}
	s.messages = append(s.messages, memMessage{
		dm: false, from: from, to: room, body: body,
		sent: time.Now().Format(time.RFC3339),
	})
	return nil
}

func (s *MemoryStore) DirectMessageHistory(userA, userB string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.requireUser(userA); err != nil {
		return nil, err
	}
	if err := s.requireUser(userB); err != nil {
		return nil, err
	}

	var matched []Message
	for _, m := range s.messages {
		if !m.dm {
			continue
		}
		if (m.from == userA && m.to == userB) || (m.from == userB && m.to == userA) {
			matched = append(matched, Message{From: m.from, Body: m.body, SentAt: m.sent})
		}
	}
	return tailMessages(matched, limit), nil
}

func (s *MemoryStore) RoomMessageHistory(room string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := s.getRoom(room); err != nil {
		return nil, err
	}

	var matched []Message
	for _, m := range s.messages {
		if !m.dm && m.to == room {
			matched = append(matched, Message{From: m.from, Body: m.body, SentAt: m.sent})
		}
	}
	return tailMessages(matched, limit), nil
}

// tailMessages keeps the newest entries while preserving oldest-first order
func tailMessages(msgs []Message, limit int) []Message {
	limit = ClampHistoryLimit(limit)
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs
}

func (s *MemoryStore) LogActivity(user, event, details string) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.activity = append(s.activity, ActivityEntry{
		Username:  strings.TrimSpace(user),
		Event:     event,
		Details:   details,
		CreatedAt: time.Now().Format(time.RFC3339),
	})
}

func (s *MemoryStore) RecentActivity(limit int) ([]ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit = ClampHistoryLimit(limit)
	var out []ActivityEntry
	for i := len(s.activity) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.activity[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
