package store

import "strings"

// RegisterResult is the outcome of a registration attempt
type RegisterResult int

const (
	RegisterOK RegisterResult = iota
	RegisterUsernameTaken
	RegisterInvalidPassword
	RegisterInvalidUsername
	RegisterFailed
)

// LoginResult is the outcome of a credential check
type LoginResult int

const (
	LoginOK LoginResult = iota
	LoginNoSuchUser
	LoginWrongPassword
	LoginFailed
)

// Message is one stored chat message, DM or room
type Message struct {
	From   string
	Body   string
	SentAt string
}

// ActivityEntry is one activity-log row
type ActivityEntry struct {
	Username  string
	Event     string
	Details   string
	CreatedAt string
}

// MaxHistoryLimit caps any history query regardless of what was asked for
const MaxHistoryLimit = 200

// ClampHistoryLimit normalizes a requested history size into [1, MaxHistoryLimit]
func ClampHistoryLimit(limit int) int {
	if limit < 1 {
		return 1
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

// ValidPassword enforces the credential policy: at least six characters,
// no embedded whitespace
func ValidPassword(password string) bool {
	if len(password) < 6 {
		return false
	}
	return !strings.Contains(password, " ")
}

// Store defines the interface for durable chat state. All operations key
// on usernames and room names; numeric row IDs stay internal to each
// backend. Implementations are safe for concurrent use.
type Store interface {
	// Users
	RegisterUser(username, password string) RegisterResult
	VerifyLogin(username, password string) LoginResult

	// Friendships
	GetFriends(user string) ([]string, error)
	SendFriendRequest(from, to string) error
	GetIncomingRequests(user string) ([]string, error)
	// AcceptFriendRequest deletes the pending request and inserts both
	// friendship edges in a single transaction.
	AcceptFriendRequest(to, from string) error
	DeclineFriendRequest(to, from string) error
	RemoveFriend(user, friend string) error

	// Rooms and durable membership
	RoomExists(room string) (bool, error)
	// EnsureRoom creates the room with the given owner when absent and
	// grants the owner durable membership.
	EnsureRoom(room, owner string) error
	IsRoomMember(room, user string) (bool, error)
	AddRoomMember(room, user string) error
	RemoveRoomMember(room, user string) error

	// Room invites
	RoomInviteExists(room, user string) (bool, error)
	CreateRoomInvite(room, from, to string) error
	// DeleteRoomInvite consumes a pending invite, returning ErrNoInvite
	// when none exists for the pair.
	DeleteRoomInvite(room, user string) error

	// Messages
	SaveDirectMessage(from, to, body string) error
	SaveRoomMessage(from, room, body string) error
	DirectMessageHistory(userA, userB string, limit int) ([]Message, error)
	RoomMessageHistory(room string, limit int) ([]Message, error)

	// Activity log. LogActivity is best-effort: failures are logged and
	// never propagated to the caller.
	LogActivity(user, event, details string)
	RecentActivity(limit int) ([]ActivityEntry, error)

	// Lifecycle
	Close() error
}
