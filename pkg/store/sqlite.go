package store

import (
	"database/sql"
	"strings"
	"sync"

	"gochatd/pkg/chaterr"
	"gochatd/pkg/logger"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// SQLiteStore implements Store using a SQLite backend
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-backed store
func NewSQLiteStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initDB initializes the database schema
func (s *SQLiteStore) initDB() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS friendships (
		user_id INTEGER NOT NULL,
		friend_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(user_id, friend_id),
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(friend_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS friend_requests (
		from_id INTEGER NOT NULL,
		to_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(from_id, to_id),
		FOREIGN KEY(from_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(to_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		owner_id INTEGER,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(owner_id) REFERENCES users(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS room_members (
		room_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(room_id, user_id),
		FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS room_invites (
		room_id INTEGER NOT NULL,
		from_id INTEGER NOT NULL,
		to_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(room_id, to_id),
		FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE,
		FOREIGN KEY(from_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY(to_id) REFERENCES users(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		room_id INTEGER,
		from_id INTEGER,
		to_id INTEGER,
		body TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE,
		FOREIGN KEY(from_id) REFERENCES users(id) ON DELETE SET NULL,
		FOREIGN KEY(to_id) REFERENCES users(id) ON DELETE SET NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_dm ON messages(kind, from_id, to_id);
	CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(kind, room_id);

	CREATE TABLE IF NOT EXISTS activity_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER,
		event TEXT NOT NULL,
		details TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE SET NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// userID resolves a username to its row id. Callers hold the lock.
func (s *SQLiteStore) userID(username string) (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM users WHERE username = ?", username).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, chaterr.ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// roomID resolves a room name to its row id. Callers hold the lock.
func (s *SQLiteStore) roomID(room string) (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM rooms WHERE name = ?", room).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, chaterr.ErrRoomNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// RegisterUser creates a user after trimming the username and enforcing
// the password policy
func (s *SQLiteStore) RegisterUser(username, password string) RegisterResult {
	username = strings.TrimSpace(username)
	if username == "" {
		return RegisterInvalidUsername
	}
	if !ValidPassword(password) {
		return RegisterInvalidPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return RegisterFailed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.userID(username); err == nil {
		return RegisterUsernameTaken
	}

	_, err = s.db.Exec("INSERT INTO users(username, password_hash) VALUES(?, ?)", username, string(hash))
	if err != nil {
		logger.Get().ErrorWithErr("register insert failed", err, "user", username)
		return RegisterFailed
	}
	return RegisterOK
}

// VerifyLogin checks a credential against the stored bcrypt hash
func (s *SQLiteStore) VerifyLogin(username, password string) LoginResult {
	username = strings.TrimSpace(username)
	if username == "" {
		return LoginNoSuchUser
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hash string
	err := s.db.QueryRow("SELECT password_hash FROM users WHERE username = ?", username).Scan(&hash)
	if err == sql.ErrNoRows {
		return LoginNoSuchUser
	}
	if err != nil {
		logger.Get().ErrorWithErr("login query failed", err, "user", username)
		return LoginFailed
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return LoginWrongPassword
	}
	return LoginOK
}

// GetFriends returns the user's friends, sorted by username
func (s *SQLiteStore) GetFriends(user string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, err := s.userID(user)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT u.username FROM friendships f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = ? ORDER BY u.username`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		friends = append(friends, name)
	}
	return friends, rows.Err()
}

// areFriends reports whether an edge exists from a to b. Callers hold the lock.
func (s *SQLiteStore) areFriends(a, b int64) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM friendships WHERE user_id = ? AND friend_id = ?", a, b).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// requestExists reports whether a pending request from→to exists. Callers hold the lock.
func (s *SQLiteStore) requestExists(from, to int64) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM friend_requests WHERE from_id = ? AND to_id = ?", from, to).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// SendFriendRequest creates a pending request unless a friendship or a
// request in either direction already exists
func (s *SQLiteStore) SendFriendRequest(from, to string) error {
	if from == to {
		return chaterr.ErrSelfRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fromID, err := s.userID(from)
	if err != nil {
		return err
	}
	toID, err := s.userID(to)
	if err != nil {
		return err
	}

	if friends, err := s.areFriends(fromID, toID); err != nil {
		return err
	} else if friends {
		return chaterr.ErrAlreadyFriends
	}

	for _, pair := range [][2]int64{{fromID, toID}, {toID, fromID}} {
		exists, err := s.requestExists(pair[0], pair[1])
		if err != nil {
			return err
		}
		if exists {
			return chaterr.ErrDuplicateRequest
		}
	}

	_, err = s.db.Exec("INSERT OR IGNORE INTO friend_requests(from_id, to_id) VALUES(?, ?)", fromID, toID)
	return err
}

// GetIncomingRequests returns the usernames with pending requests to the user
func (s *SQLiteStore) GetIncomingRequests(user string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, err := s.userID(user)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT u.username FROM friend_requests r
		JOIN users u ON u.id = r.from_id
		WHERE r.to_id = ? ORDER BY u.username`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incoming []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		incoming = append(incoming, name)
	}
	return incoming, rows.Err()
}

// AcceptFriendRequest resolves a pending request atomically: the request
// row is deleted and both friendship edges inserted in one transaction
func (s *SQLiteStore) AcceptFriendRequest(to, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	toID, err := s.userID(to)
	if err != nil {
		return err
	}
	fromID, err := s.userID(from)
	if err != nil {
		return err
	}

	exists, err := s.requestExists(fromID, toID)
	if err != nil {
		return err
	}
	if !exists {
		return chaterr.ErrNoSuchRequest
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM friend_requests WHERE from_id = ? AND to_id = ?", fromID, toID); err != nil {
		tx.Rollback()
		return err
	}
	for _, pair := range [][2]int64{{toID, fromID}, {fromID, toID}} {
		if _, err := tx.Exec("INSERT OR IGNORE INTO friendships(user_id, friend_id) VALUES(?, ?)", pair[0], pair[1]); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DeclineFriendRequest deletes a pending request
func (s *SQLiteStore) DeclineFriendRequest(to, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	toID, err := s.userID(to)
	if err != nil {
		return err
	}
	fromID, err := s.userID(from)
	if err != nil {
		return err
	}

	res, err := s.db.Exec("DELETE FROM friend_requests WHERE from_id = ? AND to_id = ?", fromID, toID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chaterr.ErrNoSuchRequest
	}
	return nil
}

// RemoveFriend deletes both friendship edges. Either side may remove the
// relation unilaterally.
func (s *SQLiteStore) RemoveFriend(user, friend string) error {
	if user == friend {
		return chaterr.ErrSelfRequest
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userID, err := s.userID(user)
	if err != nil {
		return err
	}
	friendID, err := s.userID(friend)
	if err != nil {
		return err
	}

	for _, pair := range [][2]int64{{userID, friendID}, {friendID, userID}} {
		if _, err := s.db.Exec("DELETE FROM friendships WHERE user_id = ? AND friend_id = ?", pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

// RoomExists reports whether a room name is durably known
func (s *SQLiteStore) RoomExists(room string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.roomID(room)
	if err == chaterr.ErrRoomNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// EnsureRoom creates the room with the given owner when absent and adds
// the owner as a durable member
func (s *SQLiteStore) EnsureRoom(room, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ownerID, err := s.userID(owner)
	if err != nil {
		return err
	}

	id, err := s.roomID(room)
	if err == chaterr.ErrRoomNotFound {
		res, insErr := s.db.Exec("INSERT INTO rooms(name, owner_id) VALUES(?, ?)", room, ownerID)
		if insErr != nil {
			return insErr
		}
		id, err = res.LastInsertId()
	}
	if err != nil {
		return err
	}

	_, err = s.db.Exec("INSERT OR IGNORE INTO room_members(room_id, user_id) VALUES(?, ?)", id, ownerID)
	return err
}

// IsRoomMember reports durable membership
func (s *SQLiteStore) IsRoomMember(room, user string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, err := s.roomID(room)
	if err != nil {
		return false, err
	}
	userID, err := s.userID(user)
	if err != nil {
		return false, err
	}

	var one int
	err = s.db.QueryRow("SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?", roomID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// AddRoomMember grants durable membership
func (s *SQLiteStore) AddRoomMember(room, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addMemberLocked(room, user)
}

func (s *SQLiteStore) addMemberLocked(room, user string) error {
	roomID, err := s.roomID(room)
	if err != nil {
		return err
	}
	userID, err := s.userID(user)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("INSERT OR IGNORE INTO room_members(room_id, user_id) VALUES(?, ?)", roomID, userID)
	return err
}

// RemoveRoomMember revokes durable membership
func (s *SQLiteStore) RemoveRoomMember(room, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, err := s.roomID(room)
	if err != nil {
		return err
	}
	userID, err := s.userID(user)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("DELETE FROM room_members WHERE room_id = ? AND user_id = ?", roomID, userID)
	return err
}

// RoomInviteExists reports whether the user has a pending invite to the room
func (s *SQLiteStore) RoomInviteExists(room, user string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, err := s.roomID(room)
	if err != nil {
		return false, err
	}
	userID, err := s.userID(user)
	if err != nil {
		return false, err
	}

	var one int
	err = s.db.QueryRow("SELECT 1 FROM room_invites WHERE room_id = ? AND to_id = ?", roomID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// CreateRoomInvite records a pending invite. At most one invite per
// (room, invitee) pair may exist.
func (s *SQLiteStore) CreateRoomInvite(room, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, err := s.roomID(room)
	if err != nil {
		return err
	}
	fromID, err := s.userID(from)
	if err != nil {
		return err
	}
	toID, err := s.userID(to)
	if err != nil {
		return err
	}

	res, err := s.db.Exec("INSERT OR IGNORE INTO room_invites(room_id, from_id, to_id) VALUES(?, ?, ?)", roomID, fromID, toID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chaterr.ErrDuplicateInvite
	}
	return nil
}

// DeleteRoomInvite consumes a pending invite
func (s *SQLiteStore) DeleteRoomInvite(room, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roomID, err := s.roomID(room)
	if err != nil {
		return err
	}
	userID, err := s.userID(user)
	if err != nil {
		return err
	}
	res, err := s.db.Exec("DELETE FROM room_invites WHERE room_id = ? AND to_id = ?", roomID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chaterr.ErrNoInvite
	}
	return nil
}

// SaveDirectMessage persists a DM
func (s *SQLiteStore) SaveDirectMessage(from, to, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromID, err := s.userID(from)
	if err != nil {
		return err
	}
	toID, err := s.userID(to)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("INSERT INTO messages(kind, from_id, to_id, body) VALUES('DM', ?, ?, ?)", fromID, toID, body)
	return err
}

// SaveRoomMessage persists a room message
func (s *SQLiteStore) SaveRoomMessage(from, room, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fromID, err := s.userID(from)
	if err != nil {
		return err
	}
	roomID, err := s.roomID(room)
	if err != nil {
		return err
	}
	_, err = s.db.Exec("INSERT INTO messages(kind, room_id, from_id, body) VALUES('ROOM', ?, ?, ?)", roomID, fromID, body)
	return err
}

// DirectMessageHistory returns the most recent DMs between two users,
// oldest first
func (s *SQLiteStore) DirectMessageHistory(userA, userB string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idA, err := s.userID(userA)
	if err != nil {
		return nil, err
	}
	idB, err := s.userID(userB)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT u.username, m.body, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.from_id
		WHERE m.kind='DM' AND ((m.from_id=? AND m.to_id=?) OR (m.from_id=? AND m.to_id=?))
		ORDER BY m.id DESC LIMIT ?`,
		idA, idB, idB, idA, ClampHistoryLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessagesOldestFirst(rows)
}

// RoomMessageHistory returns the most recent room messages, oldest first
func (s *SQLiteStore) RoomMessageHistory(room string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, err := s.roomID(room)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT u.username, m.body, m.created_at
		FROM messages m
		JOIN users u ON u.id = m.from_id
		WHERE m.kind='ROOM' AND m.room_id=?
		ORDER BY m.id DESC LIMIT ?`,
		roomID, ClampHistoryLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessagesOldestFirst(rows)
}

// scanMessagesOldestFirst drains a newest-first result set and reverses it
func scanMessagesOldestFirst(rows *sql.Rows) ([]Message, error) {
	var newestFirst []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.From, &m.Body, &m.SentAt); err != nil {
			return nil, err
		}
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		out = append(out, newestFirst[i])
	}
	return out, nil
}

// LogActivity records an activity event. Failures are logged and swallowed
// so a dead log table never aborts the triggering operation.
func (s *SQLiteStore) LogActivity(user, event, details string) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var userID any
	if u := strings.TrimSpace(user); u != "" {
		if id, err := s.userID(u); err == nil {
			userID = id
		}
	}

	_, err := s.db.Exec("INSERT INTO activity_log(user_id, event, details) VALUES(?, ?, ?)", userID, event, details)
	if err != nil {
		logger.Get().Warn("activity log write failed", "event", event, "error", err)
	}
}

// RecentActivity returns the most recent activity entries, newest first
func (s *SQLiteStore) RecentActivity(limit int) ([]ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT COALESCE(u.username, ''), a.event, COALESCE(a.details, ''), a.created_at
		FROM activity_log a
		LEFT JOIN users u ON u.id = a.user_id
		ORDER BY a.id DESC LIMIT ?`, ClampHistoryLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		if err := rows.Scan(&e.Username, &e.Event, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
