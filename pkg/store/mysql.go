package store

import (
	"database/sql"
	"strings"
	"sync"

	"gochatd/pkg/chaterr"
	"gochatd/pkg/logger"

	_ "github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
)

// MySQLStore implements Store using a MySQL backend
type MySQLStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewMySQLStore creates a new MySQL-backed store. dsn is a
// go-sql-driver DSN, e.g. user:pass@tcp(host:3306)/chat
func NewMySQLStore(dsn string) (Store, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	s := &MySQLStore{db: db}
	if err := s.initDB(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initDB initializes the database schema. MySQL rejects multi-statement
// Exec by default, so each table is created separately.
func (s *MySQLStore) initDB() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			username VARCHAR(190) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS friendships (
			user_id BIGINT NOT NULL,
			friend_id BIGINT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(user_id, friend_id),
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(friend_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS friend_requests (
			from_id BIGINT NOT NULL,
			to_id BIGINT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(from_id, to_id),
			FOREIGN KEY(from_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(to_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			name VARCHAR(190) UNIQUE NOT NULL,
			owner_id BIGINT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(owner_id) REFERENCES users(id) ON DELETE SET NULL
		)`,
		`CREATE TABLE IF NOT EXISTS room_members (
			room_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(room_id, user_id),
			FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS room_invites (
			room_id BIGINT NOT NULL,
			from_id BIGINT NOT NULL,
			to_id BIGINT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY(room_id, to_id),
			FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE,
			FOREIGN KEY(from_id) REFERENCES users(id) ON DELETE CASCADE,
			FOREIGN KEY(to_id) REFERENCES users(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			kind VARCHAR(8) NOT NULL,
			room_id BIGINT,
			from_id BIGINT,
			to_id BIGINT,
			body TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(room_id) REFERENCES rooms(id) ON DELETE CASCADE,
			FOREIGN KEY(from_id) REFERENCES users(id) ON DELETE SET NULL,
			FOREIGN KEY(to_id) REFERENCES users(id) ON DELETE SET NULL
		)`,
		`CREATE TABLE IF NOT EXISTS activity_log (
			id BIGINT PRIMARY KEY AUTO_INCREMENT,
			user_id BIGINT,
			event VARCHAR(64) NOT NULL,
			details TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE SET NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySQLStore) userID(username string) (int64, error) {
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

func (s *MySQLStore) roomID(room string) (int64, error) {
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

func (s *MySQLStore) RegisterUser(username, password string) RegisterResult {
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

func (s *MySQLStore) VerifyLogin(username, password string) LoginResult {
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

func (s *MySQLStore) GetFriends(user string) ([]string, error) {
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

func (s *MySQLStore) areFriends(a, b int64) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM friendships WHERE user_id = ? AND friend_id = ?", a, b).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *MySQLStore) requestExists(from, to int64) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM friend_requests WHERE from_id = ? AND to_id = ?", from, to).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

func (s *MySQLStore) SendFriendRequest(from, to string) error {
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

	_, err = s.db.Exec("INSERT IGNORE INTO friend_requests(from_id, to_id) VALUES(?, ?)", fromID, toID)
	return err
}

func (s *MySQLStore) GetIncomingRequests(user string) ([]string, error) {
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

func (s *MySQLStore) AcceptFriendRequest(to, from string) error {
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
		if _, err := tx.Exec("INSERT IGNORE INTO friendships(user_id, friend_id) VALUES(?, ?)", pair[0], pair[1]); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *MySQLStore) DeclineFriendRequest(to, from string) error {
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

func (s *MySQLStore) RemoveFriend(user, friend string) error {
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

func (s *MySQLStore) RoomExists(room string) (bool, error) {
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

func (s *MySQLStore) EnsureRoom(room, owner string) error {
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

	_, err = s.db.Exec("INSERT IGNORE INTO room_members(room_id, user_id) VALUES(?, ?)", id, ownerID)
	return err
}

func (s *MySQLStore) IsRoomMember(room, user string) (bool, error) {
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

func (s *MySQLStore) AddRoomMember(room, user string) error {
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
	_, err = s.db.Exec("INSERT IGNORE INTO room_members(room_id, user_id) VALUES(?, ?)", roomID, userID)
	return err
}

func (s *MySQLStore) RemoveRoomMember(room, user string) error {
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

func (s *MySQLStore) RoomInviteExists(room, user string) (bool, error) {
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

func (s *MySQLStore) CreateRoomInvite(room, from, to string) error {
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

	res, err := s.db.Exec("INSERT IGNORE INTO room_invites(room_id, from_id, to_id) VALUES(?, ?, ?)", roomID, fromID, toID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chaterr.ErrDuplicateInvite
	}
	return nil
}

func (s *MySQLStore) DeleteRoomInvite(room, user string) error {
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

func (s *MySQLStore) SaveDirectMessage(from, to, body string) error {
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

func (s *MySQLStore) SaveRoomMessage(from, room, body string) error {
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

func (s *MySQLStore) DirectMessageHistory(userA, userB string, limit int) ([]Message, error) {
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

func (s *MySQLStore) RoomMessageHistory(room string, limit int) ([]Message, error) {
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

func (s *MySQLStore) LogActivity(user, event, details string) {
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

func (s *MySQLStore) RecentActivity(limit int) ([]ActivityEntry, error) {
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

func (s *MySQLStore) Close() error {
	return s.db.Close()
}
