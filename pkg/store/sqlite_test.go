package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gochatd/pkg/chaterr"
)

func newTestSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chat_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteRegisterAndLogin(t *testing.T) {
	s := newTestSQLiteStore(t)

	require.Equal(t, RegisterOK, s.RegisterUser("alice", "secret1"))
	assert.Equal(t, RegisterUsernameTaken, s.RegisterUser("alice", "other12"))
	assert.Equal(t, RegisterInvalidPassword, s.RegisterUser("bob", "short"))

	assert.Equal(t, LoginOK, s.VerifyLogin("alice", "secret1"))
	assert.Equal(t, LoginWrongPassword, s.VerifyLogin("alice", "wrong12"))
	assert.Equal(t, LoginNoSuchUser, s.VerifyLogin("nobody", "secret1"))
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat_test.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.Equal(t, RegisterOK, s.RegisterUser("alice", "secret1"))
	require.NoError(t, s.EnsureRoom("gaming", "alice"))
	require.NoError(t, s.SaveRoomMessage("alice", "gaming", "still here"))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, LoginOK, s.VerifyLogin("alice", "secret1"))
	member, err := s.IsRoomMember("gaming", "alice")
	require.NoError(t, err)
	assert.True(t, member)

	msgs, err := s.RoomMessageHistory("gaming", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "still here", msgs[0].Body)
	assert.Equal(t, "alice", msgs[0].From)
}

func TestSQLiteFriendFlow(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.Equal(t, RegisterOK, s.RegisterUser("alice", "secret1"))
	require.Equal(t, RegisterOK, s.RegisterUser("bob", "secret1"))

	assert.ErrorIs(t, s.SendFriendRequest("alice", "alice"), chaterr.ErrSelfRequest)
	assert.ErrorIs(t, s.SendFriendRequest("alice", "nobody"), chaterr.ErrUserNotFound)

	require.NoError(t, s.SendFriendRequest("alice", "bob"))
	assert.ErrorIs(t, s.SendFriendRequest("alice", "bob"), chaterr.ErrDuplicateRequest)
	assert.ErrorIs(t, s.SendFriendRequest("bob", "alice"), chaterr.ErrDuplicateRequest)

	incoming, err := s.GetIncomingRequests("bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, incoming)

	require.NoError(t, s.AcceptFriendRequest("bob", "alice"))

	incoming, err = s.GetIncomingRequests("bob")
	require.NoError(t, err)
	assert.Empty(t, incoming)

	for _, u := range []string{"alice", "bob"} {
		friends, err := s.GetFriends(u)
		require.NoError(t, err)
		assert.Len(t, friends, 1)
	}

	assert.ErrorIs(t, s.AcceptFriendRequest("bob", "alice"), chaterr.ErrNoSuchRequest)

	require.NoError(t, s.RemoveFriend("alice", "bob"))
	friends, err := s.GetFriends("bob")
	require.NoError(t, err)
	assert.Empty(t, friends)
}

func TestSQLiteRoomInvites(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.Equal(t, RegisterOK, s.RegisterUser("alice", "secret1"))
	require.Equal(t, RegisterOK, s.RegisterUser("bob", "secret1"))
	require.NoError(t, s.EnsureRoom("gaming", "alice"))

	require.NoError(t, s.CreateRoomInvite("gaming", "alice", "bob"))
	assert.ErrorIs(t, s.CreateRoomInvite("gaming", "alice", "bob"), chaterr.ErrDuplicateInvite)

	ok, err := s.RoomInviteExists("gaming", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.DeleteRoomInvite("gaming", "bob"))
	ok, err = s.RoomInviteExists("gaming", "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, s.DeleteRoomInvite("gaming", "bob"), chaterr.ErrNoInvite)
}

func TestSQLiteDirectMessageHistoryOrder(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.Equal(t, RegisterOK, s.RegisterUser("alice", "secret1"))
	require.Equal(t, RegisterOK, s.RegisterUser("bob", "secret1"))

	for _, body := range []string{"one", "two", "three"} {
		require.NoError(t, s.SaveDirectMessage("alice", "bob", body))
	}
	require.NoError(t, s.SaveDirectMessage("bob", "alice", "four"))

	msgs, err := s.DirectMessageHistory("alice", "bob", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "one", msgs[0].Body)
	assert.Equal(t, "four", msgs[3].Body)
	assert.Equal(t, "bob", msgs[3].From)

	// limit keeps the newest while staying oldest-first
	msgs, err = s.DirectMessageHistory("bob", "alice", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "three", msgs[0].Body)
	assert.Equal(t, "four", msgs[1].Body)
}

func TestSQLiteActivityLog(t *testing.T) {
	s := newTestSQLiteStore(t)
	require.Equal(t, RegisterOK, s.RegisterUser("alice", "secret1"))

	s.LogActivity("alice", "LOGIN", "Login successful")
	s.LogActivity("alice", "JOIN_ROOM", "room=lobby")

	entries, err := s.RecentActivity(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "JOIN_ROOM", entries[0].Event)
	assert.Equal(t, "alice", entries[0].Username)
}
