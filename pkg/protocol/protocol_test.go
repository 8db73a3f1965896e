package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommandVerbs(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind CommandKind
		arg  string
		body string
	}{
		{"join", "JOIN gaming", CmdJoin, "gaming", ""},
		{"join lowercase verb", "join gaming", CmdJoin, "gaming", ""},
		{"leave", "LEAVE gaming", CmdLeave, "gaming", ""},
		{"room message", "ROOMMSG gaming hello there everyone", CmdRoomMsg, "gaming", "hello there everyone"},
		{"dm", "DM bob hey, lunch?", CmdDM, "bob", "hey, lunch?"},
		{"friends", "FRIENDS", CmdFriends, "", ""},
		{"friend request", "FRIEND_REQ bob", CmdFriendReq, "bob", ""},
		{"pending requests", "FRIEND_REQUEST", CmdFriendRequests, "", ""},
		{"accept", "FRIEND_ACCEPT bob", CmdFriendAccept, "bob", ""},
		{"decline", "FRIEND_DECLINE bob", CmdFriendDecline, "bob", ""},
		{"remove", "FRIEND_REMOVE bob", CmdFriendRemove, "bob", ""},
		{"online", "ONLINE", CmdOnline, "", ""},
		{"status", "STATUS away", CmdStatus, "away", ""},
		{"statuses", "STATUSES", CmdStatuses, "", ""},
		{"room invite", "ROOM_INVITE gaming bob", CmdRoomInvite, "gaming", "bob"},
		{"invite accept", "ROOM_INVITE_ACCEPT gaming", CmdRoomInviteAccept, "gaming", ""},
		{"invite decline", "ROOM_INVITE_DECLINE gaming", CmdRoomInviteDecline, "gaming", ""},
		{"dm history", "DM_HISTORY bob", CmdDMHistory, "bob", ""},
		{"room history", "ROOM_HISTORY gaming", CmdRoomHistory, "gaming", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, cmd.Kind)
			assert.Equal(t, tt.arg, cmd.Arg)
			assert.Equal(t, tt.body, cmd.Body)
		})
	}
}

func TestParseCommandWhitespaceRuns(t *testing.T) {
	// runs of whitespace separate fields; the body keeps its own spacing
	cmd, err := ParseCommand("  ROOMMSG   gaming   hello   world  ")
	require.NoError(t, err)
	assert.Equal(t, CmdRoomMsg, cmd.Kind)
	assert.Equal(t, "gaming", cmd.Arg)
	assert.Equal(t, "hello   world", cmd.Body)
}

func TestParseCommandFreeTextFallback(t *testing.T) {
	cmd, err := ParseCommand("good morning everyone")
	require.NoError(t, err)
	assert.Equal(t, CmdFreeText, cmd.Kind)
	assert.Equal(t, "good morning everyone", cmd.Raw)
}

func TestParseCommandEmptyLine(t *testing.T) {
	_, err := ParseCommand("   ")
	assert.ErrorIs(t, err, ErrEmptyLine)
}

func TestParseCommandMissingArguments(t *testing.T) {
	tests := []struct {
		line    string
		errText string
	}{
		{"JOIN", "Joining room"},
		{"LEAVE", "Leaving room"},
		{"ROOMMSG gaming", "Sending room msg"},
		{"DM bob", "DMing"},
		{"FRIEND_REQ", "friend request"},
		{"STATUS", "Usage: STATUS <online|away|busy>"},
		{"ROOM_INVITE gaming", "ROOM_INVITE"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := ParseCommand(tt.line)
			require.Error(t, err)
			assert.Equal(t, tt.errText, err.Error())
		})
	}
}

func TestParseAuth(t *testing.T) {
	req, err := ParseAuth("REGISTER alice secret1")
	require.NoError(t, err)
	assert.True(t, req.Register)
	assert.Equal(t, "alice", req.Username)
	assert.Equal(t, "secret1", req.Password)

	req, err = ParseAuth("login bob hunter22")
	require.NoError(t, err)
	assert.False(t, req.Register)
	assert.Equal(t, "bob", req.Username)

	_, err = ParseAuth("LOGIN bob")
	assert.ErrorIs(t, err, ErrAuthFormat)

	_, err = ParseAuth("LOGIN bob pass extra")
	assert.ErrorIs(t, err, ErrAuthFormat)

	_, err = ParseAuth("HELLO bob hunter22")
	assert.ErrorIs(t, err, ErrAuthUnknownVerb)
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, StatusAway, NormalizeStatus("AWAY"))
	assert.Equal(t, StatusBusy, NormalizeStatus(" busy "))
	assert.Equal(t, StatusOnline, NormalizeStatus("asleep"))
	assert.Equal(t, StatusOnline, NormalizeStatus(""))
}

func TestLineBuilders(t *testing.T) {
	assert.Equal(t, "SYS Welcome alice", Sys("Welcome alice"))
	assert.Equal(t, "ERR Joining room", Err("Joining room"))
	assert.Equal(t, "JOINED lobby", Joined("lobby"))
	assert.Equal(t, "ONLINE alice,bob", OnlineLine([]string{"alice", "bob"}))
	assert.Equal(t, "STATUSES alice:online,bob:away", StatusesLine([]string{"alice:online", "bob:away"}))
	assert.Equal(t, "FRIENDS ", FriendsLine(nil))
	assert.Equal(t, "ROOMFROM lobby alice hi all", RoomFrom("lobby", "alice", "hi all"))
	assert.Equal(t, "DMFROM alice hey", DMFrom("alice", "hey"))
	assert.Equal(t, "ROOMINVITE gaming alice", RoomInviteFrom("gaming", "alice"))
	assert.Equal(t, "DMHISTORYDONE bob", DMHistoryDone("bob"))
	assert.Equal(t, "ROOMHISTORYLINE gaming bob gg", RoomHistoryLine("gaming", "bob", "gg"))
}
