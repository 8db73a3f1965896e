// Package protocol defines the newline-delimited wire vocabulary of the
// chat server and the parser that turns inbound lines into a closed set
// of command kinds. Every reply a client may see is built here so the
// tokens stay in one place.
package protocol

import (
	"errors"
	"regexp"
	"strings"
)

// Presence status values. Anything else normalizes to online.
const (
	StatusOnline = "online"
	StatusAway   = "away"
	StatusBusy   = "busy"
)

// NormalizeStatus maps arbitrary input onto a valid presence status.
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case StatusOnline, StatusAway, StatusBusy:
		return s
	}
	return StatusOnline
}

// CommandKind identifies a post-authentication command.
type CommandKind int

const (
	CmdJoin CommandKind = iota
	CmdLeave
	CmdRoomMsg
	CmdDM
	CmdFriends
	CmdFriendReq
	CmdFriendRequests
	CmdFriendAccept
	CmdFriendDecline
	CmdFriendRemove
	CmdOnline
	CmdStatus
	CmdStatuses
	CmdRoomInvite
	CmdRoomInviteAccept
	CmdRoomInviteDecline
	CmdDMHistory
	CmdRoomHistory
	// CmdFreeText is the fallback for unrecognized verbs: the whole
	// line is treated as lobby chatter.
	CmdFreeText
)

// Command is a parsed inbound line.
type Command struct {
	Kind CommandKind
	Arg  string // first argument: room, user or status
	Body string // trailing field: message body or second argument
	Raw  string // trimmed original line, used by the free-text fallback
}

// ErrEmptyLine is returned for blank input, which is silently ignored.
var ErrEmptyLine = errors.New("empty line")

type verbSpec struct {
	kind     CommandKind
	minParts int
	errText  string // ERR payload when too few arguments arrive
}

var verbs = map[string]verbSpec{
	"JOIN":                {CmdJoin, 2, "Joining room"},
	"LEAVE":               {CmdLeave, 2, "Leaving room"},
	"ROOMMSG":             {CmdRoomMsg, 3, "Sending room msg"},
	"DM":                  {CmdDM, 3, "DMing"},
	"FRIENDS":             {CmdFriends, 1, ""},
	"FRIEND_REQ":          {CmdFriendReq, 2, "friend request"},
	"FRIEND_REQUEST":      {CmdFriendRequests, 1, ""},
	"FRIEND_ACCEPT":       {CmdFriendAccept, 2, "accept request"},
	"FRIEND_DECLINE":      {CmdFriendDecline, 2, "decline request"},
	"FRIEND_REMOVE":       {CmdFriendRemove, 2, "removing user"},
	"ONLINE":              {CmdOnline, 1, ""},
	"STATUS":              {CmdStatus, 2, "Usage: STATUS <online|away|busy>"},
	"STATUSES":            {CmdStatuses, 1, ""},
	"ROOM_INVITE":         {CmdRoomInvite, 3, "ROOM_INVITE"},
	"ROOM_INVITE_ACCEPT":  {CmdRoomInviteAccept, 2, "ROOM_INVITE_ACCEPT"},
	"ROOM_INVITE_DECLINE": {CmdRoomInviteDecline, 2, "ROOM_INVITE_DECLINE"},
	"DM_HISTORY":          {CmdDMHistory, 2, "DM_HISTORY"},
	"ROOM_HISTORY":        {CmdRoomHistory, 2, "ROOM_HISTORY"},
}

// ParseCommand parses one post-authentication line. The verb is
// case-insensitive; at most three whitespace-separated fields are
// produced so message bodies survive as a single field. A recognized
// verb with too few arguments yields an error whose text is the ERR
// payload to send back. Unrecognized verbs come back as CmdFreeText.
var fieldSplit = regexp.MustCompile(`\s+`)

func ParseCommand(line string) (Command, error) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return Command{}, ErrEmptyLine
	}

	// at most three fields; the third keeps the remainder unsplit
	parts := fieldSplit.Split(raw, 3)

	spec, ok := verbs[strings.ToUpper(parts[0])]
	if !ok {
		return Command{Kind: CmdFreeText, Raw: raw}, nil
	}
	if len(parts) < spec.minParts {
		return Command{}, errors.New(spec.errText)
	}

	cmd := Command{Kind: spec.kind, Raw: raw}
	if spec.minParts >= 2 {
		cmd.Arg = parts[1]
	}
	if spec.minParts >= 3 {
		cmd.Body = parts[2]
	}
	return cmd, nil
}

// AuthRequest is a parsed REGISTER or LOGIN line.
type AuthRequest struct {
	Register bool
	Username string
	Password string
}

// Authentication parse errors. The session maps these to the
// re-prompting ERR lines; neither closes the connection.
var (
	ErrAuthFormat      = errors.New("invalid auth line format")
	ErrAuthUnknownVerb = errors.New("unknown auth verb")
)

// ParseAuth parses one authentication-phase line. The line must be
// exactly three whitespace-separated tokens.
func ParseAuth(line string) (AuthRequest, error) {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) != 3 {
		return AuthRequest{}, ErrAuthFormat
	}

	switch strings.ToUpper(fields[0]) {
	case "REGISTER":
		return AuthRequest{Register: true, Username: fields[1], Password: fields[2]}, nil
	case "LOGIN":
		return AuthRequest{Register: false, Username: fields[1], Password: fields[2]}, nil
	}
	return AuthRequest{}, ErrAuthUnknownVerb
}
