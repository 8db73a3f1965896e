package protocol

import "strings"

// Fixed machine-readable outcome tokens. Clients match these verbatim.
const (
	RegisterSuccessful = "REGISTER SUCCESSFUL"
	LoginSuccessful    = "LOGIN SUCCESSFUL"

	ErrRegisterUsernameTaken = "ERR REGISTER_USERNAME_TAKEN"
	ErrRegisterBadPassword   = "ERR REGISTER_BAD_PASSWORD"
	ErrRegisterBadUsername   = "ERR REGISTER_BAD_USERNAME"
	ErrRegisterFailed        = "ERR REGISTER FAILED"

	ErrLoginNoSuchUser    = "ERR LOGIN_NO_SUCH_USER"
	ErrLoginWrongPassword = "ERR LOGIN_WRONG_PASSWORD"
	ErrLoginFailed        = "ERR LOGIN FAILED"

	ErrAlreadyLoggedIn = "ERR Already logged in elsewhere."
	ErrUnknownCommand  = "ERR UNKNOWN COMMAND"
	ErrAuthBadFormat   = "ERR Invalid Format. Click REGISTER or LOGIN after filling out username and password."
)

// Sys builds a system notice line.
func Sys(msg string) string { return "SYS " + msg }

// Err builds a recoverable error line.
func Err(msg string) string { return "ERR " + msg }

// Joined confirms a completed room join.
func Joined(room string) string { return "JOINED " + room }

// OnlineLine carries the sorted online-user list.
func OnlineLine(users []string) string {
	return "ONLINE " + strings.Join(users, ",")
}

// StatusesLine carries the sorted user:status pairs.
func StatusesLine(pairs []string) string {
	return "STATUSES " + strings.Join(pairs, ",")
}

// FriendsLine carries a sorted friend list.
func FriendsLine(friends []string) string {
	return "FRIENDS " + strings.Join(friends, ",")
}

// FriendReqsLine carries the pending incoming friend requests.
func FriendReqsLine(from []string) string {
	return "FRIENDREQS " + strings.Join(from, ",")
}

// FriendReqFrom notifies a live target of a new friend request.
func FriendReqFrom(sender string) string { return "FRIENDREQFROM " + sender }

// RoomFrom carries a room message to subscribers.
func RoomFrom(room, sender, body string) string {
	return "ROOMFROM " + room + " " + sender + " " + body
}

// DMFrom carries a direct message to its live recipient.
func DMFrom(sender, body string) string {
	return "DMFROM " + sender + " " + body
}

// RoomInviteFrom notifies a live invitee of a pending room invite.
func RoomInviteFrom(room, sender string) string {
	return "ROOMINVITE " + room + " " + sender
}

// DMHistoryLine carries one line of direct-message history.
func DMHistoryLine(peer, from, body string) string {
	return "DMHISTORYLINE " + peer + " " + from + " " + body
}

// DMHistoryDone marks the end of a direct-message history reply.
func DMHistoryDone(peer string) string { return "DMHISTORYDONE " + peer }

// RoomHistoryLine carries one line of room history.
func RoomHistoryLine(room, from, body string) string {
	return "ROOMHISTORYLINE " + room + " " + from + " " + body
}

// RoomHistoryDone marks the end of a room history reply.
func RoomHistoryDone(room string) string { return "ROOMHISTORYDONE " + room }
