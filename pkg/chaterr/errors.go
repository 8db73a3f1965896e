// Package chaterr defines the sentinel errors shared by the store,
// the in-memory registries, and the session layer. The session maps
// them onto protocol-level ERR lines; nothing here carries wire text.
package chaterr

import "errors"

// Friendship errors
var (
	// ErrSelfRequest is returned when a user targets themselves
	ErrSelfRequest = errors.New("cannot friend yourself")

	// ErrAlreadyFriends is returned when a friendship edge already exists
	ErrAlreadyFriends = errors.New("already friends")

	// ErrDuplicateRequest is returned when a request exists in either direction
	ErrDuplicateRequest = errors.New("friend request already pending")

	// ErrNoSuchRequest is returned when no pending request matches
	ErrNoSuchRequest = errors.New("no such friend request")
)

// Room errors
var (
	// ErrRoomNotFound is returned when a room name resolves to nothing durable
	ErrRoomNotFound = errors.New("room not found")

	// ErrNoInvite is returned when no pending invite matches
	ErrNoInvite = errors.New("no pending invite")

	// ErrDuplicateInvite is returned when an invite for the pair already exists
	ErrDuplicateInvite = errors.New("invite already exists")
)

// Lookup errors
var (
	// ErrUserNotFound is returned when a username is unknown to the store
	ErrUserNotFound = errors.New("user not found")
)
