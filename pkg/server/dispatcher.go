package server

import (
	"errors"

	"gochatd/pkg/chaterr"
	"gochatd/pkg/protocol"
)

// dispatch parses one line from an active session and routes it. The
// switch is exhaustive over the command kinds; anything the parser
// does not recognize as a verb arrives as free text for the lobby.
func (srv *Server) dispatch(s *Session, raw string) {
	cmd, err := protocol.ParseCommand(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrEmptyLine) {
			return
		}
		s.Send(protocol.Err(err.Error()))
		return
	}

	switch cmd.Kind {
	case protocol.CmdJoin:
		srv.joinRoom(s, cmd.Arg)
	case protocol.CmdLeave:
		srv.leaveRoom(s, cmd.Arg)
	case protocol.CmdRoomMsg:
		srv.roomMessage(s, cmd.Arg, cmd.Body)
	case protocol.CmdDM:
		srv.directMessage(s, cmd.Arg, cmd.Body)
	case protocol.CmdFriends:
		srv.sendFriendList(s)
	case protocol.CmdFriendReq:
		srv.friendRequest(s, cmd.Arg)
	case protocol.CmdFriendRequests:
		srv.sendIncomingRequests(s)
	case protocol.CmdFriendAccept:
		srv.friendAccept(s, cmd.Arg)
	case protocol.CmdFriendDecline:
		srv.friendDecline(s, cmd.Arg)
	case protocol.CmdFriendRemove:
		srv.friendRemove(s, cmd.Arg)
	case protocol.CmdOnline:
		srv.presence.BroadcastOnlineList()
	case protocol.CmdStatus:
		srv.setStatus(s, cmd.Arg)
	case protocol.CmdStatuses:
		srv.presence.BroadcastStatuses()
	case protocol.CmdRoomInvite:
		srv.roomInvite(s, cmd.Arg, cmd.Body)
	case protocol.CmdRoomInviteAccept:
		srv.roomInviteAccept(s, cmd.Arg)
	case protocol.CmdRoomInviteDecline:
		srv.roomInviteDecline(s, cmd.Arg)
	case protocol.CmdDMHistory:
		srv.dmHistory(s, cmd.Arg)
	case protocol.CmdRoomHistory:
		srv.roomHistory(s, cmd.Arg)
	case protocol.CmdFreeText:
		srv.lobbyChat(s, cmd.Raw)
	}
}

// joinRoom implements JOIN and the tail of an accepted invite. A room
// that does not exist yet is created with the joiner as owner. The
// lobby admits anyone; other existing rooms require prior membership
// or a pending invite, which joining consumes.
func (srv *Server) joinRoom(s *Session, room string) bool {
	exists, err := srv.store.RoomExists(room)
	if err != nil {
		s.Send(protocol.Err("Joining room"))
		return false
	}

	if !exists {
		if err := srv.store.EnsureRoom(room, s.username); err != nil {
			s.Send(protocol.Err("Joining room"))
			return false
		}
	} else {
		member, err := srv.store.IsRoomMember(room, s.username)
		if err != nil {
			s.Send(protocol.Err("Joining room"))
			return false
		}
		if !member {
			if room == lobbyRoom {
				if err := srv.store.AddRoomMember(room, s.username); err != nil {
					s.Send(protocol.Err("Joining room"))
					return false
				}
			} else {
				invited, err := srv.store.RoomInviteExists(room, s.username)
				if err != nil {
					s.Send(protocol.Err("Joining room"))
					return false
				}
				if !invited {
					s.Send(protocol.Err("Not a member or not invited to a room " + room))
					return false
				}
				if err := srv.store.DeleteRoomInvite(room, s.username); err != nil {
					s.Send(protocol.Err("Joining room"))
					return false
				}
				if err := srv.store.AddRoomMember(room, s.username); err != nil {
					s.Send(protocol.Err("Joining room"))
					return false
				}
			}
		}
	}

	srv.rooms.Subscribe(room, s)
	s.joined[room] = struct{}{}
	s.Send(protocol.Joined(room))
	s.Send(protocol.Sys("Joined room " + room))
	srv.rooms.Broadcast(room, protocol.Sys(s.username+" joined "+room), s)
	srv.store.LogActivity(s.username, "JOIN_ROOM", "room="+room)
	return true
}

// leaveRoom removes durable membership as well as the live
// subscription. Leaving a room you never joined is harmless.
func (srv *Server) leaveRoom(s *Session, room string) {
	if err := srv.store.RemoveRoomMember(room, s.username); err != nil && !errors.Is(err, chaterr.ErrRoomNotFound) {
		s.Send(protocol.Err("Leaving room"))
		return
	}
	srv.rooms.Unsubscribe(room, s)
	delete(s.joined, room)
	s.Send(protocol.Sys("Left room " + room))
	srv.rooms.Broadcast(room, protocol.Sys(s.username+" left "+room), s)
	srv.store.LogActivity(s.username, "LEAVE_ROOM", "room="+room)
}

func (srv *Server) roomMessage(s *Session, room, body string) {
	exists, err := srv.store.RoomExists(room)
	if err != nil {
		s.Send(protocol.Err("Sending room msg"))
		return
	}
	if !exists {
		s.Send(protocol.Err("Room does not exist: " + room))
		return
	}
	member, err := srv.store.IsRoomMember(room, s.username)
	if err != nil {
		s.Send(protocol.Err("Sending room msg"))
		return
	}
	if !member {
		s.Send(protocol.Err("Not a member of room: " + room))
		return
	}
	if err := srv.store.SaveRoomMessage(s.username, room, body); err != nil {
		s.Send(protocol.Err("Sending room msg"))
		return
	}
	srv.rooms.Broadcast(room, protocol.RoomFrom(room, s.username, body), s)
}

// directMessage persists first, then delivers if the recipient is
// online. An offline recipient still gets the message into history.
func (srv *Server) directMessage(s *Session, to, body string) {
	if err := srv.store.SaveDirectMessage(s.username, to, body); err != nil {
		if errors.Is(err, chaterr.ErrUserNotFound) {
			s.Send(protocol.Err("User not found: " + to))
		} else {
			s.Send(protocol.Err("Sending DM"))
		}
		return
	}
	if peer, ok := srv.presence.Get(to); ok {
		peer.Send(protocol.DMFrom(s.username, body))
		s.Send(protocol.Sys("DM sent to " + to))
	} else {
		s.Send(protocol.Err("User not online: " + to))
	}
	srv.store.LogActivity(s.username, "DM_SENT", "to="+to)
}

func (srv *Server) sendFriendList(s *Session) {
	friends, err := srv.store.GetFriends(s.username)
	if err != nil {
		s.Send(protocol.Err("Fetching friends"))
		return
	}
	s.Send(protocol.FriendsLine(friends))
}

func (srv *Server) friendRequest(s *Session, to string) {
	if err := srv.store.SendFriendRequest(s.username, to); err != nil {
		s.Send(protocol.Err("Couldn't send friend request"))
		return
	}
	s.Send(protocol.Sys("Friend request sent to " + to))
	if peer, ok := srv.presence.Get(to); ok {
		peer.Send(protocol.FriendReqFrom(s.username))
	}
	srv.store.LogActivity(s.username, "FRIEND_REQUEST_SENT", "to="+to)
}

func (srv *Server) sendIncomingRequests(s *Session) {
	reqs, err := srv.store.GetIncomingRequests(s.username)
	if err != nil {
		s.Send(protocol.Err("Fetching friend requests"))
		return
	}
	s.Send(protocol.FriendReqsLine(reqs))
}

// friendAccept consumes the pending request and establishes the
// friendship in one store transaction, then refreshes both sides'
// friend lists.
func (srv *Server) friendAccept(s *Session, from string) {
	if err := srv.store.AcceptFriendRequest(s.username, from); err != nil {
		s.Send(protocol.Err("Couldn't accept request."))
		return
	}
	s.Send(protocol.Sys("Friend request accepted: " + from))
	if peer, ok := srv.presence.Get(from); ok {
		peer.Send(protocol.Sys(s.username + " accepted your friend request!"))
		if friends, err := srv.store.GetFriends(from); err == nil {
			peer.Send(protocol.FriendsLine(friends))
		}
	}
	if friends, err := srv.store.GetFriends(s.username); err == nil {
		s.Send(protocol.FriendsLine(friends))
	}
	srv.store.LogActivity(s.username, "FRIEND_REQUEST_ACCEPTED", "from="+from)
}

func (srv *Server) friendDecline(s *Session, from string) {
	if err := srv.store.DeclineFriendRequest(s.username, from); err != nil {
		s.Send(protocol.Err("Couldn't decline request."))
		return
	}
	s.Send(protocol.Sys("Friend request declined: " + from))
	if peer, ok := srv.presence.Get(from); ok {
		peer.Send(protocol.Sys(s.username + " rejected your friend request."))
	}
	srv.store.LogActivity(s.username, "FRIEND_REQUEST_DECLINED", "from="+from)
}

func (srv *Server) friendRemove(s *Session, friend string) {
	if err := srv.store.RemoveFriend(s.username, friend); err != nil {
		s.Send(protocol.Err("Couldn't remove friend"))
		return
	}
	s.Send(protocol.Sys("Friend removed: " + friend))
	srv.store.LogActivity(s.username, "FRIEND_REMOVE", "friend="+friend)
}

func (srv *Server) setStatus(s *Session, status string) {
	normalized := protocol.NormalizeStatus(status)
	srv.presence.SetStatus(s.username, normalized)
	srv.store.LogActivity(s.username, "STATUS", "Changed status to "+normalized)
	s.Send(protocol.Sys("Status set to " + normalized))
}

func (srv *Server) roomInvite(s *Session, room, target string) {
	exists, err := srv.store.RoomExists(room)
	if err != nil || !exists {
		s.Send(protocol.Err("Room does not exist: " + room))
		return
	}
	member, err := srv.store.IsRoomMember(room, s.username)
	if err != nil {
		s.Send(protocol.Err("Inviting to room"))
		return
	}
	if !member {
		s.Send(protocol.Err("You are not a member of room " + room))
		return
	}
	targetMember, err := srv.store.IsRoomMember(room, target)
	if err != nil {
		s.Send(protocol.Err("Inviting to room"))
		return
	}
	if targetMember {
		s.Send(protocol.Err("User already in room " + room))
		return
	}
	if err := srv.store.CreateRoomInvite(room, s.username, target); err != nil {
		switch {
		case errors.Is(err, chaterr.ErrUserNotFound):
			s.Send(protocol.Err("User not found: " + target))
		case errors.Is(err, chaterr.ErrDuplicateInvite):
			s.Send(protocol.Err("Invite already exists for " + target))
		default:
			s.Send(protocol.Err("Inviting to room"))
		}
		return
	}
	s.Send(protocol.Sys("Invited " + target + " to room " + room))
	if peer, ok := srv.presence.Get(target); ok {
		peer.Send(protocol.RoomInviteFrom(room, s.username))
	}
	srv.store.LogActivity(s.username, "ROOM_INVITE_SENT", "room="+room+",to="+target)
}

func (srv *Server) roomInviteAccept(s *Session, room string) {
	// deleting the invite doubles as the existence check
	if err := srv.store.DeleteRoomInvite(room, s.username); err != nil {
		switch {
		case errors.Is(err, chaterr.ErrNoInvite):
			s.Send(protocol.Err("No pending invite for " + room))
		case errors.Is(err, chaterr.ErrRoomNotFound), errors.Is(err, chaterr.ErrUserNotFound):
			s.Send(protocol.Err("Room/user invalid"))
		default:
			s.Send(protocol.Err("Accepting invite"))
		}
		return
	}
	if err := srv.store.AddRoomMember(room, s.username); err != nil {
		s.Send(protocol.Err("Accepting invite"))
		return
	}
	if !srv.joinRoom(s, room) {
		return
	}
	s.Send(protocol.Sys("Invite accepted for room " + room))
	srv.store.LogActivity(s.username, "ROOM_INVITE_ACCEPT", "room="+room)
}

// roomInviteDecline drops the pending invite and clears any stale
// membership or live subscription left from an earlier join.
func (srv *Server) roomInviteDecline(s *Session, room string) {
	if err := srv.store.DeleteRoomInvite(room, s.username); err != nil {
		if errors.Is(err, chaterr.ErrNoInvite) {
			s.Send(protocol.Err("No pending invite for " + room))
		} else {
			s.Send(protocol.Err("Declining invite"))
		}
		return
	}
	if _, ok := s.joined[room]; ok {
		srv.rooms.Unsubscribe(room, s)
		delete(s.joined, room)
	}
	if member, err := srv.store.IsRoomMember(room, s.username); err == nil && member {
		srv.store.RemoveRoomMember(room, s.username)
	}
	s.Send(protocol.Sys("Invite declined for room " + room))
	srv.store.LogActivity(s.username, "ROOM_INVITE_DECLINE", "room="+room)
}

func (srv *Server) dmHistory(s *Session, peer string) {
	msgs, err := srv.store.DirectMessageHistory(s.username, peer, defaultHistoryLimit)
	if err != nil && !errors.Is(err, chaterr.ErrUserNotFound) {
		s.Send(protocol.Err("Fetching DM history"))
		return
	}
	for _, m := range msgs {
		s.Send(protocol.DMHistoryLine(peer, m.From, m.Body))
	}
	s.Send(protocol.DMHistoryDone(peer))
}

func (srv *Server) roomHistory(s *Session, room string) {
	member, err := srv.store.IsRoomMember(room, s.username)
	if err != nil && !errors.Is(err, chaterr.ErrRoomNotFound) {
		s.Send(protocol.Err("Fetching room history"))
		return
	}
	if !member {
		s.Send(protocol.Err("Not allowed to view history for " + room))
		return
	}
	msgs, err := srv.store.RoomMessageHistory(room, defaultHistoryLimit)
	if err != nil {
		s.Send(protocol.Err("Fetching room history"))
		return
	}
	for _, m := range msgs {
		s.Send(protocol.RoomHistoryLine(room, m.From, m.Body))
	}
	s.Send(protocol.RoomHistoryDone(room))
}

// lobbyChat delivers a line with no recognized verb as lobby chat, the
// same path as ROOM_MSG lobby but without repeating the membership
// checks: every active session was auto-joined at login. Unlike
// ROOMMSG, the sender is included in the fan-out; clients render their
// own lobby lines from this echo.
func (srv *Server) lobbyChat(s *Session, body string) {
	if err := srv.store.SaveRoomMessage(s.username, lobbyRoom, body); err != nil {
		s.Send(protocol.Err("Sending room msg"))
		return
	}
	srv.rooms.Broadcast(lobbyRoom, protocol.RoomFrom(lobbyRoom, s.username, body), nil)
}
