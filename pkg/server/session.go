package server

import (
	"strings"
	"sync"

	"gochatd/pkg/logger"
	"gochatd/pkg/protocol"
	"gochatd/pkg/store"
)

const sendBufferSize = 256

// Session is one live client connection. It owns the transport, runs
// the authentication sub-protocol and then the command loop, and holds
// the set of rooms it has live-joined. The joined set is only touched
// from the session's own goroutine; outbound delivery goes through the
// buffered send channel drained by a single writer goroutine.
type Session struct {
	srv       *Server
	transport lineTransport
	log       *logger.Logger

	// username is written once, before the session is published to the
	// presence registry, and only read afterwards.
	username string
	joined   map[string]struct{}

	send       chan string
	closed     chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

func newSession(srv *Server, t lineTransport) *Session {
	s := &Session{
		srv:        srv,
		transport:  t,
		log:        logger.Get().With("remote", t.RemoteAddr()),
		joined:     make(map[string]struct{}),
		send:       make(chan string, sendBufferSize),
		closed:     make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	return s
}

// Send queues a line for delivery. Never blocks: a session whose send
// buffer is full loses the line rather than stalling the sender.
func (s *Session) Send(line string) {
	select {
	case <-s.closed:
	case s.send <- line:
	default:
		s.log.Debug("send buffer full, dropping line")
	}
}

// writeLoop is the sole writer on the transport. On shutdown it flushes
// whatever is still queued before exiting, so lines queued before the
// close signal go out in order.
func (s *Session) writeLoop() {
	defer close(s.writerDone)
	for {
		select {
		case line := <-s.send:
			if err := s.transport.WriteLine(line); err != nil {
				s.log.Debug("write failed", "error", err)
				s.transport.Close()
				return
			}
		case <-s.closed:
			for {
				select {
				case line := <-s.send:
					if s.transport.WriteLine(line) != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// run drives the session through its whole lifetime. It returns once
// the connection is gone and all cleanup has happened.
func (s *Session) run() {
	defer s.cleanup()

	go s.writeLoop()

	if !s.authenticate() {
		return
	}

	s.log.Info("session active", "user", s.username)

	// auto-join the lobby and announce; presence registration already
	// broadcast the refreshed online and status snapshots
	s.srv.joinRoom(s, lobbyRoom)

	for {
		line, err := s.transport.ReadLine()
		if err != nil {
			s.log.Debug("read ended", "user", s.username, "error", err)
			return
		}
		if strings.EqualFold(strings.TrimSpace(line), "/quit") {
			return
		}
		s.srv.dispatch(s, line)
	}
}

// authenticate runs the auth sub-protocol: prompt, read one line,
// expect REGISTER or LOGIN with exactly two arguments. Malformed lines
// re-prompt; only transport errors and a duplicate login end the
// session. Returns true once the session is Active.
func (s *Session) authenticate() bool {
	for {
		s.Send(protocol.Sys("Login/Register"))
		s.Send(protocol.Sys("REGISTER <username> <password>"))
		s.Send(protocol.Sys("LOGIN <username> <password>"))

		line, err := s.transport.ReadLine()
		if err != nil {
			return false
		}

		req, perr := protocol.ParseAuth(line)
		switch perr {
		case nil:
		case protocol.ErrAuthFormat:
			s.Send(protocol.ErrAuthBadFormat)
			continue
		default:
			s.Send(protocol.ErrUnknownCommand)
			continue
		}

		if req.Register {
			if s.register(req.Username, req.Password) {
				return true
			}
		} else {
			if s.login(req.Username, req.Password) {
				return true
			}
		}

		// a duplicate login closes the connection outright
		select {
		case <-s.closed:
			return false
		default:
		}
	}
}

func (s *Session) register(username, password string) bool {
	switch s.srv.store.RegisterUser(username, password) {
	case store.RegisterOK:
		s.Send(protocol.RegisterSuccessful)
		if !s.bindPresence(username) {
			return false
		}
		s.Send(protocol.Sys("Welcome " + username))
		s.srv.store.LogActivity(username, "REGISTER", "Account created")
		s.srv.store.LogActivity(username, "LOGIN", "Registered and logged in")
		return true
	case store.RegisterUsernameTaken:
		s.Send(protocol.ErrRegisterUsernameTaken)
	case store.RegisterInvalidPassword:
		s.Send(protocol.ErrRegisterBadPassword)
	case store.RegisterInvalidUsername:
		s.Send(protocol.ErrRegisterBadUsername)
	default:
		s.Send(protocol.ErrRegisterFailed)
	}
	return false
}

func (s *Session) login(username, password string) bool {
	switch s.srv.store.VerifyLogin(username, password) {
	case store.LoginOK:
		s.Send(protocol.LoginSuccessful)
		if !s.bindPresence(username) {
			return false
		}
		s.Send(protocol.Sys("Welcome back " + username))
		s.srv.store.LogActivity(username, "LOGIN", "Login successful")
		return true
	case store.LoginNoSuchUser:
		s.Send(protocol.ErrLoginNoSuchUser)
	case store.LoginWrongPassword:
		s.Send(protocol.ErrLoginWrongPassword)
	default:
		s.Send(protocol.ErrLoginFailed)
	}
	return false
}

// bindPresence claims exclusive presence for the username. The check
// runs after credential success so an unauthenticated caller cannot
// tell bad credentials apart from a duplicate session. A duplicate closes the session. The username is bound
// before registering: until Register succeeds no other goroutine can
// reach this session, so both the write and the rollback are unshared.
func (s *Session) bindPresence(username string) bool {
	s.username = username
	if !s.srv.presence.Register(username, s) {
		s.username = ""
		s.Send(protocol.ErrAlreadyLoggedIn)
		s.log.Warn("duplicate login rejected", "user", username)
		s.shutdownWriter()
		return false
	}
	return true
}

// shutdownWriter signals the write loop to flush queued lines and exit,
// then waits for it. Write deadlines on the transport bound the wait.
func (s *Session) shutdownWriter() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	<-s.writerDone
}

// cleanup runs exactly once when the session ends, whatever the cause:
// leave every live-joined room, deregister presence, log the logout,
// release the connection.
func (s *Session) cleanup() {
	rooms := make([]string, 0, len(s.joined))
	for room := range s.joined {
		rooms = append(rooms, room)
	}
	for _, room := range rooms {
		s.srv.rooms.Unsubscribe(room, s)
		s.srv.rooms.Broadcast(room, protocol.Sys(s.username+" left "+room), s)
		delete(s.joined, room)
	}

	if s.username != "" {
		s.srv.store.LogActivity(s.username, "LOGOUT", "Client disconnected or quit")
		s.srv.presence.Unregister(s.username)
	}

	s.shutdownWriter()
	s.transport.Close()
	s.log.Info("session closed", "user", s.username)
}
