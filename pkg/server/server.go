package server

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"gochatd/pkg/logger"
	"gochatd/pkg/presence"
	"gochatd/pkg/rooms"
	"gochatd/pkg/store"
)

const (
	lobbyRoom           = "lobby"
	defaultHistoryLimit = 50
)

// Server accepts TCP connections and runs one Session per connection.
// The gateway reuses the same session machinery over websockets, so
// both transports share the dispatcher and registries.
type Server struct {
	addr     string
	log      *logger.Logger
	store    store.Store
	presence *presence.Registry
	rooms    *rooms.Registry

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func New(addr string, st store.Store, pr *presence.Registry, rm *rooms.Registry) *Server {
	return &Server{
		addr:     addr,
		log:      logger.Get().With("component", "chat-server"),
		store:    st,
		presence: pr,
		rooms:    rm,
		quit:     make(chan struct{}),
		sessions: make(map[*Session]struct{}),
	}
}

// ListenAndServe blocks in the accept loop until Shutdown is called or
// the listener fails.
func (srv *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", srv.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", srv.addr, err)
	}

	srv.mu.Lock()
	srv.listener = ln
	srv.mu.Unlock()

	srv.log.Info("chat server listening", "addr", srv.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-srv.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			srv.log.Error("accept failed", "error", err)
			continue
		}

		srv.runSession(newTCPTransport(conn))
	}
}

// runSession registers a session for shutdown tracking and runs it in
// its own goroutine. The gateway hands websocket transports through
// here too.
func (srv *Server) runSession(t lineTransport) {
	s := newSession(srv, t)

	srv.mu.Lock()
	srv.sessions[s] = struct{}{}
	srv.mu.Unlock()

	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		s.run()
		srv.mu.Lock()
		delete(srv.sessions, s)
		srv.mu.Unlock()
	}()
}

// Shutdown stops accepting and waits for every live session to finish
// cleanup.
func (srv *Server) Shutdown() {
	close(srv.quit)

	srv.mu.Lock()
	if srv.listener != nil {
		srv.listener.Close()
	}
	for s := range srv.sessions {
		s.transport.Close()
	}
	srv.mu.Unlock()

	srv.wg.Wait()
	srv.log.Info("chat server stopped")
}

// ActiveSessions reports how many users currently hold a session.
func (srv *Server) ActiveSessions() int {
	return srv.presence.Count()
}
