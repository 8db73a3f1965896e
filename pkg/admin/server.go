package admin

import (
	"context"
	"net/http"
	"time"

	"gochatd/pkg/logger"
)

// Server hosts the admin API on its own listener, kept separate from
// the chat and gateway ports so it can be firewalled independently.
type Server struct {
	log     *logger.Logger
	httpSrv *http.Server
}

func NewServer(addr string, api *API) *Server {
	return &Server{
		log: logger.Get().With("component", "admin-api"),
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) ListenAndServe() error {
	s.log.Info("admin API listening", "addr", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
