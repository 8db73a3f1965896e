package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gochatd/pkg/logger"
)

// Gateway exposes the chat protocol over websockets. Each upgraded
// connection gets a regular session; browser clients speak the same
// line protocol as TCP ones, one text frame per line.
type Gateway struct {
	srv      *Server
	log      *logger.Logger
	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

func NewGateway(addr string, srv *Server) *Gateway {
	g := &Gateway{
		srv: srv,
		log: logger.Get().With("component", "ws-gateway"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the gateway fronts the same trust boundary as the raw
			// TCP listener, which accepts from anywhere
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.handleWS)

	g.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g
}

func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	g.log.Debug("websocket session opened", "remote", r.RemoteAddr)
	g.srv.runSession(newWSTransport(conn))
}

func (g *Gateway) ListenAndServe() error {
	g.log.Info("websocket gateway listening", "addr", g.httpSrv.Addr)
	err := g.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.httpSrv.Shutdown(ctx)
}
