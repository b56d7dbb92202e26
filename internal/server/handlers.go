// Package server exposes HTTP handlers, including WebSocket upgrades into
// the relay, health checks, and a connection count.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Gateway lets WebSocket clients join the relay over HTTP.
type Gateway struct {
	relay    *Server
	origins  originPolicy
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewGateway creates a Gateway that registers upgraded connections with
// relay, using relay's origin allow-list and line size limit.
func NewGateway(relay *Server) *Gateway {
	g := &Gateway{
		relay:   relay,
		origins: newOriginPolicy(relay.cfg.AllowedOrigins),
		logger:  relay.logger,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.origins.allows(r) {
		return true
	}

	g.logger.Warn("blocked WebSocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
	return false
}

// WebSocketHandler upgrades GET requests to WebSocket and serves the
// connection as a relay client until it disconnects.
func (g *Gateway) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	if err := g.relay.HandleConn(newWSConn(conn, int64(g.relay.cfg.MaxLineSize))); err != nil {
		g.logger.Debug("WebSocket client ended", "addr", r.RemoteAddr, "error", err)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Line relay is running!")
}

// ClientsHandler reports how many connections are currently registered.
func (g *Gateway) ClientsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	body := struct {
		Clients int `json:"clients"`
	}{Clients: g.relay.Registry().Len()}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Warn("writing clients response", "error", err)
	}
}
