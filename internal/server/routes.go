// Package server wires HTTP handlers into a ServeMux for the gateway.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with the health
// check, the WebSocket endpoint, and the client count.
func (g *Gateway) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", g.WebSocketHandler)
	mux.HandleFunc("/clients", g.ClientsHandler)
	return mux
}
