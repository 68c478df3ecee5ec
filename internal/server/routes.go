// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
func SetupRoutes(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", HealthHandler)
	mux.Handle("POST /api/login", h.origins.cors(http.HandlerFunc(h.Login)))
	mux.Handle("OPTIONS /api/login", h.origins.cors(http.NotFoundHandler()))
	mux.HandleFunc("GET /ws", h.WebSocket)
	return mux
}
