// Package server exposes HTTP handlers, including the authenticated
// WebSocket upgrade, the login endpoint and the health check.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-relay/internal/auth"
)

const maxLoginBodySize = 4096

// CredentialVerifier resolves a bearer credential to an identity.
type CredentialVerifier interface {
	Verify(token string) (string, error)
}

// CredentialIssuer signs credentials for display names.
type CredentialIssuer interface {
	Issue(displayName string) (auth.Credential, error)
}

// Handlers holds the dependencies of the HTTP surface.
type Handlers struct {
	hub      *Hub
	verifier CredentialVerifier
	issuer   CredentialIssuer
	origins  *originPolicy
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandlers wires the HTTP handlers to hub and the credential services.
func NewHandlers(cfg *Config, hub *Hub, verifier CredentialVerifier, issuer CredentialIssuer, logger *slog.Logger) *Handlers {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	origins := newOriginPolicy(cfg.AllowedOrigins, logger)
	return &Handlers{
		hub:      hub,
		verifier: verifier,
		issuer:   issuer,
		origins:  origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
		logger: logger,
	}
}

type loginRequest struct {
	Username any `json:"username"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// WebSocket authenticates the request and upgrades it. A missing or
// invalid credential is rejected with 401 before the upgrade.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	token := credentialFromRequest(r)
	identity, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Warn("rejecting WebSocket connection", "addr", r.RemoteAddr, "error", err)
		msg := "Authentication error: invalid token"
		if token == "" {
			msg = "Authentication error: no token"
		}
		http.Error(w, msg, http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(conn, h.hub, identity, r.RemoteAddr)
	if !h.hub.Serve(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
	}
}

// Login issues a credential for the posted display name.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBodySize)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	username, ok := req.Username.(string)
	if !ok || username == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Username is required"})
		return
	}

	cred, err := h.issuer.Issue(username)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidIdentity) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Username is required"})
			return
		}
		h.logger.Error("issuing credential", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: cred.Token, Username: cred.Username})
}

// HealthHandler responds with a plain text liveness message.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, "Chat server is running")
}

// credentialFromRequest reads the token from the "token" query parameter
// or an Authorization bearer header. Browsers cannot set headers on a
// WebSocket handshake, so the query parameter is checked first.
func credentialFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	header := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
