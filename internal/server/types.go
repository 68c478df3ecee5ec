// Package server defines the wire events exchanged with clients and utility
// helpers that are reused across client and hub logic.
package server

import (
	"encoding/json"
	"strings"
	"time"
)

// Event types carried in the "type" field of every frame.
const (
	EventWelcome = "welcome"
	EventHistory = "chat:history"
	EventUsers   = "chat:users"
	EventMessage = "chat:message"
	EventPrivate = "chat:private"
)

// Message kinds.
const (
	KindPublic  = "public"
	KindPrivate = "private"
)

// Message is a chat message as stamped by the hub. ID is the sender's
// connection id at send time; clients use it for de-duplication only.
type Message struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	To       string    `json:"to,omitempty"`
	Text     string    `json:"text"`
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
}

// Envelope is a server-to-client frame.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// inboundFrame is a client-to-server frame. To is only meaningful for
// chat:private.
type inboundFrame struct {
	Type string `json:"type"`
	To   string `json:"to,omitempty"`
	Text string `json:"text"`
}

// inboundEvent is an inboundFrame bound to the connection it arrived on.
type inboundEvent struct {
	sender *Client
	frame  inboundFrame
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
