// Package server coordinates client admission, message routing, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/history"
	"github.com/Tyrowin/gochat-relay/internal/presence"
)

// Hub owns the presence registry and the public history and serializes
// every admission, teardown and routed message through a single event
// loop. Deliveries are non-blocking enqueues, so the loop never waits on a
// slow connection; a client that cannot accept a frame is torn down.
type Hub struct {
	presence   *presence.Registry[*Client]
	history    *history.Buffer[Message]
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEvent
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time

	// failed collects clients whose delivery failed during the current
	// event; only the Run goroutine touches it.
	failed []*Client

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub. A nil cfg uses NewConfig; a nil logger uses slog.Default.
func NewHub(cfg *Config, logger *slog.Logger) *Hub {
	if cfg == nil {
		cfg = NewConfig()
	}
	c := *cfg
	c.sanitize()
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		presence:   presence.New[*Client](),
		history:    history.New[Message](c.HistorySize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEvent),
		cfg:        c,
		logger:     logger,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop. It should be called in a separate
// goroutine and returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}
			h.admit(client)

		case client := <-h.unregister:
			h.teardown(client)

		case ev := <-h.inbound:
			h.route(ev)
		}

		h.reapFailed()
	}
}

// Serve admits client and starts its pumps. It returns false when the hub
// is shutting down, in which case the caller still owns the connection.
func (h *Hub) Serve(client *Client) bool {
	h.wg.Add(2)
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		h.wg.Add(-2)
		return false
	}

	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
	return true
}

// Online returns the identities currently present.
func (h *Hub) Online() []string {
	return h.presence.Identities()
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	return h.presence.Len()
}

// History returns the buffered public messages, oldest first.
func (h *Hub) History() []Message {
	return h.history.Snapshot()
}

func (h *Hub) submit(ev inboundEvent) bool {
	select {
	case h.inbound <- ev:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// admit registers client, replays the welcome notice and history to it,
// and broadcasts the new presence set to everyone including client.
func (h *Hub) admit(client *Client) {
	h.presence.Register(client.id, client.identity, client)
	client.logger.Info("client connected", "clients", h.presence.Len())

	h.deliver(client, h.encode(EventWelcome, "Welcome, "+client.identity+"!"))
	h.deliver(client, h.encode(EventHistory, h.history.Snapshot()))
	h.broadcastPresence()
}

// teardown removes client from presence and announces the change. It is a
// no-op for clients that are already gone.
func (h *Hub) teardown(client *Client) {
	if _, ok := h.presence.Remove(client.id); !ok {
		return
	}
	client.close()
	client.logger.Info("client disconnected", "clients", h.presence.Len())

	h.broadcastPresence()
}

func (h *Hub) route(ev inboundEvent) {
	// Frames still queued from a connection that was torn down are dropped.
	if _, ok := h.presence.Identity(ev.sender.id); !ok {
		return
	}

	switch ev.frame.Type {
	case EventMessage:
		h.routePublic(ev.sender, ev.frame.Text)
	case EventPrivate:
		h.routePrivate(ev.sender, ev.frame.To, ev.frame.Text)
	}
}

func (h *Hub) routePublic(sender *Client, raw string) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return
	}

	msg := Message{
		ID:       sender.id,
		Username: sender.identity,
		Text:     text,
		Time:     h.now().UTC(),
		Type:     KindPublic,
	}

	h.history.Append(msg)
	h.broadcast(h.encode(EventMessage, msg))
}

func (h *Hub) routePrivate(sender *Client, to, raw string) {
	text := strings.TrimSpace(raw)
	if to == "" || text == "" {
		return
	}

	recipient, ok := h.presence.Lookup(to)
	if !ok {
		sender.logger.Info("recipient not online; dropping private message", "to", to)
		return
	}

	msg := Message{
		ID:       sender.id,
		Username: sender.identity,
		To:       to,
		Text:     text,
		Time:     h.now().UTC(),
		Type:     KindPrivate,
	}

	payload := h.encode(EventPrivate, msg)
	h.deliver(recipient, payload)
	h.deliver(sender, payload)
}

func (h *Hub) broadcastPresence() {
	h.broadcast(h.encode(EventUsers, h.presence.Identities()))
}

func (h *Hub) broadcast(payload []byte) {
	for _, client := range h.presence.Conns() {
		h.deliver(client, payload)
	}
}

func (h *Hub) deliver(client *Client, payload []byte) {
	if payload == nil {
		return
	}
	if !client.enqueue(payload) {
		h.failed = append(h.failed, client)
	}
}

// reapFailed tears down clients whose delivery failed. Each teardown
// broadcasts presence, which may fail further clients.
func (h *Hub) reapFailed() {
	for len(h.failed) > 0 {
		client := h.failed[0]
		h.failed = h.failed[1:]
		if _, ok := h.presence.Identity(client.id); ok {
			client.logger.Warn("client cannot keep up; disconnecting")
		}
		h.teardown(client)
	}
	h.failed = nil
}

func (h *Hub) encode(eventType string, payload any) []byte {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encoding payload", "type", eventType, "error", err)
		return nil
	}
	frame, err := json.Marshal(Envelope{Type: eventType, Payload: body})
	if err != nil {
		h.logger.Error("encoding frame", "type", eventType, "error", err)
		return nil
	}
	return frame
}

// shutdownClients closes every registered connection.
func (h *Hub) shutdownClients() {
	clients := h.presence.Conns()
	h.logger.Info("shutting down client connections", "clients", len(clients))

	for _, client := range clients {
		h.presence.Remove(client.id)
		client.close()
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			client.logger.Warn("closing client connection", "error", err)
		}
	}
}

// Shutdown stops the hub and waits for all client goroutines to finish,
// or until timeout elapses.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
