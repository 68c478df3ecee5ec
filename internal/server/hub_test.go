package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T, mutate func(*Config)) *Hub {
	t.Helper()

	cfg := NewConfig()
	if mutate != nil {
		mutate(cfg)
	}
	h := NewHub(cfg, discardLogger())
	h.now = func() time.Time { return fixedNow }
	go h.Run()
	t.Cleanup(func() {
		require.NoError(t, h.Shutdown(time.Second))
	})
	return h
}

// join admits a connection-less client and consumes its admission frames.
func join(t *testing.T, h *Hub, identity string) *Client {
	t.Helper()

	c := NewClient(nil, h, identity, "test")
	h.register <- c

	assert.Equal(t, EventWelcome, nextEvent(t, c).Type)
	assert.Equal(t, EventHistory, nextEvent(t, c).Type)
	assert.Equal(t, EventUsers, nextEvent(t, c).Type)
	return c
}

func nextEvent(t *testing.T, c *Client) Envelope {
	t.Helper()

	select {
	case raw, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		return env
	case <-time.After(time.Second):
		t.Fatalf("no event for %s", c.identity)
		return Envelope{}
	}
}

func expectNoEvent(t *testing.T, c *Client) {
	t.Helper()

	select {
	case raw, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected event for %s: %s", c.identity, raw)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func decodePayload[T any](t *testing.T, env Envelope) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

func send(h *Hub, from *Client, frame inboundFrame) {
	h.submit(inboundEvent{sender: from, frame: frame})
}

func TestAdmissionSendsWelcomeHistoryAndPresence(t *testing.T) {
	h := newTestHub(t, nil)

	alice := NewClient(nil, h, "alice", "test")
	h.register <- alice

	welcome := nextEvent(t, alice)
	assert.Equal(t, EventWelcome, welcome.Type)
	assert.Equal(t, "Welcome, alice!", decodePayload[string](t, welcome))

	hist := nextEvent(t, alice)
	assert.Equal(t, EventHistory, hist.Type)
	assert.Empty(t, decodePayload[[]Message](t, hist))

	users := nextEvent(t, alice)
	assert.Equal(t, EventUsers, users.Type)
	assert.Equal(t, []string{"alice"}, decodePayload[[]string](t, users))

	expectNoEvent(t, alice)
}

func TestPresenceBroadcastOnJoinAndLeave(t *testing.T) {
	h := newTestHub(t, nil)

	alice := join(t, h, "alice")
	bob := join(t, h, "bob")

	users := nextEvent(t, alice)
	assert.Equal(t, []string{"alice", "bob"}, decodePayload[[]string](t, users))

	h.unregister <- bob

	users = nextEvent(t, alice)
	assert.Equal(t, EventUsers, users.Type)
	assert.Equal(t, []string{"alice"}, decodePayload[[]string](t, users))

	_, ok := <-bob.send
	assert.False(t, ok, "torn down client's send channel should be closed")
}

func TestPublicMessageScenario(t *testing.T) {
	h := newTestHub(t, nil)

	alice := join(t, h, "alice")
	send(h, alice, inboundFrame{Type: EventMessage, Text: "hi"})

	env := nextEvent(t, alice)
	require.Equal(t, EventMessage, env.Type)
	msg := decodePayload[Message](t, env)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, KindPublic, msg.Type)
	assert.Equal(t, alice.ID(), msg.ID)
	assert.True(t, fixedNow.Equal(msg.Time))
	require.Len(t, h.History(), 1)

	bob := NewClient(nil, h, "bob", "test")
	h.register <- bob
	assert.Equal(t, EventWelcome, nextEvent(t, bob).Type)
	hist := decodePayload[[]Message](t, nextEvent(t, bob))
	require.Len(t, hist, 1)
	assert.Equal(t, "hi", hist[0].Text)
	assert.Equal(t, "alice", hist[0].Username)
	assert.Equal(t, EventUsers, nextEvent(t, bob).Type)
	assert.Equal(t, EventUsers, nextEvent(t, alice).Type)

	send(h, bob, inboundFrame{Type: EventPrivate, To: "alice", Text: "yo"})

	for _, c := range []*Client{alice, bob} {
		env := nextEvent(t, c)
		require.Equal(t, EventPrivate, env.Type)
		dm := decodePayload[Message](t, env)
		assert.Equal(t, "bob", dm.Username)
		assert.Equal(t, "alice", dm.To)
		assert.Equal(t, "yo", dm.Text)
		assert.Equal(t, KindPrivate, dm.Type)
	}
	assert.Len(t, h.History(), 1)
}

func TestPublicMessageIsTrimmedAndEmptyDropped(t *testing.T) {
	h := newTestHub(t, nil)
	alice := join(t, h, "alice")

	send(h, alice, inboundFrame{Type: EventMessage, Text: "   "})
	send(h, alice, inboundFrame{Type: EventMessage, Text: ""})
	send(h, alice, inboundFrame{Type: EventMessage, Text: "  hello \n"})

	msg := decodePayload[Message](t, nextEvent(t, alice))
	assert.Equal(t, "hello", msg.Text)
	expectNoEvent(t, alice)
	assert.Len(t, h.History(), 1)
}

func TestPublicMessagesKeepArrivalOrder(t *testing.T) {
	h := newTestHub(t, nil)
	alice := join(t, h, "alice")
	bob := join(t, h, "bob")
	nextEvent(t, alice) // presence update for bob

	for _, text := range []string{"one", "two", "three"} {
		send(h, alice, inboundFrame{Type: EventMessage, Text: text})
	}

	for _, c := range []*Client{alice, bob} {
		for _, want := range []string{"one", "two", "three"} {
			assert.Equal(t, want, decodePayload[Message](t, nextEvent(t, c)).Text)
		}
	}
}

func TestHistoryIsBounded(t *testing.T) {
	h := newTestHub(t, func(cfg *Config) { cfg.HistorySize = 3 })
	alice := join(t, h, "alice")

	for _, text := range []string{"m1", "m2", "m3", "m4", "m5"} {
		send(h, alice, inboundFrame{Type: EventMessage, Text: text})
		nextEvent(t, alice)
	}

	hist := h.History()
	require.Len(t, hist, 3)
	assert.Equal(t, "m3", hist[0].Text)
	assert.Equal(t, "m5", hist[2].Text)
}

func TestPrivateMessageDropped(t *testing.T) {
	tests := []struct {
		name  string
		frame inboundFrame
	}{
		{name: "recipient offline", frame: inboundFrame{Type: EventPrivate, To: "carol", Text: "hey"}},
		{name: "missing recipient", frame: inboundFrame{Type: EventPrivate, Text: "hey"}},
		{name: "empty body", frame: inboundFrame{Type: EventPrivate, To: "bob", Text: "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(t, nil)
			alice := join(t, h, "alice")
			bob := join(t, h, "bob")
			nextEvent(t, alice)

			send(h, alice, tt.frame)

			expectNoEvent(t, alice)
			expectNoEvent(t, bob)
			assert.Empty(t, h.History())
		})
	}
}

func TestReconnectUnderSameIdentity(t *testing.T) {
	h := newTestHub(t, nil)

	oldAlice := join(t, h, "alice")
	newAlice := join(t, h, "alice")
	assert.Equal(t, []string{"alice"}, decodePayload[[]string](t, nextEvent(t, oldAlice)))
	bob := join(t, h, "bob")
	nextEvent(t, oldAlice)
	nextEvent(t, newAlice)

	send(h, bob, inboundFrame{Type: EventPrivate, To: "alice", Text: "which one?"})
	assert.Equal(t, EventPrivate, nextEvent(t, newAlice).Type)
	assert.Equal(t, EventPrivate, nextEvent(t, bob).Type)
	expectNoEvent(t, oldAlice)

	h.unregister <- oldAlice

	users := nextEvent(t, bob)
	assert.Equal(t, []string{"alice", "bob"}, decodePayload[[]string](t, users))
	assert.Equal(t, []string{"alice", "bob"}, h.Online())

	send(h, bob, inboundFrame{Type: EventPrivate, To: "alice", Text: "still there"})
	nextEvent(t, newAlice) // presence update
	dm := decodePayload[Message](t, nextEvent(t, newAlice))
	assert.Equal(t, "still there", dm.Text)
}

func TestTeardownIsIdempotent(t *testing.T) {
	h := newTestHub(t, nil)
	alice := join(t, h, "alice")
	bob := join(t, h, "bob")
	nextEvent(t, alice)

	h.unregister <- bob
	h.unregister <- bob

	assert.Equal(t, []string{"alice"}, decodePayload[[]string](t, nextEvent(t, alice)))
	expectNoEvent(t, alice)
	assert.Equal(t, 1, h.ClientCount())
}

func TestFramesFromDepartedClientAreDropped(t *testing.T) {
	h := newTestHub(t, nil)
	alice := join(t, h, "alice")
	bob := join(t, h, "bob")
	nextEvent(t, alice)

	h.unregister <- bob
	nextEvent(t, alice)

	send(h, bob, inboundFrame{Type: EventMessage, Text: "ghost"})
	expectNoEvent(t, alice)
	assert.Empty(t, h.History())
}

func TestSlowClientIsDisconnected(t *testing.T) {
	h := newTestHub(t, nil)

	// Admission fills a three-slot buffer exactly.
	slow := NewClient(nil, h, "slow", "test")
	slow.send = make(chan []byte, 3)
	h.register <- slow

	fast := NewClient(nil, h, "fast", "test")
	h.register <- fast
	assert.Equal(t, EventWelcome, nextEvent(t, fast).Type)
	assert.Equal(t, EventHistory, nextEvent(t, fast).Type)
	assert.Equal(t, []string{"fast", "slow"}, decodePayload[[]string](t, nextEvent(t, fast)))

	// The presence broadcast could not reach slow, so it was torn down.
	assert.Equal(t, []string{"fast"}, decodePayload[[]string](t, nextEvent(t, fast)))
	assert.Equal(t, []string{"fast"}, h.Online())
}

func TestPresenceTracksConnectSequence(t *testing.T) {
	h := newTestHub(t, nil)
	observer := join(t, h, "observer")

	steps := []struct {
		action   string
		identity string
		want     []string
	}{
		{"join", "a", []string{"a", "observer"}},
		{"join", "b", []string{"a", "b", "observer"}},
		{"join", "a", []string{"a", "b", "observer"}},
		{"leave", "a", []string{"a", "b", "observer"}},
		{"leave", "b", []string{"a", "observer"}},
		{"leave", "a", []string{"observer"}},
	}

	var open []*Client
	for _, step := range steps {
		switch step.action {
		case "join":
			open = append(open, join(t, h, step.identity))
		case "leave":
			for i, c := range open {
				if c.identity == step.identity {
					h.unregister <- c
					open = append(open[:i], open[i+1:]...)
					break
				}
			}
		}
		assert.Equal(t, step.want, decodePayload[[]string](t, nextEvent(t, observer)), "after %s %s", step.action, step.identity)
	}
}

func TestShutdownClosesClients(t *testing.T) {
	h := NewHub(nil, discardLogger())
	go h.Run()

	alice := join(t, h, "alice")
	require.NoError(t, h.Shutdown(time.Second))

	_, ok := <-alice.send
	assert.False(t, ok)
	assert.Equal(t, 0, h.ClientCount())
	assert.False(t, h.Serve(NewClient(nil, h, "late", "test")))
}
