// Package server implements the relay's connection, presence and routing
// engine together with its HTTP and WebSocket surface.
//
// The Hub owns the presence registry and the public history buffer and
// serializes admissions, teardowns and routed messages through one event
// loop. Each admitted connection runs a read pump and a write pump; the hub
// only ever enqueues onto a client's buffered send channel, so one slow
// connection never stalls delivery to the others.
package server
