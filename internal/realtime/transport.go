// Package realtime manages the push connection of one chat session.
package realtime

import (
	"context"
	"encoding/json"
)

// Event names on the wire.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventNewMessage = "conversation:newMessage"
	EventJoin       = "joinConversation"
)

// Handler receives the raw payload of an inbound event. Connect and
// disconnect carry no payload.
type Handler func(data json.RawMessage)

// Transport is an event-oriented connection. Handlers run on the transport's
// own goroutine.
type Transport interface {
	On(event string, h Handler)
	Off(event string)
	Emit(event string, payload any) error
	Connected() bool
	Close() error
}

// Dialer opens a Transport to endpoint. A returned transport may already be
// connected; it does not fire connect for that first connection.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// Frame is the JSON envelope of every websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
