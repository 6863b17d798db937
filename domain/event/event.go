// Package event defines the parsed events a session gateway forwards to
// the broker. The set is closed: every variant is matched exhaustively in
// the broker, so adding one forces every call site to handle it.
package event

import (
	"roomcast/domain"
)

type ParsedEvent interface {
	parsedEvent()
}

// Join asks to add the connection to a room, creating it if absent.
type Join struct {
	Room string
}

// Leave removes the connection from a room.
type Leave struct {
	Room string
}

// Broadcast fans a payload out to every member of a room.
type Broadcast struct {
	Room    string
	Payload []byte
}

// Direct targets a single connection.
type Direct struct {
	Target  domain.ConnectionID
	Payload []byte
}

// Heartbeat refreshes the sender's liveness window and carries no payload.
type Heartbeat struct{}

func (Join) parsedEvent()      {}
func (Leave) parsedEvent()     {}
func (Broadcast) parsedEvent() {}
func (Direct) parsedEvent()    {}
func (Heartbeat) parsedEvent() {}
