// Package domain contains core concepts of the broker.
// This file defines Message envelopes and their kinds.
// Messages are immutable once stamped by the dispatcher.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind is a closed set; the dispatcher switches over it
// exhaustively so a new kind cannot be silently half-handled.
type MessageKind int

const (
	KindBroadcast MessageKind = iota
	KindDirect
	KindSystem
)

func (k MessageKind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindDirect:
		return "direct"
	case KindSystem:
		return "system"
	default:
		return "unknown"
	}
}

// Message represents one delivery unit.
// Seq is a global monotonic sequence stamped by the dispatcher; Sender is
// empty for system messages; Room is set for broadcasts, Target for
// direct messages. Payload is opaque to the broker.
type Message struct {
	ID        uuid.UUID
	Seq       uint64
	Kind      MessageKind
	Sender    ConnectionID
	Room      string
	Target    ConnectionID
	Payload   []byte
	CreatedAt time.Time
}
