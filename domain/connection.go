// Package domain contains core concepts of the broker.
// This file defines Connection records and their liveness states.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"
)

// ConnectionID uniquely identifies a logical connection for its whole
// lifetime. IDs are uuid strings and are never reused.
type ConnectionID string

// Identity is the caller-supplied user or session id behind a connection.
// Several live connections may share one identity (same user, two devices).
type Identity string

type ConnState int

const (
	StateActive ConnState = iota
	StateSuspect
)

func (s ConnState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateSuspect:
		return "suspect"
	default:
		return "unknown"
	}
}

// Connection is the registry record for one live logical connection.
// The transport handle and the mailbox live outside the domain; the record
// only carries identity and liveness data.
type Connection struct {
	ID           ConnectionID
	Identity     Identity
	State        ConnState
	LastActivity time.Time
}
