package runtime

import (
	"fmt"
	"strings"
	"sync"

	"roomcast/domain"
	"roomcast/errors"
)

// OverflowPolicy decides what happens when a message arrives for a full
// mailbox. It is configuration, never hard-coded at a call site.
type OverflowPolicy int

const (
	// DropOldest evicts the oldest queued message to make room.
	DropOldest OverflowPolicy = iota
	// DisconnectOnOverflow rejects the message and marks the connection
	// for forced disconnect.
	DisconnectOnOverflow
)

func ParsePolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(s) {
	case "drop-oldest":
		return DropOldest, nil
	case "disconnect-on-overflow":
		return DisconnectOnOverflow, nil
	default:
		return 0, fmt.Errorf("%w: %q", errors.ErrUnknownPolicy, s)
	}
}

func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DisconnectOnOverflow:
		return "disconnect-on-overflow"
	default:
		return "unknown"
	}
}

type pushResult int

const (
	pushAccepted pushResult = iota
	pushDroppedOldest
	pushOverflow
	pushClosed
)

// mailbox is the bounded per-connection outbound queue. Producers push
// under a mutex so enqueue order stays exact under concurrent broadcasts;
// the single drain goroutine reads the channel directly. Closing the
// mailbox discards whatever is still queued: a torn-down connection never
// receives late deliveries.
type mailbox struct {
	mu     sync.Mutex
	ch     chan domain.Message
	closed bool
}

func newMailbox(capacity int) *mailbox {
	if capacity < 1 {
		capacity = 1
	}
	return &mailbox{ch: make(chan domain.Message, capacity)}
}

// Push never blocks: a full mailbox resolves immediately via the policy.
func (m *mailbox) Push(msg domain.Message, policy OverflowPolicy) pushResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return pushClosed
	}

	select {
	case m.ch <- msg:
		return pushAccepted
	default:
	}

	if policy == DisconnectOnOverflow {
		return pushOverflow
	}

	// Drop-oldest: evict the head, then the slot is free. The drain
	// goroutine may have raced us for the head, in which case the push
	// below succeeds without an eviction having been needed.
	select {
	case <-m.ch:
	default:
	}
	select {
	case m.ch <- msg:
		return pushDroppedOldest
	default:
		return pushOverflow
	}
}

// C is the drain side handed to the session gateway via Subscribe.
func (m *mailbox) C() <-chan domain.Message {
	return m.ch
}

// Close tears the mailbox down. Queued messages are drained and discarded
// so the reader observes a closed channel promptly. Idempotent.
func (m *mailbox) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for {
		select {
		case <-m.ch:
		default:
			close(m.ch)
			return
		}
	}
}

func (m *mailbox) Len() int {
	return len(m.ch)
}

func (m *mailbox) Cap() int {
	return cap(m.ch)
}
