// Package projection builds local timelines from delivered messages.
// Handles ordering and deduplication on the consumer side.
// Does not emit messages or interact with the broker directly.
package projection

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"roomcast/domain"
)

// Timeline accumulates delivered messages in sequence order. Duplicate
// message ids are ignored, so replayed history merges cleanly with live
// traffic. Safe for concurrent use.
type Timeline struct {
	mu       sync.Mutex
	seen     map[uuid.UUID]struct{}
	messages []domain.Message
}

func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[uuid.UUID]struct{})}
}

// Add inserts the message unless its id was already observed.
// Returns true when the message was new.
func (t *Timeline) Add(msg domain.Message) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.seen[msg.ID]; ok {
		return false
	}
	t.seen[msg.ID] = struct{}{}
	t.messages = append(t.messages, msg)
	return true
}

// Ordered snapshots the timeline sorted by global sequence.
func (t *Timeline) Ordered() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}
