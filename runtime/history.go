package runtime

import (
	"roomcast/domain"
)

// history is the per-room bounded log of recent messages, replayed to late
// joiners. It is a fixed-capacity ring: appending to a full buffer evicts
// the oldest entry. Not safe for concurrent use on its own; the owning
// directory shard serializes access.
type history struct {
	entries []domain.Message
	head    int
	size    int
}

func newHistory(capacity int) *history {
	if capacity < 0 {
		capacity = 0
	}
	return &history{entries: make([]domain.Message, capacity)}
}

func (h *history) Append(msg domain.Message) {
	if len(h.entries) == 0 {
		return
	}
	tail := (h.head + h.size) % len(h.entries)
	h.entries[tail] = msg
	if h.size < len(h.entries) {
		h.size++
		return
	}
	// Full: the slot we just wrote was the oldest one.
	h.head = (h.head + 1) % len(h.entries)
}

// Snapshot copies up to maxCount entries, oldest first, reflecting the
// buffer state at call time. A negative maxCount means "everything".
func (h *history) Snapshot(maxCount int) []domain.Message {
	count := h.size
	if maxCount >= 0 && maxCount < count {
		count = maxCount
	}
	if count == 0 {
		return nil
	}
	// When truncating we keep the most recent entries, skipping the oldest.
	start := h.head + (h.size - count)
	out := make([]domain.Message, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, h.entries[(start+i)%len(h.entries)])
	}
	return out
}

func (h *history) Len() int {
	return h.size
}
