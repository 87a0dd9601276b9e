package core

import "github.com/automoto/netcode/shared/messages"

// History is a bounded ring of the most recent snapshots, oldest evicted.
type History struct {
	buf   []messages.Snapshot
	head  int
	count int
}

// NewHistory creates a ring holding up to capacity snapshots.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{buf: make([]messages.Snapshot, capacity)}
}

// Push appends snap, evicting the oldest entry when full.
func (h *History) Push(snap messages.Snapshot) {
	if h.count < len(h.buf) {
		h.buf[(h.head+h.count)%len(h.buf)] = snap
		h.count++
		return
	}
	h.buf[h.head] = snap
	h.head = (h.head + 1) % len(h.buf)
}

// At returns the snapshot for tick t if it is still retained.
func (h *History) At(t uint32) (messages.Snapshot, bool) {
	if h.count == 0 {
		return messages.Snapshot{}, false
	}
	oldest := h.buf[h.head].Tick
	if t < oldest {
		return messages.Snapshot{}, false
	}
	// ticks are gapless, so the offset is the index
	i := int(t - oldest)
	if i >= h.count {
		return messages.Snapshot{}, false
	}
	snap := h.buf[(h.head+i)%len(h.buf)]
	if snap.Tick != t {
		return messages.Snapshot{}, false
	}
	return snap, true
}

// Latest returns the newest snapshot.
func (h *History) Latest() (messages.Snapshot, bool) {
	if h.count == 0 {
		return messages.Snapshot{}, false
	}
	return h.buf[(h.head+h.count-1)%len(h.buf)], true
}

// Oldest returns the oldest retained tick.
func (h *History) Oldest() (uint32, bool) {
	if h.count == 0 {
		return 0, false
	}
	return h.buf[h.head].Tick, true
}

// Len reports how many snapshots are retained.
func (h *History) Len() int {
	return h.count
}
