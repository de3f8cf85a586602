package events

import "elementd/pkg/types"

// ring is a fixed-capacity history buffer that overwrites its oldest entry.
type ring struct {
	buf   []types.HistoryEntry
	head  int
	count int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]types.HistoryEntry, capacity)}
}

func (r *ring) push(e types.HistoryEntry) {
	idx := (r.head + r.count) % len(r.buf)
	if r.count == len(r.buf) {
		r.buf[r.head] = e
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[idx] = e
	r.count++
}

// entries returns a copy, oldest first.
func (r *ring) entries() []types.HistoryEntry {
	out := make([]types.HistoryEntry, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *ring) len() int { return r.count }
func (r *ring) cap() int { return len(r.buf) }
