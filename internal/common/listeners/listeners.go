// Package listeners keeps callbacks in registration order.
package listeners

// Set holds callbacks of type F in the order they were added. It is not safe
// for concurrent use; owners guard it with their own lock. The zero value is
// ready to use.
type Set[F any] struct {
	next    uint64
	entries []entry[F]
}

type entry[F any] struct {
	id uint64
	fn F
}

// Add appends fn and returns the handle that removes it.
func (s *Set[F]) Add(fn F) uint64 {
	s.next++
	s.entries = append(s.entries, entry[F]{id: s.next, fn: fn})
	return s.next
}

// Remove drops the callback registered under id. It reports false when id is
// unknown, so removing twice is harmless.
func (s *Set[F]) Remove(id uint64) bool {
	for i, e := range s.entries {
		if e.id == id {
			s.entries = append(s.entries[:i:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot copies the callbacks in registration order.
func (s *Set[F]) Snapshot() []F {
	out := make([]F, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.fn
	}
	return out
}

func (s *Set[F]) Len() int { return len(s.entries) }
