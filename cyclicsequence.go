package eventbus

import "sync/atomic"

// cyclicCounter is the monotonic atomic cursor shared by CyclicSequence and
// the loop pool's lane picker. Grounded on the pack's round-robin executor
// pattern (atomic.Uint64 counter, index = counter % n), generalised into a
// standalone type since both callers need "pick the next index" and nothing
// else.
type cyclicCounter struct {
	n atomic.Uint64
}

func newCyclicCounter() *cyclicCounter {
	return &cyclicCounter{}
}

// next returns an index in [0, size) and advances the cursor by one. Callers
// racing next concurrently may observe the same index twice in a row; the
// cursor itself never goes backwards or skips (spec I3 "advances by exactly
// one per attempt").
func (c *cyclicCounter) next(size int) int {
	if size <= 0 {
		return 0
	}
	v := c.n.Add(1) - 1
	return int(v % uint64(size))
}

// CyclicSequence is an ordered, immutable-snapshot container of handler
// holders for one address, supporting atomic add/remove and a rotating
// next() selector for round-robin point-to-point delivery (spec §4.2).
//
// Every mutating method returns a *new* CyclicSequence; the receiver is left
// untouched. The registry swaps the pointer under its own synchronisation,
// so a CyclicSequence value itself needs no locking — iteration always sees
// a consistent snapshot (spec I5's "consistent snapshot" discipline applied
// to holder iteration, not just interceptors).
type CyclicSequence struct {
	holders []*HandlerHolder
	cursor  *cyclicCounter
}

// newCyclicSequence returns a sequence containing exactly one holder, with a
// fresh cursor.
func newCyclicSequence(holder *HandlerHolder) *CyclicSequence {
	return &CyclicSequence{
		holders: []*HandlerHolder{holder},
		cursor:  newCyclicCounter(),
	}
}

// Add returns a new sequence with holder appended after every existing
// holder, preserving insertion order (spec §4.1 register semantics). The
// cursor is shared with the receiver: appending does not reset round-robin
// fairness for callers already mid-rotation.
func (s *CyclicSequence) Add(holder *HandlerHolder) *CyclicSequence {
	next := make([]*HandlerHolder, len(s.holders)+1)
	copy(next, s.holders)
	next[len(s.holders)] = holder
	return &CyclicSequence{holders: next, cursor: s.cursor}
}

// Remove returns a new sequence omitting the first occurrence of holder (by
// pointer identity). If holder is not present, the returned sequence has the
// same contents as the receiver. The cursor is carried over unchanged: since
// index = counter % size and size shrinks, the effective position adjusts
// automatically modulo the new size (spec §4.2 "implicitly adjusts").
func (s *CyclicSequence) Remove(holder *HandlerHolder) *CyclicSequence {
	idx := -1
	for i, h := range s.holders {
		if h == holder {
			idx = i
			break
		}
	}
	if idx < 0 {
		return s
	}
	next := make([]*HandlerHolder, 0, len(s.holders)-1)
	next = append(next, s.holders[:idx]...)
	next = append(next, s.holders[idx+1:]...)
	return &CyclicSequence{holders: next, cursor: s.cursor}
}

// Next atomically advances the cursor and returns the holder at the
// pre-advance position modulo the current size. Returns nil only when the
// sequence is empty. Two concurrent callers may be handed the same holder;
// strict exclusive rotation is a best-effort fairness property, not a hard
// invariant (spec §4.2).
func (s *CyclicSequence) Next() *HandlerHolder {
	if len(s.holders) == 0 {
		return nil
	}
	idx := s.cursor.next(len(s.holders))
	return s.holders[idx]
}

// Size returns the number of holders in the snapshot.
func (s *CyclicSequence) Size() int {
	if s == nil {
		return 0
	}
	return len(s.holders)
}

// Holders returns the snapshot slice for fan-out iteration. Callers must
// treat the returned slice as read-only; CyclicSequence never mutates a
// published holders slice in place.
func (s *CyclicSequence) Holders() []*HandlerHolder {
	if s == nil {
		return nil
	}
	return s.holders
}
