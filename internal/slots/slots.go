// Package slots is a generational slot table. A handle names a slot and the
// generation it was issued in, so a freed handle never resolves again even
// after the slot is reused.
package slots

// Handle is the opaque identifier returned to callers. Zero is never issued.
type Handle uint64

func makeHandle(idx int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(idx+1))
}

func (h Handle) split() (int, uint32) {
	return int(uint32(h)) - 1, uint32(h >> 32)
}

type slot[T any] struct {
	gen  uint32
	live bool
	val  T
}

// Table stores values of type T behind handles. Not safe for concurrent use.
type Table[T any] struct {
	slots []slot[T]
	free  []int
	count int
}

// Insert stores v and returns its handle.
func (t *Table[T]) Insert(v T) Handle {
	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot[T]{})
		idx = len(t.slots) - 1
	}
	s := &t.slots[idx]
	s.gen++
	s.live = true
	s.val = v
	t.count++
	return makeHandle(idx, s.gen)
}

// Get resolves h.
func (t *Table[T]) Get(h Handle) (T, bool) {
	var zero T
	idx, gen := h.split()
	if idx < 0 || idx >= len(t.slots) {
		return zero, false
	}
	s := &t.slots[idx]
	if !s.live || s.gen != gen {
		return zero, false
	}
	return s.val, true
}

// Remove releases h and returns the stored value.
func (t *Table[T]) Remove(h Handle) (T, bool) {
	v, ok := t.Get(h)
	if !ok {
		return v, false
	}
	idx, _ := h.split()
	var zero T
	t.slots[idx].live = false
	t.slots[idx].val = zero
	t.free = append(t.free, idx)
	t.count--
	return v, true
}

func (t *Table[T]) Len() int { return t.count }

// All calls fn for every live entry in slot order until fn returns false.
func (t *Table[T]) All(fn func(Handle, T) bool) {
	for i := range t.slots {
		s := &t.slots[i]
		if !s.live {
			continue
		}
		if !fn(makeHandle(i, s.gen), s.val) {
			return
		}
	}
}

// Handles returns the live handles in slot order.
func (t *Table[T]) Handles() []Handle {
	out := make([]Handle, 0, t.count)
	t.All(func(h Handle, _ T) bool {
		out = append(out, h)
		return true
	})
	return out
}
