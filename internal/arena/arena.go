// Package arena provides fixed-capacity float32 storage that hands out
// contiguous views and is released all at once.
package arena

import (
	"github.com/samcharles93/pocket/internal/fault"
)

const floatBytes = 4

// Arena is a bump allocator over a single float32 slab. It is not safe for
// concurrent use; owners serialise access.
type Arena struct {
	buf  []float32
	used int
}

// New allocates an arena able to hold capBytes worth of float32 values.
func New(capBytes int64) (*Arena, error) {
	if capBytes <= 0 {
		return nil, fault.New(fault.ErrInvalidArgument, "arena", "capacity %d must be positive", capBytes)
	}
	return &Arena{buf: make([]float32, capBytes/floatBytes)}, nil
}

// View is an offset/length window into an arena. The zero View is empty.
type View struct {
	a   *Arena
	off int
	n   int
}

// Alloc reserves n contiguous values. The returned view is zeroed.
func (a *Arena) Alloc(n int) (View, error) {
	if n < 0 {
		return View{}, fault.New(fault.ErrInvalidArgument, "arena alloc", "negative length %d", n)
	}
	if a.used+n > len(a.buf) {
		return View{}, fault.New(fault.ErrOutOfMemory, "arena alloc",
			"need %d bytes, %d of %d free", n*floatBytes, a.Free(), a.Cap())
	}
	v := View{a: a, off: a.used, n: n}
	clear(a.buf[a.used : a.used+n])
	a.used += n
	return v, nil
}

// Reset drops every view. Views taken before Reset must not be used again.
func (a *Arena) Reset() { a.used = 0 }

// Cap is the capacity in bytes.
func (a *Arena) Cap() int64 { return int64(len(a.buf)) * floatBytes }

// Used is the allocated size in bytes.
func (a *Arena) Used() int64 { return int64(a.used) * floatBytes }

// Free is the remaining size in bytes.
func (a *Arena) Free() int64 { return a.Cap() - a.Used() }

func (v View) Len() int { return v.n }

// Floats exposes the view. The slice is capacity-limited so appends never
// spill into neighbouring views.
func (v View) Floats() []float32 {
	if v.a == nil {
		return nil
	}
	return v.a.buf[v.off : v.off+v.n : v.off+v.n]
}

// Owner reports the arena backing v.
func (v View) Owner() *Arena { return v.a }
