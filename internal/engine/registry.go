package engine

import (
	"github.com/samcharles93/pocket/internal/model"
	"github.com/samcharles93/pocket/internal/slots"
)

type modelEntry struct {
	m    *model.Model
	seq  uint64
	refs int
	// forwards already reported to metrics
	reported int64
}

type contextEntry struct {
	s     session
	model slots.Handle
}

// registry is the governor's view of the engine tables. Every method runs
// with the engine lock held.
type registry struct{ e *Engine }

func (r registry) Usage() int64 {
	var n int64
	r.e.models.All(func(_ slots.Handle, me *modelEntry) bool {
		n += me.m.Footprint()
		return true
	})
	r.e.contexts.All(func(_ slots.Handle, ce *contextEntry) bool {
		n += ce.s.Footprint()
		return true
	})
	return n
}

func (r registry) Counts() (int, int) {
	return r.e.models.Len(), r.e.contexts.Len()
}

func (r registry) EvictIdleContexts() int {
	n := 0
	for _, h := range r.e.contexts.Handles() {
		ce, _ := r.e.contexts.Get(h)
		if ce.s.Streaming() {
			continue
		}
		r.e.dropContext(h)
		n++
	}
	return n
}

func (r registry) EvictAll() (int, int) {
	contexts := 0
	for _, h := range r.e.contexts.Handles() {
		r.e.dropContext(h)
		contexts++
	}

	var newest slots.Handle
	var newestSeq uint64
	r.e.models.All(func(h slots.Handle, me *modelEntry) bool {
		if newest == 0 || me.seq > newestSeq {
			newest, newestSeq = h, me.seq
		}
		return true
	})
	models := 0
	for _, h := range r.e.models.Handles() {
		if h == newest {
			continue
		}
		r.e.dropModel(h)
		models++
	}
	return contexts, models
}

func (r registry) CompactContexts() int64 {
	var n int64
	r.e.contexts.All(func(_ slots.Handle, ce *contextEntry) bool {
		n += ce.s.Compact()
		return true
	})
	return n
}

func (r registry) StorageIntact() bool {
	ok := true
	r.e.models.All(func(_ slots.Handle, me *modelEntry) bool {
		ok = me.m.OwnsStorage()
		return ok
	})
	return ok
}
