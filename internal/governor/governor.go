// Package governor keeps the bytes attributed to models and contexts under a
// ceiling, evicting in stages when an allocation would not fit.
package governor

import (
	"github.com/samcharles93/pocket/internal/fault"
	"github.com/samcharles93/pocket/internal/logger"
)

// DefaultCeiling is the memory ceiling used when none is configured.
const DefaultCeiling int64 = 512 << 20

// Registry is the view of the model and context tables the governor works
// on. The engine implements it; calls happen under the engine lock.
type Registry interface {
	// Usage is the byte total of every model and context.
	Usage() int64
	Counts() (models, contexts int)
	// EvictIdleContexts drops every context that is not streaming.
	EvictIdleContexts() int
	// EvictAll drops every context and every model except the most
	// recently created one.
	EvictAll() (contexts, models int)
	// CompactContexts trims the buffers of the remaining contexts.
	CompactContexts() int64
	// StorageIntact reports whether every model still owns its arena.
	StorageIntact() bool
}

// CleanupReport describes what one cleanup pass did.
type CleanupReport struct {
	IdleContexts int   `json:"idle_contexts_evicted"`
	Contexts     int   `json:"contexts_evicted"`
	Models       int   `json:"models_evicted"`
	Compacted    int64 `json:"compacted_bytes"`
	Healthy      bool  `json:"healthy"`
}

type Governor struct {
	ceiling int64
	reg     Registry
	metrics *Metrics
	log     logger.Logger
}

// New returns a governor over reg. A non-positive ceiling selects
// DefaultCeiling; metrics and log may be nil.
func New(reg Registry, ceiling int64, metrics *Metrics, log logger.Logger) *Governor {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	if log == nil {
		log = logger.Discard()
	}
	g := &Governor{ceiling: ceiling, reg: reg, metrics: metrics, log: log.With("component", "governor")}
	g.Publish()
	return g
}

func (g *Governor) Ceiling() int64 { return g.ceiling }
func (g *Governor) Usage() int64   { return g.reg.Usage() }

// SetCeiling changes the ceiling. Lowering it does not evict by itself; the
// next Admit or Cleanup does.
func (g *Governor) SetCeiling(bytes int64) error {
	if bytes <= 0 {
		return fault.New(fault.ErrInvalidArgument, "set ceiling", "ceiling %d must be positive", bytes)
	}
	g.ceiling = bytes
	g.log.Info("memory ceiling changed", "ceiling", bytes)
	g.Publish()
	return nil
}

func (g *Governor) fits(need int64) bool {
	return g.reg.Usage()+need <= g.ceiling
}

// Admit makes room for need more bytes. Idle contexts are evicted first;
// if that is not enough every context and every model but the newest go.
// A request larger than the ceiling fails without evicting anything.
func (g *Governor) Admit(need int64) error {
	defer g.Publish()
	if g.fits(need) {
		return nil
	}
	if need > g.ceiling {
		return fault.New(fault.ErrOutOfMemory, "admit", "%d bytes exceed the %d byte ceiling", need, g.ceiling)
	}

	if n := g.reg.EvictIdleContexts(); n > 0 {
		g.metrics.Evicted("context", "idle", n)
		g.log.Warn("evicted idle contexts", "count", n, "need", need, "usage", g.reg.Usage())
	}
	if g.fits(need) {
		return nil
	}

	contexts, models := g.reg.EvictAll()
	g.metrics.Evicted("context", "pressure", contexts)
	g.metrics.Evicted("model", "pressure", models)
	g.log.Warn("evicted under memory pressure", "contexts", contexts, "models", models, "need", need, "usage", g.reg.Usage())
	if g.fits(need) {
		return nil
	}
	return fault.New(fault.ErrOutOfMemory, "admit", "need %d bytes, %d of %d in use after eviction", need, g.reg.Usage(), g.ceiling)
}

// Cleanup evicts idle contexts and compacts the rest, then escalates to
// aggressive eviction if usage is still unhealthy.
func (g *Governor) Cleanup() CleanupReport {
	defer g.Publish()
	var r CleanupReport

	r.IdleContexts = g.reg.EvictIdleContexts()
	g.metrics.Evicted("context", "cleanup", r.IdleContexts)
	r.Compacted = g.reg.CompactContexts()

	if !g.Healthy() {
		r.Contexts, r.Models = g.reg.EvictAll()
		g.metrics.Evicted("context", "pressure", r.Contexts)
		g.metrics.Evicted("model", "pressure", r.Models)
	}
	r.Healthy = g.Healthy()
	g.log.Info("cleanup finished",
		"idle_contexts", r.IdleContexts,
		"contexts", r.Contexts,
		"models", r.Models,
		"compacted_bytes", r.Compacted,
		"usage", g.reg.Usage(),
		"healthy", r.Healthy,
	)
	return r
}

// Healthy reports whether usage is within the ceiling and no model has lost
// its storage.
func (g *Governor) Healthy() bool {
	return g.reg.Usage() <= g.ceiling && g.reg.StorageIntact()
}

// Publish pushes the current totals to the metrics.
func (g *Governor) Publish() {
	models, contexts := g.reg.Counts()
	g.metrics.Observe(g.reg.Usage(), g.ceiling, models, contexts)
}

func (g *Governor) Metrics() *Metrics { return g.metrics }
