package engine

import (
	"sync"

	"github.com/samcharles93/pocket/internal/fault"
	"github.com/samcharles93/pocket/internal/governor"
	"github.com/samcharles93/pocket/internal/inference"
	"github.com/samcharles93/pocket/internal/logger"
	"github.com/samcharles93/pocket/internal/model"
	"github.com/samcharles93/pocket/internal/slots"
)

// session is the part of *inference.Session the engine drives.
type session interface {
	Model() *model.Model
	State() inference.State
	Streaming() bool
	Start(text string, maxTokens int) error
	Next() (string, error)
	Stop()
	Complete() bool
	Generate(text string, maxTokens int, greedy bool) (string, inference.Stats, error)
	Footprint() int64
	Compact() int64
}

// Engine holds every loaded model and context. All methods are safe for
// concurrent use and are serialized by one lock.
type Engine struct {
	mu       sync.Mutex
	opts     Options
	models   slots.Table[*modelEntry]
	contexts slots.Table[*contextEntry]
	gov      *governor.Governor
	metrics  *governor.Metrics
	log      logger.Logger

	modelSeq   uint64
	contextSeq int64

	newSession func(*model.Model, inference.Options) (session, error)
}

// New returns an empty engine.
func New(opts Options) *Engine {
	if opts.ContextWorkBytes <= 0 {
		opts.ContextWorkBytes = inference.DefaultWorkBytes
	}
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	e := &Engine{
		opts:    opts,
		metrics: governor.NewMetrics(opts.Registerer),
		log:     opts.Logger.With("component", "engine"),
		newSession: func(m *model.Model, o inference.Options) (session, error) {
			return inference.New(m, o)
		},
	}
	e.opts.Model.Logger = opts.Logger.With("component", "loader")
	e.gov = governor.New(registry{e}, opts.MemoryCeiling, e.metrics, opts.Logger)
	return e
}

// LoadModel reads and decodes the model at path. On failure the handle is
// zero and no registry state changes.
func (e *Engine) LoadModel(path string) (h ModelHandle, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.guard("load_model", &err)

	plan, err := model.Inspect(path, e.opts.Model)
	if err != nil {
		e.log.Error("model rejected", "path", path, "error", err)
		return 0, err
	}
	defer plan.Close()

	if err := e.gov.Admit(plan.Footprint()); err != nil {
		e.log.Error("model does not fit", "path", path, "need", plan.Footprint(), "error", err)
		return 0, err
	}
	m, err := plan.Load()
	if err != nil {
		e.log.Error("model load failed", "path", path, "error", err)
		return 0, err
	}
	for _, t := range m.Tensors() {
		e.metrics.TensorLoaded(t.Source.String())
	}

	e.modelSeq++
	sh := e.models.Insert(&modelEntry{m: m, seq: e.modelSeq})
	e.log.Info("model loaded",
		"handle", uint64(sh),
		"path", path,
		"arch", m.Hyper.Architecture,
		"vocab", m.Hyper.VocabSize,
		"layers", m.Hyper.LayerCount,
		"tensors", len(m.Tensors()),
		"footprint", m.Footprint(),
	)
	e.logMemory("after load")
	e.gov.Publish()
	return ModelHandle(sh), nil
}

// CreateContext creates an idle context on model mh.
func (e *Engine) CreateContext(mh ModelHandle) (h ContextHandle, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.guard("create_context", &err)

	if _, ok := e.models.Get(slots.Handle(mh)); !ok {
		return 0, fault.New(fault.ErrInvalidHandle, "create context", "unknown model %d", mh)
	}
	if err := e.gov.Admit(e.opts.ContextWorkBytes); err != nil {
		return 0, err
	}
	// admission may have evicted the model under pressure
	me, ok := e.models.Get(slots.Handle(mh))
	if !ok {
		return 0, fault.New(fault.ErrOutOfMemory, "create context", "model %d was evicted to make room", mh)
	}

	e.contextSeq++
	s, err := e.newSession(me.m, inference.Options{
		WorkBytes: e.opts.ContextWorkBytes,
		Seed:      e.opts.Seed + e.contextSeq,
		Sampler:   e.opts.Sampler,
		Logger:    e.opts.Logger.With("component", "session"),
	})
	if err != nil {
		return 0, err
	}
	me.refs++
	sh := e.contexts.Insert(&contextEntry{s: s, model: slots.Handle(mh)})
	e.log.Debug("context created", "handle", uint64(sh), "model", uint64(mh))
	e.gov.Publish()
	return ContextHandle(sh), nil
}

func validateRequest(text string, maxTokens int) error {
	if maxTokens <= 0 || maxTokens > MaxTokensLimit {
		return fault.New(fault.ErrInvalidArgument, "validate", "max tokens %d outside 1..%d", maxTokens, MaxTokensLimit)
	}
	if len(text) == 0 || len(text) > MaxInputBytes {
		return fault.New(fault.ErrInvalidArgument, "validate", "input of %d bytes outside 1..%d", len(text), MaxInputBytes)
	}
	return nil
}

func (e *Engine) context(ch ContextHandle) (*contextEntry, error) {
	ce, ok := e.contexts.Get(slots.Handle(ch))
	if !ok {
		return nil, fault.New(fault.ErrInvalidHandle, "context", "unknown context %d", ch)
	}
	if _, ok := e.models.Get(ce.model); !ok {
		return nil, fault.New(fault.ErrInvalidHandle, "context", "context %d refers to an unloaded model", ch)
	}
	return ce, nil
}

// Generate runs a whole generation on ch and returns the text, which may be
// empty. Internal faults are recovered and turned into PlaceholderResponse.
func (e *Engine) Generate(ch ContextHandle, text string, maxTokens int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := validateRequest(text, maxTokens); err != nil {
		return "", err
	}
	if _, err := e.context(ch); err != nil {
		return "", err
	}
	if !e.gov.Healthy() {
		e.log.Warn("memory unhealthy before generation, recovering")
		if !e.gov.Cleanup().Healthy {
			return "", fault.New(fault.ErrOutOfMemory, "generate", "memory recovery failed")
		}
	}
	ce, err := e.context(ch)
	if err != nil {
		return "", err
	}

	out, stats, err := e.safeGenerate(ce.s, text, maxTokens)
	e.reportForwards(ce.model)
	switch {
	case fault.IsInternal(err):
		ce.s.Stop()
		e.log.Error("generation failed, returning placeholder", "context", uint64(ch), "error", err)
		if !e.gov.Healthy() {
			e.gov.Cleanup()
		}
		return PlaceholderResponse, nil
	case err != nil:
		return "", err
	}

	e.metrics.TokensGenerated(stats.TokensGenerated)
	e.log.Debug("generation finished",
		"context", uint64(ch),
		"tokens", stats.TokensGenerated,
		"duration", stats.Duration,
		"tps", stats.TPS,
	)
	e.gov.Publish()
	return out, nil
}

func (e *Engine) safeGenerate(s session, text string, maxTokens int) (out string, stats inference.Stats, err error) {
	defer e.guard("generate", &err)
	return s.Generate(text, maxTokens, e.opts.Sampler.Greedy)
}

// StartStreaming begins a streaming run on ch.
func (e *Engine) StartStreaming(ch ContextHandle, text string, maxTokens int) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.guard("start_streaming", &err)

	if err := validateRequest(text, maxTokens); err != nil {
		return err
	}
	ce, err := e.context(ch)
	if err != nil {
		return err
	}
	if err := ce.s.Start(text, maxTokens); err != nil {
		return err
	}
	e.gov.Publish()
	return nil
}

// NextStreamingToken returns the next token string of the run on ch, or ""
// when there is none. A failed step stops the run.
func (e *Engine) NextStreamingToken(ch ContextHandle) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ce, err := e.context(ch)
	if err != nil {
		return "", err
	}
	tok, err := e.safeNext(ce.s)
	e.reportForwards(ce.model)
	if err != nil {
		ce.s.Stop()
		e.log.Error("streaming step failed", "context", uint64(ch), "error", err)
		return "", err
	}
	if tok != "" {
		e.metrics.TokensGenerated(1)
	}
	return tok, nil
}

func (e *Engine) safeNext(s session) (tok string, err error) {
	defer e.guard("next_streaming_token", &err)
	return s.Next()
}

// IsStreamingComplete reports whether ch has nothing more to stream. Unknown
// handles are complete.
func (e *Engine) IsStreamingComplete(ch ContextHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ce, err := e.context(ch)
	if err != nil {
		return true
	}
	return ce.s.Complete()
}

// StopStreaming ends the run on ch and discards its output.
func (e *Engine) StopStreaming(ch ContextHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ce, err := e.context(ch)
	if err != nil {
		return err
	}
	ce.s.Stop()
	e.gov.Publish()
	return nil
}

// FreeContext destroys ch.
func (e *Engine) FreeContext(ch ContextHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.dropContext(slots.Handle(ch)) {
		return fault.New(fault.ErrInvalidHandle, "free context", "unknown context %d", ch)
	}
	e.logMemory("after context free")
	e.gov.Publish()
	return nil
}

// FreeModel destroys mh. It is rejected while any context refers to it.
func (e *Engine) FreeModel(mh ModelHandle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	me, ok := e.models.Get(slots.Handle(mh))
	if !ok {
		return fault.New(fault.ErrInvalidHandle, "free model", "unknown model %d", mh)
	}
	if me.refs > 0 {
		e.log.Warn("model still referenced", "handle", uint64(mh), "contexts", me.refs)
		return fault.New(fault.ErrInvalidArgument, "free model", "model %d is used by %d contexts", mh, me.refs)
	}
	e.dropModel(slots.Handle(mh))
	e.logMemory("after model free")
	e.gov.Publish()
	return nil
}

// MemoryUsage is the byte total of every model and context.
func (e *Engine) MemoryUsage() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gov.Usage()
}

func (e *Engine) IsMemoryHealthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gov.Healthy()
}

// ForceCleanup evicts idle contexts, compacts the rest and escalates while
// memory stays unhealthy.
func (e *Engine) ForceCleanup() governor.CleanupReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.gov.Cleanup()
	e.logMemory("after cleanup")
	return r
}

// RecoverFromError runs a cleanup after a failure and reports whether memory
// is healthy again.
func (e *Engine) RecoverFromError() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.log.Info("recovery requested")
	if e.gov.Healthy() {
		return true
	}
	ok := e.gov.Cleanup().Healthy
	if ok {
		e.log.Info("recovery succeeded")
	} else {
		e.log.Error("recovery failed", "usage", e.gov.Usage(), "ceiling", e.gov.Ceiling())
	}
	return ok
}

// SetMemoryCeiling changes the governor ceiling, for example when the host
// reports memory pressure.
func (e *Engine) SetMemoryCeiling(bytes int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gov.SetCeiling(bytes)
}

// SystemInfo returns a snapshot of the registries.
func (e *Engine) SystemInfo() SystemInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	info := SystemInfo{
		Models:      e.models.Len(),
		Contexts:    e.contexts.Len(),
		MemoryUsage: e.gov.Usage(),
		Ceiling:     e.gov.Ceiling(),
		Healthy:     e.gov.Healthy(),
		ModelInfo:   []ModelInfo{},
		ContextInfo: []ContextInfo{},
	}
	e.models.All(func(h slots.Handle, me *modelEntry) bool {
		info.ModelInfo = append(info.ModelInfo, ModelInfo{
			Handle:    ModelHandle(h),
			Path:      me.m.Path,
			FileSize:  me.m.FileSize,
			Footprint: me.m.Footprint(),
			Tensors:   len(me.m.Tensors()),
			Contexts:  me.refs,
			Hyper:     me.m.Hyper,
		})
		return true
	})
	e.contexts.All(func(h slots.Handle, ce *contextEntry) bool {
		info.ContextInfo = append(info.ContextInfo, ContextInfo{
			Handle:    ContextHandle(h),
			Model:     ModelHandle(ce.model),
			State:     ce.s.State().String(),
			Footprint: ce.s.Footprint(),
		})
		return true
	})
	return info
}

// Metrics exposes the engine collectors.
func (e *Engine) Metrics() *governor.Metrics { return e.metrics }

func (e *Engine) dropContext(h slots.Handle) bool {
	ce, ok := e.contexts.Remove(h)
	if !ok {
		return false
	}
	ce.s.Stop()
	if me, ok := e.models.Get(ce.model); ok {
		me.refs--
	}
	return true
}

func (e *Engine) dropModel(h slots.Handle) {
	me, ok := e.models.Remove(h)
	if !ok {
		return
	}
	me.m.Release()
}

func (e *Engine) reportForwards(h slots.Handle) {
	me, ok := e.models.Get(h)
	if !ok {
		return
	}
	n := me.m.Forwards()
	e.metrics.ForwardPasses(n - me.reported)
	me.reported = n
}

func (e *Engine) logMemory(when string) {
	e.log.Info("memory stats",
		"when", when,
		"usage", e.gov.Usage(),
		"ceiling", e.gov.Ceiling(),
		"models", e.models.Len(),
		"contexts", e.contexts.Len(),
	)
}

// guard converts a panic in the current call into an internal error.
func (e *Engine) guard(op string, err *error) {
	if rec := recover(); rec != nil {
		e.metrics.Recovered(op)
		e.log.Error("recovered panic", "op", op, "panic", rec)
		*err = fault.New(fault.ErrInternal, op, "panic: %v", rec)
	}
}
