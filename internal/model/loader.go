package model

import (
	"math/rand"
	"strings"

	"github.com/samcharles93/pocket/internal/arena"
	"github.com/samcharles93/pocket/internal/fault"
	"github.com/samcharles93/pocket/internal/gguf"
	"github.com/samcharles93/pocket/internal/logger"
	"github.com/samcharles93/pocket/internal/quant"
	"github.com/samcharles93/pocket/internal/tokenizer"
)

const (
	DefaultMaxTensors    = 8
	DefaultArenaBytes    = 32 << 20
	DefaultMaxFileBytes  = 1 << 30
	minArenaBytes        = 64 << 10
	syntheticEmbedLength = 64
	syntheticOutLength   = 32
)

// selectPatterns are the name fragments of tensors a minimal forward pass uses.
var selectPatterns = []string{
	"token_embd",
	"output.weight",
	"attn_q",
	"attn_k",
	"attn_v",
	"attn_output",
}

// Options bound what a load may consume.
type Options struct {
	MaxTensors    int
	MaxArenaBytes int64
	MaxFileBytes  int64
	Seed          int64
	Logger        logger.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxTensors <= 0 {
		o.MaxTensors = DefaultMaxTensors
	}
	if o.MaxArenaBytes <= 0 {
		o.MaxArenaBytes = DefaultArenaBytes
	}
	if o.MaxArenaBytes < minArenaBytes {
		o.MaxArenaBytes = minArenaBytes
	}
	if o.MaxFileBytes <= 0 {
		o.MaxFileBytes = DefaultMaxFileBytes
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	return o
}

// Plan is a validated container awaiting admission. Nothing large has been
// allocated yet; Footprint is what Load will charge.
type Plan struct {
	Path       string
	FileSize   int64
	Hyper      gguf.Hyperparameters
	VocabBytes int64
	ArenaBytes int64
	Selected   []gguf.TensorInfo

	tokens []string
	file   *gguf.File
	opts   Options
}

// Inspect opens path, validates the header and hyperparameters, sizes the
// vocabulary and picks the tensors to decode. The caller must Load or Close
// the plan.
func Inspect(path string, opts Options) (*Plan, error) {
	opts = opts.withDefaults()

	f, err := gguf.Open(path)
	if err != nil {
		return nil, err
	}
	if f.Size > opts.MaxFileBytes {
		_ = f.Close()
		return nil, fault.New(fault.ErrOutOfMemory, "inspect model", "%s is %d bytes, limit %d", path, f.Size, opts.MaxFileBytes)
	}

	hp := f.Hyperparameters()
	if err := hp.Validate(); err != nil {
		_ = f.Close()
		return nil, err
	}

	tokens, _ := f.Tokens()
	vocabBytes, err := tokenizer.EstimateBytes(tokens, hp.VocabSize)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return &Plan{
		Path:       path,
		FileSize:   f.Size,
		Hyper:      hp,
		VocabBytes: vocabBytes,
		ArenaBytes: clamp(int64(f.PayloadBytes()), minArenaBytes, opts.MaxArenaBytes),
		Selected:   selectTensors(f.Tensors, opts.MaxTensors),
		tokens:     tokens,
		file:       f,
		opts:       opts,
	}, nil
}

func selectTensors(all []gguf.TensorInfo, limit int) []gguf.TensorInfo {
	var out []gguf.TensorInfo
	for _, t := range all {
		if len(out) == limit {
			break
		}
		if !t.Supported {
			continue
		}
		for _, p := range selectPatterns {
			if strings.Contains(t.Name, p) {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

func clamp(v, lo, hi int64) int64 {
	return max(lo, min(v, hi))
}

// Footprint is the byte total the model will be charged once loaded.
func (p *Plan) Footprint() int64 {
	return p.ArenaBytes + p.VocabBytes
}

// VocabFallback reports whether the built-in token list will be used.
func (p *Plan) VocabFallback() bool { return len(p.tokens) == 0 }

// VocabPreview returns the first n token strings the loaded vocabulary will
// hold, without building the whole of it.
func (p *Plan) VocabPreview(n int) []string {
	n = min(n, p.Hyper.VocabSize)
	if n <= 0 {
		return nil
	}
	v, err := tokenizer.NewVocabulary(p.tokens, max(n, tokenizer.EOSID+1))
	if err != nil {
		return nil
	}
	out := make([]string, n)
	for id := range out {
		out[id], _ = v.Token(id)
	}
	return out
}

// Close abandons the plan.
func (p *Plan) Close() error {
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// Load allocates the arena and decodes the selected tensors. Decoding stops
// at the first tensor that fails; when nothing decodes, two synthetic tensors
// are created instead. The container is closed on return.
func (p *Plan) Load() (*Model, error) {
	if p.file == nil {
		return nil, fault.New(fault.ErrInvalidArgument, "load model", "plan already consumed")
	}
	defer func() { _ = p.Close() }()

	log := p.opts.Logger
	vocab, err := tokenizer.NewVocabulary(p.tokens, p.Hyper.VocabSize)
	if err != nil {
		return nil, err
	}
	ar, err := arena.New(p.ArenaBytes)
	if err != nil {
		return nil, fault.Wrap(fault.ErrOutOfMemory, "load model", err)
	}

	m := &Model{
		Path:     p.Path,
		FileSize: p.FileSize,
		Hyper:    p.Hyper,
		Vocab:    vocab,
		tok:      tokenizer.NewWord(vocab),
		byName:   make(map[string]*TensorBuffer),
		arena:    ar,
	}
	rng := rand.New(rand.NewSource(p.opts.Seed))

	for _, info := range p.Selected {
		tb, err := decodeTensor(p.file, ar, info, rng)
		if err != nil {
			log.Warn("tensor decode stopped", "tensor", info.Name, "type", info.TypeName(), "error", err)
			break
		}
		m.add(tb)
		level := log.Debug
		if tb.Source == quant.SourcePlaceholder {
			level = log.Warn
		}
		level("tensor loaded", "tensor", tb.Name, "type", tb.Kind.String(), "elements", tb.Len(), "source", tb.Source.String())
	}

	if len(m.tensors) == 0 {
		if err := m.synthesize(rng); err != nil {
			return nil, err
		}
		log.Warn("no tensors decoded, using synthetic tensors", "path", p.Path)
	}
	return m, nil
}

func decodeTensor(f *gguf.File, ar *arena.Arena, info gguf.TensorInfo, rng *rand.Rand) (*TensorBuffer, error) {
	payload, err := f.Payload(info)
	if err != nil {
		return nil, err
	}
	n := info.Kind.ElementCount(int64(info.Size))
	if n == 0 {
		return nil, fault.New(fault.ErrFormat, "decode tensor", "%s: no whole block in %d bytes", info.Name, info.Size)
	}
	view, err := ar.Alloc(n)
	if err != nil {
		return nil, err
	}
	src, err := quant.Decode(info.Kind, payload, view.Floats(), rng)
	if err != nil {
		return nil, fault.Wrap(fault.ErrFormat, "decode tensor "+info.Name, err)
	}
	return &TensorBuffer{
		Name:     info.Name,
		Kind:     info.Kind,
		ByteSize: info.Size,
		Source:   src,
		view:     view,
	}, nil
}

func (m *Model) add(t *TensorBuffer) {
	m.tensors = append(m.tensors, t)
	if _, dup := m.byName[t.Name]; !dup {
		m.byName[t.Name] = t
	}
}

func (m *Model) synthesize(rng *rand.Rand) error {
	for _, spec := range []struct {
		name string
		n    int
	}{
		{"token_embd.weight", syntheticEmbedLength},
		{"output.weight", syntheticOutLength},
	} {
		view, err := m.arena.Alloc(spec.n)
		if err != nil {
			return err
		}
		data := view.Floats()
		for i := range data {
			data[i] = (rng.Float32()*2 - 1) * 0.1
		}
		m.add(&TensorBuffer{
			Name:     spec.name,
			Kind:     quant.F32,
			ByteSize: uint64(spec.n) * 4,
			Source:   quant.SourceSynthetic,
			view:     view,
		})
	}
	return nil
}
