package gguf

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/samcharles93/pocket/internal/quant"
)

// DemoSpec describes a small self-consistent container: an embedding table,
// per-layer attention projections and an output projection, all filled with
// seeded values. It backs `pocket gen` and test fixtures.
type DemoSpec struct {
	Architecture  string
	VocabSize     int
	EmbeddingDim  int
	HeadCount     int
	LayerCount    int
	ContextLength int
	// Tokens is written as tokenizer.ggml.tokens when non-empty; otherwise
	// loaders fall back to the built-in vocabulary.
	Tokens []string
	Kind   quant.Kind
	Seed   int64
}

// TinyDemo is a 2-layer, 4-head, 8-wide model over a 64-token vocabulary.
func TinyDemo() DemoSpec {
	return DemoSpec{
		Architecture:  defaultArchitecture,
		VocabSize:     64,
		EmbeddingDim:  8,
		HeadCount:     4,
		LayerCount:    2,
		ContextLength: 128,
		Kind:          quant.F32,
		Seed:          1,
	}
}

// Writer returns a Writer populated from s.
func (s DemoSpec) Writer() (*Writer, error) {
	hp := Hyperparameters{
		Architecture:  s.Architecture,
		VocabSize:     s.VocabSize,
		EmbeddingDim:  s.EmbeddingDim,
		HeadCount:     s.HeadCount,
		LayerCount:    s.LayerCount,
		ContextLength: s.ContextLength,
	}
	if hp.Architecture == "" {
		hp.Architecture = defaultArchitecture
	}
	if err := hp.Validate(); err != nil {
		return nil, err
	}

	w := NewWriter()
	arch := hp.Architecture
	w.SetString(KeyArchitecture, arch)
	w.SetString("general.name", "pocket-demo")
	w.SetUint32(arch+".vocab_size", uint32(hp.VocabSize))
	w.SetUint32(arch+".embedding_length", uint32(hp.EmbeddingDim))
	w.SetUint32(arch+".attention.head_count", uint32(hp.HeadCount))
	w.SetUint32(arch+".block_count", uint32(hp.LayerCount))
	w.SetUint32(arch+".context_length", uint32(hp.ContextLength))
	if len(s.Tokens) > 0 {
		w.SetStrings(KeyTokens, s.Tokens)
	}

	rng := rand.New(rand.NewSource(s.Seed))
	add := func(name string, dims ...int) error {
		n := 1
		udims := make([]uint64, len(dims))
		for i, d := range dims {
			n *= d
			udims[i] = uint64(d)
		}
		scale := float32(1 / math.Sqrt(float64(dims[0])))
		values := make([]float32, n)
		for i := range values {
			values[i] = float32(rng.NormFloat64()) * scale
		}
		payload, err := quant.Encode(s.Kind, values)
		if err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		return w.AddTensor(name, s.Kind, udims, payload)
	}

	d, v := hp.EmbeddingDim, hp.VocabSize
	if err := add("token_embd.weight", d, v); err != nil {
		return nil, err
	}
	for l := range hp.LayerCount {
		for _, proj := range []string{"attn_q", "attn_k", "attn_v", "attn_output"} {
			if err := add(fmt.Sprintf("blk.%d.%s.weight", l, proj), d, d); err != nil {
				return nil, err
			}
		}
	}
	if err := add("output.weight", d, v); err != nil {
		return nil, err
	}
	return w, nil
}

// WriteDemo writes the container described by s to path.
func WriteDemo(path string, s DemoSpec) error {
	w, err := s.Writer()
	if err != nil {
		return err
	}
	return w.WriteFile(path)
}
