// Package forward runs the simplified transformer pass: positional
// embeddings, multi-head self-attention blocks with a feed-forward step, and a
// projection of the last position onto the vocabulary.
//
// The weights are not learned. Embeddings and the projection are fixed
// functions of token id, position and vocabulary id; the pass produces a score
// per vocabulary id that sampling can use.
package forward

import (
	"math"
	"math/rand"

	"github.com/samcharles93/pocket/internal/arena"
	"github.com/samcharles93/pocket/internal/fault"
)

const (
	positionalScale = 0.1
	ffnGain         = 1.5
	projectionScale = 0.1
	frequentBoost   = 0.5
	frequentIDs     = 100
	noiseAmplitude  = 0.1
)

// Config is the subset of hyperparameters the pass needs.
type Config struct {
	VocabSize int
	Dim       int
	Heads     int
	Layers    int
}

func (c Config) validate() error {
	switch {
	case c.VocabSize <= 0:
		return fault.New(fault.ErrInvalidArgument, "forward", "vocab size %d", c.VocabSize)
	case c.Dim <= 0 || c.Heads <= 0 || c.Dim%c.Heads != 0:
		return fault.New(fault.ErrInvalidArgument, "forward", "dim %d is not split by %d heads", c.Dim, c.Heads)
	case c.Layers < 0:
		return fault.New(fault.ErrInvalidArgument, "forward", "layers %d", c.Layers)
	}
	return nil
}

// ScratchFloats is the number of float32 values Forward takes from the
// scratch arena for a sequence of seq tokens, logits included.
func ScratchFloats(seq int, c Config) int {
	return 2*seq*c.Dim + seq*seq + c.VocabSize
}

// Forward returns vocab-size logits for the position after tokens. All space,
// the returned logits included, comes from scratch; exhausting it yields
// fault.ErrOutOfMemory. scratch is reset before returning, so the logits stay
// valid only until the next allocation from it. rng adds a small perturbation
// and may be nil.
func Forward(tokens []int, c Config, scratch *arena.Arena, rng *rand.Rand) ([]float32, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	seq := len(tokens)
	if seq == 0 {
		return nil, fault.New(fault.ErrInvalidArgument, "forward", "empty token sequence")
	}
	for _, id := range tokens {
		if id < 0 || id >= c.VocabSize {
			return nil, fault.New(fault.ErrInvalidArgument, "forward", "token id %d outside vocabulary of %d", id, c.VocabSize)
		}
	}

	defer scratch.Reset()
	hv, err := scratch.Alloc(seq * c.Dim)
	if err != nil {
		return nil, err
	}
	av, err := scratch.Alloc(seq * c.Dim)
	if err != nil {
		return nil, err
	}
	sv, err := scratch.Alloc(seq * seq)
	if err != nil {
		return nil, err
	}
	lv, err := scratch.Alloc(c.VocabSize)
	if err != nil {
		return nil, err
	}
	hidden, attn, scores, logits := hv.Floats(), av.Floats(), sv.Floats(), lv.Floats()

	embed(hidden, tokens, c)
	for range c.Layers {
		block(hidden, attn, scores, seq, c)
	}
	project(logits, hidden[(seq-1)*c.Dim:seq*c.Dim], rng)
	return logits, nil
}

func embed(out []float32, tokens []int, c Config) {
	seq := float64(len(tokens))
	vocab := float64(c.VocabSize)
	for i, id := range tokens {
		row := out[i*c.Dim : (i+1)*c.Dim]
		pos := float64(i) / seq
		for j := range row {
			base := float64(id+j)/vocab*2 - 1
			row[j] = float32(base + positionalScale*math.Sin(pos*math.Pi*float64(j+1)))
		}
	}
}

// block applies attention with a residual, then the feed-forward step with a
// residual, in place on hidden.
func block(hidden, attn, scores []float32, seq int, c Config) {
	dh := c.Dim / c.Heads
	scale := float32(1 / math.Sqrt(float64(dh)))
	clear(attn)

	for h := range c.Heads {
		off := h * dh
		for i := range seq {
			q := hidden[i*c.Dim+off : i*c.Dim+off+dh]
			row := scores[i*seq : (i+1)*seq]
			for j := range seq {
				k := hidden[j*c.Dim+off : j*c.Dim+off+dh]
				row[j] = dot(q, k) * scale
			}
			softmax(row)
			out := attn[i*c.Dim+off : i*c.Dim+off+dh]
			for j, w := range row {
				v := hidden[j*c.Dim+off : j*c.Dim+off+dh]
				for d := range out {
					out[d] += w * v[d]
				}
			}
		}
	}

	for i, x := range hidden {
		x += attn[i]
		hidden[i] = max(0, ffnGain*x) + x
	}
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// softmax normalises x in place, subtracting the maximum first.
func softmax(x []float32) {
	maxv := x[0]
	for _, v := range x[1:] {
		maxv = max(maxv, v)
	}
	var sum float32
	for i, v := range x {
		e := float32(math.Exp(float64(v - maxv)))
		x[i] = e
		sum += e
	}
	for i := range x {
		x[i] /= sum
	}
}

func project(logits, h []float32, rng *rand.Rand) {
	for v := range logits {
		var s float64
		for j, x := range h {
			s += float64(x) * projectionScale * math.Sin(0.1*float64(v)+0.01*float64(j))
		}
		if v < frequentIDs {
			s += frequentBoost
		}
		if rng != nil {
			s += (rng.Float64()*2 - 1) * noiseAmplitude
		}
		logits[v] = float32(s)
	}
}
