// Package logits turns a logits vector into a token id.
package logits

import (
	"math"
	"math/rand"
)

const (
	DefaultTemperature = 0.8
	DefaultTopK        = 50
)

// SamplerConfig configures the behaviour of a Sampler.
type SamplerConfig struct {
	Temperature float32
	TopK        int
	// Greedy always returns the highest logit.
	Greedy bool
}

// Sampler draws token ids with temperature scaling, a top-K shortlist and
// roulette selection. It keeps scratch slices between calls and is not safe
// for concurrent use.
type Sampler struct {
	rng    *rand.Rand
	cfg    SamplerConfig
	topIdx []int
	topVal []float32
	prob   []float64
}

// NewSampler returns a sampler drawing from rng. Zero config fields take the
// package defaults.
func NewSampler(cfg SamplerConfig, rng *rand.Rand) *Sampler {
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	return &Sampler{rng: rng, cfg: cfg}
}

// Config returns the effective configuration.
func (s *Sampler) Config() SamplerConfig { return s.cfg }

// Sample draws one index from logits. The steps are:
//
//  1. Scale by 1/temperature and keep the K largest values (K is capped by
//     the vocabulary size).
//  2. Softmax over the shortlist, subtracting its maximum first.
//  3. Draw r in [0,1) and return the first candidate whose cumulative
//     probability reaches r, or the last candidate if rounding leaves r
//     unreached.
//
// An empty logits slice yields 0.
func (s *Sampler) Sample(logits []float32) int {
	if len(logits) == 0 {
		return 0
	}
	if s.cfg.Greedy {
		return Argmax(logits)
	}

	k := min(s.cfg.TopK, len(logits))
	topIdx, topVal := s.topK(logits, k, 1/s.cfg.Temperature)

	maxv := topVal[0]
	if cap(s.prob) < len(topVal) {
		s.prob = make([]float64, len(topVal))
	}
	prob := s.prob[:len(topVal)]
	var sum float64
	for i, v := range topVal {
		prob[i] = math.Exp(float64(v - maxv))
		sum += prob[i]
	}
	if sum == 0 || math.IsNaN(sum) {
		return topIdx[0]
	}

	r := s.rng.Float64()
	var c float64
	for i, p := range prob {
		c += p / sum
		if r <= c {
			return topIdx[i]
		}
	}
	return topIdx[len(topIdx)-1]
}

// Argmax returns the index of the largest value, the first one on ties.
func Argmax(x []float32) int {
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}

// topK returns the k largest logits scaled by invTemp, largest first. NaN
// values are never selected unless nothing else is available.
func (s *Sampler) topK(logits []float32, k int, invTemp float32) ([]int, []float32) {
	if cap(s.topIdx) < k+1 {
		s.topIdx = make([]int, 0, k+1)
		s.topVal = make([]float32, 0, k+1)
	}
	topIdx := s.topIdx[:0]
	topVal := s.topVal[:0]

	for i, l := range logits {
		v := l * invTemp
		if v != v {
			continue
		}
		pos := len(topVal)
		for pos > 0 && topVal[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
		copy(topIdx[pos+1:], topIdx[pos:])
		copy(topVal[pos+1:], topVal[pos:])
		topIdx[pos] = i
		topVal[pos] = v
		if len(topVal) > k {
			topIdx = topIdx[:k]
			topVal = topVal[:k]
		}
	}
	if len(topIdx) == 0 {
		topIdx = append(topIdx, 0)
		topVal = append(topVal, 0)
	}
	s.topIdx, s.topVal = topIdx, topVal
	return topIdx, topVal
}
