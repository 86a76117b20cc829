package gguf

import (
	"math"

	"github.com/samcharles93/pocket/internal/fault"
)

const (
	KeyArchitecture = "general.architecture"
	KeyTokens       = "tokenizer.ggml.tokens"

	defaultArchitecture  = "llama"
	defaultVocabSize     = 32000
	defaultEmbeddingDim  = 2048
	defaultHeadCount     = 32
	defaultLayerCount    = 22
	defaultContextLength = 2048
)

func GetString(kv map[string]Value, key string) (string, bool) {
	v, ok := kv[key]
	if !ok {
		return "", false
	}
	s, ok := v.Value.(string)
	return s, ok
}

func GetUint64(kv map[string]Value, key string) (uint64, bool) {
	v, ok := kv[key]
	if !ok {
		return 0, false
	}
	return asUint64(v.Value)
}

func GetFloat64(kv map[string]Value, key string) (float64, bool) {
	v, ok := kv[key]
	if !ok {
		return 0, false
	}
	switch t := v.Value.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}

// GetArray retrieves a slice of type T. Every element must assert to T.
func GetArray[T any](kv map[string]Value, key string) ([]T, bool) {
	v, ok := kv[key]
	if !ok {
		return nil, false
	}
	arr, ok := v.Value.(ArrayValue)
	if !ok {
		return nil, false
	}
	out := make([]T, 0, len(arr.Values))
	for _, item := range arr.Values {
		t, ok := item.(T)
		if !ok {
			return nil, false
		}
		out = append(out, t)
	}
	return out, true
}

// GetInt reads an unsigned key as int, falling back to def when the key is
// absent, mistyped or does not fit.
func GetInt(kv map[string]Value, key string, def int) int {
	u, ok := GetUint64(kv, key)
	if !ok || u > math.MaxInt32 {
		return def
	}
	return int(u)
}

// Hyperparameters are the architecture values the forward pass needs.
type Hyperparameters struct {
	Architecture  string `json:"architecture"`
	VocabSize     int    `json:"vocab_size"`
	EmbeddingDim  int    `json:"embedding_dim"`
	HeadCount     int    `json:"head_count"`
	LayerCount    int    `json:"layer_count"`
	ContextLength int    `json:"context_length"`
}

// Hyperparameters reads the well-known keys for the container's architecture.
// Absent keys take defaults rather than failing.
func (f *File) Hyperparameters() Hyperparameters {
	arch, ok := GetString(f.KV, KeyArchitecture)
	if !ok || arch == "" {
		arch = defaultArchitecture
	}
	vocabDefault := defaultVocabSize
	if v, ok := f.KV[KeyTokens]; ok {
		if arr, ok := v.Value.(ArrayValue); ok && len(arr.Values) > 0 {
			vocabDefault = len(arr.Values)
		}
	}
	return Hyperparameters{
		Architecture:  arch,
		VocabSize:     GetInt(f.KV, arch+".vocab_size", vocabDefault),
		EmbeddingDim:  GetInt(f.KV, arch+".embedding_length", defaultEmbeddingDim),
		HeadCount:     GetInt(f.KV, arch+".attention.head_count", defaultHeadCount),
		LayerCount:    GetInt(f.KV, arch+".block_count", defaultLayerCount),
		ContextLength: GetInt(f.KV, arch+".context_length", defaultContextLength),
	}
}

// Tokens returns the embedded token strings, if any.
func (f *File) Tokens() ([]string, bool) {
	return GetArray[string](f.KV, KeyTokens)
}

// Validate rejects hyperparameters the forward pass cannot run with.
func (h Hyperparameters) Validate() error {
	switch {
	case h.VocabSize < 4:
		return fault.New(fault.ErrFormat, "hyperparameters", "vocab_size %d must cover the 4 reserved ids", h.VocabSize)
	case h.EmbeddingDim <= 0:
		return fault.New(fault.ErrFormat, "hyperparameters", "embedding_dim %d must be positive", h.EmbeddingDim)
	case h.HeadCount <= 0:
		return fault.New(fault.ErrFormat, "hyperparameters", "head_count %d must be positive", h.HeadCount)
	case h.EmbeddingDim%h.HeadCount != 0:
		return fault.New(fault.ErrFormat, "hyperparameters", "embedding_dim %d is not divisible by head_count %d", h.EmbeddingDim, h.HeadCount)
	case h.LayerCount < 0:
		return fault.New(fault.ErrFormat, "hyperparameters", "layer_count %d is negative", h.LayerCount)
	case h.ContextLength <= 0:
		return fault.New(fault.ErrFormat, "hyperparameters", "context_length %d must be positive", h.ContextLength)
	}
	return nil
}
