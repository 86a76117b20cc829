// Package engine is the call surface hosts use: it owns the model and
// context registries, consults the memory governor before every admission
// and keeps internal faults from reaching the caller.
package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samcharles93/pocket/internal/gguf"
	"github.com/samcharles93/pocket/internal/logger"
	"github.com/samcharles93/pocket/internal/logits"
	"github.com/samcharles93/pocket/internal/model"
)

// ModelHandle names a loaded model. Zero is never valid.
type ModelHandle uint64

// ContextHandle names an inference context. Zero is never valid.
type ContextHandle uint64

// Request bounds.
const (
	MaxTokensLimit = 2048
	MaxInputBytes  = 8192
)

const (
	// PlaceholderResponse replaces the output of a generation that failed
	// internally.
	PlaceholderResponse = "I apologize, but I encountered an error during processing. Please try again."
	// EmptyResponse is what hosts show for a generation that produced no text.
	EmptyResponse = "I apologize, but I couldn't generate a proper response. Please try again."
)

// ResponseText returns out, or EmptyResponse when out is empty.
func ResponseText(out string) string {
	if out == "" {
		return EmptyResponse
	}
	return out
}

// Options configures an Engine. Zero values take package defaults.
type Options struct {
	MemoryCeiling    int64
	ContextWorkBytes int64
	Model            model.Options
	Sampler          logits.SamplerConfig
	// Seed is the base seed; each context derives its own from it.
	Seed       int64
	Logger     logger.Logger
	Registerer prometheus.Registerer
}

// ModelInfo describes one loaded model.
type ModelInfo struct {
	Handle    ModelHandle          `json:"handle"`
	Path      string               `json:"path"`
	FileSize  int64                `json:"file_size"`
	Footprint int64                `json:"footprint_bytes"`
	Tensors   int                  `json:"tensors"`
	Contexts  int                  `json:"contexts"`
	Hyper     gguf.Hyperparameters `json:"hyperparameters"`
}

// ContextInfo describes one inference context.
type ContextInfo struct {
	Handle    ContextHandle `json:"handle"`
	Model     ModelHandle   `json:"model"`
	State     string        `json:"state"`
	Footprint int64         `json:"footprint_bytes"`
}

// SystemInfo is a snapshot of the engine.
type SystemInfo struct {
	Models      int           `json:"models"`
	Contexts    int           `json:"contexts"`
	MemoryUsage int64         `json:"memory_usage_bytes"`
	Ceiling     int64         `json:"memory_ceiling_bytes"`
	Healthy     bool          `json:"memory_healthy"`
	ModelInfo   []ModelInfo   `json:"model_info"`
	ContextInfo []ContextInfo `json:"context_info"`
}
