// Package inference drives token generation for one context: the streaming
// state machine, batch generation and the bookkeeping the memory governor
// charges for.
package inference

import (
	"time"

	"github.com/samcharles93/pocket/internal/logger"
	"github.com/samcharles93/pocket/internal/logits"
)

const (
	// DefaultWorkBytes sizes the per-context scratch arena.
	DefaultWorkBytes int64 = 16 << 20

	// MaxTokenBytes caps a single streamed token string.
	MaxTokenBytes = 256
	// MaxOutputBytes caps the text returned by Generate.
	MaxOutputBytes = 4096

	// CompactThreshold is the running context length above which Compact
	// trims it down to CompactKeep tokens.
	CompactThreshold = 1024
	CompactKeep      = 512
)

// State is the streaming state of a session.
type State uint8

const (
	Idle State = iota
	Streaming
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

type Stats struct {
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}

// Options configures a Session. Zero values take defaults.
type Options struct {
	WorkBytes int64
	Seed      int64
	Sampler   logits.SamplerConfig
	Logger    logger.Logger
}

func (o Options) withDefaults() Options {
	if o.WorkBytes <= 0 {
		o.WorkBytes = DefaultWorkBytes
	}
	if o.Logger == nil {
		o.Logger = logger.Discard()
	}
	return o
}
