package inference

import (
	"math/rand"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samcharles93/pocket/internal/arena"
	"github.com/samcharles93/pocket/internal/fault"
	"github.com/samcharles93/pocket/internal/forward"
	"github.com/samcharles93/pocket/internal/logger"
	"github.com/samcharles93/pocket/internal/logits"
	"github.com/samcharles93/pocket/internal/model"
	"github.com/samcharles93/pocket/internal/tokenizer"
)

// Session is the run state of one inference context. It is not safe for
// concurrent use; the engine serializes access.
type Session struct {
	model   *model.Model
	vocab   *tokenizer.Vocabulary
	tok     tokenizer.Tokenizer
	forward func(tokens []int) ([]float32, error)
	work    *arena.Arena
	rng     *rand.Rand
	sampler *logits.Sampler
	greedy  *logits.Sampler
	log     logger.Logger

	state     State
	input     []int
	running   []int
	generated []int
	logits    []float32
	max       int
	count     int
}

// New creates an idle session over m with its own scratch arena.
func New(m *model.Model, opts Options) (*Session, error) {
	if m == nil {
		return nil, fault.New(fault.ErrInvalidArgument, "session", "model is required")
	}
	opts = opts.withDefaults()
	work, err := arena.New(opts.WorkBytes)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	greedyCfg := opts.Sampler
	greedyCfg.Greedy = true

	s := &Session{
		model:   m,
		vocab:   m.Vocab,
		tok:     m.Tokenizer(),
		work:    work,
		rng:     rng,
		sampler: logits.NewSampler(opts.Sampler, rng),
		greedy:  logits.NewSampler(greedyCfg, rng),
		log:     opts.Logger,
	}
	cfg := forward.Config{
		VocabSize: m.Hyper.VocabSize,
		Dim:       m.Hyper.EmbeddingDim,
		Heads:     m.Hyper.HeadCount,
		Layers:    m.Hyper.LayerCount,
	}
	s.forward = func(tokens []int) ([]float32, error) {
		m.CountForward()
		return forward.Forward(tokens, cfg, s.work, s.rng)
	}
	return s, nil
}

func (s *Session) Model() *model.Model { return s.model }
func (s *Session) State() State        { return s.state }
func (s *Session) Streaming() bool     { return s.state == Streaming }

// Generated returns the ids produced since the last Start.
func (s *Session) Generated() []int { return s.generated }

// Start tokenizes text and begins a streaming run of at most maxTokens tokens.
func (s *Session) Start(text string, maxTokens int) error {
	if s.state == Streaming {
		return fault.New(fault.ErrAlreadyStreaming, "start", "context is already streaming")
	}
	if maxTokens <= 0 {
		return fault.New(fault.ErrInvalidArgument, "start", "max tokens %d", maxTokens)
	}
	ids, err := safeEncode(s.tok, text)
	if err != nil {
		return err
	}

	s.input = ids
	s.running = slices.Clone(ids)
	s.generated = s.generated[:0]
	s.logits = nil
	s.max = maxTokens
	s.count = 0
	s.state = Streaming
	s.log.Debug("streaming started", "input_tokens", len(ids), "max_tokens", maxTokens)
	return nil
}

// Next samples one token and returns its string, capped at MaxTokenBytes.
// It returns "" when the session is not streaming or the budget is spent.
func (s *Session) Next() (string, error) {
	return s.next(s.sampler)
}

func (s *Session) next(sampler *logits.Sampler) (string, error) {
	if s.state != Streaming {
		return "", nil
	}
	if s.count >= s.max {
		s.state = Completed
		return "", nil
	}

	out, err := s.step()
	if err != nil {
		return "", err
	}
	s.logits = out

	id := sampler.Sample(out)
	s.running = append(s.running, id)
	s.generated = append(s.generated, id)
	s.count++
	if id == tokenizer.EOSID || s.count >= s.max {
		s.state = Completed
		s.log.Debug("streaming completed", "generated", s.count, "eos", id == tokenizer.EOSID)
	}

	text, ok := s.vocab.Token(id)
	if !ok {
		text, _ = s.vocab.Token(tokenizer.UnkID)
	}
	return TruncateToken(text), nil
}

// step runs one forward pass over the trailing context window. If the
// scratch arena is too small the window is halved and the pass retried once.
func (s *Session) step() ([]float32, error) {
	window := s.running
	if n := s.model.Hyper.ContextLength; n > 0 && len(window) > n {
		window = window[len(window)-n:]
	}
	out, err := safeForward(s.forward, window)
	if fault.IsOutOfMemory(err) && len(window) > 1 {
		half := window[len(window)/2:]
		s.log.Warn("scratch exhausted, halving context window", "from", len(window), "to", len(half))
		out, err = safeForward(s.forward, half)
	}
	return out, err
}

// Stop ends a streaming run and discards its output.
func (s *Session) Stop() {
	if s.state != Streaming {
		return
	}
	s.state = Idle
	s.generated = s.generated[:0]
	s.logits = nil
}

// Complete reports whether there is nothing left to stream.
func (s *Session) Complete() bool {
	return s.state != Streaming || s.count >= s.max
}

// Generate runs a whole generation and returns the decoded text with
// reserved ids removed, capped at MaxOutputBytes. greedy picks the highest
// logit at every step instead of sampling.
func (s *Session) Generate(text string, maxTokens int, greedy bool) (string, Stats, error) {
	var stats Stats
	if err := s.Start(text, maxTokens); err != nil {
		return "", stats, err
	}
	sampler := s.sampler
	if greedy {
		sampler = s.greedy
	}

	start := time.Now()
	for !s.Complete() {
		if _, err := s.next(sampler); err != nil {
			s.Stop()
			return "", stats, err
		}
	}
	stats.TokensGenerated = len(s.generated)
	stats.Duration = time.Since(start)
	if stats.Duration.Seconds() > 0 {
		stats.TPS = float64(stats.TokensGenerated) / stats.Duration.Seconds()
	}

	ids := make([]int, 0, len(s.generated))
	for _, id := range s.generated {
		if id > tokenizer.EOSID {
			ids = append(ids, id)
		}
	}
	out, err := safeDecode(s.tok, ids)
	if err != nil {
		return "", stats, err
	}
	return TruncateOutput(strings.TrimSpace(out)), stats, nil
}

// Footprint is the byte total charged to the session: the scratch arena,
// which also holds the last logits, plus four bytes per held token id.
func (s *Session) Footprint() int64 {
	n := len(s.input) + len(s.running) + len(s.generated)
	return s.work.Cap() + 4*int64(n)
}

// Compact drops the last logits and trims a long running context down to
// its most recent CompactKeep tokens. It returns the bytes released.
func (s *Session) Compact() int64 {
	before := s.Footprint()
	s.logits = nil
	if len(s.running) > CompactThreshold {
		s.running = slices.Clone(s.running[len(s.running)-CompactKeep:])
	}
	return before - s.Footprint()
}

// TruncateToken cuts s to at most MaxTokenBytes on a rune boundary.
func TruncateToken(s string) string {
	return cutRunes(s, MaxTokenBytes)
}

// TruncateOutput caps s at MaxOutputBytes, marking a cut with "...".
func TruncateOutput(s string) string {
	if len(s) <= MaxOutputBytes {
		return s
	}
	return cutRunes(s, MaxOutputBytes-3) + "..."
}

func cutRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func safeEncode(tok tokenizer.Tokenizer, text string) (ids []int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fault.New(fault.ErrInternal, "encode", "panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(text)
}

func safeDecode(tok tokenizer.Tokenizer, ids []int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fault.New(fault.ErrInternal, "decode", "panic in Decode: %v", rec)
		}
	}()
	return tok.Decode(ids)
}

func safeForward(fn func([]int) ([]float32, error), tokens []int) (out []float32, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fault.New(fault.ErrInternal, "forward", "panic in Forward: %v", rec)
		}
	}()
	return fn(tokens)
}
