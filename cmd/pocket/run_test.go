package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocket/internal/config"
	"github.com/samcharles93/pocket/internal/engine"
	"github.com/samcharles93/pocket/internal/gguf"
	"github.com/samcharles93/pocket/internal/logger"
)

func newRunner(t *testing.T, stream bool) *runner {
	t.Helper()
	eng := engine.New(engine.Options{
		ContextWorkBytes: 1 << 20,
		Seed:             3,
		Registerer:       prometheus.NewRegistry(),
	})
	mh, err := eng.LoadModel(demoModel(t, gguf.TinyDemo()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ch, err := eng.CreateContext(mh)
	if err != nil {
		t.Fatalf("create context: %v", err)
	}
	return &runner{eng: eng, ch: ch, maxTokens: 6, stream: stream, log: logger.Discard()}
}

func TestRunnerStreams(t *testing.T) {
	t.Parallel()

	r := newRunner(t, true)
	var buf bytes.Buffer
	w := newTokenWriter(&buf, StreamInstant)
	n, err := r.streamTokens(context.Background(), "hello world", w)
	if err != nil {
		t.Fatalf("streamTokens: %v", err)
	}
	text := w.Finish()
	if n == 0 || n > 6 {
		t.Fatalf("expected 1..6 tokens, got %d", n)
	}
	if len(strings.Fields(text)) != n {
		t.Fatalf("printed %q for %d tokens", text, n)
	}
	if !r.eng.IsStreamingComplete(r.ch) {
		t.Fatalf("stream should be complete")
	}
}

func TestRunnerStopsOnCancel(t *testing.T) {
	t.Parallel()

	r := newRunner(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	n, err := r.streamTokens(ctx, "hello", newTokenWriter(&buf, StreamQuiet))
	if err != nil || n != 0 {
		t.Fatalf("expected a clean stop, got %d tokens err=%v", n, err)
	}
	if !r.eng.IsStreamingComplete(r.ch) {
		t.Fatalf("cancelled stream should be stopped")
	}
}

func TestRunnerOnceWithoutStreaming(t *testing.T) {
	t.Parallel()

	r := newRunner(t, false)
	var buf bytes.Buffer
	if err := r.once(context.Background(), "hello", newTokenWriter(&buf, StreamInstant)); err != nil {
		t.Fatalf("once: %v", err)
	}
	if strings.TrimSpace(buf.String()) == "" {
		t.Fatalf("expected output")
	}

	if err := r.once(context.Background(), "", newTokenWriter(&buf, StreamInstant)); err == nil {
		t.Fatalf("expected empty input to be rejected")
	}
}

func TestApplyEngineConfigRespectsFlags(t *testing.T) {
	ceiling := int64(1 << 30)
	k := 7
	g := true
	cfg := config.Config{MemoryCeilingBytes: &ceiling, TopK: &k, Greedy: &g}

	cmd := &cli.Command{
		Name:  "apply",
		Flags: append(memoryFlags(), samplingFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			applyEngineConfig(c, cfg)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"apply", "--top-k", "3"}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if memoryCeiling != ceiling {
		t.Fatalf("config ceiling not applied: %d", memoryCeiling)
	}
	if topK != 3 {
		t.Fatalf("flag should win over config, got top-k %d", topK)
	}
	if !greedy {
		t.Fatalf("config greedy not applied")
	}

	opts := engineOptions(logger.Discard(), nil)
	if opts.MemoryCeiling != ceiling || opts.Sampler.TopK != 3 || !opts.Sampler.Greedy {
		t.Fatalf("unexpected engine options %+v", opts)
	}
}
