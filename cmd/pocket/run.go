package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocket/internal/engine"
	"github.com/samcharles93/pocket/internal/logger"
)

func runCmd() *cli.Command {
	var (
		prompt     string
		maxTokens  int64
		stream     bool
		streamMode string
	)

	flags := append(commonModelFlags(),
		&cli.StringFlag{
			Name:        "prompt",
			Aliases:     []string{"p"},
			Usage:       "prompt text (interactive when empty)",
			Destination: &prompt,
		},
		&cli.Int64Flag{
			Name:        "max-tokens",
			Aliases:     []string{"n", "steps"},
			Usage:       "number of tokens to generate",
			Value:       64,
			Destination: &maxTokens,
		},
		&cli.BoolFlag{
			Name:        "stream",
			Usage:       "print tokens as they are produced",
			Value:       true,
			Destination: &stream,
		},
		&cli.StringFlag{
			Name:        "stream-mode",
			Usage:       "streamed output (instant, buffered, quiet)",
			Value:       string(StreamInstant),
			Destination: &streamMode,
		},
	)
	flags = append(flags, memoryFlags()...)
	flags = append(flags, samplingFlags()...)

	return &cli.Command{
		Name:  "run",
		Usage: "Generate text from a GGUF model",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyEngineConfig(cmd, fileConfig)

			mode, err := parseStreamMode(streamMode)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			path, err := resolveRunModelPath(modelPath, modelsPath, stdinLines, os.Stderr)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			eng := engine.New(engineOptions(log, prometheus.NewRegistry()))
			start := time.Now()
			mh, err := eng.LoadModel(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: load %s: %v", path, err), 1)
			}
			defer func() { _ = eng.FreeModel(mh) }()
			ch, err := eng.CreateContext(mh)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: create context: %v", err), 1)
			}
			defer func() { _ = eng.FreeContext(ch) }()
			log.Info("model loaded", "path", path, "elapsed", time.Since(start), "memory", formatBytes(eng.MemoryUsage()))

			r := &runner{eng: eng, ch: ch, maxTokens: int(maxTokens), stream: stream, log: log}
			w := newTokenWriter(os.Stdout, mode)
			if prompt != "" {
				return r.once(ctx, prompt, w)
			}

			_, _ = fmt.Fprintln(os.Stderr, "Interactive mode. Type /exit to quit, /memory for usage.")
			for {
				line, err := readInteractiveLine("> ")
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return err
				}
				switch strings.TrimSpace(line) {
				case "":
					continue
				case "/exit", "/quit":
					return nil
				case "/memory":
					printMemory(os.Stderr, eng.SystemInfo())
					continue
				}
				if err := r.once(ctx, line, w); err != nil {
					_, _ = fmt.Fprintln(os.Stderr, "error:", err)
				}
				if ctx.Err() != nil {
					return nil
				}
			}
		},
	}
}

// runner drives one context from the command line.
type runner struct {
	eng       *engine.Engine
	ch        engine.ContextHandle
	maxTokens int
	stream    bool
	log       logger.Logger
}

func (r *runner) once(ctx context.Context, prompt string, w *tokenWriter) error {
	start := time.Now()
	tokens := 0
	if r.stream {
		n, err := r.streamTokens(ctx, prompt, w)
		tokens = n
		w.Finish()
		if err != nil {
			return err
		}
	} else {
		out, err := r.eng.Generate(r.ch, prompt, r.maxTokens)
		if err != nil {
			return err
		}
		w.Write(engine.ResponseText(out))
		w.Finish()
		tokens = len(strings.Fields(out))
	}
	elapsed := time.Since(start)
	tps := 0.0
	if elapsed > 0 {
		tps = float64(tokens) / elapsed.Seconds()
	}
	_, _ = fmt.Fprintf(os.Stderr, "Stats: %.2f TPS (%d tokens in %s)\n", tps, tokens, elapsed.Round(time.Microsecond))
	return nil
}

// streamTokens pulls tokens until the run completes or ctx is cancelled.
func (r *runner) streamTokens(ctx context.Context, prompt string, w *tokenWriter) (int, error) {
	if err := r.eng.StartStreaming(r.ch, prompt, r.maxTokens); err != nil {
		return 0, err
	}
	n := 0
	for !r.eng.IsStreamingComplete(r.ch) {
		if ctx.Err() != nil {
			r.log.Info("interrupted, stopping stream", "tokens", n)
			return n, r.eng.StopStreaming(r.ch)
		}
		tok, err := r.eng.NextStreamingToken(r.ch)
		if err != nil {
			return n, err
		}
		if tok != "" {
			w.Write(tok)
			n++
		}
	}
	return n, nil
}

func printMemory(w io.Writer, info engine.SystemInfo) {
	state := "healthy"
	if !info.Healthy {
		state = "over ceiling"
	}
	_, _ = fmt.Fprintf(w, "memory: %s of %s (%s), %d model(s), %d context(s)\n",
		formatBytes(info.MemoryUsage), formatBytes(info.Ceiling), state, info.Models, info.Contexts)
}
