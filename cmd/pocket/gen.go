package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocket/internal/gguf"
	"github.com/samcharles93/pocket/internal/logger"
	"github.com/samcharles93/pocket/internal/quant"
)

func genCmd() *cli.Command {
	var (
		name      string
		out       string
		kind      string
		vocabFile string
		spec      = gguf.TinyDemo()
		vocabSize int64
		dim       int64
		heads     int64
		layers    int64
		ctxLen    int64
	)

	return &cli.Command{
		Name:  "gen",
		Usage: "Write a small seeded GGUF model for testing",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "model name, used for the default output path", Value: "tiny", Destination: &name},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default $POCKET_OUT_DIR/<name>.gguf or ./out)", Destination: &out},
			&cli.StringFlag{Name: "kind", Usage: "tensor encoding (f32, f16, q8_0, q4_0)", Value: spec.Kind.String(), Destination: &kind},
			&cli.StringFlag{Name: "vocab-file", Usage: "file with one token per line to embed as the vocabulary", Destination: &vocabFile},
			&cli.Int64Flag{Name: "vocab-size", Value: int64(spec.VocabSize), Destination: &vocabSize},
			&cli.Int64Flag{Name: "dim", Value: int64(spec.EmbeddingDim), Destination: &dim},
			&cli.Int64Flag{Name: "heads", Value: int64(spec.HeadCount), Destination: &heads},
			&cli.Int64Flag{Name: "layers", Value: int64(spec.LayerCount), Destination: &layers},
			&cli.Int64Flag{Name: "ctx", Usage: "context length", Value: int64(spec.ContextLength), Destination: &ctxLen},
			&cli.Int64Flag{Name: "seed", Value: spec.Seed, Destination: &spec.Seed},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			k, err := kindByName(kind)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			spec.Kind = k
			spec.VocabSize = int(vocabSize)
			spec.EmbeddingDim = int(dim)
			spec.HeadCount = int(heads)
			spec.LayerCount = int(layers)
			spec.ContextLength = int(ctxLen)
			if vocabFile != "" {
				tokens, err := readVocabFile(vocabFile)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				spec.Tokens = tokens
				if !cmd.IsSet("vocab-size") {
					spec.VocabSize = len(tokens)
				}
			}

			path, defaulted, err := resolveGenOut(name, out)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if err := gguf.WriteDemo(path, spec); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			st, err := os.Stat(path)
			if err != nil {
				return err
			}
			log.Info("wrote model", "path", path, "defaulted", defaulted, "kind", spec.Kind, "size", formatBytes(st.Size()))
			fmt.Println(path)
			return nil
		},
	}
}

func kindByName(name string) (quant.Kind, error) {
	for _, k := range quant.Kinds() {
		if strings.EqualFold(k.String(), strings.TrimSpace(name)) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown tensor kind %q", name)
}

func readVocabFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tokens []string
	for _, line := range strings.Split(string(b), "\n") {
		if line = strings.TrimRight(line, "\r"); line != "" {
			tokens = append(tokens, line)
		}
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%s holds no tokens", path)
	}
	return tokens, nil
}
