package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocket/internal/gguf"
	"github.com/samcharles93/pocket/internal/logger"
)

func listModelsCmd() *cli.Command {
	return &cli.Command{
		Name:    "list-models",
		Aliases: []string{"ls", "models"},
		Usage:   "List GGUF models in a directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "models-path",
				Aliases:     []string{"path"},
				Usage:       "path to directory containing .gguf models",
				Destination: &modelsPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			dir := resolveModelsDir(modelsPath)
			if dir == "" {
				return cli.Exit("error: --models-path is required unless "+envPocketModelsDir+" is set", 1)
			}
			models, err := discoverModels(dir)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			if len(models) == 0 {
				log.Info("no models found", "path", dir)
				return nil
			}
			listModels(os.Stdout, dir, models)
			return nil
		},
	}
}

func listModels(w io.Writer, dir string, models []string) {
	_, _ = fmt.Fprintf(w, "Models in %s:\n\n", dir)
	for _, m := range models {
		name := modelDisplayName(dir, m)
		f, err := gguf.Open(m)
		if err != nil {
			_, _ = fmt.Fprintf(w, "  %-40s (unreadable: %v)\n", name, err)
			continue
		}
		hp := f.Hyperparameters()
		_, _ = fmt.Fprintf(w, "  %-40s %8s  (%s, %d layers, vocab %d)\n",
			name, formatBytes(f.Size), hp.Architecture, hp.LayerCount, hp.VocabSize)
		_ = f.Close()
	}
	_, _ = fmt.Fprintf(w, "\n%d model(s) found\n", len(models))
}
