package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocket/internal/governor"
	"github.com/samcharles93/pocket/internal/inference"
	"github.com/samcharles93/pocket/internal/logits"
	"github.com/samcharles93/pocket/internal/model"
)

var (
	configFile string
	modelPath  string
	modelsPath string
	logLevel   string
	logFormat  string
	debug      bool

	memoryCeiling    int64
	contextWorkBytes int64
	modelArenaBytes  int64
	maxModelBytes    int64
	maxTensors       int64

	temperature float64
	topK        int64
	greedy      bool
	seed        int64
)

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to .gguf file",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "models-path",
			Aliases:     []string{"path"},
			Usage:       "path to directory containing .gguf models",
			Destination: &modelsPath,
		},
	}
}

func memoryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "memory-ceiling",
			Usage:       "bytes the engine may attribute to models and contexts",
			Value:       governor.DefaultCeiling,
			Destination: &memoryCeiling,
		},
		&cli.Int64Flag{
			Name:        "context-work-bytes",
			Usage:       "scratch arena size per inference context",
			Value:       inference.DefaultWorkBytes,
			Destination: &contextWorkBytes,
		},
		&cli.Int64Flag{
			Name:        "arena-bytes",
			Usage:       "upper bound on a model's tensor arena",
			Value:       model.DefaultArenaBytes,
			Destination: &modelArenaBytes,
		},
		&cli.Int64Flag{
			Name:        "max-model-bytes",
			Usage:       "reject model files larger than this (0 = default)",
			Destination: &maxModelBytes,
		},
		&cli.Int64Flag{
			Name:        "max-tensors",
			Usage:       "number of tensors decoded per model",
			Value:       model.DefaultMaxTensors,
			Destination: &maxTensors,
		},
	}
}

func samplingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temp",
			Aliases:     []string{"temperature", "t"},
			Usage:       "sampling temperature",
			Value:       logits.DefaultTemperature,
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "top-k",
			Aliases:     []string{"top_k", "topk"},
			Usage:       "top-k sampling parameter",
			Value:       logits.DefaultTopK,
			Destination: &topK,
		},
		&cli.BoolFlag{
			Name:        "greedy",
			Usage:       "always pick the most likely token",
			Destination: &greedy,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "base RNG seed for sampling and synthetic tensors",
			Destination: &seed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "config file (.yaml, .toml or .json)",
			Sources:     cli.EnvVars("POCKET_CONFIG"),
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}
