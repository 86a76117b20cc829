package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/pocket/internal/config"
	"github.com/samcharles93/pocket/internal/engine"
	"github.com/samcharles93/pocket/internal/logger"
	"github.com/samcharles93/pocket/internal/logits"
	"github.com/samcharles93/pocket/internal/model"
)

func loadConfig() (config.Config, error) {
	if configFile != "" {
		return config.Load(configFile)
	}
	return config.LoadDefault()
}

// applyLoggingConfig applies config file defaults to the logging flags when
// they were not set on the command line.
func applyLoggingConfig(c *cli.Command, cfg config.Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyEngineConfig applies config file defaults to the memory and sampling
// flags. Flags missing from c are left alone.
func applyEngineConfig(c *cli.Command, cfg config.Config) {
	if cfg.MemoryCeilingBytes != nil && !c.IsSet("memory-ceiling") {
		memoryCeiling = *cfg.MemoryCeilingBytes
	}
	if cfg.ContextWorkBytes != nil && !c.IsSet("context-work-bytes") {
		contextWorkBytes = *cfg.ContextWorkBytes
	}
	if cfg.ModelArenaBytes != nil && !c.IsSet("arena-bytes") {
		modelArenaBytes = *cfg.ModelArenaBytes
	}
	if cfg.MaxModelFileBytes != nil && !c.IsSet("max-model-bytes") {
		maxModelBytes = *cfg.MaxModelFileBytes
	}
	if cfg.MaxTensors != nil && !c.IsSet("max-tensors") {
		maxTensors = int64(*cfg.MaxTensors)
	}
	if cfg.Temperature != nil && !c.IsSet("temp") && !c.IsSet("temperature") && !c.IsSet("t") {
		temperature = *cfg.Temperature
	}
	if cfg.TopK != nil && !c.IsSet("top-k") && !c.IsSet("top_k") && !c.IsSet("topk") {
		topK = int64(*cfg.TopK)
	}
	if cfg.Greedy != nil && !c.IsSet("greedy") {
		greedy = *cfg.Greedy
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg config.Config, addr *string) {
	applyEngineConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

func engineOptions(log logger.Logger, reg prometheus.Registerer) engine.Options {
	return engine.Options{
		MemoryCeiling:    memoryCeiling,
		ContextWorkBytes: contextWorkBytes,
		Model: model.Options{
			MaxTensors:    int(maxTensors),
			MaxArenaBytes: modelArenaBytes,
			MaxFileBytes:  maxModelBytes,
			Seed:          seed,
		},
		Sampler: logits.SamplerConfig{
			Temperature: float32(temperature),
			TopK:        int(topK),
			Greedy:      greedy,
		},
		Seed:       seed,
		Logger:     log,
		Registerer: reg,
	}
}
