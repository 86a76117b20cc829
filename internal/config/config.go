// Package config reads the pocket configuration file
// (~/.config/pocket/config.yaml by default; .toml and .json also work).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/pocket/internal/logger"
)

// Config mirrors the command line options. Numeric fields are pointers so
// "not set" differs from zero; flags only override fields they set.
type Config struct {
	// Memory
	MemoryCeilingBytes *int64 `yaml:"memory_ceiling_bytes" toml:"memory_ceiling_bytes" json:"memory_ceiling_bytes,omitempty"`
	ModelArenaBytes    *int64 `yaml:"model_arena_bytes" toml:"model_arena_bytes" json:"model_arena_bytes,omitempty"`
	ContextWorkBytes   *int64 `yaml:"context_work_bytes" toml:"context_work_bytes" json:"context_work_bytes,omitempty"`
	MaxModelFileBytes  *int64 `yaml:"max_model_file_bytes" toml:"max_model_file_bytes" json:"max_model_file_bytes,omitempty"`
	MaxTensors         *int   `yaml:"max_tensors" toml:"max_tensors" json:"max_tensors,omitempty"`

	// Sampling
	Temperature *float64 `yaml:"temperature" toml:"temperature" json:"temperature,omitempty"`
	TopK        *int     `yaml:"top_k" toml:"top_k" json:"top_k,omitempty"`
	Greedy      *bool    `yaml:"greedy" toml:"greedy" json:"greedy,omitempty"`
	Seed        *int64   `yaml:"seed" toml:"seed" json:"seed,omitempty"`

	// Output
	LogLevel  string `yaml:"log_level" toml:"log_level" json:"log_level,omitempty"`
	LogFormat string `yaml:"log_format" toml:"log_format" json:"log_format,omitempty"`

	// Server
	ServerAddress string `yaml:"server_address" toml:"server_address" json:"server_address,omitempty"`
}

// DefaultPath is the config file looked up when none is given. It is empty
// when the user config directory cannot be determined.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "pocket", "config.yaml")
}

// Load reads the file at path, picking the decoder from its extension.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg, err = Parse(b, filepath.Ext(path))
	if err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault reads DefaultPath. A missing file yields a zero Config.
func LoadDefault() (Config, error) {
	path := DefaultPath()
	if path == "" {
		return Config{}, nil
	}
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	return cfg, err
}

// Parse decodes b in the format named by ext (".yaml", ".yml", ".toml" or
// ".json") and validates the result.
func Parse(b []byte, ext string) (Config, error) {
	var cfg Config
	switch ext = strings.ToLower(ext); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %q", ext)
	}
	return cfg, cfg.Validate()
}

// Validate checks the fields that are set.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v *int64) {
		if v != nil && *v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, *v))
		}
	}
	positive("memory_ceiling_bytes", c.MemoryCeilingBytes)
	positive("model_arena_bytes", c.ModelArenaBytes)
	positive("context_work_bytes", c.ContextWorkBytes)
	positive("max_model_file_bytes", c.MaxModelFileBytes)

	if c.MaxTensors != nil && *c.MaxTensors <= 0 {
		errs = append(errs, fmt.Errorf("max_tensors must be positive, got %d", *c.MaxTensors))
	}
	if c.Temperature != nil && *c.Temperature <= 0 {
		errs = append(errs, fmt.Errorf("temperature must be positive, got %g", *c.Temperature))
	}
	if c.TopK != nil && *c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k must be positive, got %d", *c.TopK))
	}
	if c.LogLevel != "" {
		if _, err := logger.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.LogFormat {
	case "", "pretty", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be pretty, text or json, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}
