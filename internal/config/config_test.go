package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadFormats(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "yaml",
			file:    "cfg.yaml",
			content: "memory_ceiling_bytes: 1048576\ntemperature: 0.5\ntop_k: 10\nlog_format: json\nserver_address: \":9090\"\n",
		},
		{
			name:    "yml",
			file:    "cfg.yml",
			content: "memory_ceiling_bytes: 1048576\ntemperature: 0.5\ntop_k: 10\nlog_format: json\nserver_address: \":9090\"\n",
		},
		{
			name:    "toml",
			file:    "cfg.toml",
			content: "memory_ceiling_bytes = 1048576\ntemperature = 0.5\ntop_k = 10\nlog_format = \"json\"\nserver_address = \":9090\"\n",
		},
		{
			name:    "json",
			file:    "cfg.json",
			content: `{"memory_ceiling_bytes":1048576,"temperature":0.5,"top_k":10,"log_format":"json","server_address":":9090"}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load(writeTempFile(t, tc.file, tc.content))
			require.NoError(t, err)
			require.NotNil(t, cfg.MemoryCeilingBytes)
			assert.Equal(t, int64(1<<20), *cfg.MemoryCeilingBytes)
			require.NotNil(t, cfg.Temperature)
			assert.InDelta(t, 0.5, *cfg.Temperature, 1e-9)
			require.NotNil(t, cfg.TopK)
			assert.Equal(t, 10, *cfg.TopK)
			assert.Equal(t, "json", cfg.LogFormat)
			assert.Equal(t, ":9090", cfg.ServerAddress)
			assert.Nil(t, cfg.Seed, "unset fields stay nil")
			assert.Nil(t, cfg.Greedy)
		})
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	_, err := Load("")
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(writeTempFile(t, "cfg.txt", "not supported"))
	assert.ErrorContains(t, err, "unsupported config extension")

	_, err = Load(writeTempFile(t, "bad.yaml", "top_k: [1, 2"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	zero := int64(0)
	neg := -1
	temp := 0.0
	cfg := Config{
		MemoryCeilingBytes: &zero,
		TopK:               &neg,
		Temperature:        &temp,
		LogLevel:           "loud",
		LogFormat:          "xml",
	}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"memory_ceiling_bytes", "top_k", "temperature", "log_format", "loud"} {
		assert.ErrorContains(t, err, want)
	}

	assert.NoError(t, Config{}.Validate())
}

func TestParseRejectsInvalidValues(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("max_tensors: 0\n"), ".yaml")
	assert.ErrorContains(t, err, "max_tensors")
}

func TestDefaultPath(t *testing.T) {
	t.Parallel()

	p := DefaultPath()
	if p == "" {
		t.Skip("no user config dir")
	}
	assert.Equal(t, "config.yaml", filepath.Base(p))
	assert.Equal(t, "pocket", filepath.Base(filepath.Dir(p)))
}
