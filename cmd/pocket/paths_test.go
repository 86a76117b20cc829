package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func withTTY(t *testing.T, tty bool) {
	t.Helper()
	prev := stdinIsTTY
	stdinIsTTY = func() bool { return tty }
	t.Cleanup(func() { stdinIsTTY = prev })
}

func TestResolveGenOut(t *testing.T) {
	t.Run("explicit output wins", func(t *testing.T) {
		outPath := filepath.Join(t.TempDir(), "nested", "tiny.gguf")

		got, defaulted, err := resolveGenOut("ignored", outPath)
		if err != nil {
			t.Fatalf("resolveGenOut returned error: %v", err)
		}
		if defaulted {
			t.Fatalf("expected explicit output to not be defaulted")
		}
		if got != filepath.Clean(outPath) {
			t.Fatalf("unexpected output path: got %q want %q", got, outPath)
		}
		if _, err := os.Stat(filepath.Dir(got)); err != nil {
			t.Fatalf("expected output directory to exist: %v", err)
		}
	})

	t.Run("env output dir overrides default", func(t *testing.T) {
		envDir := filepath.Join(t.TempDir(), "gen-out")
		t.Setenv(envPocketOutDir, envDir)

		got, defaulted, err := resolveGenOut("tiny", "")
		if err != nil {
			t.Fatalf("resolveGenOut returned error: %v", err)
		}
		if !defaulted {
			t.Fatalf("expected output to be defaulted")
		}
		if want := filepath.Join(envDir, "tiny.gguf"); got != want {
			t.Fatalf("unexpected output path: got %q want %q", got, want)
		}
	})

	t.Run("default output dir is ./out", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv(envPocketOutDir, "")

		got, _, err := resolveGenOut("tiny", "")
		if err != nil {
			t.Fatalf("resolveGenOut returned error: %v", err)
		}
		if want := filepath.Join(".", "out", "tiny.gguf"); got != want {
			t.Fatalf("unexpected output path: got %q want %q", got, want)
		}
	})

	t.Run("rejects names with separators", func(t *testing.T) {
		t.Setenv(envPocketOutDir, t.TempDir())
		if _, _, err := resolveGenOut("a"+string(filepath.Separator)+"b", ""); err == nil {
			t.Fatalf("expected an error for a nested name")
		}
	})
}

func TestDiscoverModelsSorted(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.gguf", "a.GGUF", "ignore.txt", "old.mcf")

	got, err := discoverModels(dir)
	if err != nil {
		t.Fatalf("discoverModels returned error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.GGUF"),
		filepath.Join(dir, "b.gguf"),
	}
	if len(got) != len(want) {
		t.Fatalf("unexpected model count: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected ordering at %d: got %q want %q", i, got[i], want[i])
		}
	}

	if _, err := discoverModels(filepath.Join(dir, "b.gguf")); err == nil {
		t.Fatalf("expected an error for a file path")
	}
}

func TestResolveRunModelPath(t *testing.T) {
	t.Run("model flag bypasses env", func(t *testing.T) {
		t.Setenv(envPocketModelsDir, "")
		got, err := resolveRunModelPath("/tmp/model.gguf", "", bytes.NewBuffer(nil), io.Discard)
		if err != nil {
			t.Fatalf("resolveRunModelPath returned error: %v", err)
		}
		if got != filepath.Clean("/tmp/model.gguf") {
			t.Fatalf("unexpected model path: got %q", got)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Setenv(envPocketModelsDir, "")
		_, err := resolveRunModelPath("", "", bytes.NewBuffer(nil), io.Discard)
		if err == nil || !strings.Contains(err.Error(), envPocketModelsDir) {
			t.Fatalf("expected a hint about %s, got %v", envPocketModelsDir, err)
		}
	})

	t.Run("single model selects automatically", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "only.gguf")
		t.Setenv(envPocketModelsDir, dir)
		withTTY(t, false)

		got, err := resolveRunModelPath("", "", bytes.NewBuffer(nil), io.Discard)
		if err != nil {
			t.Fatalf("resolveRunModelPath returned error: %v", err)
		}
		if want := filepath.Join(dir, "only.gguf"); got != want {
			t.Fatalf("unexpected model path: got %q want %q", got, want)
		}
	})

	t.Run("multiple models requires tty", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "a.gguf", "b.gguf")
		t.Setenv(envPocketModelsDir, dir)
		withTTY(t, false)

		if _, err := resolveRunModelPath("", "", bytes.NewBuffer(nil), io.Discard); err == nil {
			t.Fatalf("expected error when multiple models and stdin is not a tty")
		}
	})

	t.Run("interactive selection chooses sorted index", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, dir, "b.gguf", "a.gguf")
		withTTY(t, true)

		var stderr bytes.Buffer
		got, err := resolveRunModelPath("", dir, bytes.NewBufferString("9\n2\n"), &stderr)
		if err != nil {
			t.Fatalf("resolveRunModelPath returned error: %v", err)
		}
		if want := filepath.Join(dir, "b.gguf"); got != want {
			t.Fatalf("unexpected model selection: got %q want %q", got, want)
		}
		if !strings.Contains(stderr.String(), `invalid selection "9"`) {
			t.Fatalf("expected the out of range pick to be reported, got %q", stderr.String())
		}
	})
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		12:         "12 B",
		2048:       "2.0 KB",
		5 << 20:    "5.0 MB",
		3 << 30:    "3.0 GB",
		1536 << 10: "1.5 MB",
	}
	for in, want := range cases {
		if got := formatBytes(in); got != want {
			t.Fatalf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}
