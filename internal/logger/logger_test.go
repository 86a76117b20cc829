package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.With("component", "engine").Info("model loaded", "tensors", 4)

	out := buf.String()
	for _, want := range []string{`"msg":"model loaded"`, `"component":"engine"`, `"tensors":4`, `"level":"INFO"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("hidden")
	log.Debug("hidden too")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}
	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected warn message, got: %s", buf.String())
	}
}

func TestText(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	Text(&buf, slog.LevelInfo).Info("hello", "key", "value")
	if !strings.Contains(buf.String(), "key=value") {
		t.Fatalf("expected key=value, got: %s", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard().With("a", 1).WithGroup("g")
	log.Error("nothing happens")
}

func TestBuild(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", "pretty", "text", "JSON"} {
		var buf bytes.Buffer
		log, err := Build(&buf, format, "debug")
		if err != nil {
			t.Fatalf("Build(%q): %v", format, err)
		}
		log.Debug("visible")
		if !strings.Contains(buf.String(), "visible") {
			t.Fatalf("Build(%q): expected debug output, got: %s", format, buf.String())
		}
	}
	if _, err := Build(&bytes.Buffer{}, "xml", "info"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	if _, err := Build(&bytes.Buffer{}, "text", "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip")
	if !strings.Contains(buf.String(), "roundtrip") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("expected a default logger")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{" info ", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.input)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Fatalf("ParseLevel(%q): expected %v (err=%v), got %v (%v)", tc.input, tc.want, tc.wantErr, got, err)
		}
	}
}

func TestPrettyComponentPrefix(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo).With("component", "governor")
	log.Warn("evicted", "reason", "idle", "bytes", 2048)

	out := buf.String()
	if !strings.Contains(out, "WRN") {
		t.Fatalf("expected WRN tag, got: %s", out)
	}
	if !strings.Contains(out, "governor:") {
		t.Fatalf("expected component prefix, got: %s", out)
	}
	if strings.Contains(out, "component=") {
		t.Fatalf("component should not be repeated as an attribute, got: %s", out)
	}
	if !strings.Contains(out, "reason=idle") || !strings.Contains(out, "bytes=2048") {
		t.Fatalf("expected attributes, got: %s", out)
	}
}

func TestPrettyGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, nil)
	if h.WithGroup("") != slog.Handler(h) {
		t.Fatal("WithGroup(\"\") should return the same handler")
	}
	slog.New(h.WithGroup("a").WithGroup("b")).Info("nested", "key", "val", "component", "kept")

	out := buf.String()
	if !strings.Contains(out, "a.b.key=val") {
		t.Fatalf("expected a.b.key=val, got: %s", out)
	}
	if !strings.Contains(out, "a.b.component=kept") {
		t.Fatalf("grouped component should stay an attribute, got: %s", out)
	}
}

func TestPrettyValueFormatting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	slog.New(NewPrettyHandler(&buf, nil)).Info("values",
		"spaced", "hello world",
		"plain", "simple",
		"empty", "",
		"err", errors.New("boom"),
		slog.Group("mem", "used", 10, "free", 20),
	)

	out := buf.String()
	for _, want := range []string{`spaced="hello world"`, "plain=simple", `empty=""`, `err="boom"`, "mem.used=10", "mem.free=20"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestPrettyLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatal("expected error to be enabled at warn level")
	}
}
