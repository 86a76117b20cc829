package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/pocket/internal/gguf"
	"github.com/samcharles93/pocket/internal/model"
)

func demoModel(t *testing.T, spec gguf.DemoSpec) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.gguf")
	if err := gguf.WriteDemo(path, spec); err != nil {
		t.Fatalf("write demo: %v", err)
	}
	return path
}

func TestBuildReport(t *testing.T) {
	t.Parallel()

	path := demoModel(t, gguf.TinyDemo())
	rep, err := buildReport(path, model.Options{}, inspectOptions{tensors: true, kv: true, tensorLimit: 3, vocabLimit: 5})
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}
	if rep.Hyper.VocabSize != 64 || rep.Hyper.LayerCount != 2 || rep.TensorCount != 10 {
		t.Fatalf("unexpected header %+v", rep)
	}
	if !rep.VocabFallback || rep.VocabSize != 64 {
		t.Fatalf("expected the built-in vocabulary, got %d fallback=%v", rep.VocabSize, rep.VocabFallback)
	}
	if rep.Footprint < rep.ArenaBytes || rep.ArenaBytes <= 0 {
		t.Fatalf("unexpected plan sizes arena=%d footprint=%d", rep.ArenaBytes, rep.Footprint)
	}
	if len(rep.Tensors) != 3 {
		t.Fatalf("expected the tensor limit to apply, got %d", len(rep.Tensors))
	}
	if rep.Tensors[0].Name != "token_embd.weight" || !rep.Tensors[0].Selected || rep.Tensors[0].Type != "F32" {
		t.Fatalf("unexpected first tensor %+v", rep.Tensors[0])
	}
	if len(rep.Vocab) != 5 || rep.Vocab[3] != "</s>" {
		t.Fatalf("unexpected vocabulary head %q", rep.Vocab)
	}

	var arch string
	for _, kv := range rep.KV {
		if kv.Key == gguf.KeyArchitecture {
			arch = kv.Value
		}
	}
	if arch != `"llama"` {
		t.Fatalf("architecture key: got %q", arch)
	}

	var buf bytes.Buffer
	printReport(&buf, rep)
	for _, want := range []string{"arch:         llama", "built-in fallback", "* token_embd.weight", "general.architecture"} {
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("report missing %q:\n%s", want, buf.String())
		}
	}
}

func TestBuildReportFilter(t *testing.T) {
	t.Parallel()

	path := demoModel(t, gguf.TinyDemo())
	rep, err := buildReport(path, model.Options{}, inspectOptions{tensors: true, filter: "attn_q"})
	if err != nil {
		t.Fatalf("buildReport: %v", err)
	}
	if len(rep.Tensors) != 2 {
		t.Fatalf("expected one attn_q per layer, got %+v", rep.Tensors)
	}
	if rep.KV != nil || rep.Vocab != nil {
		t.Fatalf("unrequested sections should be empty")
	}
}

func TestBuildReportMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := buildReport(filepath.Join(t.TempDir(), "nope.gguf"), model.Options{}, inspectOptions{}); err == nil {
		t.Fatalf("expected an error")
	}
}

func TestRenderValue(t *testing.T) {
	t.Parallel()

	arr := gguf.ArrayValue{ElemType: gguf.TypeString, Values: []any{"a", "b", "c", "d", "e"}}
	if got := renderValue(arr); !strings.HasSuffix(got, `["a", "b", "c", "d", ...]`) || !strings.Contains(got, "x5") {
		t.Fatalf("unexpected array rendering %q", got)
	}
	if got := renderValue(uint32(7)); got != "7" {
		t.Fatalf("unexpected scalar rendering %q", got)
	}
}
