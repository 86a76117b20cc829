package gguf

import (
	"reflect"
	"testing"

	"github.com/samcharles93/pocket/internal/fault"
)

func TestGetArray(t *testing.T) {
	t.Parallel()

	kv := map[string]Value{
		"strings": {
			Type:  TypeArray,
			Value: ArrayValue{ElemType: TypeString, Values: []any{"a", "b", "c"}},
		},
		"ints": {
			Type:  TypeArray,
			Value: ArrayValue{ElemType: TypeInt32, Values: []any{int32(1), int32(2), int32(3)}},
		},
		"mixed": {
			Type:  TypeArray,
			Value: ArrayValue{ElemType: TypeString, Values: []any{"a", 1}},
		},
		"not_array": {Type: TypeString, Value: "hello"},
	}

	strs, ok := GetArray[string](kv, "strings")
	if !ok || !reflect.DeepEqual(strs, []string{"a", "b", "c"}) {
		t.Fatalf("expected [a b c], got %v (ok=%v)", strs, ok)
	}
	ints, ok := GetArray[int32](kv, "ints")
	if !ok || !reflect.DeepEqual(ints, []int32{1, 2, 3}) {
		t.Fatalf("expected [1 2 3], got %v (ok=%v)", ints, ok)
	}
	if _, ok := GetArray[int32](kv, "strings"); ok {
		t.Fatalf("expected type mismatch to fail")
	}
	if _, ok := GetArray[string](kv, "mixed"); ok {
		t.Fatalf("expected mixed element types to fail")
	}
	if _, ok := GetArray[string](kv, "not_array"); ok {
		t.Fatalf("expected non-array value to fail")
	}
	if _, ok := GetArray[string](kv, "missing"); ok {
		t.Fatalf("expected missing key to fail")
	}
}

func TestGetInt(t *testing.T) {
	t.Parallel()

	kv := map[string]Value{
		"u32":  {Type: TypeUint32, Value: uint32(8)},
		"neg":  {Type: TypeInt32, Value: int32(-1)},
		"huge": {Type: TypeUint64, Value: uint64(1) << 40},
		"str":  {Type: TypeString, Value: "8"},
	}
	cases := map[string]int{"u32": 8, "neg": 7, "huge": 7, "str": 7, "missing": 7}
	for key, want := range cases {
		if got := GetInt(kv, key, 7); got != want {
			t.Fatalf("GetInt(%s): expected %d, got %d", key, want, got)
		}
	}
}

func TestHyperparametersDefaults(t *testing.T) {
	t.Parallel()

	f := &File{KV: map[string]Value{}}
	hp := f.Hyperparameters()
	want := Hyperparameters{
		Architecture:  "llama",
		VocabSize:     32000,
		EmbeddingDim:  2048,
		HeadCount:     32,
		LayerCount:    22,
		ContextLength: 2048,
	}
	if hp != want {
		t.Fatalf("expected %+v, got %+v", want, hp)
	}
	if err := hp.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestHyperparametersFromArchitecture(t *testing.T) {
	t.Parallel()

	f := &File{KV: map[string]Value{
		KeyArchitecture:             {Type: TypeString, Value: "tiny"},
		"tiny.embedding_length":     {Type: TypeUint32, Value: uint32(8)},
		"tiny.attention.head_count": {Type: TypeUint32, Value: uint32(4)},
		"tiny.block_count":          {Type: TypeUint32, Value: uint32(2)},
		"llama.embedding_length":    {Type: TypeUint32, Value: uint32(999)},
		KeyTokens: {Type: TypeArray, Value: ArrayValue{
			ElemType: TypeString,
			Values:   []any{"<pad>", "<unk>", "<s>", "</s>", "a"},
		}},
	}}
	hp := f.Hyperparameters()
	if hp.Architecture != "tiny" || hp.EmbeddingDim != 8 || hp.HeadCount != 4 || hp.LayerCount != 2 {
		t.Fatalf("unexpected hyperparameters %+v", hp)
	}
	if hp.VocabSize != 5 {
		t.Fatalf("expected vocab size from token count, got %d", hp.VocabSize)
	}
}

func TestHyperparametersValidate(t *testing.T) {
	t.Parallel()

	good := Hyperparameters{VocabSize: 64, EmbeddingDim: 8, HeadCount: 4, LayerCount: 2, ContextLength: 16}
	bad := []Hyperparameters{
		{VocabSize: 3, EmbeddingDim: 8, HeadCount: 4, ContextLength: 16},
		{VocabSize: 64, EmbeddingDim: 0, HeadCount: 4, ContextLength: 16},
		{VocabSize: 64, EmbeddingDim: 8, HeadCount: 0, ContextLength: 16},
		{VocabSize: 64, EmbeddingDim: 8, HeadCount: 3, ContextLength: 16},
		{VocabSize: 64, EmbeddingDim: 8, HeadCount: 4, ContextLength: 0},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	for _, hp := range bad {
		if err := hp.Validate(); !fault.IsFormat(err) {
			t.Fatalf("expected format error for %+v, got %v", hp, err)
		}
	}
}
