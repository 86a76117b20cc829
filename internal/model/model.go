// Package model turns a container into a LoadedModel: hyperparameters, a
// vocabulary and a bounded set of decoded tensors held in one arena.
package model

import (
	"sync/atomic"

	"github.com/samcharles93/pocket/internal/arena"
	"github.com/samcharles93/pocket/internal/gguf"
	"github.com/samcharles93/pocket/internal/quant"
	"github.com/samcharles93/pocket/internal/tokenizer"
)

// TensorBuffer is a decoded tensor. Its storage is a view into the model
// arena and its length never changes after load.
type TensorBuffer struct {
	Name     string
	Kind     quant.Kind
	ByteSize uint64
	Source   quant.Source
	view     arena.View
}

func (t *TensorBuffer) Data() []float32 { return t.view.Floats() }
func (t *TensorBuffer) Len() int        { return t.view.Len() }

// Model is read-only after load. Contexts hold a plain pointer to it; the
// engine keeps it alive while any context refers to it.
type Model struct {
	Path     string
	FileSize int64
	Hyper    gguf.Hyperparameters
	Vocab    *tokenizer.Vocabulary

	tok      *tokenizer.Word
	tensors  []*TensorBuffer
	byName   map[string]*TensorBuffer
	arena    *arena.Arena
	forwards atomic.Int64
}

// Tokenizer returns the word tokenizer bound to the model vocabulary.
func (m *Model) Tokenizer() *tokenizer.Word { return m.tok }

// Tensor looks up a decoded tensor by name.
func (m *Model) Tensor(name string) (*TensorBuffer, bool) {
	t, ok := m.byName[name]
	return t, ok
}

// Tensors returns the decoded tensors in load order.
func (m *Model) Tensors() []*TensorBuffer { return m.tensors }

// Footprint is the byte total the memory governor charges for the model.
func (m *Model) Footprint() int64 {
	if m.arena == nil {
		return m.Vocab.Bytes()
	}
	return m.arena.Cap() + m.Vocab.Bytes()
}

// ArenaBytes is the capacity of the tensor arena, zero once released.
func (m *Model) ArenaBytes() int64 {
	if m.arena == nil {
		return 0
	}
	return m.arena.Cap()
}

// OwnsStorage reports whether the model still holds its arena and every
// tensor is a view into it.
func (m *Model) OwnsStorage() bool {
	if m.arena == nil {
		return false
	}
	for _, t := range m.tensors {
		if t.view.Owner() != m.arena {
			return false
		}
	}
	return true
}

// Release drops tensor storage. The model must not be used afterwards.
func (m *Model) Release() {
	m.tensors = nil
	m.byName = nil
	m.arena = nil
}

// CountForward records one forward pass.
func (m *Model) CountForward() { m.forwards.Add(1) }

// Forwards is the number of forward passes run against the model.
func (m *Model) Forwards() int64 { return m.forwards.Load() }
