package gguf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/samcharles93/pocket/internal/quant"
)

// Writer assembles a version 3 container. Keys and tensors are written in
// insertion order; setting an existing key replaces its value in place.
type Writer struct {
	Alignment uint64

	keys    []string
	kv      map[string]Value
	tensors []pendingTensor
}

type pendingTensor struct {
	name    string
	dims    []uint64
	raw     uint32
	payload []byte
}

func NewWriter() *Writer {
	return &Writer{Alignment: defaultAlignment, kv: make(map[string]Value)}
}

func (w *Writer) set(key string, v Value) {
	if _, ok := w.kv[key]; !ok {
		w.keys = append(w.keys, key)
	}
	w.kv[key] = v
}

func (w *Writer) SetString(key, v string) { w.set(key, Value{TypeString, v}) }
func (w *Writer) SetUint32(key string, v uint32) { w.set(key, Value{TypeUint32, v}) }
func (w *Writer) SetUint64(key string, v uint64) { w.set(key, Value{TypeUint64, v}) }
func (w *Writer) SetFloat32(key string, v float32) { w.set(key, Value{TypeFloat32, v}) }
func (w *Writer) SetBool(key string, v bool) { w.set(key, Value{TypeBool, v}) }

func (w *Writer) SetStrings(key string, v []string) {
	values := make([]any, len(v))
	for i, s := range v {
		values[i] = s
	}
	w.set(key, Value{TypeArray, ArrayValue{ElemType: TypeString, Values: values}})
}

// AddTensor appends a tensor whose payload is already encoded as kind.
func (w *Writer) AddTensor(name string, kind quant.Kind, dims []uint64, payload []byte) error {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}
	want, err := kind.PayloadBytes(n)
	if err != nil {
		return fmt.Errorf("tensor %s: %w", name, err)
	}
	if uint64(len(payload)) != want {
		return fmt.Errorf("tensor %s: payload is %d bytes, %s%v needs %d", name, len(payload), kind, dims, want)
	}
	w.AddRaw(name, uint32(kind), dims, payload)
	return nil
}

// AddF32 appends a full precision tensor.
func (w *Writer) AddF32(name string, dims []uint64, values []float32) error {
	return w.AddTensor(name, quant.F32, dims, quant.EncodeF32(values))
}

// AddF16 appends a half precision tensor.
func (w *Writer) AddF16(name string, dims []uint64, values []float32) error {
	return w.AddTensor(name, quant.F16, dims, quant.EncodeF16(values))
}

// AddRaw appends a tensor without validating the type id or payload length.
func (w *Writer) AddRaw(name string, rawType uint32, dims []uint64, payload []byte) {
	w.tensors = append(w.tensors, pendingTensor{name: name, dims: dims, raw: rawType, payload: payload})
}

// WriteTo encodes the container.
func (w *Writer) WriteTo(out io.Writer) (int64, error) {
	alignment := w.Alignment
	if alignment == 0 {
		alignment = defaultAlignment
	}
	if alignment != defaultAlignment {
		w.SetUint64("general.alignment", alignment)
	}

	var buf bytes.Buffer
	le := binary.LittleEndian
	putU32 := func(v uint32) { _ = binary.Write(&buf, le, v) }
	putU64 := func(v uint64) { _ = binary.Write(&buf, le, v) }
	putString := func(s string) {
		putU64(uint64(len(s)))
		buf.WriteString(s)
	}

	buf.WriteString(magicGGUF)
	putU32(3)
	putU64(uint64(len(w.tensors)))
	putU64(uint64(len(w.keys)))

	for _, key := range w.keys {
		v := w.kv[key]
		putString(key)
		putU32(uint32(v.Type))
		if err := writeValue(&buf, v.Type, v.Value); err != nil {
			return 0, fmt.Errorf("key %s: %w", key, err)
		}
	}

	offset := uint64(0)
	offsets := make([]uint64, len(w.tensors))
	for i, t := range w.tensors {
		offsets[i] = offset
		offset = align(offset+uint64(len(t.payload)), alignment)
	}
	for i, t := range w.tensors {
		putString(t.name)
		putU32(uint32(len(t.dims)))
		for _, d := range t.dims {
			putU64(d)
		}
		putU32(t.raw)
		putU64(offsets[i])
	}

	pad := func(to uint64) {
		for uint64(buf.Len()) < to {
			buf.WriteByte(0)
		}
	}
	dataStart := align(uint64(buf.Len()), alignment)
	pad(dataStart)
	for i, t := range w.tensors {
		pad(dataStart + offsets[i])
		buf.Write(t.payload)
	}

	n, err := out.Write(buf.Bytes())
	return int64(n), err
}

// WriteFile encodes the container to path.
func (w *Writer) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if _, err := w.WriteTo(bw); err != nil {
		_ = f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeValue(buf *bytes.Buffer, t ValueType, v any) error {
	le := binary.LittleEndian
	switch t {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		_ = binary.Write(buf, le, uint64(len(s)))
		buf.WriteString(s)
	case TypeFloat32:
		f, ok := v.(float32)
		if !ok {
			return fmt.Errorf("expected float32, got %T", v)
		}
		_ = binary.Write(buf, le, math.Float32bits(f))
	case TypeBool:
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		var u uint8
		if b {
			u = 1
		}
		buf.WriteByte(u)
	case TypeUint32:
		u, ok := v.(uint32)
		if !ok {
			return fmt.Errorf("expected uint32, got %T", v)
		}
		_ = binary.Write(buf, le, u)
	case TypeUint64:
		u, ok := v.(uint64)
		if !ok {
			return fmt.Errorf("expected uint64, got %T", v)
		}
		_ = binary.Write(buf, le, u)
	case TypeArray:
		arr, ok := v.(ArrayValue)
		if !ok {
			return fmt.Errorf("expected array, got %T", v)
		}
		_ = binary.Write(buf, le, uint32(arr.ElemType))
		_ = binary.Write(buf, le, uint64(len(arr.Values)))
		for _, item := range arr.Values {
			if err := writeValue(buf, arr.ElemType, item); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("writing %s values is not supported", t)
	}
	return nil
}
