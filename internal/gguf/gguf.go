// Package gguf reads and writes the GGUF model container: a signature, a
// typed key/value table, a tensor directory and the aligned tensor payloads.
package gguf

import (
	"fmt"
	"os"

	"github.com/samcharles93/pocket/internal/fault"
)

const (
	magicGGUF        = "GGUF"
	defaultAlignment = 32
	// magic + version + tensor count + kv count
	headerSize = 4 + 4 + 8 + 8
)

type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

func (t ValueType) String() string {
	switch t {
	case TypeUint8:
		return "u8"
	case TypeInt8:
		return "i8"
	case TypeUint16:
		return "u16"
	case TypeInt16:
		return "i16"
	case TypeUint32:
		return "u32"
	case TypeInt32:
		return "i32"
	case TypeUint64:
		return "u64"
	case TypeInt64:
		return "i64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// minSize is the smallest encoding of one value of type t.
func (t ValueType) minSize() int {
	switch t {
	case TypeUint8, TypeInt8, TypeBool:
		return 1
	case TypeUint16, TypeInt16:
		return 2
	case TypeUint32, TypeInt32, TypeFloat32:
		return 4
	case TypeUint64, TypeInt64, TypeFloat64, TypeString:
		return 8
	default:
		return 1
	}
}

type ArrayValue struct {
	ElemType ValueType
	Values   []any
}

type Value struct {
	Type  ValueType
	Value any
}

type Header struct {
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

// File is a parsed container. Payload slices alias the mapping and are valid
// until Close.
type File struct {
	Path       string
	Size       int64
	Header     Header
	KV         map[string]Value
	Tensors    []TensorInfo
	Alignment  uint64
	DataOffset uint64

	data  []byte
	unmap func() error
}

// Open maps path read-only and parses it. Open failures are fault.ErrIO,
// malformed content is fault.ErrFormat.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.ErrIO, "open container", err)
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return nil, fault.Wrap(fault.ErrIO, "stat container", err)
	}
	size := st.Size()
	if size < headerSize {
		return nil, fault.New(fault.ErrFormat, "open container", "%s: %d bytes is too small for a header", path, size)
	}

	data, unmap, err := mapFile(f, size)
	if err != nil {
		return nil, fault.Wrap(fault.ErrIO, "map container", err)
	}

	file, err := Parse(data)
	if err != nil {
		_ = unmap()
		return nil, err
	}
	file.Path = path
	file.Size = size
	file.unmap = unmap
	return file, nil
}

// Parse decodes a container held in memory.
func Parse(data []byte) (*File, error) {
	bad := func(format string, args ...any) error {
		return fault.New(fault.ErrFormat, "parse container", format, args...)
	}

	if len(data) < headerSize {
		return nil, bad("%d bytes is too small for a header", len(data))
	}
	r := newReader(data)

	magic, _ := r.readN(4)
	if string(magic) != magicGGUF {
		return nil, bad("invalid magic %q", string(magic))
	}
	version, _ := r.readU32()
	if version < 2 || version > 3 {
		return nil, bad("unsupported version %d", version)
	}
	tensorCount, _ := r.readU64()
	kvCount, _ := r.readU64()
	// every kv entry and tensor descriptor takes at least 8 bytes
	if tensorCount > uint64(r.remaining()/8) || kvCount > uint64(r.remaining()/8) {
		return nil, bad("counts (tensors=%d kv=%d) exceed file size %d", tensorCount, kvCount, len(data))
	}

	kv := make(map[string]Value, kvCount)
	for i := range kvCount {
		key, err := r.readString()
		if err != nil {
			return nil, bad("read key %d: %v", i, err)
		}
		vt, err := r.readU32()
		if err != nil {
			return nil, bad("read value type for %s: %v", key, err)
		}
		val, err := r.readValue(ValueType(vt))
		if err != nil {
			return nil, bad("read value for %s: %v", key, err)
		}
		kv[key] = Value{Type: ValueType(vt), Value: val}
	}

	tensors := make([]TensorInfo, 0, tensorCount)
	for i := range tensorCount {
		name, err := r.readString()
		if err != nil {
			return nil, bad("read tensor name %d: %v", i, err)
		}
		nDim, err := r.readU32()
		if err != nil {
			return nil, bad("read tensor dims %s: %v", name, err)
		}
		if nDim > 8 {
			return nil, bad("tensor %s: %d dimensions", name, nDim)
		}
		dims := make([]uint64, nDim)
		for d := range dims {
			if dims[d], err = r.readU64(); err != nil {
				return nil, bad("read tensor dim %s[%d]: %v", name, d, err)
			}
		}
		raw, err := r.readU32()
		if err != nil {
			return nil, bad("read tensor type %s: %v", name, err)
		}
		offset, err := r.readU64()
		if err != nil {
			return nil, bad("read tensor offset %s: %v", name, err)
		}
		tensors = append(tensors, newTensorInfo(name, dims, raw, offset))
	}

	alignment := uint64(defaultAlignment)
	if u, ok := GetUint64(kv, "general.alignment"); ok && u > 0 {
		alignment = u
	}
	dataOffset := align(uint64(r.off), alignment)

	for _, t := range tensors {
		if t.Size == 0 {
			continue
		}
		end := dataOffset + t.Offset + t.Size
		if end < dataOffset || end > uint64(len(data)) {
			return nil, bad("tensor %s payload [%d, %d) extends past end of file (%d bytes)",
				t.Name, dataOffset+t.Offset, end, len(data))
		}
	}

	return &File{
		Header:     Header{Version: version, TensorCount: tensorCount, KVCount: kvCount},
		KV:         kv,
		Tensors:    tensors,
		Alignment:  alignment,
		DataOffset: dataOffset,
		Size:       int64(len(data)),
		data:       data,
	}, nil
}

// Close releases the mapping. It is safe to call more than once.
func (f *File) Close() error {
	if f.unmap == nil {
		return nil
	}
	err := f.unmap()
	f.unmap = nil
	f.data = nil
	return err
}

func align(offset, alignment uint64) uint64 {
	if alignment == 0 {
		return offset
	}
	if rem := offset % alignment; rem != 0 {
		return offset + (alignment - rem)
	}
	return offset
}

func asUint64(v any) (uint64, bool) {
	switch t := v.(type) {
	case uint8:
		return uint64(t), true
	case uint16:
		return uint64(t), true
	case uint32:
		return uint64(t), true
	case uint64:
		return t, true
	case int8:
		return uint64(t), t >= 0
	case int16:
		return uint64(t), t >= 0
	case int32:
		return uint64(t), t >= 0
	case int64:
		return uint64(t), t >= 0
	default:
		return 0, false
	}
}
