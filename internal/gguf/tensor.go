package gguf

import (
	"github.com/samcharles93/pocket/internal/fault"
	"github.com/samcharles93/pocket/internal/quant"
)

// TensorInfo is one tensor directory entry. Offset is relative to the data
// section. Size is zero when the raw type has no decode path, and such
// tensors are never selected for loading.
type TensorInfo struct {
	Name      string
	Dims      []uint64
	RawType   uint32
	Kind      quant.Kind
	Supported bool
	Offset    uint64
	Size      uint64
}

func newTensorInfo(name string, dims []uint64, raw uint32, offset uint64) TensorInfo {
	t := TensorInfo{Name: name, Dims: dims, RawType: raw, Offset: offset}
	kind, err := quant.ParseKind(raw)
	if err != nil {
		return t
	}
	t.Kind = kind
	size, err := kind.PayloadBytes(t.Elements())
	if err != nil || size == 0 {
		return t
	}
	t.Supported = true
	t.Size = size
	return t
}

// Elements is the product of the dimensions.
func (t TensorInfo) Elements() uint64 {
	if len(t.Dims) == 0 {
		return 0
	}
	n := uint64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// TypeName is the kind name, or the raw id for unsupported types.
func (t TensorInfo) TypeName() string {
	if t.Supported {
		return t.Kind.String()
	}
	return quant.Kind(t.RawType).String()
}

// TensorByName returns the tensor info for the given name.
func (f *File) TensorByName(name string) (TensorInfo, bool) {
	for _, t := range f.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return TensorInfo{}, false
}

// Payload returns the raw bytes of t. The slice aliases the mapping.
func (f *File) Payload(t TensorInfo) ([]byte, error) {
	if !t.Supported {
		return nil, fault.New(fault.ErrFormat, "tensor payload", "%s: unsupported type %s", t.Name, t.TypeName())
	}
	if f.data == nil {
		return nil, fault.New(fault.ErrIO, "tensor payload", "%s: container is closed", t.Name)
	}
	start := f.DataOffset + t.Offset
	end := start + t.Size
	if end < start || end > uint64(len(f.data)) {
		return nil, fault.New(fault.ErrFormat, "tensor payload", "%s: [%d, %d) past end of file", t.Name, start, end)
	}
	return f.data[start:end:end], nil
}

// PayloadBytes sums the payload sizes of every supported tensor.
func (f *File) PayloadBytes() uint64 {
	var total uint64
	for _, t := range f.Tensors {
		total += t.Size
	}
	return total
}
