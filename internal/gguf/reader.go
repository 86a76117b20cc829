package gguf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// reader walks a mapped container. Slices it returns alias the mapping.
type reader struct {
	data []byte
	off  int
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) remaining() int { return len(r.data) - r.off }

func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	if n > r.remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) readU8() (uint8, error) {
	b, err := r.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readU16() (uint16, error) {
	b, err := r.readN(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) readU32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readU64() (uint64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) readString() (string, error) {
	n, err := r.readU64()
	if err != nil {
		return "", err
	}
	if n > uint64(r.remaining()) {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, r.remaining())
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// readCount reads a u64 element count and rejects counts that could not fit
// in the rest of the file at minSize bytes per element.
func (r *reader) readCount(minSize int) (int, error) {
	n, err := r.readU64()
	if err != nil {
		return 0, err
	}
	if minSize > 0 && n > uint64(r.remaining()/minSize) {
		return 0, fmt.Errorf("count %d exceeds remaining %d bytes", n, r.remaining())
	}
	return int(n), nil
}

func (r *reader) readValue(vtype ValueType) (any, error) {
	switch vtype {
	case TypeUint8:
		return r.readU8()
	case TypeInt8:
		v, err := r.readU8()
		return int8(v), err
	case TypeUint16:
		return r.readU16()
	case TypeInt16:
		v, err := r.readU16()
		return int16(v), err
	case TypeUint32:
		return r.readU32()
	case TypeInt32:
		v, err := r.readU32()
		return int32(v), err
	case TypeUint64:
		return r.readU64()
	case TypeInt64:
		v, err := r.readU64()
		return int64(v), err
	case TypeFloat32:
		v, err := r.readU32()
		return math.Float32frombits(v), err
	case TypeFloat64:
		v, err := r.readU64()
		return math.Float64frombits(v), err
	case TypeBool:
		v, err := r.readU8()
		return v != 0, err
	case TypeString:
		return r.readString()
	case TypeArray:
		et, err := r.readU32()
		if err != nil {
			return nil, err
		}
		elemType := ValueType(et)
		if elemType == TypeArray {
			return nil, fmt.Errorf("nested arrays are not supported")
		}
		count, err := r.readCount(elemType.minSize())
		if err != nil {
			return nil, err
		}
		values := make([]any, 0, count)
		for range count {
			v, err := r.readValue(elemType)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return ArrayValue{ElemType: elemType, Values: values}, nil
	default:
		return nil, fmt.Errorf("unsupported value type %d", uint32(vtype))
	}
}
