package quant

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/x448/float16"
)

// Encode packs values as kind. Only the kinds with an exact decoder that the
// container writer needs are supported.
func Encode(k Kind, values []float32) ([]byte, error) {
	switch k {
	case F32:
		return EncodeF32(values), nil
	case F16:
		return EncodeF16(values), nil
	case Q8_0:
		return encodeBlocks(values, 34, quantizeQ8_0)
	case Q4_0:
		return encodeBlocks(values, 18, quantizeQ4_0)
	default:
		return nil, fmt.Errorf("%w: no encoder for %s", ErrUnsupportedKind, k)
	}
}

// EncodeF32 packs values as little-endian float32.
func EncodeF32(values []float32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// EncodeF16 packs values as little-endian half floats.
func EncodeF16(values []float32) []byte {
	out := make([]byte, len(values)*2)
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
	}
	return out
}

func encodeBlocks(values []float32, size int, fn func(x []float32, block []byte)) ([]byte, error) {
	if len(values)%qk0 != 0 {
		return nil, fmt.Errorf("%d values is not a multiple of %d", len(values), qk0)
	}
	out := make([]byte, len(values)/qk0*size)
	for b := 0; b*qk0 < len(values); b++ {
		fn(values[b*qk0:(b+1)*qk0], out[b*size:(b+1)*size])
	}
	return out, nil
}

func absMax(x []float32) (float32, float32) {
	var amax, signed float32
	for _, v := range x {
		if a := float32(math.Abs(float64(v))); a > amax {
			amax, signed = a, v
		}
	}
	return amax, signed
}

func quantizeQ8_0(x []float32, block []byte) {
	amax, _ := absMax(x)
	d := amax / 127
	id := float32(0)
	if d != 0 {
		id = 1 / d
	}
	binary.LittleEndian.PutUint16(block, float16.Fromfloat32(d).Bits())
	for i, v := range x {
		block[2+i] = byte(int8(math.Round(float64(v * id))))
	}
}

func quantizeQ4_0(x []float32, block []byte) {
	_, m := absMax(x)
	d := m / -8
	id := float32(0)
	if d != 0 {
		id = 1 / d
	}
	binary.LittleEndian.PutUint16(block, float16.Fromfloat32(d).Bits())
	q := func(v float32) byte {
		return byte(min(15, int(v*id+8.5)))
	}
	for j := range qk0 / 2 {
		block[2+j] = q(x[j]) | q(x[j+qk0/2])<<4
	}
}
