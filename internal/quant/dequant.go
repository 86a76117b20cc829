package quant

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/x448/float16"
)

const (
	qkK          = 256
	q4kBlockSize = 2 + 2 + 12 + 128
	q6kBlockSize = 2 + 128 + 64 + 16
	qk0          = 32
)

// placeholderAmplitude bounds the values used for kinds without a decoder.
const placeholderAmplitude = 0.05

var (
	ErrUnsupportedKind = errors.New("unsupported tensor kind")
	ErrShortPayload    = errors.New("payload too short")
)

// Source records how a decoded buffer was produced.
type Source uint8

const (
	SourceDecoded Source = iota
	SourceApproximate
	SourcePlaceholder
	SourceSynthetic
)

func (s Source) String() string {
	switch s {
	case SourceDecoded:
		return "decoded"
	case SourceApproximate:
		return "approximate"
	case SourcePlaceholder:
		return "placeholder"
	case SourceSynthetic:
		return "synthetic"
	default:
		return fmt.Sprintf("source(%d)", uint8(s))
	}
}

// Decode expands the leading len(dst) elements of src into dst.
// rng feeds the placeholder kinds and may be nil for the others.
func Decode(k Kind, src []byte, dst []float32, rng *rand.Rand) (Source, error) {
	t, ok := k.trait()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, k)
	}
	n := len(dst)
	if n == 0 {
		return SourceDecoded, nil
	}
	if need := k.BytesFor(n); len(src) < need {
		return 0, fmt.Errorf("%w: %s needs %d bytes for %d elements, have %d", ErrShortPayload, k, need, n, len(src))
	}

	switch t.mode {
	case modeNibble:
		expandNibbles(src, dst)
		return SourceApproximate, nil
	case modeRandom:
		if rng == nil {
			return 0, fmt.Errorf("%s: placeholder decode needs a random source", k)
		}
		for i := range dst {
			dst[i] = (rng.Float32()*2 - 1) * placeholderAmplitude
		}
		return SourcePlaceholder, nil
	}

	switch k {
	case F32:
		for i := range dst {
			dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
		}
	case F16:
		for i := range dst {
			dst[i] = halfAt(src, i*2)
		}
	case Q8_0:
		decodeBlocks(src, dst, qk0, 34, dequantQ8_0)
	case Q4_0:
		decodeBlocks(src, dst, qk0, 18, dequantQ4_0)
	case Q4_K:
		decodeBlocks(src, dst, qkK, q4kBlockSize, dequantQ4K)
	case Q6_K:
		decodeBlocks(src, dst, qkK, q6kBlockSize, dequantQ6K)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, k)
	}
	return SourceDecoded, nil
}

// decodeBlocks runs fn over whole blocks and keeps only the first len(dst)
// values of the last one.
func decodeBlocks(src []byte, dst []float32, elems, size int, fn func(block []byte, out []float32)) {
	var tmp []float32
	for b := 0; b*elems < len(dst); b++ {
		block := src[b*size : (b+1)*size]
		lo := b * elems
		if lo+elems <= len(dst) {
			fn(block, dst[lo:lo+elems])
			continue
		}
		if tmp == nil {
			tmp = make([]float32, elems)
		}
		fn(block, tmp)
		copy(dst[lo:], tmp)
	}
}

// expandNibbles maps every 4-bit value v of src onto v/15*2-1, low nibble first.
func expandNibbles(src []byte, dst []float32) {
	for i := range dst {
		b := src[i/2]
		v := b & 0x0F
		if i%2 == 1 {
			v = b >> 4
		}
		dst[i] = float32(v)/15*2 - 1
	}
}

func halfAt(b []byte, off int) float32 {
	return float16.Frombits(binary.LittleEndian.Uint16(b[off:])).Float32()
}

func dequantQ8_0(block []byte, y []float32) {
	d := halfAt(block, 0)
	qs := block[2:]
	for i := range qk0 {
		y[i] = d * float32(int8(qs[i]))
	}
}

func dequantQ4_0(block []byte, y []float32) {
	d := halfAt(block, 0)
	qs := block[2:]
	for j := range qk0 / 2 {
		y[j] = d * float32(int(qs[j]&0x0F)-8)
		y[j+qk0/2] = d * float32(int(qs[j]>>4)-8)
	}
}

func dequantQ4K(block []byte, y []float32) {
	d := halfAt(block, 0)
	dmin := halfAt(block, 2)
	scales := block[4:16]
	q := block[16:q4kBlockSize]

	is, yi := 0, 0
	for j := 0; j < qkK; j += 64 {
		sc1, m1 := scaleMinK4(is, scales)
		sc2, m2 := scaleMinK4(is+1, scales)
		d1, mm1 := d*float32(sc1), dmin*float32(m1)
		d2, mm2 := d*float32(sc2), dmin*float32(m2)
		for l := range 32 {
			y[yi+l] = d1*float32(q[l]&0x0F) - mm1
			y[yi+32+l] = d2*float32(q[l]>>4) - mm2
		}
		yi += 64
		q = q[32:]
		is += 2
	}
}

func dequantQ6K(block []byte, y []float32) {
	d := halfAt(block, 0)
	ql := block[2:130]
	qh := block[130:194]
	sc := block[194:q6kBlockSize]

	yi := 0
	for n := 0; n < qkK; n += 128 {
		for l := range 32 {
			is := l / 16
			q1 := int8((ql[l]&0x0F)|((qh[l]&3)<<4)) - 32
			q2 := int8((ql[l+32]&0x0F)|(((qh[l]>>2)&3)<<4)) - 32
			q3 := int8((ql[l]>>4)|(((qh[l]>>4)&3)<<4)) - 32
			q4 := int8((ql[l+32]>>4)|(((qh[l]>>6)&3)<<4)) - 32
			y[yi+l] = d * float32(int8(sc[is])) * float32(q1)
			y[yi+l+32] = d * float32(int8(sc[is+2])) * float32(q2)
			y[yi+l+64] = d * float32(int8(sc[is+4])) * float32(q3)
			y[yi+l+96] = d * float32(int8(sc[is+6])) * float32(q4)
		}
		yi += 128
		ql = ql[64:]
		qh = qh[32:]
		sc = sc[8:]
	}
}

func scaleMinK4(j int, scales []byte) (uint8, uint8) {
	if j < 4 {
		return scales[j] & 63, scales[j+4] & 63
	}
	d := (scales[j+4] & 0x0F) | ((scales[j-4] >> 6) << 4)
	m := (scales[j+4] >> 4) | ((scales[j] >> 6) << 4)
	return d, m
}
