// Package quant describes the tensor encodings the loader understands and
// expands them into dense float32 buffers.
//
// Kind is closed: every value returned by Kinds has a trait row, and ParseKind
// rejects anything else, so callers never see an encoding without a decode path
// and an element-count rule.
package quant

import "fmt"

// Kind is a tensor encoding. Values match the GGML type ids stored in containers.
type Kind uint32

const (
	F32  Kind = 0
	F16  Kind = 1
	Q4_0 Kind = 2
	Q4_1 Kind = 3
	Q5_0 Kind = 6
	Q5_1 Kind = 7
	Q8_0 Kind = 8
	Q8_1 Kind = 9
	Q2_K Kind = 10
	Q3_K Kind = 11
	Q4_K Kind = 12
	Q5_K Kind = 13
	Q6_K Kind = 14
	Q8_K Kind = 15
)

// Element caps keep every decoded buffer small enough for constrained targets.
const (
	capF32   = 256
	capF16   = 512
	capBlock = 128
)

type decodeMode uint8

const (
	modeExact decodeMode = iota
	modeNibble
	modeRandom
)

type trait struct {
	name       string
	blockElems int
	blockBytes int
	cap        int
	mode       decodeMode
}

// Kinds lists every supported kind in id order.
func Kinds() []Kind {
	return []Kind{F32, F16, Q4_0, Q4_1, Q5_0, Q5_1, Q8_0, Q8_1, Q2_K, Q3_K, Q4_K, Q5_K, Q6_K, Q8_K}
}

func (k Kind) trait() (trait, bool) {
	switch k {
	case F32:
		return trait{"F32", 1, 4, capF32, modeExact}, true
	case F16:
		return trait{"F16", 1, 2, capF16, modeExact}, true
	case Q4_0:
		return trait{"Q4_0", 32, 18, capBlock, modeExact}, true
	case Q4_1:
		return trait{"Q4_1", 32, 20, capBlock, modeNibble}, true
	case Q5_0:
		return trait{"Q5_0", 32, 22, capBlock, modeNibble}, true
	case Q5_1:
		return trait{"Q5_1", 32, 24, capBlock, modeNibble}, true
	case Q8_0:
		return trait{"Q8_0", 32, 34, capBlock, modeExact}, true
	case Q8_1:
		return trait{"Q8_1", 32, 36, capBlock, modeNibble}, true
	case Q2_K:
		return trait{"Q2_K", qkK, 84, capBlock, modeRandom}, true
	case Q3_K:
		return trait{"Q3_K", qkK, 110, capBlock, modeRandom}, true
	case Q4_K:
		return trait{"Q4_K", qkK, q4kBlockSize, capBlock, modeExact}, true
	case Q5_K:
		return trait{"Q5_K", qkK, 176, capBlock, modeRandom}, true
	case Q6_K:
		return trait{"Q6_K", qkK, q6kBlockSize, capBlock, modeExact}, true
	case Q8_K:
		return trait{"Q8_K", qkK, 292, capBlock, modeRandom}, true
	default:
		return trait{}, false
	}
}

// ParseKind validates a raw container type id.
func ParseKind(id uint32) (Kind, error) {
	k := Kind(id)
	if _, ok := k.trait(); !ok {
		return 0, fmt.Errorf("%w: type id %d", ErrUnsupportedKind, id)
	}
	return k, nil
}

func (k Kind) Valid() bool {
	_, ok := k.trait()
	return ok
}

func (k Kind) String() string {
	if t, ok := k.trait(); ok {
		return t.name
	}
	return fmt.Sprintf("type(%d)", uint32(k))
}

// Quantized reports whether k is a block format.
func (k Kind) Quantized() bool {
	t, ok := k.trait()
	return ok && t.blockElems > 1
}

// BlockElems is the number of elements packed into one block.
func (k Kind) BlockElems() int {
	t, _ := k.trait()
	return t.blockElems
}

// BlockBytes is the encoded size of one block.
func (k Kind) BlockBytes() int {
	t, _ := k.trait()
	return t.blockBytes
}

// PayloadBytes returns the encoded size of a tensor with n elements.
func (k Kind) PayloadBytes(n uint64) (uint64, error) {
	t, ok := k.trait()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, k)
	}
	be := uint64(t.blockElems)
	if n%be != 0 {
		return 0, fmt.Errorf("%s: %d elements is not a multiple of block size %d", k, n, be)
	}
	return n / be * uint64(t.blockBytes), nil
}

// ElementCount is the decoded buffer length for a payload of byteSize bytes:
// the number of whole-block elements, capped per kind.
func (k Kind) ElementCount(byteSize int64) int {
	t, ok := k.trait()
	if !ok || byteSize <= 0 {
		return 0
	}
	n := byteSize / int64(t.blockBytes) * int64(t.blockElems)
	return int(min(n, int64(t.cap)))
}

// BytesFor is the number of payload bytes needed to decode the first n elements.
func (k Kind) BytesFor(n int) int {
	t, ok := k.trait()
	if !ok || n <= 0 {
		return 0
	}
	blocks := (n + t.blockElems - 1) / t.blockElems
	return blocks * t.blockBytes
}
