package quant

import (
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestKindsHaveTraits(t *testing.T) {
	t.Parallel()

	for _, k := range Kinds() {
		assert.True(t, k.Valid(), k.String())
		assert.Positive(t, k.BlockElems(), k.String())
		assert.Positive(t, k.BlockBytes(), k.String())
		got, err := ParseKind(uint32(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
}

func TestParseKindRejectsUnknown(t *testing.T) {
	t.Parallel()

	for _, id := range []uint32{4, 5, 16, 30, 1000} {
		_, err := ParseKind(id)
		assert.ErrorIs(t, err, ErrUnsupportedKind, "id %d", id)
	}
}

func TestElementCount(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind Kind
		size int64
		want int
	}{
		{F32, 40, 10},
		{F32, 4096, 256},
		{F16, 64, 32},
		{F16, 4096, 512},
		{Q4_0, 18, 32},
		{Q4_0, 18 * 10, 128},
		{Q4_K, 144, 128},
		{Q6_K, 10, 0},
		{Q8_0, 0, 0},
		{Kind(99), 1024, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.kind.ElementCount(tc.size), "%s/%d", tc.kind, tc.size)
	}
}

func TestDecodeF32AndF16(t *testing.T) {
	t.Parallel()

	want := []float32{1, -2, 0.5, 3.25}

	dst := make([]float32, len(want))
	src, err := Decode(F32, EncodeF32(want), dst, nil)
	require.NoError(t, err)
	assert.Equal(t, SourceDecoded, src)
	assert.Equal(t, want, dst)

	dst = make([]float32, len(want))
	_, err = Decode(F16, EncodeF16(want), dst, nil)
	require.NoError(t, err)
	assert.Equal(t, want, dst)
}

func TestDecodeQ8_0(t *testing.T) {
	t.Parallel()

	block := make([]byte, 34)
	binary.LittleEndian.PutUint16(block, float16.Fromfloat32(0.5).Bits())
	for i := range 32 {
		block[2+i] = byte(int8(i - 16))
	}
	dst := make([]float32, 32)
	_, err := Decode(Q8_0, block, dst, nil)
	require.NoError(t, err)
	for i := range 32 {
		assert.InDelta(t, 0.5*float32(i-16), dst[i], 1e-6)
	}
}

func TestDecodeQ4_0(t *testing.T) {
	t.Parallel()

	block := make([]byte, 18)
	binary.LittleEndian.PutUint16(block, float16.Fromfloat32(2).Bits())
	for j := range 16 {
		block[2+j] = byte(j) | byte(15-j)<<4
	}
	dst := make([]float32, 32)
	_, err := Decode(Q4_0, block, dst, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2*float32(0-8), dst[0], 1e-6)
	assert.InDelta(t, 2*float32(15-8), dst[15], 1e-6)
	assert.InDelta(t, 2*float32(15-8), dst[16], 1e-6)
	assert.InDelta(t, 2*float32(0-8), dst[31], 1e-6)
}

func TestDecodeQ4KTruncatesBlock(t *testing.T) {
	t.Parallel()

	block := make([]byte, q4kBlockSize)
	binary.LittleEndian.PutUint16(block[0:], float16.Fromfloat32(1).Bits())
	binary.LittleEndian.PutUint16(block[2:], float16.Fromfloat32(0).Bits())
	for i := range 4 {
		block[4+i] = 1 // scale 1, min 0 for sub-blocks 0..3
	}
	for i := range 128 {
		block[16+i] = 0x53
	}
	dst := make([]float32, Q4_K.ElementCount(q4kBlockSize))
	require.Len(t, dst, 128)
	_, err := Decode(Q4_K, block, dst, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3, dst[0], 1e-6)
	assert.InDelta(t, 5, dst[32], 1e-6)
	assert.InDelta(t, 3, dst[64], 1e-6)
}

func TestDecodeQ6K(t *testing.T) {
	t.Parallel()

	block := make([]byte, q6kBlockSize)
	binary.LittleEndian.PutUint16(block[0:], float16.Fromfloat32(1).Bits())
	for i := range 128 {
		block[2+i] = 0x22 // q = 2 in both nibbles, high bits 0 -> 2-32
	}
	for i := range 16 {
		block[194+i] = 1
	}
	dst := make([]float32, 128)
	_, err := Decode(Q6_K, block, dst, nil)
	require.NoError(t, err)
	for _, v := range dst {
		assert.InDelta(t, -30, v, 1e-6)
	}
}

func TestDecodeApproximateKindsStayInRange(t *testing.T) {
	t.Parallel()

	for _, k := range []Kind{Q4_1, Q5_0, Q5_1, Q8_1} {
		payload := make([]byte, k.BlockBytes()*4)
		for i := range payload {
			payload[i] = byte(i * 37)
		}
		dst := make([]float32, k.ElementCount(int64(len(payload))))
		src, err := Decode(k, payload, dst, nil)
		require.NoError(t, err, k.String())
		assert.Equal(t, SourceApproximate, src)
		for _, v := range dst {
			assert.GreaterOrEqual(t, v, float32(-1))
			assert.LessOrEqual(t, v, float32(1))
		}
	}
}

func TestDecodePlaceholderKinds(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for _, k := range []Kind{Q2_K, Q3_K, Q5_K, Q8_K} {
		payload := make([]byte, k.BlockBytes())
		dst := make([]float32, k.ElementCount(int64(len(payload))))
		src, err := Decode(k, payload, dst, rng)
		require.NoError(t, err, k.String())
		assert.Equal(t, SourcePlaceholder, src)
		for _, v := range dst {
			assert.LessOrEqual(t, v, float32(placeholderAmplitude))
			assert.GreaterOrEqual(t, v, float32(-placeholderAmplitude))
		}
	}
}

func TestDecodeShortPayload(t *testing.T) {
	t.Parallel()

	_, err := Decode(Q8_0, make([]byte, 10), make([]float32, 32), nil)
	assert.ErrorIs(t, err, ErrShortPayload)
}

func TestEncodeDecodeBlockKinds(t *testing.T) {
	t.Parallel()

	values := make([]float32, 64)
	for i := range values {
		values[i] = float32(i%17)/8 - 1
	}
	for _, tc := range []struct {
		kind Kind
		tol  float64
	}{
		{F32, 0},
		{F16, 1e-3},
		{Q8_0, 0.01},
		{Q4_0, 0.15},
	} {
		payload, err := Encode(tc.kind, values)
		require.NoError(t, err, tc.kind.String())
		want, err := tc.kind.PayloadBytes(uint64(len(values)))
		require.NoError(t, err)
		require.Len(t, payload, int(want))

		got := make([]float32, len(values))
		_, err = Decode(tc.kind, payload, got, nil)
		require.NoError(t, err)
		for i := range values {
			assert.InDelta(t, values[i], got[i], tc.tol, "%s[%d]", tc.kind, i)
		}
	}

	_, err := Encode(Q6_K, values)
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	_, err = Encode(Q8_0, values[:10])
	assert.Error(t, err)
}
