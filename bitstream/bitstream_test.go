package bitstream

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixedRoundTrip(t *testing.T) {
	tests := []struct {
		value uint64
		width uint
	}{
		{0, 1},
		{1, 1},
		{5, 3},
		{255, 8},
		{256, 9},
		{0x7FFFFFFF, 31},
		{0xFFFFFFFF, 32},
		{0, 32},
	}

	w := &Writer{}
	for _, tt := range tests {
		w.WriteFixed(tt.value, tt.width)
	}

	r := NewReader(w.Bytes())
	for _, tt := range tests {
		got, err := r.ReadFixed(tt.width)
		require.NoError(t, err)
		assert.Equal(t, tt.value, got, "width %d", tt.width)
	}
}

func TestFixedCrossesWordBoundary(t *testing.T) {
	w := &Writer{}
	w.WriteFixed(0x3, 7)
	w.WriteFixed(0xDEADBEEF, 32) // straddles the first word
	w.WriteFixed(0x15, 5)

	r := NewReader(w.Bytes())
	v, err := r.ReadFixed(7)
	require.NoError(t, err)
	assert.EqualValues(t, 0x3, v)
	v, err = r.ReadFixed(32)
	require.NoError(t, err)
	assert.EqualValues(t, 0xDEADBEEF, v)
	v, err = r.ReadFixed(5)
	require.NoError(t, err)
	assert.EqualValues(t, 0x15, v)
}

func TestVBRRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 30, 31, 32, 127, 128, 1 << 20, 1<<31 - 1, 1 << 31, 1 << 40, math.MaxUint64}
	chunks := []uint{2, 4, 6, 8, 16, 32}

	for _, chunk := range chunks {
		w := &Writer{}
		for _, v := range values {
			w.WriteVBR(v, chunk)
		}
		r := NewReader(w.Bytes())
		for _, v := range values {
			got, err := r.ReadVBR(chunk)
			require.NoError(t, err)
			assert.Equal(t, v, got, "chunk %d", chunk)
		}
	}
}

func TestVBRSmallValueSingleChunk(t *testing.T) {
	// Values below 2^(chunk-1) must occupy exactly one chunk.
	w := &Writer{}
	w.WriteVBR(31, 6)
	assert.EqualValues(t, 6, w.BitPos())
}

func TestBlobRoundTrip(t *testing.T) {
	blobs := [][]byte{
		nil,
		[]byte("a"),
		[]byte("abc"),
		[]byte("abcd"),
		[]byte("hello, serialized world"),
		make([]byte, 1024),
	}

	w := &Writer{}
	w.WriteFixed(5, 3) // start unaligned
	for _, b := range blobs {
		w.WriteBlob(b)
	}
	w.WriteFixed(2, 2)

	r := NewReader(w.Bytes())
	v, err := r.ReadFixed(3)
	require.NoError(t, err)
	assert.EqualValues(t, 5, v)
	for i, want := range blobs {
		got, err := r.ReadBlob()
		require.NoError(t, err)
		assert.Equal(t, append([]byte(nil), want...), append([]byte(nil), got...), "blob %d", i)
		assert.Zero(t, r.BitPos()%32, "blob %d must leave the cursor aligned", i)
	}
	v, err = r.ReadFixed(2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, v)
}

func TestBlobAliasesBuffer(t *testing.T) {
	w := &Writer{}
	w.WriteBlob([]byte("shared"))
	data := w.Bytes()

	r := NewReader(data)
	b, err := r.ReadBlob()
	require.NoError(t, err)
	require.Equal(t, "shared", string(b))

	// The blob must point into the stream buffer, not a copy.
	data[4] = 'S'
	assert.Equal(t, "Shared", string(b))
}

func TestAlignTo32(t *testing.T) {
	w := &Writer{}
	w.WriteFixed(1, 1)
	w.AlignTo32()
	assert.EqualValues(t, 32, w.BitPos())
	w.AlignTo32() // no-op when aligned
	assert.EqualValues(t, 32, w.BitPos())

	r := NewReader(w.Bytes())
	_, err := r.ReadFixed(1)
	require.NoError(t, err)
	require.NoError(t, r.AlignTo32())
	assert.EqualValues(t, 32, r.BitPos())
}

func TestReadPastEnd(t *testing.T) {
	w := &Writer{}
	w.WriteFixed(1, 8)
	data := w.Bytes() // one word

	r := NewReader(data)
	_, err := r.ReadFixed(32)
	require.NoError(t, err)
	_, err = r.ReadFixed(1)
	assert.ErrorIs(t, err, ErrOutOfBounds)

	// VBR that runs off the end.
	r2 := NewReader([]byte{0xFF, 0xFF})
	_, err = r2.ReadVBR(8)
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestBlobLengthPastEnd(t *testing.T) {
	// A blob header claiming more bytes than exist must be rejected before
	// any slicing happens.
	w := &Writer{}
	w.WriteVBR(1000, BlobLenChunk)
	w.AlignTo32()
	data := w.Bytes()

	r := NewReader(data)
	_, err := r.ReadBlob()
	assert.ErrorIs(t, err, ErrOutOfBounds)
}

func TestVBROverflow(t *testing.T) {
	// 70 bits of continuation chunks with payload overflows uint64.
	w := &Writer{}
	for range 20 {
		w.WriteFixed(0xFF, 8) // VBR8 chunk: 7 data bits + continuation
	}
	w.WriteFixed(0x01, 8)

	r := NewReader(w.Bytes())
	_, err := r.ReadVBR(8)
	assert.ErrorIs(t, err, ErrVBROverflow)
}

func TestSeekBit(t *testing.T) {
	w := &Writer{}
	w.WriteFixed(0xA, 4)
	w.WriteFixed(0xB, 4)
	data := w.Bytes()

	r := NewReader(data)
	require.NoError(t, r.SeekBit(4))
	v, err := r.ReadFixed(4)
	require.NoError(t, err)
	assert.EqualValues(t, 0xB, v)

	require.NoError(t, r.SeekBit(r.BitLen()))
	assert.Error(t, r.SeekBit(r.BitLen()+1))
}

func TestBackpatch32(t *testing.T) {
	w := &Writer{}
	w.WriteFixed(0x11, 8)
	w.AlignTo32()
	lenPos := w.BitPos()
	w.WriteFixed(0, 32) // placeholder
	w.WriteFixed(0x22, 8)
	w.Backpatch32(lenPos, 0xCAFEBABE)

	r := NewReader(w.Bytes())
	v, err := r.ReadFixed(8)
	require.NoError(t, err)
	assert.EqualValues(t, 0x11, v)
	require.NoError(t, r.AlignTo32())
	v, err = r.ReadFixed(32)
	require.NoError(t, err)
	assert.EqualValues(t, 0xCAFEBABE, v)
	v, err = r.ReadFixed(8)
	require.NoError(t, err)
	assert.EqualValues(t, 0x22, v)
}

func TestWriterPanicsOnMisuse(t *testing.T) {
	w := &Writer{}
	assert.Panics(t, func() { w.WriteFixed(0, 0) })
	assert.Panics(t, func() { w.WriteFixed(0, 33) })
	assert.Panics(t, func() { w.WriteFixed(8, 3) })
	assert.Panics(t, func() { w.WriteVBR(1, 1) })
	assert.Panics(t, func() { w.Backpatch32(7, 0) })
}

func TestBytesPadsToWord(t *testing.T) {
	w := &Writer{}
	w.WriteFixed(1, 3)
	data := w.Bytes()
	assert.Len(t, data, 4)
	assert.Zero(t, len(data)%4)
}
