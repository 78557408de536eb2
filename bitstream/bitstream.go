// Package bitstream implements the bit-packed primitive codec underneath
// Crux serialized modules: fixed-width fields, variable-bit-rate integers,
// byte-aligned blobs, and 32-bit alignment.
//
// The stream is a sequence of 32-bit little-endian words filled from the
// least significant bit upward, so bit i of the stream lives at bit i%8 of
// byte i/8. A VBR field with chunk size c carries c-1 value bits per chunk,
// low chunks first, with the top bit of each chunk set while more chunks
// follow. Blobs are length-prefixed (VBR6), 32-bit aligned on both sides, and
// returned by the reader as subslices of the input buffer.
//
// Malformed input surfaces as errors wrapping ErrOutOfBounds or
// ErrVBROverflow. Misuse (widths outside 1..32, values that do not fit)
// panics; those are caller bugs, not data errors.
package bitstream

import "errors"

var (
	// ErrOutOfBounds is returned when a read would pass the end of the
	// stream, including seeks beyond it.
	ErrOutOfBounds = errors.New("bitstream: read past end of stream")

	// ErrVBROverflow is returned when a VBR field does not fit in 64 bits.
	ErrVBROverflow = errors.New("bitstream: vbr value overflows 64 bits")
)

const (
	// BlobLenChunk is the VBR chunk size of blob length prefixes.
	BlobLenChunk = 6

	// MaxFieldWidth bounds fixed widths and VBR chunk sizes.
	MaxFieldWidth = 32
)
