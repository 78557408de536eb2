package bitstream

import (
	"encoding/binary"
	"fmt"
)

// Writer builds a bitstream in memory. The zero value is ready to use.
//
// Writers support backpatching completed 32-bit words, which the container
// layer uses for block lengths; everything else is append-only.
type Writer struct {
	buf     []byte
	cur     uint64
	curBits uint
}

// NewWriter returns a Writer with capacity for sizeHint bytes.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// BitPos returns the current write position in bits from the stream start.
func (w *Writer) BitPos() uint64 {
	return uint64(len(w.buf))*8 + uint64(w.curBits)
}

func (w *Writer) flushWords() {
	for w.curBits >= 32 {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(w.cur))
		w.cur >>= 32
		w.curBits -= 32
	}
}

// WriteFixed appends value in a fixed-width field. width must be 1..32 and
// value must fit; violations panic.
func (w *Writer) WriteFixed(value uint64, width uint) {
	if width < 1 || width > MaxFieldWidth {
		panic(fmt.Sprintf("bitstream: fixed width %d out of range", width))
	}
	if width < 64 && value >= 1<<width {
		panic(fmt.Sprintf("bitstream: value %d does not fit in %d bits", value, width))
	}
	w.cur |= value << w.curBits
	w.curBits += width
	w.flushWords()
}

// WriteVBR appends value as a variable-bit-rate field with the given chunk
// size. chunk must be 2..32; violations panic. Any uint64 value is
// representable.
func (w *Writer) WriteVBR(value uint64, chunk uint) {
	if chunk < 2 || chunk > MaxFieldWidth {
		panic(fmt.Sprintf("bitstream: vbr chunk %d out of range", chunk))
	}
	mask := uint64(1)<<(chunk-1) - 1
	more := uint64(1) << (chunk - 1)
	for {
		part := value & mask
		value >>= chunk - 1
		if value != 0 {
			w.WriteFixed(part|more, chunk)
			continue
		}
		w.WriteFixed(part, chunk)
		return
	}
}

// AlignTo32 pads with zero bits to the next 32-bit boundary. It is a no-op
// when already aligned.
func (w *Writer) AlignTo32() {
	if rem := w.BitPos() % 32; rem != 0 {
		w.WriteFixed(0, uint(32-rem))
	}
}

// WriteBlob appends a length prefix, aligns, copies the bytes, and re-aligns.
func (w *Writer) WriteBlob(b []byte) {
	w.WriteVBR(uint64(len(b)), BlobLenChunk)
	w.AlignTo32()
	w.buf = append(w.buf, b...)
	for len(w.buf)%4 != 0 {
		w.buf = append(w.buf, 0)
	}
}

// Backpatch32 overwrites the 32-bit word at bitPos, which must be 32-bit
// aligned and already flushed. Misuse panics.
func (w *Writer) Backpatch32(bitPos uint64, value uint32) {
	if bitPos%32 != 0 {
		panic(fmt.Sprintf("bitstream: backpatch at unaligned bit %d", bitPos))
	}
	byteOff := bitPos / 8
	if byteOff+4 > uint64(len(w.buf)) {
		panic(fmt.Sprintf("bitstream: backpatch at bit %d beyond flushed data", bitPos))
	}
	binary.LittleEndian.PutUint32(w.buf[byteOff:], value)
}

// Bytes pads the stream to a whole word and returns the buffer. The buffer
// remains owned by the writer; further writes may grow it in place.
func (w *Writer) Bytes() []byte {
	w.AlignTo32()
	return w.buf
}
