package bitstream

import "fmt"

// Reader decodes a bitstream from an immutable byte buffer. Blobs returned
// by ReadBlob alias the buffer, so the buffer must stay valid and unmodified
// for the lifetime of everything decoded from it.
//
// A Reader is a plain cursor: copying one is cheap and saves a position.
type Reader struct {
	data []byte
	pos  uint64
}

// NewReader returns a Reader positioned at bit 0 of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// BitLen returns the total length of the stream in bits.
func (r *Reader) BitLen() uint64 { return uint64(len(r.data)) * 8 }

// BitPos returns the current read position in bits.
func (r *Reader) BitPos() uint64 { return r.pos }

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() uint64 { return r.BitLen() - r.pos }

// SeekBit repositions the cursor. Seeking past the end of the stream is an
// error and leaves the position unchanged.
func (r *Reader) SeekBit(pos uint64) error {
	if pos > r.BitLen() {
		return fmt.Errorf("%w: seek to bit %d of %d", ErrOutOfBounds, pos, r.BitLen())
	}
	r.pos = pos
	return nil
}

// ReadFixed reads a fixed-width field. width must be 1..32; violations
// panic. Reading past the end returns ErrOutOfBounds.
func (r *Reader) ReadFixed(width uint) (uint64, error) {
	if width < 1 || width > MaxFieldWidth {
		panic(fmt.Sprintf("bitstream: fixed width %d out of range", width))
	}
	if r.pos+uint64(width) > r.BitLen() {
		return 0, fmt.Errorf("%w: %d-bit field at bit %d of %d", ErrOutOfBounds, width, r.pos, r.BitLen())
	}
	var v uint64
	got := uint(0)
	for got < width {
		b := r.data[r.pos>>3]
		bit := uint(r.pos & 7)
		take := 8 - bit
		if take > width-got {
			take = width - got
		}
		v |= (uint64(b>>bit) & (1<<take - 1)) << got
		got += take
		r.pos += uint64(take)
	}
	return v, nil
}

// ReadVBR reads a variable-bit-rate field with the given chunk size. chunk
// must be 2..32; violations panic. Values that do not fit in 64 bits return
// ErrVBROverflow.
func (r *Reader) ReadVBR(chunk uint) (uint64, error) {
	if chunk < 2 || chunk > MaxFieldWidth {
		panic(fmt.Sprintf("bitstream: vbr chunk %d out of range", chunk))
	}
	more := uint64(1) << (chunk - 1)
	var v uint64
	shift := uint(0)
	for {
		part, err := r.ReadFixed(chunk)
		if err != nil {
			return 0, err
		}
		bits := part &^ more
		if bits != 0 {
			if shift >= 64 || bits<<shift>>shift != bits {
				return 0, fmt.Errorf("%w at bit %d", ErrVBROverflow, r.pos)
			}
			v |= bits << shift
		}
		if part&more == 0 {
			return v, nil
		}
		shift += chunk - 1
	}
}

// AlignTo32 advances to the next 32-bit boundary.
func (r *Reader) AlignTo32() error {
	if rem := r.pos % 32; rem != 0 {
		aligned := r.pos + 32 - rem
		if aligned > r.BitLen() {
			return fmt.Errorf("%w: align past end at bit %d", ErrOutOfBounds, r.pos)
		}
		r.pos = aligned
	}
	return nil
}

// ReadBlob reads a length-prefixed blob. The length is validated against the
// remaining buffer before any allocation; the returned slice aliases the
// underlying buffer.
func (r *Reader) ReadBlob() ([]byte, error) {
	n, err := r.ReadVBR(BlobLenChunk)
	if err != nil {
		return nil, err
	}
	if err := r.AlignTo32(); err != nil {
		return nil, err
	}
	start := r.pos / 8
	if n > uint64(len(r.data))-start {
		return nil, fmt.Errorf("%w: blob of %d bytes at byte %d of %d", ErrOutOfBounds, n, start, len(r.data))
	}
	b := r.data[start : start+n : start+n]
	r.pos += n * 8
	if err := r.AlignTo32(); err != nil {
		return nil, err
	}
	return b, nil
}
