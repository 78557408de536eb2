package container

import (
	"io"

	"github.com/crux-lang/cruxmod/bitstream"
	"github.com/crux-lang/cruxmod/format"
)

// EntryKind classifies what Next found in the stream.
type EntryKind uint8

const (
	EntryEndBlock EntryKind = iota
	EntryEnterBlock
	EntryRecord
	EntryRawRecord
)

// Entry is one step of a stream walk. After an EntryEnterBlock the caller
// must either EnterBlock or SkipBlock; after an EntryRecord or EntryRawRecord
// it must ReadRecord or SkipRecord. Next panics if the previous entry was
// left unconsumed, since the cursor would be mid-entry.
type Entry struct {
	Kind   EntryKind
	Block  format.BlockID // EntryEnterBlock
	Start  uint64         // EntryEnterBlock: first payload bit
	Length uint64         // EntryEnterBlock: payload length in bits, end marker included
	Tag    format.RecordKind
}

type readerFrame struct {
	id      format.BlockID
	end     uint64
	bounded bool
}

// Reader walks a container stream. At the top level Next returns io.EOF at
// the clean end of the stream; inside blocks the declared lengths bound
// every read, and any disagreement is corruption.
type Reader struct {
	br    *bitstream.Reader
	stack []readerFrame

	pendingBlock  *readerFrame
	pendingRecord bool
	pendingRaw    bool
	pendingTag    format.RecordKind
}

// NewReader returns a Reader at the start of a stream.
func NewReader(data []byte) *Reader {
	return &Reader{br: bitstream.NewReader(data)}
}

// NewCursorAt returns a Reader positioned at an arbitrary bit offset, deemed
// to be inside the given block. This is how offset-table lookups turn into
// record reads: the engine seeks straight to a record entry and decodes it
// and its trailers, never scanning from the block start.
func NewCursorAt(data []byte, block format.BlockID, pos uint64) (*Reader, error) {
	br := bitstream.NewReader(data)
	if err := br.SeekBit(pos); err != nil {
		return nil, corruptWrap(pos, err, "record offset past end of stream")
	}
	return &Reader{
		br:    br,
		stack: []readerFrame{{id: block, end: br.BitLen()}},
	}, nil
}

// BitPos returns the current cursor position in bits.
func (r *Reader) BitPos() uint64 { return r.br.BitPos() }

// Remaining returns how many bits are left between the cursor and the end of
// the stream.
func (r *Reader) Remaining() uint64 { return r.br.Remaining() }

// CurrentBlock returns the innermost open block, or 0 at the top level.
func (r *Reader) CurrentBlock() format.BlockID {
	if len(r.stack) == 0 {
		return 0
	}
	return r.stack[len(r.stack)-1].id
}

// Depth returns how many blocks are open.
func (r *Reader) Depth() int { return len(r.stack) }

// Next advances to the next entry.
func (r *Reader) Next() (Entry, error) {
	if r.pendingBlock != nil || r.pendingRecord {
		panic("container: previous entry not consumed")
	}
	if len(r.stack) == 0 {
		if r.br.Remaining() == 0 {
			return Entry{}, io.EOF
		}
	} else if frame := r.stack[len(r.stack)-1]; frame.bounded && r.br.BitPos() >= frame.end {
		return Entry{}, corrupt(r.br.BitPos(), "unterminated block: declared length exhausted without end marker")
	}

	code, err := r.br.ReadFixed(entryWidth)
	if err != nil {
		return Entry{}, corruptWrap(r.br.BitPos(), err, "truncated entry")
	}

	switch code {
	case entryEndBlock:
		if err := r.br.AlignTo32(); err != nil {
			return Entry{}, corruptWrap(r.br.BitPos(), err, "truncated block end")
		}
		if len(r.stack) == 0 {
			return Entry{}, corrupt(r.br.BitPos(), "end marker at top level")
		}
		frame := r.stack[len(r.stack)-1]
		r.stack = r.stack[:len(r.stack)-1]
		if frame.bounded && r.br.BitPos() != frame.end {
			return Entry{}, corrupt(r.br.BitPos(), "block length disagrees with end marker")
		}
		return Entry{Kind: EntryEndBlock}, nil

	case entryEnterBlock:
		id, err := r.br.ReadVBR(blockIDChunk)
		if err != nil {
			return Entry{}, corruptWrap(r.br.BitPos(), err, "truncated block header")
		}
		if err := r.br.AlignTo32(); err != nil {
			return Entry{}, corruptWrap(r.br.BitPos(), err, "truncated block header")
		}
		words, err := r.br.ReadFixed(32)
		if err != nil {
			return Entry{}, corruptWrap(r.br.BitPos(), err, "truncated block header")
		}
		start := r.br.BitPos()
		length := words * 32
		if length > r.br.Remaining() {
			return Entry{}, corrupt(start, "block length past end of stream")
		}
		r.pendingBlock = &readerFrame{id: format.BlockID(id), end: start + length, bounded: true}
		return Entry{Kind: EntryEnterBlock, Block: format.BlockID(id), Start: start, Length: length}, nil

	case entryRecord, entryRawRecord:
		if len(r.stack) == 0 {
			return Entry{}, corrupt(r.br.BitPos(), "record at top level")
		}
		tag, err := r.br.ReadVBR(tagChunk)
		if err != nil {
			return Entry{}, corruptWrap(r.br.BitPos(), err, "truncated record tag")
		}
		r.pendingRecord = true
		r.pendingRaw = code == entryRawRecord
		r.pendingTag = format.RecordKind(tag)
		kind := EntryRecord
		if r.pendingRaw {
			kind = EntryRawRecord
		}
		return Entry{Kind: kind, Tag: r.pendingTag}, nil
	}
	panic("unreachable")
}

// EnterBlock descends into the block announced by the last entry.
func (r *Reader) EnterBlock() {
	if r.pendingBlock == nil {
		panic("container: no block to enter")
	}
	r.stack = append(r.stack, *r.pendingBlock)
	r.pendingBlock = nil
}

// SkipBlock jumps over the block announced by the last entry, using its
// declared length.
func (r *Reader) SkipBlock() error {
	if r.pendingBlock == nil {
		panic("container: no block to skip")
	}
	end := r.pendingBlock.end
	r.pendingBlock = nil
	if err := r.br.SeekBit(end); err != nil {
		return corruptWrap(end, err, "block skip past end of stream")
	}
	return nil
}

// ReadRecord decodes the record announced by the last entry. Schema-shaped
// records need a layout for (current block, tag); a missing layout returns
// UnknownRecordError, since an unknown shape cannot even be skipped. Raw
// records always decode.
func (r *Reader) ReadRecord() (Record, error) {
	if !r.pendingRecord {
		panic("container: no pending record")
	}
	r.pendingRecord = false
	tag := r.pendingTag

	if r.pendingRaw {
		ops, err := r.readRawOps()
		if err != nil {
			return Record{}, err
		}
		return Record{Tag: tag, Raw: true, Scalars: ops}, nil
	}

	layout, ok := format.LayoutFor(r.CurrentBlock(), tag)
	if !ok {
		return Record{}, &UnknownRecordError{Block: r.CurrentBlock(), Tag: tag}
	}

	rec := Record{Tag: tag}
	if n := layout.NumScalars(); n > 0 {
		rec.Scalars = make([]uint64, 0, n)
	}
	for _, op := range layout.Ops {
		switch op.Kind {
		case format.OpFixed, format.OpVBR:
			v, err := r.readOp(op)
			if err != nil {
				return Record{}, corruptWrap(r.br.BitPos(), err, "truncated "+layout.Name+" record")
			}
			rec.Scalars = append(rec.Scalars, v)
		case format.OpArray:
			arr, err := r.readArray(*op.Elem, layout.Name)
			if err != nil {
				return Record{}, err
			}
			rec.Array = arr
		case format.OpBlob:
			blob, err := r.br.ReadBlob()
			if err != nil {
				return Record{}, corruptWrap(r.br.BitPos(), err, "truncated "+layout.Name+" blob")
			}
			rec.Blob = blob
		}
	}
	return rec, nil
}

// SkipRecord consumes the record announced by the last entry without keeping
// it. Like ReadRecord, it cannot pass an unknown schema-shaped tag.
func (r *Reader) SkipRecord() error {
	if r.pendingRecord && r.pendingRaw {
		r.pendingRecord = false
		count, err := r.br.ReadVBR(countChunk)
		if err != nil {
			return corruptWrap(r.br.BitPos(), err, "truncated raw record")
		}
		if count > r.br.Remaining()/rawOpChunk {
			return corrupt(r.br.BitPos(), "raw record operand count past end of stream")
		}
		for range count {
			if _, err := r.br.ReadVBR(rawOpChunk); err != nil {
				return corruptWrap(r.br.BitPos(), err, "truncated raw record")
			}
		}
		return nil
	}
	_, err := r.ReadRecord()
	return err
}

func (r *Reader) readOp(op format.Op) (uint64, error) {
	if op.Kind == format.OpFixed {
		return r.br.ReadFixed(uint(op.Width))
	}
	return r.br.ReadVBR(uint(op.Width))
}

func (r *Reader) readArray(elem format.Op, name string) ([]uint64, error) {
	count, err := r.br.ReadVBR(countChunk)
	if err != nil {
		return nil, corruptWrap(r.br.BitPos(), err, "truncated "+name+" array")
	}
	// Every element costs at least Width bits, so an oversized count is
	// detectable before allocating for it. Divide rather than multiply: a
	// hostile count can make the product wrap.
	if count > r.br.Remaining()/uint64(elem.Width) {
		return nil, corrupt(r.br.BitPos(), name+" array count past end of stream")
	}
	if count == 0 {
		return nil, nil
	}
	arr := make([]uint64, 0, count)
	for range count {
		v, err := r.readOp(elem)
		if err != nil {
			return nil, corruptWrap(r.br.BitPos(), err, "truncated "+name+" array")
		}
		arr = append(arr, v)
	}
	return arr, nil
}

func (r *Reader) readRawOps() ([]uint64, error) {
	count, err := r.br.ReadVBR(countChunk)
	if err != nil {
		return nil, corruptWrap(r.br.BitPos(), err, "truncated raw record")
	}
	if count > r.br.Remaining()/rawOpChunk {
		return nil, corrupt(r.br.BitPos(), "raw record operand count past end of stream")
	}
	if count == 0 {
		return nil, nil
	}
	ops := make([]uint64, 0, count)
	for range count {
		v, err := r.br.ReadVBR(rawOpChunk)
		if err != nil {
			return nil, corruptWrap(r.br.BitPos(), err, "truncated raw record")
		}
		ops = append(ops, v)
	}
	return ops, nil
}
