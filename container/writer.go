package container

import (
	"fmt"

	"github.com/crux-lang/cruxmod/bitstream"
	"github.com/crux-lang/cruxmod/format"
)

// Writer emits blocks and records. Misuse, like emitting a record whose
// operands do not match its layout or ending a block that is not open,
// panics; the writer is driven by generated emission code, not by data.
type Writer struct {
	bw    *bitstream.Writer
	stack []writerFrame
}

type writerFrame struct {
	id     format.BlockID
	lenPos uint64
}

// NewWriter returns a Writer with capacity for sizeHint bytes of output.
func NewWriter(sizeHint int) *Writer {
	return &Writer{bw: bitstream.NewWriter(sizeHint)}
}

// BitPos returns the position the next entry will be written at. Recording
// it before a record emission yields the offset a reader seeks to.
func (w *Writer) BitPos() uint64 { return w.bw.BitPos() }

// EnterBlock opens a block. Blocks nest; every EnterBlock needs a matching
// EndBlock before Finish.
func (w *Writer) EnterBlock(id format.BlockID) {
	w.bw.WriteFixed(entryEnterBlock, entryWidth)
	w.bw.WriteVBR(uint64(id), blockIDChunk)
	w.bw.AlignTo32()
	lenPos := w.bw.BitPos()
	w.bw.WriteFixed(0, 32)
	w.stack = append(w.stack, writerFrame{id: id, lenPos: lenPos})
}

// EndBlock closes the innermost block and backpatches its payload length.
// The length covers everything from the first payload bit through the end
// marker's alignment padding, so a skip lands directly on the next entry.
func (w *Writer) EndBlock() {
	if len(w.stack) == 0 {
		panic("container: EndBlock without open block")
	}
	w.bw.WriteFixed(entryEndBlock, entryWidth)
	w.bw.AlignTo32()
	frame := w.stack[len(w.stack)-1]
	w.stack = w.stack[:len(w.stack)-1]
	payloadBits := w.bw.BitPos() - frame.lenPos - 32
	w.bw.Backpatch32(frame.lenPos, uint32(payloadBits/32))
}

func (w *Writer) currentBlock() format.BlockID {
	if len(w.stack) == 0 {
		panic("container: record outside any block")
	}
	return w.stack[len(w.stack)-1].id
}

// WriteRecord emits a schema-shaped record. scalars must match the layout's
// leading single-value operands exactly; array and blob must be nil unless
// the layout declares them.
func (w *Writer) WriteRecord(l *format.Layout, scalars []uint64, array []uint64, blob []byte) {
	if l == nil {
		panic("container: nil layout")
	}
	if block := w.currentBlock(); block != l.Block {
		panic(fmt.Sprintf("container: %s record in %s block", l.Name, format.BlockName(block)))
	}
	if len(scalars) != l.NumScalars() {
		panic(fmt.Sprintf("container: %s record wants %d scalars, got %d", l.Name, l.NumScalars(), len(scalars)))
	}
	if array != nil && !l.HasArray() {
		panic(fmt.Sprintf("container: %s record takes no array", l.Name))
	}
	if blob != nil && !l.HasBlob() {
		panic(fmt.Sprintf("container: %s record takes no blob", l.Name))
	}

	w.bw.WriteFixed(entryRecord, entryWidth)
	w.bw.WriteVBR(uint64(l.Kind), tagChunk)
	next := 0
	for _, op := range l.Ops {
		switch op.Kind {
		case format.OpFixed, format.OpVBR:
			w.writeOp(op, scalars[next])
			next++
		case format.OpArray:
			w.bw.WriteVBR(uint64(len(array)), countChunk)
			for _, v := range array {
				w.writeOp(*op.Elem, v)
			}
		case format.OpBlob:
			w.bw.WriteBlob(blob)
		}
	}
}

func (w *Writer) writeOp(op format.Op, v uint64) {
	if op.Kind == format.OpFixed {
		w.bw.WriteFixed(v, uint(op.Width))
		return
	}
	w.bw.WriteVBR(v, uint(op.Width))
}

// WriteRawRecord emits a self-describing record: tag, operand count, and
// VBR6 operands. Raw records carry no arrays or blobs.
func (w *Writer) WriteRawRecord(tag format.RecordKind, ops []uint64) {
	w.currentBlock() // must be inside a block
	w.bw.WriteFixed(entryRawRecord, entryWidth)
	w.bw.WriteVBR(uint64(tag), tagChunk)
	w.bw.WriteVBR(uint64(len(ops)), countChunk)
	for _, v := range ops {
		w.bw.WriteVBR(v, rawOpChunk)
	}
}

// Finish pads the stream to a word boundary and returns it. All blocks must
// be closed.
func (w *Writer) Finish() ([]byte, error) {
	if n := len(w.stack); n != 0 {
		return nil, fmt.Errorf("container: %d block(s) left open, innermost %s",
			n, format.BlockName(w.stack[n-1].id))
	}
	return w.bw.Bytes(), nil
}
