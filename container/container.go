// Package container implements the block and record framing of Crux
// serialized modules on top of the raw bitstream.
//
// A stream is a sequence of entries, introduced by a 2-bit code:
//
//	0 EndBlock     align to 32 bits
//	1 EnterBlock   block ID (VBR8), align, payload length in words (fixed 32),
//	               counting through the end marker's alignment padding
//	2 Record       tag (VBR6), operands shaped by the layout for (block, tag)
//	3 RawRecord    tag (VBR6), operand count (VBR6), operands (VBR6 each)
//
// Block payload lengths let a reader skip any block without understanding
// it. Record shapes are not on the wire at all; both ends hold the layout
// tables in the format package. Record kinds added by later minor format
// versions are emitted as raw records so that older readers can skip them
// where a block's policy allows it.
package container

import (
	"errors"
	"fmt"

	"github.com/crux-lang/cruxmod/format"
)

const (
	entryEndBlock   = 0
	entryEnterBlock = 1
	entryRecord     = 2
	entryRawRecord  = 3

	entryWidth   = 2
	blockIDChunk = 8
	tagChunk     = 6
	rawOpChunk   = 6
	countChunk   = 6
)

// ErrCorrupt is the sentinel all corruption errors wrap, whatever the
// specific structural failure was.
var ErrCorrupt = errors.New("container: corrupt stream")

// CorruptionError reports malformed structure at a bit offset. It wraps
// ErrCorrupt and, where applicable, the underlying bitstream error.
type CorruptionError struct {
	Offset uint64
	Reason string
	Err    error
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("container: %s at bit %d", e.Reason, e.Offset)
}

func (e *CorruptionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCorrupt, e.Err}
	}
	return []error{ErrCorrupt}
}

func corrupt(offset uint64, reason string) error {
	return &CorruptionError{Offset: offset, Reason: reason}
}

func corruptWrap(offset uint64, err error, reason string) error {
	return &CorruptionError{Offset: offset, Reason: reason, Err: err}
}

// UnknownRecordError reports a schema-shaped record whose tag has no layout.
// Such a record cannot even be skipped, since its shape is unknown.
type UnknownRecordError struct {
	Block format.BlockID
	Tag   format.RecordKind
}

func (e *UnknownRecordError) Error() string {
	return fmt.Sprintf("container: unknown record tag %d in %s block", e.Tag, format.BlockName(e.Block))
}

// Record is one decoded record. For schema-shaped records, Scalars holds the
// leading single-value operands in layout order and Array/Blob the trailing
// aggregate operands, if the layout has them. For raw records, Raw is true
// and Scalars holds the operands.
type Record struct {
	Tag     format.RecordKind
	Raw     bool
	Scalars []uint64
	Array   []uint64
	Blob    []byte
}
