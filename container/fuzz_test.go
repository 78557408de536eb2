package container

import (
	"io"
	"testing"

	"github.com/crux-lang/cruxmod/format"
)

// FuzzWalk drives the reader over arbitrary bytes. Whatever the input, the
// walk must terminate with io.EOF or an error; panics and runaway loops are
// decoder bugs.
func FuzzWalk(f *testing.F) {
	seed := NewWriter(0)
	seed.EnterBlock(format.BlockControl)
	l, _ := format.LayoutFor(format.BlockControl, format.ControlMetadata)
	seed.WriteRecord(l, []uint64{1, 0}, nil, []byte("seed"))
	seed.EndBlock()
	seed.EnterBlock(format.BlockDeclsAndTypes)
	lp, _ := format.LayoutFor(format.BlockDeclsAndTypes, format.TypeParen)
	seed.WriteRecord(lp, []uint64{1}, nil, nil)
	seed.WriteRawRecord(90, []uint64{1, 2})
	seed.EndBlock()
	data, _ := seed.Finish()

	f.Add(data)
	f.Add([]byte{})
	f.Add([]byte{0x01, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF})

	f.Fuzz(func(t *testing.T, in []byte) {
		if len(in) > 1<<16 {
			t.Skip()
		}
		// Every entry consumes at least two bits, so this bounds any walk
		// over a 64 KiB input with room to spare.
		r := NewReader(in)
		for range 1 << 20 {
			e, err := r.Next()
			if err != nil {
				if err == io.EOF {
					return
				}
				return // corruption is the expected outcome
			}
			switch e.Kind {
			case EntryEnterBlock:
				if e.Length > 256 {
					if err := r.SkipBlock(); err != nil {
						return
					}
					continue
				}
				r.EnterBlock()
			case EntryRecord, EntryRawRecord:
				if err := r.SkipRecord(); err != nil {
					return
				}
			}
		}
		t.Fatal("walk did not terminate")
	})
}
