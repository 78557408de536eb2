// Package strpool builds and reads the identifier pool of a serialized
// module: every identifier once, NUL-terminated, addressed by byte offset.
// ID 0 is the empty string and never stored; ID n resolves through offset
// table entry n-1.
package strpool

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/crux-lang/cruxmod/format"
)

var (
	// ErrBadOffset is returned when an identifier offset points outside
	// the pool.
	ErrBadOffset = errors.New("strpool: identifier offset outside pool")

	// ErrUnterminated is returned when a pool entry has no NUL before the
	// end of the pool.
	ErrUnterminated = errors.New("strpool: unterminated identifier")
)

// Builder interns identifiers during serialization and produces the pool
// bytes plus the offset table.
type Builder struct {
	ids  map[string]format.IdentifierID
	strs []string
	size int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{ids: make(map[string]format.IdentifierID)}
}

// Intern returns the ID for s, assigning the next dense ID on first sight.
// The empty string is always ID 0. Identifiers must not contain NUL; the
// caller validates, this panics as a backstop.
func (b *Builder) Intern(s string) format.IdentifierID {
	if s == "" {
		return format.NoIdentifier
	}
	if id, ok := b.ids[s]; ok {
		return id
	}
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		panic("strpool: identifier contains NUL")
	}
	id := format.IdentifierID(len(b.strs) + 1)
	b.ids[s] = id
	b.strs = append(b.strs, s)
	b.size += len(s) + 1
	return id
}

// Count returns how many identifiers have been interned.
func (b *Builder) Count() int { return len(b.strs) }

// Pool returns the concatenated pool bytes and the byte offset of each
// identifier, indexed by ID-1.
func (b *Builder) Pool() ([]byte, []uint32) {
	data := make([]byte, 0, b.size)
	offsets := make([]uint32, len(b.strs))
	for i, s := range b.strs {
		offsets[i] = uint32(len(data))
		data = append(data, s...)
		data = append(data, 0)
	}
	return data, offsets
}

// Pool resolves identifier IDs against decompressed pool bytes. Lookups are
// cached; a Pool is used by one session goroutine at a time.
type Pool struct {
	data    []byte
	offsets []uint32
	cache   []string
}

// NewPool returns a Pool over pool bytes and their offset table.
func NewPool(data []byte, offsets []uint32) *Pool {
	return &Pool{data: data, offsets: offsets, cache: make([]string, len(offsets))}
}

// Count returns the number of identifiers in the pool.
func (p *Pool) Count() int { return len(p.offsets) }

// Lookup resolves an identifier ID. ID 0 is the empty string.
func (p *Pool) Lookup(id format.IdentifierID) (string, error) {
	if id == format.NoIdentifier {
		return "", nil
	}
	i := int(id) - 1
	if i >= len(p.offsets) {
		return "", fmt.Errorf("strpool: identifier %d out of range (pool has %d)", id, len(p.offsets))
	}
	if s := p.cache[i]; s != "" {
		return s, nil
	}
	off := uint64(p.offsets[i])
	if off >= uint64(len(p.data)) {
		return "", fmt.Errorf("%w: identifier %d at byte %d of %d", ErrBadOffset, id, off, len(p.data))
	}
	end := bytes.IndexByte(p.data[off:], 0)
	if end < 0 {
		return "", fmt.Errorf("%w: identifier %d", ErrUnterminated, id)
	}
	s := string(p.data[off : off+uint64(end)])
	p.cache[i] = s
	return s, nil
}
