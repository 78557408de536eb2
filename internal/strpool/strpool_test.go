package strpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crux-lang/cruxmod/format"
)

func TestInternDense(t *testing.T) {
	b := NewBuilder()
	assert.Equal(t, format.NoIdentifier, b.Intern(""))
	assert.Equal(t, format.IdentifierID(1), b.Intern("Foo"))
	assert.Equal(t, format.IdentifierID(2), b.Intern("bar"))
	assert.Equal(t, format.IdentifierID(1), b.Intern("Foo")) // idempotent
	assert.Equal(t, format.IdentifierID(3), b.Intern("baz"))
	assert.Equal(t, 3, b.Count())
}

func TestPoolRoundTrip(t *testing.T) {
	b := NewBuilder()
	names := []string{"Foo", "bar", "reallyQuiteALongIdentifierName", "x"}
	for _, n := range names {
		b.Intern(n)
	}
	data, offsets := b.Pool()
	require.Len(t, offsets, len(names))

	p := NewPool(data, offsets)
	assert.Equal(t, len(names), p.Count())

	s, err := p.Lookup(format.NoIdentifier)
	require.NoError(t, err)
	assert.Empty(t, s)

	for i, want := range names {
		got, err := p.Lookup(format.IdentifierID(i + 1))
		require.NoError(t, err)
		assert.Equal(t, want, got)
		// Cached second read.
		got, err = p.Lookup(format.IdentifierID(i + 1))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestLookupOutOfRange(t *testing.T) {
	b := NewBuilder()
	b.Intern("only")
	data, offsets := b.Pool()
	p := NewPool(data, offsets)

	_, err := p.Lookup(2)
	assert.Error(t, err)
}

func TestCorruptPool(t *testing.T) {
	// Offset past the pool.
	p := NewPool([]byte("abc\x00"), []uint32{9})
	_, err := p.Lookup(1)
	assert.ErrorIs(t, err, ErrBadOffset)

	// Missing terminator.
	p = NewPool([]byte("abc"), []uint32{0})
	_, err = p.Lookup(1)
	assert.ErrorIs(t, err, ErrUnterminated)
}

func TestInternNulPanics(t *testing.T) {
	b := NewBuilder()
	assert.Panics(t, func() { b.Intern("bad\x00name") })
}
