package cruxmod

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crux-lang/cruxmod/blobstore"
	"github.com/crux-lang/cruxmod/container"
	"github.com/crux-lang/cruxmod/format"
)

// controlOnlyContainer builds a container holding just a control block, so
// the version gate can be exercised with versions this build never writes.
func controlOnlyContainer(t *testing.T, major, minor uint16) []byte {
	t.Helper()
	cw := container.NewWriter(256)
	cw.EnterBlock(format.BlockControl)

	meta, ok := format.LayoutFor(format.BlockControl, format.ControlMetadata)
	require.True(t, ok)
	cw.WriteRecord(meta, []uint64{uint64(major), uint64(minor)}, nil, []byte("testc"))

	name, ok := format.LayoutFor(format.BlockControl, format.ControlModuleName)
	require.True(t, ok)
	cw.WriteRecord(name, nil, nil, []byte("tiny"))

	cw.EndBlock()
	data, err := cw.Finish()
	require.NoError(t, err)
	return append(append([]byte{}, format.Magic[:]...), data...)
}

func TestOpenRejectsBadMagic(t *testing.T) {
	_, err := Open(nil)
	assert.ErrorIs(t, err, ErrInvalidMagic)

	_, err = Open([]byte{0x43, 0x52})
	assert.ErrorIs(t, err, ErrInvalidMagic)

	_, err = Open([]byte("ELFX this is not a module"))
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestOpenRejectsNewerMajorVersion(t *testing.T) {
	data := controlOnlyContainer(t, format.VersionMajor+1, 0)

	_, err := Open(data)
	var verr *FormatVersionError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, uint16(format.VersionMajor+1), verr.Major)
}

func TestOpenAcceptsNewerMinorVersion(t *testing.T) {
	data := controlOnlyContainer(t, format.VersionMajor, format.VersionMinor+1)

	r, err := Open(data)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "tiny", r.Name())
	_, minor := r.FormatVersion()
	assert.Equal(t, uint16(format.VersionMinor+1), minor)
}

func TestOpenFallbackContainer(t *testing.T) {
	m := geometryModule()
	var buf bytes.Buffer
	_, err := WriteFallback(context.Background(), &buf, m)
	require.NoError(t, err)

	_, err = Open(buf.Bytes())
	require.ErrorIs(t, err, ErrStaleModule)

	var stale *StaleModuleError
	require.ErrorAs(t, err, &stale)
	assert.Equal(t, "geometry", stale.Module)
	assert.Equal(t, m.SourceFiles, stale.SourceFiles)
}

func TestOpenTruncatedContainer(t *testing.T) {
	data := writeModule(t, geometryModule())

	// Cutting the container mid-stream must fail cleanly, never panic.
	for _, cut := range []int{len(format.Magic) + 1, len(data) / 4, len(data) / 2, len(data) - 3} {
		r, err := Open(data[:cut])
		if err != nil {
			continue
		}
		// The scan can survive a cut landing past the index; lazy loads
		// must still fail instead of reading out of bounds.
		_, err = r.TopLevelNames()
		assert.Error(t, err, "cut at %d", cut)
		r.Close()
	}
}

func TestIndexTagMismatchIsCorrupt(t *testing.T) {
	// Index records echo their own tag in the leading field; a spliced
	// stream where the two disagree must be rejected, not misread.
	cw := container.NewWriter(256)
	cw.EnterBlock(format.BlockControl)
	meta, _ := format.LayoutFor(format.BlockControl, format.ControlMetadata)
	cw.WriteRecord(meta, []uint64{format.VersionMajor, format.VersionMinor}, nil, nil)
	name, _ := format.LayoutFor(format.BlockControl, format.ControlModuleName)
	cw.WriteRecord(name, nil, nil, []byte("spliced"))
	cw.EndBlock()

	cw.EnterBlock(format.BlockIndex)
	declOffs, ok := format.LayoutFor(format.BlockIndex, format.IndexDeclOffsets)
	require.True(t, ok)
	cw.WriteRecord(declOffs, []uint64{uint64(format.IndexTypeOffsets)}, nil, nil)
	cw.EndBlock()

	stream, err := cw.Finish()
	require.NoError(t, err)

	r, err := Open(append(append([]byte{}, format.Magic[:]...), stream...))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.LookupValue("anything")
	assert.ErrorIs(t, err, container.ErrCorrupt)
}

func TestOversizedTrailerCountIsCorrupt(t *testing.T) {
	// A structurally sound container can still claim an absurd trailer
	// count in a record scalar; materializing it must fail cleanly
	// instead of allocating for the claimed count.
	cw := container.NewWriter(256)
	cw.EnterBlock(format.BlockControl)
	meta, _ := format.LayoutFor(format.BlockControl, format.ControlMetadata)
	cw.WriteRecord(meta, []uint64{format.VersionMajor, format.VersionMinor}, nil, nil)
	name, _ := format.LayoutFor(format.BlockControl, format.ControlModuleName)
	cw.WriteRecord(name, nil, nil, []byte("hostile"))
	cw.EndBlock()

	cw.EnterBlock(format.BlockDeclsAndTypes)
	off := cw.BitPos()
	alias, ok := format.LayoutFor(format.BlockDeclsAndTypes, format.DeclTypeAlias)
	require.True(t, ok)
	// Null name, context, and underlying type; 1<<60 claimed conformances.
	cw.WriteRecord(alias, []uint64{0, 0, 0, 0, 1 << 60}, nil, nil)
	cw.EndBlock()

	cw.EnterBlock(format.BlockIndex)
	declOffs, ok := format.LayoutFor(format.BlockIndex, format.IndexDeclOffsets)
	require.True(t, ok)
	cw.WriteRecord(declOffs, []uint64{uint64(format.IndexDeclOffsets)}, []uint64{off}, nil)
	cw.EndBlock()

	stream, err := cw.Finish()
	require.NoError(t, err)

	r, err := Open(append(append([]byte{}, format.Magic[:]...), stream...))
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()
	assert.NotPanics(t, func() {
		_, err = r.Decl(ctx, 1)
	})
	assert.ErrorIs(t, err, container.ErrCorrupt)
}

func TestOpenBlob(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "geometry.cxm", writeModule(t, geometryModule())))

	blob, err := store.Open(ctx, "geometry.cxm")
	require.NoError(t, err)

	r, err := OpenBlob(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, "geometry", r.Name())

	names, err := r.TopLevelNames()
	require.NoError(t, err)
	assert.Contains(t, names, "Point")
	require.NoError(t, r.Close())
}

func TestNullReferences(t *testing.T) {
	data := writeModule(t, geometryModule())
	r, err := Open(data)
	require.NoError(t, err)
	defer r.Close()

	ctx := context.Background()

	d, err := r.Decl(ctx, format.NoDecl)
	require.NoError(t, err)
	assert.Nil(t, d)

	ty, err := r.Type(ctx, format.NoType)
	require.NoError(t, err)
	assert.Nil(t, ty)

	_, err = r.Decl(ctx, format.DeclID(1<<20))
	assert.Error(t, err)

	s, err := r.Identifier(format.NoIdentifier)
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestLookupMissReturnsEmpty(t *testing.T) {
	data := writeModule(t, geometryModule())
	r, err := Open(data)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.LookupValue("NoSuchName")
	require.NoError(t, err)
	assert.Empty(t, entries)
}
