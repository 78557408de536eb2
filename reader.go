package cruxmod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/crux-lang/cruxmod/blobstore"
	"github.com/crux-lang/cruxmod/container"
	"github.com/crux-lang/cruxmod/decl"
	"github.com/crux-lang/cruxmod/format"
	"github.com/crux-lang/cruxmod/internal/mmap"
	"github.com/crux-lang/cruxmod/internal/nametable"
	"github.com/crux-lang/cruxmod/internal/strpool"
)

// maxContainerBytes bounds how much OpenBlob will copy into memory. Bit
// offsets are 31 bits, so no valid container outgrows this.
const maxContainerBytes = int64(4 + (format.MaxID+1)/8)

// maxGraphDepth bounds reference and trailer nesting during
// materialization. Real declaration graphs are shallow; hitting the bound
// means a corrupt or hostile container.
const maxGraphDepth = 4096

// Reader reads one serialized module. Opening parses only the control block
// and the top-level block layout; the index, the identifier pool and the
// declaration graph all load on first use, and graph nodes materialize one
// at a time as they are referenced.
//
// A Reader is not safe for concurrent use. It belongs to a single loading
// session, which serializes access.
type Reader struct {
	data   []byte
	closer io.Closer
	opts   options

	module *decl.Module
	major  uint16
	minor  uint16

	blocks map[format.BlockID]blockRef

	indexLoaded  bool
	indexErr     error
	declOffsets  []uint64
	typeOffsets  []uint64
	identOffsets []uint32
	tables       map[format.RecordKind]*nametable.Table
	known        map[format.KnownProtocolKind][]format.DeclID

	poolLoaded bool
	poolErr    error
	pool       *strpool.Pool

	inputLoaded bool
	inputErr    error
	deps        Dependencies

	decls map[format.DeclID]*declSlot
	types map[format.TypeID]*typeSlot
	depth int

	stats ReaderStats
}

type blockRef struct {
	start  uint64
	length uint64
}

type declSlot struct {
	node decl.Decl
	err  error
}

type typeSlot struct {
	node decl.Type
	err  error
}

// ReaderStats counts the work a Reader has done. RecordsDecoded covers only
// records decoded while materializing graph nodes, not index or pool
// parsing, so it measures how much of the declarations block a session
// actually touched.
type ReaderStats struct {
	DeclsMaterialized int
	TypesMaterialized int
	RecordsDecoded    int
}

// TableEntry is one name-table hit: the record kind of the declaration and
// its ID.
type TableEntry struct {
	Kind format.RecordKind
	Decl format.DeclID
}

// Dependencies is the input manifest of a module: what went into building
// it and what importers must link.
type Dependencies struct {
	SourceFiles   []string
	Imports       []decl.Import
	LinkLibraries []decl.LinkLibrary
}

// Open opens a serialized module held in memory. The Reader aliases data;
// the caller must keep it alive and unchanged until Close.
func Open(data []byte, optFns ...Option) (*Reader, error) {
	opts := applyOptions(optFns)
	start := time.Now()
	r, err := open(data, nil, opts)
	opts.metricsCollector.RecordOpen(time.Since(start), err)
	opts.logger.LogOpen(context.Background(), openedName(r, err), int64(len(data)), err)
	return r, err
}

// OpenFile memory-maps a serialized module file.
func OpenFile(path string, optFns ...Option) (*Reader, error) {
	opts := applyOptions(optFns)
	start := time.Now()
	r, err := openFile(path, opts)
	opts.metricsCollector.RecordOpen(time.Since(start), err)
	size := int64(0)
	if r != nil {
		size = int64(len(r.data))
	}
	opts.logger.LogOpen(context.Background(), openedName(r, err), size, err)
	return r, err
}

func openFile(path string, opts options) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := open(m.Bytes(), m, opts)
	if err != nil {
		m.Close()
		return nil, err
	}
	return r, nil
}

// OpenBlob opens a serialized module from a blob store. Mappable blobs are
// read zero-copy; others are copied into memory. On success the Reader owns
// blob and closes it with Close; on error the blob is left to the caller.
func OpenBlob(ctx context.Context, blob blobstore.Blob, optFns ...Option) (*Reader, error) {
	opts := applyOptions(optFns)
	start := time.Now()
	r, err := openBlob(ctx, blob, opts)
	opts.metricsCollector.RecordOpen(time.Since(start), err)
	opts.logger.LogOpen(ctx, openedName(r, err), blob.Size(), err)
	return r, err
}

func openBlob(ctx context.Context, blob blobstore.Blob, opts options) (*Reader, error) {
	if m, ok := blob.(blobstore.Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		return open(data, blob, opts)
	}
	size := blob.Size()
	if size > maxContainerBytes {
		return nil, fmt.Errorf("cruxmod: blob is %d bytes, larger than any valid container", size)
	}
	data := make([]byte, size)
	if _, err := blob.ReadAt(ctx, data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return open(data, blob, opts)
}

func openedName(r *Reader, err error) string {
	if r != nil {
		return r.Name()
	}
	var stale *StaleModuleError
	if errors.As(err, &stale) {
		return stale.Module
	}
	return ""
}

func open(data []byte, closer io.Closer, opts options) (*Reader, error) {
	if len(data) < len(format.Magic) || !bytes.Equal(data[:len(format.Magic)], format.Magic[:]) {
		return nil, ErrInvalidMagic
	}
	r := &Reader{
		data:   data,
		closer: closer,
		opts:   opts,
		module: &decl.Module{},
		blocks: make(map[format.BlockID]blockRef),
		decls:  make(map[format.DeclID]*declSlot),
		types:  make(map[format.TypeID]*typeSlot),
	}
	if err := r.scan(); err != nil {
		return nil, err
	}
	if _, stale := r.blocks[format.BlockFallbackToSource]; stale {
		deps, _ := r.Dependencies()
		return nil, &StaleModuleError{Module: r.module.Name, SourceFiles: deps.SourceFiles}
	}
	return r, nil
}

func (r *Reader) bitstream() []byte { return r.data[len(format.Magic):] }

// scan walks the top-level block structure: the control block is parsed in
// place and gated on the format version, every other known block has its
// position recorded for lazy parsing, and unknown blocks are skipped.
func (r *Reader) scan() error {
	cr := container.NewReader(r.bitstream())
	first := true
	for {
		ent, err := cr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if first {
			if ent.Block != format.BlockControl {
				return corruptf(ent.Start, "first block is %s, must be control", format.BlockName(ent.Block))
			}
			first = false
			cr.EnterBlock()
			if err := r.parseControl(cr); err != nil {
				return err
			}
			continue
		}
		switch ent.Block {
		case format.BlockControl:
			return corruptf(ent.Start, "second control block")
		case format.BlockInput, format.BlockDeclsAndTypes, format.BlockIdentifierData,
			format.BlockIndex, format.BlockFallbackToSource:
			if _, dup := r.blocks[ent.Block]; dup {
				return corruptf(ent.Start, "duplicate %s block", format.BlockName(ent.Block))
			}
			r.blocks[ent.Block] = blockRef{start: ent.Start, length: ent.Length}
		}
		if err := cr.SkipBlock(); err != nil {
			return err
		}
	}
	if first {
		return corruptf(0, "container has no blocks")
	}
	return nil
}

func (r *Reader) parseControl(cr *container.Reader) error {
	sawMetadata := false
	sawName := false
	for {
		ent, err := cr.Next()
		if err != nil {
			return err
		}
		switch ent.Kind {
		case container.EntryEndBlock:
			if !sawMetadata {
				return corruptf(cr.BitPos(), "control block has no metadata record")
			}
			if !sawName {
				return corruptf(cr.BitPos(), "control block has no module name record")
			}
			return nil
		case container.EntryEnterBlock:
			if err := cr.SkipBlock(); err != nil {
				return err
			}
		case container.EntryRawRecord:
			if err := cr.SkipRecord(); err != nil {
				return err
			}
		case container.EntryRecord:
			rec, err := cr.ReadRecord()
			if err != nil {
				return err
			}
			switch rec.Tag {
			case format.ControlMetadata:
				r.major = uint16(rec.Scalars[0])
				r.minor = uint16(rec.Scalars[1])
				if r.major != format.VersionMajor {
					return &FormatVersionError{Major: r.major, Minor: r.minor}
				}
				r.module.Producer = string(rec.Blob)
				sawMetadata = true
			case format.ControlModuleName:
				r.module.Name = string(rec.Blob)
				sawName = true
			}
		}
	}
}

// Name returns the module's name.
func (r *Reader) Name() string { return r.module.Name }

// Producer returns the producer string recorded at write time.
func (r *Reader) Producer() string { return r.module.Producer }

// FormatVersion returns the container's format version pair.
func (r *Reader) FormatVersion() (major, minor uint16) { return r.major, r.minor }

// Module returns the identity node every declaration materialized by this
// Reader is owned by. Its manifest fields fill in when Dependencies is
// first called.
func (r *Reader) Module() *decl.Module { return r.module }

// Stats returns counters of the work done so far.
func (r *Reader) Stats() ReaderStats { return r.stats }

// Close releases the mapping or blob backing the Reader, if any. Nodes
// materialized before Close remain valid; raw blob fields do not.
func (r *Reader) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	err := r.closer.Close()
	r.closer = nil
	return err
}

// Dependencies parses the input block on first call and returns the
// module's input manifest.
func (r *Reader) Dependencies() (Dependencies, error) {
	if r.inputLoaded {
		return r.deps, r.inputErr
	}
	r.inputLoaded = true
	r.inputErr = r.parseInput()
	return r.deps, r.inputErr
}

func (r *Reader) parseInput() error {
	ref, ok := r.blocks[format.BlockInput]
	if !ok {
		return nil
	}
	cur, err := container.NewCursorAt(r.bitstream(), format.BlockInput, ref.start)
	if err != nil {
		return err
	}
	for {
		ent, err := cur.Next()
		if err != nil {
			return err
		}
		switch ent.Kind {
		case container.EntryEndBlock:
			r.module.SourceFiles = r.deps.SourceFiles
			r.module.Imports = r.deps.Imports
			r.module.LinkLibraries = r.deps.LinkLibraries
			return nil
		case container.EntryEnterBlock:
			if err := cur.SkipBlock(); err != nil {
				return err
			}
		case container.EntryRawRecord:
			if err := cur.SkipRecord(); err != nil {
				return err
			}
		case container.EntryRecord:
			rec, err := cur.ReadRecord()
			if err != nil {
				return err
			}
			switch rec.Tag {
			case format.InputSourceFile:
				r.deps.SourceFiles = append(r.deps.SourceFiles, string(rec.Blob))
			case format.InputImportedModule:
				path := bytes.Split(rec.Blob, []byte{0})
				imp := decl.Import{Name: string(path[0]), Exported: rec.Scalars[0] != 0}
				for _, comp := range path[1:] {
					imp.ScopePath = append(imp.ScopePath, string(comp))
				}
				r.deps.Imports = append(r.deps.Imports, imp)
			case format.InputLinkLibrary:
				r.deps.LinkLibraries = append(r.deps.LinkLibraries, decl.LinkLibrary{
					Name: string(rec.Blob),
					Kind: format.LibraryKind(rec.Scalars[0]),
				})
			}
		}
	}
}

func (r *Reader) loadIndex() error {
	if r.indexLoaded {
		return r.indexErr
	}
	r.indexLoaded = true
	r.indexErr = r.parseIndex()
	return r.indexErr
}

// parseIndex decodes the index block: the three offset tables, the four
// name tables, and the nested known-protocols block. Raw records with
// unknown tags are skipped; schema-shaped unknowns are fatal, since their
// shape is not on the wire.
func (r *Reader) parseIndex() error {
	ref, ok := r.blocks[format.BlockIndex]
	if !ok {
		return corruptf(0, "container has no index block")
	}
	r.tables = make(map[format.RecordKind]*nametable.Table)
	r.known = make(map[format.KnownProtocolKind][]format.DeclID)

	cur, err := container.NewCursorAt(r.bitstream(), format.BlockIndex, ref.start)
	if err != nil {
		return err
	}
	depth := 1
	inKnown := false
	for depth > 0 {
		ent, err := cur.Next()
		if err != nil {
			return err
		}
		switch ent.Kind {
		case container.EntryEndBlock:
			depth--
			inKnown = false
		case container.EntryEnterBlock:
			if ent.Block == format.BlockKnownProtocols && depth == 1 {
				cur.EnterBlock()
				depth++
				inKnown = true
			} else if err := cur.SkipBlock(); err != nil {
				return err
			}
		case container.EntryRawRecord:
			if err := cur.SkipRecord(); err != nil {
				return err
			}
		case container.EntryRecord:
			rec, err := cur.ReadRecord()
			if err != nil {
				return err
			}
			if inKnown {
				if rec.Tag == format.KnownProtocolConformers {
					r.addKnownConformers(rec)
				}
				continue
			}
			if err := r.addIndexRecord(cur, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reader) addIndexRecord(cur *container.Reader, rec container.Record) error {
	// Offset table and name table records repeat their tag in the leading
	// field; disagreement means the stream got spliced.
	if rec.Scalars[0] != uint64(rec.Tag) {
		return corruptf(cur.BitPos(), "index record tag %d carries record ID %d", rec.Tag, rec.Scalars[0])
	}
	switch rec.Tag {
	case format.IndexTypeOffsets:
		r.typeOffsets = rec.Array
	case format.IndexDeclOffsets:
		r.declOffsets = rec.Array
	case format.IndexIdentifierOffsets:
		offsets := make([]uint32, len(rec.Array))
		for i, off := range rec.Array {
			offsets[i] = uint32(off)
		}
		r.identOffsets = offsets
	case format.IndexTopLevelDecls, format.IndexOperators, format.IndexExtensions, format.IndexClassMembers:
		tableOff := rec.Scalars[1]
		if tableOff > uint64(len(rec.Blob)) {
			return corruptf(cur.BitPos(), "name table header offset %d past table end %d", tableOff, len(rec.Blob))
		}
		table, err := nametable.Open(rec.Blob, uint32(tableOff))
		if err != nil {
			return corruptErr(cur.BitPos(), err, "malformed name table")
		}
		r.tables[rec.Tag] = table
	}
	return nil
}

func (r *Reader) addKnownConformers(rec container.Record) {
	kind := format.KnownProtocolKind(rec.Scalars[0])
	if !kind.Valid() {
		return
	}
	ids := make([]format.DeclID, 0, len(rec.Array))
	for _, v := range rec.Array {
		ids = append(ids, format.DeclID(v))
	}
	r.known[kind] = append(r.known[kind], ids...)
}

func (r *Reader) loadPool() error {
	if r.poolLoaded {
		return r.poolErr
	}
	r.poolLoaded = true
	r.poolErr = r.parsePool()
	return r.poolErr
}

func (r *Reader) parsePool() error {
	ref, ok := r.blocks[format.BlockIdentifierData]
	if !ok {
		if len(r.identOffsets) > 0 {
			return corruptf(0, "index names %d identifiers but the container has no identifier data block", len(r.identOffsets))
		}
		r.pool = strpool.NewPool(nil, nil)
		return nil
	}
	cur, err := container.NewCursorAt(r.bitstream(), format.BlockIdentifierData, ref.start)
	if err != nil {
		return err
	}
	for {
		ent, err := cur.Next()
		if err != nil {
			return err
		}
		switch ent.Kind {
		case container.EntryEndBlock:
			if r.pool == nil {
				if len(r.identOffsets) > 0 {
					return corruptf(ref.start, "identifier data block has no pool record")
				}
				r.pool = strpool.NewPool(nil, nil)
			}
			return nil
		case container.EntryEnterBlock:
			if err := cur.SkipBlock(); err != nil {
				return err
			}
		case container.EntryRawRecord:
			if err := cur.SkipRecord(); err != nil {
				return err
			}
		case container.EntryRecord:
			rec, err := cur.ReadRecord()
			if err != nil {
				return err
			}
			if rec.Tag != format.IdentifierDataPool {
				continue
			}
			if r.pool != nil {
				return corruptf(cur.BitPos(), "second identifier pool record")
			}
			data, err := decompressPool(format.CompressionKind(rec.Scalars[0]), rec.Scalars[1], rec.Blob)
			if err != nil {
				return corruptErr(cur.BitPos(), err, "identifier pool does not decompress")
			}
			r.pool = strpool.NewPool(data, r.identOffsets)
		}
	}
}

// Identifier resolves an identifier ID against the pool. ID 0 is the empty
// string.
func (r *Reader) Identifier(id format.IdentifierID) (string, error) {
	if id == format.NoIdentifier {
		return "", nil
	}
	if err := r.loadIndex(); err != nil {
		return "", err
	}
	if err := r.loadPool(); err != nil {
		return "", err
	}
	s, err := r.pool.Lookup(id)
	if err != nil {
		return "", corruptErr(0, err, "identifier reference outside pool")
	}
	return s, nil
}

// ForceLoad materializes the declarations the producer marked for eager
// loading.
func (r *Reader) ForceLoad(ctx context.Context) error {
	ids, err := r.KnownConformers(format.KnownForceLoad)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := r.Decl(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// KnownConformers returns the IDs of the declarations conforming to a
// well-known protocol.
func (r *Reader) KnownConformers(kind format.KnownProtocolKind) ([]format.DeclID, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("cruxmod: invalid known protocol kind %d", kind)
	}
	if err := r.loadIndex(); err != nil {
		return nil, err
	}
	return r.known[kind], nil
}

// LookupValue returns the module-scope declarations with the given name.
// Several entries mean an overload set.
func (r *Reader) LookupValue(name string) ([]TableEntry, error) {
	return r.lookup(format.IndexTopLevelDecls, name)
}

// LookupOperator returns the operator declaration with the given name and
// fixity, or an error matching ErrNotFound.
func (r *Reader) LookupOperator(name string, kind format.OperatorKind) (format.DeclID, error) {
	var want format.RecordKind
	switch kind {
	case format.OperatorInfix:
		want = format.DeclInfixOperator
	case format.OperatorPrefix:
		want = format.DeclPrefixOperator
	case format.OperatorPostfix:
		want = format.DeclPostfixOperator
	default:
		return format.NoDecl, fmt.Errorf("cruxmod: invalid operator fixity %d", kind)
	}
	entries, err := r.lookup(format.IndexOperators, name)
	if err != nil {
		return format.NoDecl, err
	}
	for _, e := range entries {
		if e.Kind == want {
			return e.Decl, nil
		}
	}
	return format.NoDecl, fmt.Errorf("cruxmod: %s operator %q in module %q: %w", kind, name, r.Name(), ErrNotFound)
}

// ExtensionsOf returns the extensions this module declares on the named
// nominal type, own or foreign.
func (r *Reader) ExtensionsOf(name string) ([]format.DeclID, error) {
	entries, err := r.lookup(format.IndexExtensions, name)
	if err != nil {
		return nil, err
	}
	ids := make([]format.DeclID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.Decl)
	}
	return ids, nil
}

// LookupClassMember returns the class members with the given name, across
// every class in the module. Dynamic dispatch resolution uses this to find
// candidate members without knowing the class.
func (r *Reader) LookupClassMember(name string) ([]TableEntry, error) {
	return r.lookup(format.IndexClassMembers, name)
}

func (r *Reader) lookup(table format.RecordKind, name string) ([]TableEntry, error) {
	start := time.Now()
	entries, err := r.lookupTable(table, name)
	r.opts.metricsCollector.RecordLookup(len(entries) > 0, time.Since(start))
	return entries, err
}

func (r *Reader) lookupTable(table format.RecordKind, name string) ([]TableEntry, error) {
	if err := r.loadIndex(); err != nil {
		return nil, err
	}
	tbl := r.tables[table]
	if tbl == nil {
		return nil, nil
	}
	pairs, err := tbl.Lookup(name)
	if err != nil {
		return nil, corruptErr(0, err, "malformed name table chain")
	}
	entries := make([]TableEntry, 0, len(pairs))
	for _, p := range pairs {
		if p.Value > format.MaxID {
			return nil, corruptf(0, "name table entry ID %d out of range", p.Value)
		}
		entries = append(entries, TableEntry{Kind: format.RecordKind(p.Kind), Decl: format.DeclID(p.Value)})
	}
	return entries, nil
}

// TopLevelNames returns the sorted names of the module-scope value and type
// declarations. Operator names are not included; LookupOperator covers
// those.
func (r *Reader) TopLevelNames() ([]string, error) {
	if err := r.loadIndex(); err != nil {
		return nil, err
	}
	tbl := r.tables[format.IndexTopLevelDecls]
	if tbl == nil {
		return nil, nil
	}
	var names []string
	err := tbl.Walk(func(name string, _ []nametable.Pair) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		return nil, corruptErr(0, err, "malformed name table chain")
	}
	sort.Strings(names)
	return names, nil
}

// TopLevelDecls materializes every named module-scope declaration, in name
// order.
func (r *Reader) TopLevelDecls(ctx context.Context) ([]decl.Decl, error) {
	names, err := r.TopLevelNames()
	if err != nil {
		return nil, err
	}
	var decls []decl.Decl
	for _, name := range names {
		entries, err := r.LookupValue(name)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			d, err := r.Decl(ctx, e.Decl)
			if err != nil {
				return nil, err
			}
			decls = append(decls, d)
		}
	}
	return decls, nil
}

// Decl materializes the declaration with the given ID, reusing the session
// cache. ID 0 is the null reference and materializes as nil.
func (r *Reader) Decl(ctx context.Context, id format.DeclID) (decl.Decl, error) {
	if id == format.NoDecl {
		return nil, nil
	}
	if slot, ok := r.decls[id]; ok {
		return slot.node, slot.err
	}
	if err := r.loadIndex(); err != nil {
		return nil, err
	}
	if uint64(id) > uint64(len(r.declOffsets)) {
		return nil, corruptf(0, "declaration ID %d out of range (offset table has %d)", id, len(r.declOffsets))
	}
	off := r.declOffsets[id-1]
	if off == 0 {
		return nil, corruptf(0, "declaration ID %d has no offset table entry", id)
	}

	// The slot is published before the fill so cycles through this node
	// resolve to the placeholder. A failed fill poisons the slot; nodes
	// that grabbed the placeholder mid-cycle keep it.
	slot := &declSlot{}
	r.decls[id] = slot
	start := time.Now()
	node, err := r.materializeDecl(ctx, slot, off)
	r.stats.DeclsMaterialized++
	r.opts.metricsCollector.RecordMaterialize(time.Since(start), err)
	r.opts.logger.LogMaterialize(ctx, "decl", uint32(id), err)
	if err != nil {
		slot.node = nil
		slot.err = err
		return nil, err
	}
	return node, nil
}

// Type materializes the type with the given ID, reusing the session cache.
// ID 0 is the null reference and materializes as nil.
func (r *Reader) Type(ctx context.Context, id format.TypeID) (decl.Type, error) {
	if id == format.NoType {
		return nil, nil
	}
	if slot, ok := r.types[id]; ok {
		return slot.node, slot.err
	}
	if err := r.loadIndex(); err != nil {
		return nil, err
	}
	if uint64(id) > uint64(len(r.typeOffsets)) {
		return nil, corruptf(0, "type ID %d out of range (offset table has %d)", id, len(r.typeOffsets))
	}
	off := r.typeOffsets[id-1]
	if off == 0 {
		return nil, corruptf(0, "type ID %d has no offset table entry", id)
	}

	slot := &typeSlot{}
	r.types[id] = slot
	start := time.Now()
	node, err := r.materializeType(ctx, slot, off)
	r.stats.TypesMaterialized++
	r.opts.metricsCollector.RecordMaterialize(time.Since(start), err)
	r.opts.logger.LogMaterialize(ctx, "type", uint32(id), err)
	if err != nil {
		slot.node = nil
		slot.err = err
		return nil, err
	}
	return node, nil
}

func (r *Reader) push(off uint64) error {
	if r.depth >= maxGraphDepth {
		return corruptf(off, "reference nesting deeper than %d", maxGraphDepth)
	}
	r.depth++
	return nil
}

func (r *Reader) pop() { r.depth-- }
