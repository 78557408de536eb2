package cruxmod

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/crux-lang/cruxmod/container"
	"github.com/crux-lang/cruxmod/decl"
	"github.com/crux-lang/cruxmod/format"
	"github.com/crux-lang/cruxmod/internal/nametable"
	"github.com/crux-lang/cruxmod/internal/strpool"
)

const declsBlock = format.BlockDeclsAndTypes

// Writer serializes module graphs into containers. A Writer is stateless
// across calls; each Write starts a fresh ID assignment.
type Writer struct {
	opts options
}

// NewWriter creates a Writer with the given options.
func NewWriter(optFns ...Option) *Writer {
	return &Writer{opts: applyOptions(optFns)}
}

// Write serializes m and writes the container to dst. It returns the number
// of bytes written. The declaration graph is traversed from the module-scope
// declarations and the known-protocol conformer lists; every node reached
// gets a dense ID and exactly one record.
func (w *Writer) Write(ctx context.Context, dst io.Writer, m *decl.Module) (int64, error) {
	start := time.Now()
	n, decls, types, err := w.write(ctx, dst, m)
	w.opts.metricsCollector.RecordWrite(decls, types, n, time.Since(start), err)
	name := ""
	if m != nil {
		name = m.Name
	}
	w.opts.logger.LogWrite(ctx, name, decls, types, n, err)
	return n, err
}

func (w *Writer) write(ctx context.Context, dst io.Writer, m *decl.Module) (int64, int, int, error) {
	if m == nil {
		return 0, 0, 0, fmt.Errorf("cruxmod: nil module")
	}
	if m.Name == "" {
		return 0, 0, 0, fmt.Errorf("cruxmod: module has no name")
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, 0, err
	}

	s := newSerializer(&w.opts, m)
	data, err := s.run(ctx)
	if err != nil {
		return 0, len(s.declsByID), len(s.typesByID), err
	}
	n, err := writeContainer(dst, data)
	return n, len(s.declsByID), len(s.typesByID), err
}

// WriteFallback writes a container that carries only the module identity,
// the input manifest and the fallback marker block. Opening such a container
// fails with a StaleModuleError naming the source files to rebuild from.
func (w *Writer) WriteFallback(ctx context.Context, dst io.Writer, m *decl.Module) (int64, error) {
	if m == nil {
		return 0, fmt.Errorf("cruxmod: nil module")
	}
	if m.Name == "" {
		return 0, fmt.Errorf("cruxmod: module has no name")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s := newSerializer(&w.opts, m)
	s.writeControl()
	s.writeInput()
	s.cw.EnterBlock(format.BlockFallbackToSource)
	s.cw.EndBlock()
	data, err := s.cw.Finish()
	if err != nil {
		return 0, err
	}
	n, err := writeContainer(dst, data)
	if err != nil {
		return n, err
	}
	w.opts.logger.LogFallback(ctx, m.Name)
	return n, nil
}

// Write serializes m to dst with a one-shot Writer.
func Write(ctx context.Context, dst io.Writer, m *decl.Module, optFns ...Option) (int64, error) {
	return NewWriter(optFns...).Write(ctx, dst, m)
}

// WriteFile serializes m to a file. On error the file is removed.
func WriteFile(ctx context.Context, path string, m *decl.Module, optFns ...Option) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := NewWriter(optFns...).Write(ctx, f, m); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// WriteFallback writes a fallback container to dst with a one-shot Writer.
func WriteFallback(ctx context.Context, dst io.Writer, m *decl.Module, optFns ...Option) (int64, error) {
	return NewWriter(optFns...).WriteFallback(ctx, dst, m)
}

func writeContainer(dst io.Writer, data []byte) (int64, error) {
	if _, err := dst.Write(format.Magic[:]); err != nil {
		return 0, err
	}
	if _, err := dst.Write(data); err != nil {
		return int64(len(format.Magic)), err
	}
	return int64(len(format.Magic) + len(data)), nil
}

// serializer holds the state of one Write call: the ID maps, the traversal
// queues, the offset tables being filled, and the container under
// construction.
type serializer struct {
	opts   *options
	module *decl.Module
	cw     *container.Writer
	idents *strpool.Builder

	declIDs map[decl.Decl]format.DeclID
	typeIDs map[decl.Type]format.TypeID

	// declsByID[i] is the node with ID i+1; declOffsets[i] its record's bit
	// offset, 0 while unwritten. Same for types.
	declsByID   []decl.Decl
	typesByID   []decl.Type
	declOffsets []uint64
	typeOffsets []uint64

	declQueue []decl.Decl
	typeQueue []decl.Type

	// Every ID handed out lands in these; the audit at the end checks each
	// against its offset table.
	declRefs *roaring.Bitmap
	typeRefs *roaring.Bitmap
}

func newSerializer(opts *options, m *decl.Module) *serializer {
	return &serializer{
		opts:     opts,
		module:   m,
		cw:       container.NewWriter(1 << 12),
		idents:   strpool.NewBuilder(),
		declIDs:  make(map[decl.Decl]format.DeclID),
		typeIDs:  make(map[decl.Type]format.TypeID),
		declRefs: roaring.New(),
		typeRefs: roaring.New(),
	}
}

func (s *serializer) run(ctx context.Context) ([]byte, error) {
	s.queueRoots()
	s.writeControl()
	s.writeInput()
	if err := s.writeDeclsAndTypes(ctx); err != nil {
		return nil, err
	}
	// No identifiers are interned past this point; control, input and index
	// all carry their strings inline.
	pool, identOffsets := s.idents.Pool()
	if err := s.writeIdentifierData(pool); err != nil {
		return nil, err
	}
	if err := s.writeIndex(identOffsets); err != nil {
		return nil, err
	}
	if err := s.audit(); err != nil {
		return nil, err
	}
	return s.cw.Finish()
}

// queueRoots assigns IDs to every traversal root up front, so the index
// phase never hands out new ones.
func (s *serializer) queueRoots() {
	for _, d := range s.module.Decls {
		s.declRef(d)
	}
	for kind := format.KnownProtocolKind(0); kind < format.NumKnownProtocolKinds; kind++ {
		for _, d := range s.module.KnownConformers[kind] {
			s.declRef(d)
		}
	}
}

func (s *serializer) writeControl() {
	producer := s.opts.producer
	if producer == "" {
		producer = s.module.Producer
	}
	s.cw.EnterBlock(format.BlockControl)
	s.record(format.BlockControl, format.ControlMetadata,
		[]uint64{format.VersionMajor, format.VersionMinor}, nil, []byte(producer))
	s.record(format.BlockControl, format.ControlModuleName, nil, nil, []byte(s.module.Name))
	s.cw.EndBlock()
}

func (s *serializer) writeInput() {
	s.cw.EnterBlock(format.BlockInput)
	for _, file := range s.module.SourceFiles {
		s.record(format.BlockInput, format.InputSourceFile, nil, nil, []byte(file))
	}
	for _, imp := range s.module.Imports {
		path := strings.Join(append([]string{imp.Name}, imp.ScopePath...), "\x00")
		s.record(format.BlockInput, format.InputImportedModule,
			[]uint64{b2u(imp.Exported)}, nil, []byte(path))
	}
	for _, lib := range s.module.LinkLibraries {
		s.record(format.BlockInput, format.InputLinkLibrary,
			[]uint64{uint64(lib.Kind)}, nil, []byte(lib.Name))
	}
	s.cw.EndBlock()
}

func (s *serializer) writeDeclsAndTypes(ctx context.Context) error {
	s.cw.EnterBlock(declsBlock)
	for len(s.declQueue) > 0 || len(s.typeQueue) > 0 {
		for len(s.declQueue) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			d := s.declQueue[0]
			s.declQueue = s.declQueue[1:]
			if err := s.emitDecl(d); err != nil {
				return err
			}
		}
		for len(s.typeQueue) > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			t := s.typeQueue[0]
			s.typeQueue = s.typeQueue[1:]
			if err := s.emitType(t); err != nil {
				return err
			}
		}
	}
	s.cw.EndBlock()
	return nil
}

func (s *serializer) writeIdentifierData(pool []byte) error {
	if len(pool) > maxPoolBytes {
		return fmt.Errorf("cruxmod: identifier pool is %d bytes, limit %d", len(pool), maxPoolBytes)
	}
	kind, blob, err := compressPool(pool, s.opts.compression)
	if err != nil {
		return err
	}
	s.cw.EnterBlock(format.BlockIdentifierData)
	s.record(format.BlockIdentifierData, format.IdentifierDataPool,
		[]uint64{uint64(kind), uint64(len(pool))}, nil, blob)
	s.cw.EndBlock()
	return nil
}

func (s *serializer) writeIndex(identOffsets []uint32) error {
	topLevel := nametable.NewBuilder()
	operators := nametable.NewBuilder()
	extensions := nametable.NewBuilder()
	classMembers := nametable.NewBuilder()
	for i, d := range s.declsByID {
		id := uint32(i + 1)
		if owner := d.DeclOwner(); owner != nil && owner != s.module {
			continue
		}
		pair := nametable.Pair{Kind: uint32(d.Kind()), Value: id}
		name, named := decl.Name(d)
		switch d.Kind() {
		case format.DeclPrefixOperator, format.DeclPostfixOperator, format.DeclInfixOperator:
			operators.Add(name, pair)
		case format.DeclExtension:
			ext := d.(*decl.ExtensionDecl)
			if base, ok := nominalTypeName(ext.ExtendedType); ok {
				extensions.Add(base, pair)
			}
		default:
			if named && decl.Context(d) == nil {
				topLevel.Add(name, pair)
			}
		}
		if named && inClassContext(d) {
			classMembers.Add(name, pair)
		}
	}

	s.cw.EnterBlock(format.BlockIndex)
	s.writeOffsets(format.IndexTypeOffsets, s.typeOffsets)
	s.writeOffsets(format.IndexDeclOffsets, s.declOffsets)
	offsets := make([]uint64, len(identOffsets))
	for i, off := range identOffsets {
		offsets[i] = uint64(off)
	}
	s.writeOffsets(format.IndexIdentifierOffsets, offsets)
	s.writeTable(format.IndexTopLevelDecls, topLevel)
	s.writeTable(format.IndexOperators, operators)
	s.writeTable(format.IndexExtensions, extensions)
	s.writeTable(format.IndexClassMembers, classMembers)

	s.cw.EnterBlock(format.BlockKnownProtocols)
	for kind := format.KnownProtocolKind(0); kind < format.NumKnownProtocolKinds; kind++ {
		conformers := s.module.KnownConformers[kind]
		if len(conformers) == 0 {
			continue
		}
		ids := make([]uint64, 0, len(conformers))
		for _, d := range conformers {
			ids = append(ids, s.declRef(d))
		}
		s.record(format.BlockKnownProtocols, format.KnownProtocolConformers,
			[]uint64{uint64(kind)}, ids, nil)
	}
	s.cw.EndBlock()
	s.cw.EndBlock()
	return nil
}

func (s *serializer) writeOffsets(kind format.RecordKind, offsets []uint64) {
	s.record(format.BlockIndex, kind, []uint64{uint64(kind)}, offsets, nil)
}

func (s *serializer) writeTable(kind format.RecordKind, b *nametable.Builder) {
	blob, tableOff := b.Encode()
	s.record(format.BlockIndex, kind, []uint64{uint64(kind), uint64(tableOff)}, nil, blob)
}

// inClassContext reports whether d is a direct member of a class, through
// either the class body or an extension of the class.
func inClassContext(d decl.Decl) bool {
	switch ctx := decl.Context(d).(type) {
	case *decl.ClassDecl:
		return true
	case *decl.ExtensionDecl:
		base, _ := nominalTypeDecl(ctx.ExtendedType)
		_, isClass := base.(*decl.ClassDecl)
		return isClass
	}
	return false
}

// audit verifies that every ID handed out during the traversal got its
// record written. A violation means the traversal logic lost a node, and the
// container would materialize garbage; better to fail the write.
func (s *serializer) audit() error {
	it := s.declRefs.Iterator()
	for it.HasNext() {
		id := it.Next()
		if id == 0 || int(id) > len(s.declOffsets) || s.declOffsets[id-1] == 0 {
			return &ConsistencyError{Space: "decl", ID: id, Reason: "referenced but never written"}
		}
	}
	it = s.typeRefs.Iterator()
	for it.HasNext() {
		id := it.Next()
		if id == 0 || int(id) > len(s.typeOffsets) || s.typeOffsets[id-1] == 0 {
			return &ConsistencyError{Space: "type", ID: id, Reason: "referenced but never written"}
		}
	}
	return nil
}

// declRef returns the wire ID for d, assigning the next dense ID and
// queueing the node on first sight. A nil d is the null reference.
func (s *serializer) declRef(d decl.Decl) uint64 {
	if d == nil {
		return uint64(format.NoDecl)
	}
	id, ok := s.declIDs[d]
	if !ok {
		if len(s.declsByID) >= format.MaxID {
			panic("cruxmod: declaration ID space exhausted")
		}
		id = format.DeclID(len(s.declsByID) + 1)
		s.declIDs[d] = id
		s.declsByID = append(s.declsByID, d)
		s.declOffsets = append(s.declOffsets, 0)
		s.declQueue = append(s.declQueue, d)
	}
	s.declRefs.Add(uint32(id))
	return uint64(id)
}

func (s *serializer) typeRef(t decl.Type) uint64 {
	if t == nil {
		return uint64(format.NoType)
	}
	id, ok := s.typeIDs[t]
	if !ok {
		if len(s.typesByID) >= format.MaxID {
			panic("cruxmod: type ID space exhausted")
		}
		id = format.TypeID(len(s.typesByID) + 1)
		s.typeIDs[t] = id
		s.typesByID = append(s.typesByID, t)
		s.typeOffsets = append(s.typeOffsets, 0)
		s.typeQueue = append(s.typeQueue, t)
	}
	s.typeRefs.Add(uint32(id))
	return uint64(id)
}

func (s *serializer) ident(name string) uint64 {
	return uint64(s.idents.Intern(name))
}

func (s *serializer) record(block format.BlockID, kind format.RecordKind, scalars, array []uint64, blob []byte) {
	l, ok := format.LayoutFor(block, kind)
	if !ok {
		panic(fmt.Sprintf("cruxmod: no layout for tag %d in %s block", kind, format.BlockName(block)))
	}
	s.cw.WriteRecord(l, scalars, array, blob)
}

// emitDecl writes the record for one declaration, trailers included. The
// node's offset is recorded first, so self-references resolve.
func (s *serializer) emitDecl(d decl.Decl) error {
	id := s.declIDs[d]
	off := s.cw.BitPos()
	if off > format.MaxID {
		return fmt.Errorf("cruxmod: module exceeds the %d-bit offset space", format.IDWidth)
	}
	if s.declOffsets[id-1] != 0 {
		return &ConsistencyError{Space: "decl", ID: uint32(id), Reason: "written twice"}
	}
	s.declOffsets[id-1] = off

	if owner := d.DeclOwner(); owner != nil && owner != s.module {
		return s.emitCrossReference(d, owner)
	}

	switch d := d.(type) {
	case *decl.TypeAliasDecl:
		s.record(declsBlock, format.DeclTypeAlias, []uint64{
			s.ident(d.Name), s.declRef(d.Context), s.typeRef(d.Underlying),
			b2u(d.Implicit), uint64(len(d.Conformances)),
		}, nil, nil)
		return s.emitConformances(d.Conformances)

	case *decl.GenericParamDecl:
		s.record(declsBlock, format.DeclGenericParam, []uint64{
			s.ident(d.Name), s.declRef(d.Context), uint64(d.Depth), uint64(d.Index),
			s.typeRef(d.Superclass), s.typeRef(d.Archetype),
		}, nil, nil)
		return nil

	case *decl.AssociatedTypeDecl:
		s.record(declsBlock, format.DeclAssociatedType, []uint64{
			s.ident(d.Name), s.declRef(d.Context), s.typeRef(d.Underlying),
			s.typeRef(d.Archetype), b2u(d.Implicit), uint64(len(d.Conformances)),
		}, nil, nil)
		return s.emitConformances(d.Conformances)

	case *decl.StructDecl:
		s.record(declsBlock, format.DeclStruct, []uint64{
			s.ident(d.Name), s.declRef(d.Context), b2u(d.Implicit),
			b2u(d.GenericParams != nil), uint64(len(d.Conformances)),
		}, nil, nil)
		s.emitGenericParams(d.GenericParams)
		if err := s.emitConformances(d.Conformances); err != nil {
			return err
		}
		s.emitDeclContext(d.Members)
		return nil

	case *decl.ConstructorDecl:
		s.record(declsBlock, format.DeclConstructor, []uint64{
			s.declRef(d.Context), b2u(d.Implicit), b2u(d.Foreign),
			s.typeRef(d.Signature), s.declRef(declOrNil(d.Self)), b2u(d.GenericParams != nil),
		}, nil, nil)
		s.emitGenericParams(d.GenericParams)
		return s.emitPattern(d.Params, "constructor parameter clause")

	case *decl.VarDecl:
		s.record(declsBlock, format.DeclVar, []uint64{
			s.ident(d.Name), s.declRef(d.Context), b2u(d.Implicit), b2u(d.Foreign),
			s.typeRef(d.Type), s.declRef(declOrNil(d.Getter)),
			s.declRef(declOrNil(d.Setter)), s.declRef(declOrNil(d.Overridden)),
		}, nil, nil)
		return nil

	case *decl.FuncDecl:
		s.record(declsBlock, format.DeclFunc, []uint64{
			s.ident(d.Name), s.declRef(d.Context), b2u(d.Implicit), b2u(d.Static),
			b2u(d.Conversion), b2u(d.Foreign), b2u(d.GenericParams != nil),
			uint64(len(d.Params)), s.typeRef(d.Signature), s.declRef(d.Operator),
			s.declRef(declOrNil(d.Overridden)),
		}, nil, []byte(d.LinkName))
		s.emitGenericParams(d.GenericParams)
		for _, p := range d.Params {
			if err := s.emitPattern(p, "function parameter clause"); err != nil {
				return err
			}
		}
		return nil

	case *decl.PatternBindingDecl:
		s.record(declsBlock, format.DeclPatternBinding, []uint64{
			s.declRef(d.Context), b2u(d.Implicit),
		}, nil, nil)
		return s.emitPattern(d.Pattern, "pattern binding")

	case *decl.ProtocolDecl:
		inherited := make([]uint64, 0, len(d.Inherited))
		for _, p := range d.Inherited {
			inherited = append(inherited, s.declRef(declOrNil(p)))
		}
		s.record(declsBlock, format.DeclProtocol, []uint64{
			s.ident(d.Name), s.declRef(d.Context), b2u(d.Implicit), b2u(d.ClassProtocol),
		}, inherited, nil)
		s.emitDeclContext(d.Members)
		return nil

	case *decl.PrefixOperatorDecl:
		s.record(declsBlock, format.DeclPrefixOperator, []uint64{
			s.ident(d.Name), s.declRef(d.Context),
		}, nil, nil)
		return nil

	case *decl.PostfixOperatorDecl:
		s.record(declsBlock, format.DeclPostfixOperator, []uint64{
			s.ident(d.Name), s.declRef(d.Context),
		}, nil, nil)
		return nil

	case *decl.InfixOperatorDecl:
		s.record(declsBlock, format.DeclInfixOperator, []uint64{
			s.ident(d.Name), s.declRef(d.Context),
			uint64(d.Associativity), uint64(d.Precedence),
		}, nil, nil)
		return nil

	case *decl.ClassDecl:
		s.record(declsBlock, format.DeclClass, []uint64{
			s.ident(d.Name), s.declRef(d.Context), b2u(d.Implicit), b2u(d.Foreign),
			b2u(d.GenericParams != nil), s.typeRef(d.Superclass), uint64(len(d.Conformances)),
		}, nil, nil)
		s.emitGenericParams(d.GenericParams)
		if err := s.emitConformances(d.Conformances); err != nil {
			return err
		}
		s.emitDeclContext(d.Members)
		return nil

	case *decl.UnionDecl:
		s.record(declsBlock, format.DeclUnion, []uint64{
			s.ident(d.Name), s.declRef(d.Context), b2u(d.Implicit),
			b2u(d.GenericParams != nil), uint64(len(d.Conformances)),
		}, nil, nil)
		s.emitGenericParams(d.GenericParams)
		if err := s.emitConformances(d.Conformances); err != nil {
			return err
		}
		s.emitDeclContext(d.Members)
		return nil

	case *decl.UnionElementDecl:
		s.record(declsBlock, format.DeclUnionElement, []uint64{
			s.ident(d.Name), s.declRef(d.Context), s.typeRef(d.ArgumentType),
			s.typeRef(d.ResultType), s.typeRef(d.ConstructorType), b2u(d.Implicit),
		}, nil, nil)
		return nil

	case *decl.SubscriptDecl:
		s.record(declsBlock, format.DeclSubscript, []uint64{
			s.declRef(d.Context), b2u(d.Implicit), b2u(d.Foreign),
			s.typeRef(d.ElementType), s.declRef(declOrNil(d.Getter)),
			s.declRef(declOrNil(d.Setter)), s.declRef(declOrNil(d.Overridden)),
		}, nil, nil)
		return s.emitPattern(d.Indices, "subscript index clause")

	case *decl.ExtensionDecl:
		s.record(declsBlock, format.DeclExtension, []uint64{
			s.typeRef(d.ExtendedType), s.declRef(d.Context), b2u(d.Implicit),
			uint64(len(d.Conformances)),
		}, nil, nil)
		if err := s.emitConformances(d.Conformances); err != nil {
			return err
		}
		s.emitDeclContext(d.Members)
		return nil

	case *decl.DestructorDecl:
		s.record(declsBlock, format.DeclDestructor, []uint64{
			s.declRef(d.Context), b2u(d.Implicit), s.typeRef(d.Signature),
			s.declRef(declOrNil(d.Self)),
		}, nil, nil)
		return nil
	}
	return fmt.Errorf("cruxmod: cannot serialize declaration %T", d)
}

func (s *serializer) emitType(t decl.Type) error {
	id := s.typeIDs[t]
	off := s.cw.BitPos()
	if off > format.MaxID {
		return fmt.Errorf("cruxmod: module exceeds the %d-bit offset space", format.IDWidth)
	}
	if s.typeOffsets[id-1] != 0 {
		return &ConsistencyError{Space: "type", ID: uint32(id), Reason: "written twice"}
	}
	s.typeOffsets[id-1] = off

	switch t := t.(type) {
	case *decl.AliasType:
		s.record(declsBlock, format.TypeAlias, []uint64{s.declRef(declOrNil(t.Decl))}, nil, nil)
		return nil

	case *decl.NominalType:
		s.record(declsBlock, format.TypeNominal, []uint64{
			s.declRef(t.Decl), s.typeRef(t.Parent),
		}, nil, nil)
		return nil

	case *decl.ParenType:
		s.record(declsBlock, format.TypeParen, []uint64{s.typeRef(t.Inner)}, nil, nil)
		return nil

	case *decl.TupleType:
		s.record(declsBlock, format.TypeTuple, []uint64{uint64(len(t.Elems))}, nil, nil)
		for _, e := range t.Elems {
			s.record(declsBlock, format.TypeTupleElem, []uint64{
				s.ident(e.Name), s.typeRef(e.Type), uint64(e.DefaultArg), b2u(e.Vararg),
			}, nil, nil)
		}
		return nil

	case *decl.FunctionType:
		s.record(declsBlock, format.TypeFunction, []uint64{
			s.typeRef(t.Input), s.typeRef(t.Result), uint64(t.Convention),
			b2u(t.AutoClosure), b2u(t.Thin), b2u(t.NoReturn),
		}, nil, nil)
		return nil

	case *decl.MetatypeType:
		s.record(declsBlock, format.TypeMetatype, []uint64{s.typeRef(t.Instance)}, nil, nil)
		return nil

	case *decl.LValueType:
		s.record(declsBlock, format.TypeLValue, []uint64{
			s.typeRef(t.Object), b2u(t.Implicit), b2u(t.NonSettable),
		}, nil, nil)
		return nil

	case *decl.ArchetypeType:
		primary := t.Parent == nil
		indexOrParent := uint64(t.Index)
		if !primary {
			indexOrParent = s.typeRef(t.Parent)
		}
		conformances := make([]uint64, 0, len(t.Conformances))
		for _, p := range t.Conformances {
			conformances = append(conformances, s.declRef(declOrNil(p)))
		}
		s.record(declsBlock, format.TypeArchetype, []uint64{
			s.ident(t.Name), b2u(primary), indexOrParent,
			s.declRef(t.AssocOrProto), s.typeRef(t.Superclass), uint64(len(t.Nested)),
		}, conformances, nil)
		if len(t.Nested) > 0 {
			names := make([]uint64, 0, len(t.Nested))
			types := make([]uint64, 0, len(t.Nested))
			for _, n := range t.Nested {
				names = append(names, s.ident(n.Name))
				types = append(types, s.typeRef(n.Type))
			}
			s.record(declsBlock, format.TypeArchetypeNames, nil, names, nil)
			s.record(declsBlock, format.TypeArchetypeNested, nil, types, nil)
		}
		return nil

	case *decl.ProtocolCompositionType:
		protocols := make([]uint64, 0, len(t.Protocols))
		for _, p := range t.Protocols {
			protocols = append(protocols, s.typeRef(p))
		}
		s.record(declsBlock, format.TypeProtocolComposition, nil, protocols, nil)
		return nil

	case *decl.SubstitutedType:
		s.record(declsBlock, format.TypeSubstituted, []uint64{
			s.typeRef(t.Original), s.typeRef(t.Replacement),
		}, nil, nil)
		return nil

	case *decl.GenericParamType:
		s.record(declsBlock, format.TypeGenericParam, []uint64{s.declRef(declOrNil(t.Decl))}, nil, nil)
		return nil

	case *decl.AssociatedTypeType:
		s.record(declsBlock, format.TypeAssociated, []uint64{s.declRef(declOrNil(t.Decl))}, nil, nil)
		return nil

	case *decl.DependentMemberType:
		s.record(declsBlock, format.TypeDependentMember, []uint64{
			s.typeRef(t.Base), s.ident(t.Name),
		}, nil, nil)
		return nil

	case *decl.BoundGenericType:
		args := make([]uint64, 0, len(t.Args))
		for _, a := range t.Args {
			args = append(args, s.typeRef(a))
		}
		s.record(declsBlock, format.TypeBoundGeneric, []uint64{
			s.declRef(t.Decl), s.typeRef(t.Parent), uint64(len(t.Substitutions)),
		}, args, nil)
		return s.emitSubstitutions(t.Substitutions)

	case *decl.PolymorphicFunctionType:
		s.record(declsBlock, format.TypePolymorphicFunction, []uint64{
			s.typeRef(t.Input), s.typeRef(t.Result), s.declRef(t.Owner),
			uint64(t.Convention), b2u(t.Thin), b2u(t.NoReturn),
		}, nil, nil)
		return nil

	case *decl.UnboundGenericType:
		s.record(declsBlock, format.TypeUnboundGeneric, []uint64{
			s.declRef(t.Decl), s.typeRef(t.Parent),
		}, nil, nil)
		return nil

	case *decl.SliceType:
		s.record(declsBlock, format.TypeSlice, []uint64{s.typeRef(t.Element)}, nil, nil)
		return nil

	case *decl.ArrayType:
		s.record(declsBlock, format.TypeArray, []uint64{s.typeRef(t.Element), t.Size}, nil, nil)
		return nil

	case *decl.ReferenceStorageType:
		s.record(declsBlock, format.TypeReferenceStorage, []uint64{
			uint64(t.Ownership), s.typeRef(t.Referent),
		}, nil, nil)
		return nil

	case *decl.OptionalType:
		s.record(declsBlock, format.TypeOptional, []uint64{s.typeRef(t.Element)}, nil, nil)
		return nil
	}
	return fmt.Errorf("cruxmod: cannot serialize type %T", t)
}

// emitGenericParams writes the generic parameter clause trailer: the list
// record, one ref per parameter, one record per requirement.
func (s *serializer) emitGenericParams(gp *decl.GenericParams) {
	if gp == nil {
		return
	}
	archetypes := make([]uint64, 0, len(gp.Archetypes))
	for _, a := range gp.Archetypes {
		archetypes = append(archetypes, s.typeRef(a))
	}
	s.record(declsBlock, format.GenericParamList, []uint64{
		uint64(len(gp.Params)), uint64(len(gp.Requirements)),
	}, archetypes, nil)
	for _, p := range gp.Params {
		s.record(declsBlock, format.GenericParamRef, []uint64{s.declRef(declOrNil(p))}, nil, nil)
	}
	for _, r := range gp.Requirements {
		s.record(declsBlock, format.GenericRequirement, []uint64{
			uint64(r.Kind), s.typeRef(r.First), s.typeRef(r.Second),
		}, nil, nil)
	}
}

func (s *serializer) emitConformances(conformances []decl.Conformance) error {
	for _, c := range conformances {
		if err := s.emitConformance(c); err != nil {
			return err
		}
	}
	return nil
}

// emitConformance writes one self-delimiting conformance: its record, then
// its trailers, recursively.
func (s *serializer) emitConformance(c decl.Conformance) error {
	switch c := c.(type) {
	case *decl.NoConformance:
		s.record(declsBlock, format.ConformanceNone,
			[]uint64{s.declRef(declOrNil(c.Protocol))}, nil, nil)
		return nil

	case *decl.NormalConformance:
		data := make([]uint64, 0, 3*len(c.ValueWitnesses)+2*len(c.TypeWitnesses)+len(c.Defaulted))
		for _, w := range c.ValueWitnesses {
			data = append(data, s.declRef(w.Requirement), s.declRef(w.Witness), uint64(len(w.Substitutions)))
		}
		for _, w := range c.TypeWitnesses {
			data = append(data, s.declRef(declOrNil(w.AssociatedType)), s.typeRef(w.Witness))
		}
		for _, d := range c.Defaulted {
			data = append(data, s.declRef(d))
		}
		s.record(declsBlock, format.ConformanceNormal, []uint64{
			s.declRef(declOrNil(c.Protocol)),
			uint64(len(c.ValueWitnesses)), uint64(len(c.TypeWitnesses)),
			uint64(len(c.Inherited)), uint64(len(c.Defaulted)),
		}, data, nil)
		if err := s.emitConformances(c.Inherited); err != nil {
			return err
		}
		for _, w := range c.ValueWitnesses {
			if err := s.emitSubstitutions(w.Substitutions); err != nil {
				return err
			}
		}
		return nil

	case *decl.SpecializedConformance:
		if c.Generic == nil {
			return fmt.Errorf("cruxmod: specialized conformance without a generic conformance")
		}
		s.record(declsBlock, format.ConformanceSpecialized, []uint64{
			s.declRef(declOrNil(c.Protocol)), uint64(len(c.Substitutions)),
		}, nil, nil)
		if err := s.emitConformance(c.Generic); err != nil {
			return err
		}
		return s.emitSubstitutions(c.Substitutions)

	case *decl.InheritedConformance:
		if c.Underlying == nil {
			return fmt.Errorf("cruxmod: inherited conformance without an underlying conformance")
		}
		s.record(declsBlock, format.ConformanceInherited,
			[]uint64{s.declRef(declOrNil(c.Protocol))}, nil, nil)
		return s.emitConformance(c.Underlying)
	}
	return fmt.Errorf("cruxmod: cannot serialize conformance %T", c)
}

func (s *serializer) emitSubstitutions(subs []decl.Substitution) error {
	for _, sub := range subs {
		s.record(declsBlock, format.GenericSubstitution, []uint64{
			s.typeRef(sub.Archetype), s.typeRef(sub.Replacement), uint64(len(sub.Conformances)),
		}, nil, nil)
		if err := s.emitConformances(sub.Conformances); err != nil {
			return err
		}
	}
	return nil
}

func (s *serializer) emitDeclContext(members []decl.Decl) {
	ids := make([]uint64, 0, len(members))
	for _, m := range members {
		ids = append(ids, s.declRef(m))
	}
	s.record(declsBlock, format.DeclContext, nil, ids, nil)
}

func (s *serializer) emitPattern(p decl.Pattern, where string) error {
	if p == nil {
		return fmt.Errorf("cruxmod: missing pattern in %s", where)
	}
	switch p := p.(type) {
	case *decl.ParenPattern:
		s.record(declsBlock, format.PatternParen, []uint64{b2u(p.Implicit)}, nil, nil)
		return s.emitPattern(p.Sub, where)

	case *decl.TuplePattern:
		s.record(declsBlock, format.PatternTuple, []uint64{
			s.typeRef(p.Type), uint64(len(p.Elems)), b2u(p.Implicit), b2u(p.Vararg),
		}, nil, nil)
		for _, e := range p.Elems {
			s.record(declsBlock, format.PatternTupleElem, []uint64{uint64(e.DefaultArg)}, nil, nil)
			if err := s.emitPattern(e.Pattern, where); err != nil {
				return err
			}
		}
		return nil

	case *decl.NamedPattern:
		s.record(declsBlock, format.PatternNamed, []uint64{
			s.declRef(declOrNil(p.Var)), b2u(p.Implicit),
		}, nil, nil)
		return nil

	case *decl.AnyPattern:
		s.record(declsBlock, format.PatternAny, []uint64{s.typeRef(p.Type), b2u(p.Implicit)}, nil, nil)
		return nil

	case *decl.TypedPattern:
		s.record(declsBlock, format.PatternTyped, []uint64{s.typeRef(p.Type), b2u(p.Implicit)}, nil, nil)
		return s.emitPattern(p.Sub, where)

	case *decl.IsaPattern:
		s.record(declsBlock, format.PatternIsa, []uint64{s.typeRef(p.Type), b2u(p.Implicit)}, nil, nil)
		return nil

	case *decl.NominalTypePattern:
		s.record(declsBlock, format.PatternNominalType, []uint64{s.typeRef(p.Type), b2u(p.Implicit)}, nil, nil)
		return s.emitPattern(p.Sub, where)

	case *decl.VarPattern:
		s.record(declsBlock, format.PatternVar, []uint64{b2u(p.Implicit)}, nil, nil)
		return s.emitPattern(p.Sub, where)
	}
	return fmt.Errorf("cruxmod: cannot serialize pattern %T in %s", p, where)
}

// declOrNil converts a typed pointer field into the Decl interface without
// producing a typed-nil interface value.
func declOrNil[N any, P interface {
	*N
	decl.Decl
}](p P) decl.Decl {
	if p == nil {
		return nil
	}
	return p
}

func b2u(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
