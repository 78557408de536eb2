package format

import "fmt"

// OpKind is the encoding of one record operand.
type OpKind uint8

const (
	// OpFixed is a fixed-width field of Width bits, 1 to 32.
	OpFixed OpKind = iota
	// OpVBR is a variable-bit-rate field with chunk size Width, 2 to 32.
	OpVBR
	// OpArray is a VBR6 element count followed by that many Elem-encoded
	// values. At most one per layout; only a blob may follow it.
	OpArray
	// OpBlob is a VBR6 byte length, 32-bit alignment, raw bytes, and
	// re-alignment. At most one per layout, always last.
	OpBlob
)

// Op describes one operand of a record layout.
type Op struct {
	Kind  OpKind
	Width uint8
	Elem  *Op
}

func Fixed(width uint8) Op { return Op{Kind: OpFixed, Width: width} }
func VBR(chunk uint8) Op   { return Op{Kind: OpVBR, Width: chunk} }
func Array(elem Op) Op     { return Op{Kind: OpArray, Elem: &elem} }
func Blob() Op             { return Op{Kind: OpBlob} }

// Layout is the frozen shape of one record kind within one block. Records
// carry no shape information on the wire; both ends hold these tables.
type Layout struct {
	Block BlockID
	Kind  RecordKind
	Name  string
	Ops   []Op
}

// NumScalars returns how many leading single-value operands the layout has,
// before any array or blob.
func (l *Layout) NumScalars() int {
	n := 0
	for _, op := range l.Ops {
		if op.Kind == OpArray || op.Kind == OpBlob {
			break
		}
		n++
	}
	return n
}

// HasArray reports whether the layout carries an array operand.
func (l *Layout) HasArray() bool {
	for _, op := range l.Ops {
		if op.Kind == OpArray {
			return true
		}
	}
	return false
}

// HasBlob reports whether the layout carries a blob operand.
func (l *Layout) HasBlob() bool {
	n := len(l.Ops)
	return n > 0 && l.Ops[n-1].Kind == OpBlob
}

func (l *Layout) validate() error {
	seenArray, seenBlob := false, false
	for i, op := range l.Ops {
		switch op.Kind {
		case OpFixed:
			if op.Width < 1 || op.Width > 32 {
				return fmt.Errorf("layout %s: fixed width %d out of range", l.Name, op.Width)
			}
		case OpVBR:
			if op.Width < 2 || op.Width > 32 {
				return fmt.Errorf("layout %s: vbr chunk %d out of range", l.Name, op.Width)
			}
		case OpArray:
			if seenArray {
				return fmt.Errorf("layout %s: multiple arrays", l.Name)
			}
			if op.Elem == nil || op.Elem.Kind == OpArray || op.Elem.Kind == OpBlob {
				return fmt.Errorf("layout %s: bad array element", l.Name)
			}
			seenArray = true
		case OpBlob:
			if i != len(l.Ops)-1 {
				return fmt.Errorf("layout %s: blob not last", l.Name)
			}
			seenBlob = true
		default:
			return fmt.Errorf("layout %s: unknown op kind %d", l.Name, op.Kind)
		}
		if seenArray && op.Kind != OpArray && op.Kind != OpBlob {
			return fmt.Errorf("layout %s: scalar after array", l.Name)
		}
		_ = seenBlob
	}
	return nil
}

// Field shorthands. IDs and bit offsets share the 31-bit width; the
// distinction is semantic, not representational.
var (
	declIDOp = Fixed(IDWidth)
	typeIDOp = Fixed(IDWidth)
	identOp  = Fixed(IDWidth)
	offsetOp = Fixed(IDWidth)
)

var layouts = []*Layout{
	// Control block.
	{BlockControl, ControlMetadata, "metadata", []Op{Fixed(16), Fixed(16), Blob()}},
	{BlockControl, ControlModuleName, "module-name", []Op{Blob()}},

	// Input block.
	{BlockInput, InputSourceFile, "source-file", []Op{Blob()}},
	{BlockInput, InputImportedModule, "imported-module", []Op{Fixed(1), Blob()}},
	{BlockInput, InputLinkLibrary, "link-library", []Op{Fixed(1), Blob()}},

	// Identifier data block.
	{BlockIdentifierData, IdentifierDataPool, "identifier-pool", []Op{Fixed(2), VBR(16), Blob()}},

	// Index block.
	{BlockIndex, IndexTypeOffsets, "type-offsets", []Op{Fixed(3), Array(offsetOp)}},
	{BlockIndex, IndexDeclOffsets, "decl-offsets", []Op{Fixed(3), Array(offsetOp)}},
	{BlockIndex, IndexIdentifierOffsets, "identifier-offsets", []Op{Fixed(3), Array(offsetOp)}},
	{BlockIndex, IndexTopLevelDecls, "top-level-decls", []Op{Fixed(3), VBR(16), Blob()}},
	{BlockIndex, IndexOperators, "operators", []Op{Fixed(3), VBR(16), Blob()}},
	{BlockIndex, IndexExtensions, "extensions", []Op{Fixed(3), VBR(16), Blob()}},
	{BlockIndex, IndexClassMembers, "class-members", []Op{Fixed(3), VBR(16), Blob()}},

	// Known-protocols block.
	{BlockKnownProtocols, KnownProtocolConformers, "known-protocol-conformers", []Op{Fixed(4), Array(declIDOp)}},

	// Types.
	{BlockDeclsAndTypes, TypeAlias, "alias-type", []Op{declIDOp}},
	{BlockDeclsAndTypes, TypeNominal, "nominal-type", []Op{declIDOp, typeIDOp}},
	{BlockDeclsAndTypes, TypeParen, "paren-type", []Op{typeIDOp}},
	{BlockDeclsAndTypes, TypeTuple, "tuple-type", []Op{VBR(6)}},
	{BlockDeclsAndTypes, TypeTupleElem, "tuple-type-elem", []Op{identOp, typeIDOp, Fixed(3), Fixed(1)}},
	{BlockDeclsAndTypes, TypeFunction, "function-type", []Op{typeIDOp, typeIDOp, Fixed(2), Fixed(1), Fixed(1), Fixed(1)}},
	{BlockDeclsAndTypes, TypeMetatype, "metatype-type", []Op{typeIDOp}},
	{BlockDeclsAndTypes, TypeLValue, "lvalue-type", []Op{typeIDOp, Fixed(1), Fixed(1)}},
	{BlockDeclsAndTypes, TypeArchetype, "archetype-type", []Op{identOp, Fixed(1), VBR(6), declIDOp, typeIDOp, VBR(4), Array(declIDOp)}},
	{BlockDeclsAndTypes, TypeArchetypeNames, "archetype-nested-names", []Op{Array(identOp)}},
	{BlockDeclsAndTypes, TypeArchetypeNested, "archetype-nested-types", []Op{Array(typeIDOp)}},
	{BlockDeclsAndTypes, TypeProtocolComposition, "protocol-composition-type", []Op{Array(typeIDOp)}},
	{BlockDeclsAndTypes, TypeSubstituted, "substituted-type", []Op{typeIDOp, typeIDOp}},
	{BlockDeclsAndTypes, TypeGenericParam, "generic-param-type", []Op{declIDOp}},
	{BlockDeclsAndTypes, TypeAssociated, "associated-type", []Op{declIDOp}},
	{BlockDeclsAndTypes, TypeDependentMember, "dependent-member-type", []Op{typeIDOp, identOp}},
	{BlockDeclsAndTypes, TypeBoundGeneric, "bound-generic-type", []Op{declIDOp, typeIDOp, VBR(4), Array(typeIDOp)}},
	{BlockDeclsAndTypes, TypePolymorphicFunction, "polymorphic-function-type", []Op{typeIDOp, typeIDOp, declIDOp, Fixed(2), Fixed(1), Fixed(1)}},
	{BlockDeclsAndTypes, TypeUnboundGeneric, "unbound-generic-type", []Op{declIDOp, typeIDOp}},
	{BlockDeclsAndTypes, TypeSlice, "slice-type", []Op{typeIDOp}},
	{BlockDeclsAndTypes, TypeArray, "array-type", []Op{typeIDOp, VBR(8)}},
	{BlockDeclsAndTypes, TypeReferenceStorage, "reference-storage-type", []Op{Fixed(2), typeIDOp}},
	{BlockDeclsAndTypes, TypeOptional, "optional-type", []Op{typeIDOp}},

	// Declarations.
	{BlockDeclsAndTypes, DeclTypeAlias, "type-alias-decl", []Op{identOp, declIDOp, typeIDOp, Fixed(1), VBR(4)}},
	{BlockDeclsAndTypes, DeclGenericParam, "generic-param-decl", []Op{identOp, declIDOp, VBR(4), VBR(4), typeIDOp, typeIDOp}},
	{BlockDeclsAndTypes, DeclAssociatedType, "associated-type-decl", []Op{identOp, declIDOp, typeIDOp, typeIDOp, Fixed(1), VBR(4)}},
	{BlockDeclsAndTypes, DeclStruct, "struct-decl", []Op{identOp, declIDOp, Fixed(1), Fixed(1), VBR(4)}},
	{BlockDeclsAndTypes, DeclConstructor, "constructor-decl", []Op{declIDOp, Fixed(1), Fixed(1), typeIDOp, declIDOp, Fixed(1)}},
	{BlockDeclsAndTypes, DeclVar, "var-decl", []Op{identOp, declIDOp, Fixed(1), Fixed(1), typeIDOp, declIDOp, declIDOp, declIDOp}},
	{BlockDeclsAndTypes, DeclFunc, "func-decl", []Op{identOp, declIDOp, Fixed(1), Fixed(1), Fixed(1), Fixed(1), Fixed(1), VBR(4), typeIDOp, declIDOp, declIDOp, Blob()}},
	{BlockDeclsAndTypes, DeclPatternBinding, "pattern-binding-decl", []Op{declIDOp, Fixed(1)}},
	{BlockDeclsAndTypes, DeclProtocol, "protocol-decl", []Op{identOp, declIDOp, Fixed(1), Fixed(1), Array(declIDOp)}},
	{BlockDeclsAndTypes, DeclPrefixOperator, "prefix-operator-decl", []Op{identOp, declIDOp}},
	{BlockDeclsAndTypes, DeclPostfixOperator, "postfix-operator-decl", []Op{identOp, declIDOp}},
	{BlockDeclsAndTypes, DeclInfixOperator, "infix-operator-decl", []Op{identOp, declIDOp, Fixed(2), Fixed(8)}},
	{BlockDeclsAndTypes, DeclClass, "class-decl", []Op{identOp, declIDOp, Fixed(1), Fixed(1), Fixed(1), typeIDOp, VBR(4)}},
	{BlockDeclsAndTypes, DeclUnion, "union-decl", []Op{identOp, declIDOp, Fixed(1), Fixed(1), VBR(4)}},
	{BlockDeclsAndTypes, DeclUnionElement, "union-element-decl", []Op{identOp, declIDOp, typeIDOp, typeIDOp, typeIDOp, Fixed(1)}},
	{BlockDeclsAndTypes, DeclSubscript, "subscript-decl", []Op{declIDOp, Fixed(1), Fixed(1), typeIDOp, declIDOp, declIDOp, declIDOp}},
	{BlockDeclsAndTypes, DeclExtension, "extension-decl", []Op{typeIDOp, declIDOp, Fixed(1), VBR(4)}},
	{BlockDeclsAndTypes, DeclDestructor, "destructor-decl", []Op{declIDOp, Fixed(1), typeIDOp, declIDOp}},

	// Patterns.
	{BlockDeclsAndTypes, PatternParen, "paren-pattern", []Op{Fixed(1)}},
	{BlockDeclsAndTypes, PatternTuple, "tuple-pattern", []Op{typeIDOp, VBR(5), Fixed(1), Fixed(1)}},
	{BlockDeclsAndTypes, PatternTupleElem, "tuple-pattern-elem", []Op{Fixed(3)}},
	{BlockDeclsAndTypes, PatternNamed, "named-pattern", []Op{declIDOp, Fixed(1)}},
	{BlockDeclsAndTypes, PatternAny, "any-pattern", []Op{typeIDOp, Fixed(1)}},
	{BlockDeclsAndTypes, PatternTyped, "typed-pattern", []Op{typeIDOp, Fixed(1)}},
	{BlockDeclsAndTypes, PatternIsa, "isa-pattern", []Op{typeIDOp, Fixed(1)}},
	{BlockDeclsAndTypes, PatternNominalType, "nominal-type-pattern", []Op{typeIDOp, Fixed(1)}},
	{BlockDeclsAndTypes, PatternVar, "var-pattern", []Op{Fixed(1)}},

	// Generics.
	{BlockDeclsAndTypes, GenericParamList, "generic-param-list", []Op{VBR(4), VBR(4), Array(typeIDOp)}},
	{BlockDeclsAndTypes, GenericParamRef, "generic-param-ref", []Op{declIDOp}},
	{BlockDeclsAndTypes, GenericRequirement, "generic-requirement", []Op{Fixed(1), typeIDOp, typeIDOp}},
	{BlockDeclsAndTypes, GenericSubstitution, "generic-substitution", []Op{typeIDOp, typeIDOp, VBR(4)}},

	// Conformances.
	{BlockDeclsAndTypes, ConformanceNone, "no-conformance", []Op{declIDOp}},
	{BlockDeclsAndTypes, ConformanceNormal, "normal-conformance", []Op{declIDOp, VBR(5), VBR(5), VBR(5), VBR(5), Array(declIDOp)}},
	{BlockDeclsAndTypes, ConformanceSpecialized, "specialized-conformance", []Op{declIDOp, VBR(5)}},
	{BlockDeclsAndTypes, ConformanceInherited, "inherited-conformance", []Op{declIDOp}},

	// Structure.
	{BlockDeclsAndTypes, DeclContext, "decl-context", []Op{Array(declIDOp)}},
	{BlockDeclsAndTypes, CrossReference, "cross-reference", []Op{Fixed(2), VBR(6), Fixed(1), Array(identOp)}},
}

var layoutsByBlock map[BlockID]map[RecordKind]*Layout

func init() {
	layoutsByBlock = make(map[BlockID]map[RecordKind]*Layout)
	for _, l := range layouts {
		if err := l.validate(); err != nil {
			panic(err)
		}
		table := layoutsByBlock[l.Block]
		if table == nil {
			table = make(map[RecordKind]*Layout)
			layoutsByBlock[l.Block] = table
		}
		if _, dup := table[l.Kind]; dup {
			panic(fmt.Sprintf("duplicate layout for block %d tag %d", l.Block, l.Kind))
		}
		table[l.Kind] = l
	}
}

// LayoutFor returns the layout for a record tag within a block, or false if
// the tag is unknown there.
func LayoutFor(block BlockID, kind RecordKind) (*Layout, bool) {
	l, ok := layoutsByBlock[block][kind]
	return l, ok
}

// BlockLayouts returns the layout table of a block. The table is shared and
// must not be mutated.
func BlockLayouts(block BlockID) map[RecordKind]*Layout {
	return layoutsByBlock[block]
}
