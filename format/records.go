package format

// RecordKind is the tag of a record within its block. Tags are scoped per
// block: control tag 1 and input tag 1 are unrelated. Values are frozen; new
// kinds take fresh numbers and existing numbers are never reused.
type RecordKind uint32

// Control block records.
const (
	ControlMetadata   RecordKind = 1 // version pair + producer string
	ControlModuleName RecordKind = 2
)

// Input block records.
const (
	InputSourceFile     RecordKind = 1
	InputImportedModule RecordKind = 2
	InputLinkLibrary    RecordKind = 3
)

// Identifier data block records.
const (
	IdentifierDataPool RecordKind = 1
)

// Index block records.
const (
	IndexTypeOffsets       RecordKind = 1
	IndexDeclOffsets       RecordKind = 2
	IndexIdentifierOffsets RecordKind = 3
	IndexTopLevelDecls     RecordKind = 4
	IndexOperators         RecordKind = 5
	IndexExtensions        RecordKind = 6
	IndexClassMembers      RecordKind = 7
)

// Known-protocols block records.
const (
	KnownProtocolConformers RecordKind = 1
)

// Type records in the declarations block occupy tags 1 through 99.
const (
	TypeAlias              RecordKind = 1
	TypeNominal            RecordKind = 2
	TypeParen              RecordKind = 3
	TypeTuple              RecordKind = 4
	TypeTupleElem          RecordKind = 5
	TypeFunction           RecordKind = 6
	TypeMetatype           RecordKind = 7
	TypeLValue             RecordKind = 8
	TypeArchetype          RecordKind = 9
	TypeArchetypeNames     RecordKind = 10
	TypeArchetypeNested    RecordKind = 11
	TypeProtocolComposition RecordKind = 12
	TypeSubstituted        RecordKind = 13
	TypeGenericParam       RecordKind = 14
	TypeAssociated         RecordKind = 15
	TypeDependentMember    RecordKind = 16
	TypeBoundGeneric       RecordKind = 17
	TypePolymorphicFunction RecordKind = 18
	TypeUnboundGeneric     RecordKind = 19
	TypeSlice              RecordKind = 20
	TypeArray              RecordKind = 21
	TypeReferenceStorage   RecordKind = 22

	// Tag 23 is reserved; it was never shipped.

	TypeOptional RecordKind = 24
)

// Declaration records occupy tags 100 through 199.
const (
	DeclTypeAlias      RecordKind = 100
	DeclGenericParam   RecordKind = 101
	DeclAssociatedType RecordKind = 102
	DeclStruct         RecordKind = 103
	DeclConstructor    RecordKind = 104
	DeclVar            RecordKind = 105
	DeclFunc           RecordKind = 106
	DeclPatternBinding RecordKind = 107
	DeclProtocol       RecordKind = 108
	DeclPrefixOperator RecordKind = 109
	DeclPostfixOperator RecordKind = 110
	DeclInfixOperator  RecordKind = 111
	DeclClass          RecordKind = 112
	DeclUnion          RecordKind = 113
	DeclUnionElement   RecordKind = 114
	DeclSubscript      RecordKind = 115
	DeclExtension      RecordKind = 116
	DeclDestructor     RecordKind = 117

	// DeclKnownProtocol never appears as a record tag. It marks entries for
	// well-known protocols in the name lookup tables.
	DeclKnownProtocol RecordKind = 118
)

// Pattern records occupy tags 200 through 239.
const (
	PatternParen       RecordKind = 200
	PatternTuple       RecordKind = 201
	PatternTupleElem   RecordKind = 202
	PatternNamed       RecordKind = 203
	PatternAny         RecordKind = 204
	PatternTyped       RecordKind = 205
	PatternIsa         RecordKind = 206
	PatternNominalType RecordKind = 207
	PatternVar         RecordKind = 208
)

// Generic system records.
const (
	GenericParamList   RecordKind = 240
	GenericParamRef    RecordKind = 241
	GenericRequirement RecordKind = 242
	GenericSubstitution RecordKind = 243
)

// Conformance records. Each one is self-delimiting, trailers included, so a
// "conformance" slot in another record's trailer plan is exactly one of
// these.
const (
	ConformanceNone        RecordKind = 250
	ConformanceNormal      RecordKind = 251
	ConformanceSpecialized RecordKind = 252
	ConformanceInherited   RecordKind = 253
)

// DeclContext trails context-owning declarations and lists their members.
const DeclContext RecordKind = 254

// CrossReference stands in for a declaration owned by another module. The
// record at a DeclID's offset may be a cross-reference instead of a concrete
// declaration; materializing it resolves the named path in the target
// module.
const CrossReference RecordKind = 255

// IsTypeRecord reports whether the tag encodes a type node.
func IsTypeRecord(k RecordKind) bool { return k >= TypeAlias && k <= TypeOptional }

// IsDeclRecord reports whether the tag encodes a declaration node,
// cross-references included.
func IsDeclRecord(k RecordKind) bool {
	return (k >= DeclTypeAlias && k <= DeclDestructor) || k == CrossReference
}

// IsPatternRecord reports whether the tag encodes a pattern node.
func IsPatternRecord(k RecordKind) bool { return k >= PatternParen && k <= PatternVar }

// IsConformanceRecord reports whether the tag encodes a conformance.
func IsConformanceRecord(k RecordKind) bool {
	return k >= ConformanceNone && k <= ConformanceInherited
}
