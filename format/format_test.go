package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The wire values below are load-bearing: containers written by older
// builds must keep decoding. If one of these assertions fails, the change
// needs a major version bump, not a test update.

func TestMagic(t *testing.T) {
	assert.Equal(t, [4]byte{'C', 'R', 'X', 'M'}, Magic)
}

func TestBlockIDValues(t *testing.T) {
	assert.EqualValues(t, 8, FirstApplicationBlock)
	assert.EqualValues(t, 8, BlockControl)
	assert.EqualValues(t, 9, BlockInput)
	assert.EqualValues(t, 10, BlockDeclsAndTypes)
	assert.EqualValues(t, 11, BlockIdentifierData)
	assert.EqualValues(t, 12, BlockIndex)
	assert.EqualValues(t, 64, BlockKnownProtocols)
	assert.EqualValues(t, 100, BlockFallbackToSource)
}

func TestRecordKindValues(t *testing.T) {
	tests := []struct {
		kind RecordKind
		want uint32
	}{
		{ControlMetadata, 1},
		{ControlModuleName, 2},
		{InputSourceFile, 1},
		{InputImportedModule, 2},
		{InputLinkLibrary, 3},
		{IdentifierDataPool, 1},
		{IndexTypeOffsets, 1},
		{IndexDeclOffsets, 2},
		{IndexIdentifierOffsets, 3},
		{IndexTopLevelDecls, 4},
		{IndexOperators, 5},
		{IndexExtensions, 6},
		{IndexClassMembers, 7},
		{TypeAlias, 1},
		{TypeNominal, 2},
		{TypeParen, 3},
		{TypeTuple, 4},
		{TypeTupleElem, 5},
		{TypeFunction, 6},
		{TypeMetatype, 7},
		{TypeLValue, 8},
		{TypeArchetype, 9},
		{TypeArchetypeNames, 10},
		{TypeArchetypeNested, 11},
		{TypeProtocolComposition, 12},
		{TypeSubstituted, 13},
		{TypeGenericParam, 14},
		{TypeAssociated, 15},
		{TypeDependentMember, 16},
		{TypeBoundGeneric, 17},
		{TypePolymorphicFunction, 18},
		{TypeUnboundGeneric, 19},
		{TypeSlice, 20},
		{TypeArray, 21},
		{TypeReferenceStorage, 22},
		{TypeOptional, 24},
		{DeclTypeAlias, 100},
		{DeclGenericParam, 101},
		{DeclAssociatedType, 102},
		{DeclStruct, 103},
		{DeclConstructor, 104},
		{DeclVar, 105},
		{DeclFunc, 106},
		{DeclPatternBinding, 107},
		{DeclProtocol, 108},
		{DeclPrefixOperator, 109},
		{DeclPostfixOperator, 110},
		{DeclInfixOperator, 111},
		{DeclClass, 112},
		{DeclUnion, 113},
		{DeclUnionElement, 114},
		{DeclSubscript, 115},
		{DeclExtension, 116},
		{DeclDestructor, 117},
		{DeclKnownProtocol, 118},
		{PatternParen, 200},
		{PatternTuple, 201},
		{PatternTupleElem, 202},
		{PatternNamed, 203},
		{PatternAny, 204},
		{PatternTyped, 205},
		{PatternIsa, 206},
		{PatternNominalType, 207},
		{PatternVar, 208},
		{GenericParamList, 240},
		{GenericParamRef, 241},
		{GenericRequirement, 242},
		{GenericSubstitution, 243},
		{ConformanceNone, 250},
		{ConformanceNormal, 251},
		{ConformanceSpecialized, 252},
		{ConformanceInherited, 253},
		{DeclContext, 254},
		{CrossReference, 255},
	}

	for _, tt := range tests {
		assert.EqualValues(t, tt.want, tt.kind)
	}
}

func TestEnumValues(t *testing.T) {
	assert.EqualValues(t, 0, ConventionC)
	assert.EqualValues(t, 3, ConventionMethod)
	assert.EqualValues(t, 0, XRefValue)
	assert.EqualValues(t, 2, XRefGenericParameter)
	assert.EqualValues(t, 0, OperatorInfix)
	assert.EqualValues(t, 2, OperatorPostfix)
	assert.EqualValues(t, 0, RequirementConformance)
	assert.EqualValues(t, 1, RequirementSameType)
	assert.EqualValues(t, 0, NonAssociative)
	assert.EqualValues(t, 2, RightAssociative)
	assert.EqualValues(t, 0, OwnershipStrong)
	assert.EqualValues(t, 2, OwnershipUnowned)
	assert.EqualValues(t, 0, DefaultArgumentNone)
	assert.EqualValues(t, 4, DefaultArgumentColumn)
	assert.EqualValues(t, 0, LibraryPlain)
	assert.EqualValues(t, 1, LibraryFramework)
	assert.EqualValues(t, 0, CompressionNone)
	assert.EqualValues(t, 1, CompressionLZ4)
	assert.EqualValues(t, 2, CompressionZstd)
	assert.EqualValues(t, 0, KnownForceLoad)
	assert.EqualValues(t, 15, KnownBuiltinStringLiteral)
	assert.EqualValues(t, 16, NumKnownProtocolKinds)
}

func TestEnumBounds(t *testing.T) {
	assert.True(t, ConventionMethod.Valid())
	assert.False(t, CallingConvention(4).Valid())
	assert.True(t, OperatorPostfix.Valid())
	assert.False(t, OperatorKind(3).Valid())
	assert.True(t, CompressionZstd.Valid())
	assert.False(t, CompressionKind(3).Valid())
	assert.True(t, KnownProtocolKind(15).Valid())
	assert.False(t, NumKnownProtocolKinds.Valid())
	assert.False(t, DefaultArgumentKind(5).Valid())
	assert.False(t, Ownership(3).Valid())
}

func TestIDNull(t *testing.T) {
	assert.False(t, NoDecl.IsValid())
	assert.False(t, NoType.IsValid())
	assert.False(t, NoIdentifier.IsValid())
	assert.True(t, DeclID(1).IsValid())
	assert.True(t, TypeID(1).IsValid())
	assert.True(t, IdentifierID(1).IsValid())
	assert.EqualValues(t, 1<<31-1, MaxID)
}

// Every record kind the format names must have a layout, and every layout
// must point back at a known kind. A mismatch here means a record could be
// written that no reader can decode, or vice versa.
func TestLayoutExhaustiveness(t *testing.T) {
	declsKinds := []RecordKind{
		TypeAlias, TypeNominal, TypeParen, TypeTuple, TypeTupleElem,
		TypeFunction, TypeMetatype, TypeLValue, TypeArchetype,
		TypeArchetypeNames, TypeArchetypeNested, TypeProtocolComposition,
		TypeSubstituted, TypeGenericParam, TypeAssociated,
		TypeDependentMember, TypeBoundGeneric, TypePolymorphicFunction,
		TypeUnboundGeneric, TypeSlice, TypeArray, TypeReferenceStorage,
		TypeOptional,
		DeclTypeAlias, DeclGenericParam, DeclAssociatedType, DeclStruct,
		DeclConstructor, DeclVar, DeclFunc, DeclPatternBinding,
		DeclProtocol, DeclPrefixOperator, DeclPostfixOperator,
		DeclInfixOperator, DeclClass, DeclUnion, DeclUnionElement,
		DeclSubscript, DeclExtension, DeclDestructor,
		PatternParen, PatternTuple, PatternTupleElem, PatternNamed,
		PatternAny, PatternTyped, PatternIsa, PatternNominalType,
		PatternVar,
		GenericParamList, GenericParamRef, GenericRequirement,
		GenericSubstitution,
		ConformanceNone, ConformanceNormal, ConformanceSpecialized,
		ConformanceInherited,
		DeclContext, CrossReference,
	}
	for _, k := range declsKinds {
		_, ok := LayoutFor(BlockDeclsAndTypes, k)
		assert.True(t, ok, "no layout for decls-block tag %d", k)
	}
	assert.Len(t, BlockLayouts(BlockDeclsAndTypes), len(declsKinds))

	blocks := map[BlockID][]RecordKind{
		BlockControl:        {ControlMetadata, ControlModuleName},
		BlockInput:          {InputSourceFile, InputImportedModule, InputLinkLibrary},
		BlockIdentifierData: {IdentifierDataPool},
		BlockIndex: {
			IndexTypeOffsets, IndexDeclOffsets, IndexIdentifierOffsets,
			IndexTopLevelDecls, IndexOperators, IndexExtensions,
			IndexClassMembers,
		},
		BlockKnownProtocols: {KnownProtocolConformers},
	}
	for block, kinds := range blocks {
		for _, k := range kinds {
			_, ok := LayoutFor(block, k)
			assert.True(t, ok, "no layout for block %d tag %d", block, k)
		}
		assert.Len(t, BlockLayouts(block), len(kinds))
	}
}

func TestLayoutShapes(t *testing.T) {
	l, ok := LayoutFor(BlockControl, ControlMetadata)
	require.True(t, ok)
	require.Len(t, l.Ops, 3)
	assert.Equal(t, OpFixed, l.Ops[0].Kind)
	assert.EqualValues(t, 16, l.Ops[0].Width)
	assert.Equal(t, OpBlob, l.Ops[2].Kind)
	assert.Equal(t, 2, l.NumScalars())
	assert.True(t, l.HasBlob())
	assert.False(t, l.HasArray())

	l, ok = LayoutFor(BlockDeclsAndTypes, CrossReference)
	require.True(t, ok)
	require.Len(t, l.Ops, 4)
	assert.Equal(t, OpArray, l.Ops[3].Kind)
	assert.EqualValues(t, IDWidth, l.Ops[3].Elem.Width)
	assert.Equal(t, 3, l.NumScalars())
	assert.True(t, l.HasArray())

	l, ok = LayoutFor(BlockIndex, IndexDeclOffsets)
	require.True(t, ok)
	assert.Equal(t, OpArray, l.Ops[1].Kind)
	assert.Equal(t, OpFixed, l.Ops[1].Elem.Kind)
	assert.EqualValues(t, IDWidth, l.Ops[1].Elem.Width)
}

func TestRecordKindPredicates(t *testing.T) {
	assert.True(t, IsTypeRecord(TypeOptional))
	assert.False(t, IsTypeRecord(DeclStruct))
	assert.True(t, IsDeclRecord(DeclStruct))
	assert.True(t, IsDeclRecord(CrossReference))
	assert.False(t, IsDeclRecord(PatternVar))
	assert.True(t, IsPatternRecord(PatternVar))
	assert.False(t, IsPatternRecord(DeclContext))
	assert.True(t, IsConformanceRecord(ConformanceNone))
	assert.True(t, IsConformanceRecord(ConformanceInherited))
	assert.False(t, IsConformanceRecord(DeclContext))
}

func TestSkipsUnknownRecords(t *testing.T) {
	assert.True(t, SkipsUnknownRecords(BlockControl))
	assert.True(t, SkipsUnknownRecords(BlockInput))
	assert.True(t, SkipsUnknownRecords(BlockIndex))
	assert.True(t, SkipsUnknownRecords(BlockIdentifierData))
	assert.True(t, SkipsUnknownRecords(BlockKnownProtocols))
	assert.False(t, SkipsUnknownRecords(BlockDeclsAndTypes))
	assert.False(t, SkipsUnknownRecords(BlockFallbackToSource))
}
