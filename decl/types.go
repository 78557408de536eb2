package decl

import "github.com/crux-lang/cruxmod/format"

// Type is implemented by every type node.
type Type interface {
	Kind() format.RecordKind
	typeNode()
}

// AliasType is the sugared form of a type alias's underlying type.
type AliasType struct {
	Decl *TypeAliasDecl
}

func (*AliasType) Kind() format.RecordKind { return format.TypeAlias }
func (*AliasType) typeNode()               {}

// NominalType names a struct, class, union or protocol declaration, with the
// enclosing type when nested.
type NominalType struct {
	Decl   Decl
	Parent Type
}

func (*NominalType) Kind() format.RecordKind { return format.TypeNominal }
func (*NominalType) typeNode()               {}

// ParenType is sugar preserving parentheses around a type.
type ParenType struct {
	Inner Type
}

func (*ParenType) Kind() format.RecordKind { return format.TypeParen }
func (*ParenType) typeNode()               {}

// TupleTypeElem is one element of a tuple type.
type TupleTypeElem struct {
	Name       string
	Type       Type
	DefaultArg format.DefaultArgumentKind
	Vararg     bool
}

// TupleType is an ordered, optionally labeled product of types.
type TupleType struct {
	Elems []TupleTypeElem
}

func (*TupleType) Kind() format.RecordKind { return format.TypeTuple }
func (*TupleType) typeNode()               {}

// FunctionType is a monomorphic function type.
type FunctionType struct {
	Input       Type
	Result      Type
	Convention  format.CallingConvention
	AutoClosure bool
	Thin        bool
	NoReturn    bool
}

func (*FunctionType) Kind() format.RecordKind { return format.TypeFunction }
func (*FunctionType) typeNode()               {}

// MetatypeType is the type of a type.
type MetatypeType struct {
	Instance Type
}

func (*MetatypeType) Kind() format.RecordKind { return format.TypeMetatype }
func (*MetatypeType) typeNode()               {}

// LValueType marks a location type.
type LValueType struct {
	Object      Type
	Implicit    bool
	NonSettable bool
}

func (*LValueType) Kind() format.RecordKind { return format.TypeLValue }
func (*LValueType) typeNode()               {}

// ArchetypeNested is a named nested archetype.
type ArchetypeNested struct {
	Name string
	Type Type
}

// ArchetypeType stands for a generic parameter or associated type within a
// generic context. Primary archetypes (nil Parent) carry their parameter
// index; nested ones hang off their parent.
type ArchetypeType struct {
	Name        string
	Parent      Type
	Index       uint32
	AssocOrProto Decl
	Superclass  Type
	Conformances []*ProtocolDecl
	Nested      []ArchetypeNested
}

func (*ArchetypeType) Kind() format.RecordKind { return format.TypeArchetype }
func (*ArchetypeType) typeNode()               {}

// ProtocolCompositionType is the intersection of several protocols.
type ProtocolCompositionType struct {
	Protocols []Type
}

func (*ProtocolCompositionType) Kind() format.RecordKind { return format.TypeProtocolComposition }
func (*ProtocolCompositionType) typeNode()               {}

// SubstitutedType remembers the original spelling of a type replaced during
// substitution.
type SubstitutedType struct {
	Original    Type
	Replacement Type
}

func (*SubstitutedType) Kind() format.RecordKind { return format.TypeSubstituted }
func (*SubstitutedType) typeNode()               {}

// GenericParamType refers to a generic parameter declaration as a type.
type GenericParamType struct {
	Decl *GenericParamDecl
}

func (*GenericParamType) Kind() format.RecordKind { return format.TypeGenericParam }
func (*GenericParamType) typeNode()               {}

// AssociatedTypeType refers to an associated type declaration as a type.
type AssociatedTypeType struct {
	Decl *AssociatedTypeDecl
}

func (*AssociatedTypeType) Kind() format.RecordKind { return format.TypeAssociated }
func (*AssociatedTypeType) typeNode()               {}

// DependentMemberType is a member type of a not-yet-resolved base, named
// rather than bound.
type DependentMemberType struct {
	Base Type
	Name string
}

func (*DependentMemberType) Kind() format.RecordKind { return format.TypeDependentMember }
func (*DependentMemberType) typeNode()               {}

// BoundGenericType applies type arguments to a generic nominal declaration.
type BoundGenericType struct {
	Decl          Decl
	Parent        Type
	Args          []Type
	Substitutions []Substitution
}

func (*BoundGenericType) Kind() format.RecordKind { return format.TypeBoundGeneric }
func (*BoundGenericType) typeNode()               {}

// PolymorphicFunctionType is the type of a generic function, tied to the
// declaration owning its generic parameters.
type PolymorphicFunctionType struct {
	Input      Type
	Result     Type
	Owner      Decl
	Convention format.CallingConvention
	Thin       bool
	NoReturn   bool
}

func (*PolymorphicFunctionType) Kind() format.RecordKind { return format.TypePolymorphicFunction }
func (*PolymorphicFunctionType) typeNode()               {}

// UnboundGenericType names a generic declaration without arguments.
type UnboundGenericType struct {
	Decl   Decl
	Parent Type
}

func (*UnboundGenericType) Kind() format.RecordKind { return format.TypeUnboundGeneric }
func (*UnboundGenericType) typeNode()               {}

// SliceType is a dynamically sized element sequence.
type SliceType struct {
	Element Type
}

func (*SliceType) Kind() format.RecordKind { return format.TypeSlice }
func (*SliceType) typeNode()               {}

// ArrayType is a fixed-size element sequence.
type ArrayType struct {
	Element Type
	Size    uint64
}

func (*ArrayType) Kind() format.RecordKind { return format.TypeArray }
func (*ArrayType) typeNode()               {}

// ReferenceStorageType qualifies a reference with its ownership.
type ReferenceStorageType struct {
	Ownership format.Ownership
	Referent  Type
}

func (*ReferenceStorageType) Kind() format.RecordKind { return format.TypeReferenceStorage }
func (*ReferenceStorageType) typeNode()               {}

// OptionalType is the sugared optional of an element type.
type OptionalType struct {
	Element Type
}

func (*OptionalType) Kind() format.RecordKind { return format.TypeOptional }
func (*OptionalType) typeNode()               {}
