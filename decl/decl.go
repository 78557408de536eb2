// Package decl is the in-memory form of a Crux module's typed declaration
// graph: the declarations, types, patterns and protocol conformances the
// compiler hands to the serializer and gets back from the materializer.
//
// Nodes reference each other with plain pointers and the graph is expected
// to be cyclic; identity matters, so nodes are always handled by pointer.
// Nothing here knows about bits or blocks. The engine in the root package
// maps nodes onto records using the tags in the format package, which is why
// Kind accessors speak format.RecordKind.
package decl

import "github.com/crux-lang/cruxmod/format"

// Module is the root of one module's graph, the unit a container holds.
type Module struct {
	Name     string
	Producer string

	SourceFiles   []string
	Imports       []Import
	LinkLibraries []LinkLibrary

	// Decls are the module-scope declarations, in declaration order.
	Decls []Decl

	// KnownConformers records, per well-known protocol, the declarations
	// conforming to it. The KnownForceLoad entry lists declarations a
	// loader materializes eagerly.
	KnownConformers map[format.KnownProtocolKind][]Decl
}

// Import names a module dependency. ScopePath optionally narrows the import
// to a declaration path within the module.
type Import struct {
	Name      string
	ScopePath []string
	Exported  bool
}

// LinkLibrary names a library the importing build must link.
type LinkLibrary struct {
	Name string
	Kind format.LibraryKind
}

// Decl is implemented by every declaration node.
//
// DeclOwner returns the module the declaration was materialized from, or nil
// for declarations belonging to the module currently being built. The
// serializer emits a cross-reference instead of a definition for any
// declaration owned by some other module.
type Decl interface {
	Kind() format.RecordKind
	DeclOwner() *Module
	declNode()
}

// ownership is embedded by every declaration struct. The Owner field is
// promoted, so readers of other packages can set it directly.
type ownership struct {
	Owner *Module
}

func (o *ownership) DeclOwner() *Module { return o.Owner }
func (o *ownership) declNode()          {}

// TypeAliasDecl names an existing type. A nil Context means module scope,
// here and on every other declaration.
type TypeAliasDecl struct {
	ownership
	Name         string
	Context      Decl
	Underlying   Type
	Implicit     bool
	Conformances []Conformance
}

func (*TypeAliasDecl) Kind() format.RecordKind { return format.DeclTypeAlias }

// GenericParamDecl is one parameter of a generic declaration, at a given
// nesting depth and index.
type GenericParamDecl struct {
	ownership
	Name       string
	Context    Decl
	Depth      uint32
	Index      uint32
	Superclass Type
	Archetype  Type
}

func (*GenericParamDecl) Kind() format.RecordKind { return format.DeclGenericParam }

// AssociatedTypeDecl is a type requirement inside a protocol.
type AssociatedTypeDecl struct {
	ownership
	Name         string
	Context      Decl
	Underlying   Type
	Archetype    Type
	Implicit     bool
	Conformances []Conformance
}

func (*AssociatedTypeDecl) Kind() format.RecordKind { return format.DeclAssociatedType }

// StructDecl is a nominal value type.
type StructDecl struct {
	ownership
	Name          string
	Context       Decl
	Implicit      bool
	GenericParams *GenericParams
	Conformances  []Conformance
	Members       []Decl
}

func (*StructDecl) Kind() format.RecordKind { return format.DeclStruct }

// ConstructorDecl initializes instances of its context declaration.
type ConstructorDecl struct {
	ownership
	Context       Decl
	Implicit      bool
	Foreign       bool
	Signature     Type
	Self          *VarDecl
	GenericParams *GenericParams
	Params        Pattern
}

func (*ConstructorDecl) Kind() format.RecordKind { return format.DeclConstructor }

// VarDecl is a stored or computed variable.
type VarDecl struct {
	ownership
	Name       string
	Context    Decl
	Implicit   bool
	Foreign    bool
	Type       Type
	Getter     *FuncDecl
	Setter     *FuncDecl
	Overridden *VarDecl
}

func (*VarDecl) Kind() format.RecordKind { return format.DeclVar }

// FuncDecl is a function or method. Params holds one pattern per parameter
// clause; LinkName, when non-empty, is the symbol the body was compiled
// under, since bodies themselves are never serialized.
type FuncDecl struct {
	ownership
	Name          string
	Context       Decl
	Implicit      bool
	Static        bool
	Conversion    bool
	Foreign       bool
	Signature     Type
	Operator      Decl
	Overridden    *FuncDecl
	LinkName      string
	GenericParams *GenericParams
	Params        []Pattern
}

func (*FuncDecl) Kind() format.RecordKind { return format.DeclFunc }

// PatternBindingDecl binds a pattern, introducing the variables it names.
type PatternBindingDecl struct {
	ownership
	Context  Decl
	Implicit bool
	Pattern  Pattern
}

func (*PatternBindingDecl) Kind() format.RecordKind { return format.DeclPatternBinding }

// ProtocolDecl is a protocol, with its inherited protocols and requirement
// members.
type ProtocolDecl struct {
	ownership
	Name          string
	Context       Decl
	Implicit      bool
	ClassProtocol bool
	Inherited     []*ProtocolDecl
	Members       []Decl
}

func (*ProtocolDecl) Kind() format.RecordKind { return format.DeclProtocol }

// PrefixOperatorDecl declares a prefix operator.
type PrefixOperatorDecl struct {
	ownership
	Name    string
	Context Decl
}

func (*PrefixOperatorDecl) Kind() format.RecordKind { return format.DeclPrefixOperator }

// PostfixOperatorDecl declares a postfix operator.
type PostfixOperatorDecl struct {
	ownership
	Name    string
	Context Decl
}

func (*PostfixOperatorDecl) Kind() format.RecordKind { return format.DeclPostfixOperator }

// InfixOperatorDecl declares an infix operator with its parsing attributes.
type InfixOperatorDecl struct {
	ownership
	Name          string
	Context       Decl
	Associativity format.Associativity
	Precedence    uint8
}

func (*InfixOperatorDecl) Kind() format.RecordKind { return format.DeclInfixOperator }

// ClassDecl is a nominal reference type.
type ClassDecl struct {
	ownership
	Name          string
	Context       Decl
	Implicit      bool
	Foreign       bool
	Superclass    Type
	GenericParams *GenericParams
	Conformances  []Conformance
	Members       []Decl
}

func (*ClassDecl) Kind() format.RecordKind { return format.DeclClass }

// UnionDecl is a tagged union type.
type UnionDecl struct {
	ownership
	Name          string
	Context       Decl
	Implicit      bool
	GenericParams *GenericParams
	Conformances  []Conformance
	Members       []Decl
}

func (*UnionDecl) Kind() format.RecordKind { return format.DeclUnion }

// UnionElementDecl is one case of a union.
type UnionElementDecl struct {
	ownership
	Name            string
	Context         Decl
	ArgumentType    Type
	ResultType      Type
	ConstructorType Type
	Implicit        bool
}

func (*UnionElementDecl) Kind() format.RecordKind { return format.DeclUnionElement }

// SubscriptDecl is an indexed accessor.
type SubscriptDecl struct {
	ownership
	Context     Decl
	Implicit    bool
	Foreign     bool
	ElementType Type
	Getter      *FuncDecl
	Setter      *FuncDecl
	Overridden  *SubscriptDecl
	Indices     Pattern
}

func (*SubscriptDecl) Kind() format.RecordKind { return format.DeclSubscript }

// ExtensionDecl adds members and conformances to an existing nominal type.
type ExtensionDecl struct {
	ownership
	ExtendedType Type
	Context      Decl
	Implicit     bool
	Conformances []Conformance
	Members      []Decl
}

func (*ExtensionDecl) Kind() format.RecordKind { return format.DeclExtension }

// DestructorDecl tears down instances of its context class.
type DestructorDecl struct {
	ownership
	Context   Decl
	Implicit  bool
	Signature Type
	Self      *VarDecl
}

func (*DestructorDecl) Kind() format.RecordKind { return format.DeclDestructor }

// Name returns a declaration's name, or false for the anonymous kinds
// (constructors, destructors, subscripts, pattern bindings, extensions).
func Name(d Decl) (string, bool) {
	switch d := d.(type) {
	case *TypeAliasDecl:
		return d.Name, true
	case *GenericParamDecl:
		return d.Name, true
	case *AssociatedTypeDecl:
		return d.Name, true
	case *StructDecl:
		return d.Name, true
	case *VarDecl:
		return d.Name, true
	case *FuncDecl:
		return d.Name, true
	case *ProtocolDecl:
		return d.Name, true
	case *PrefixOperatorDecl:
		return d.Name, true
	case *PostfixOperatorDecl:
		return d.Name, true
	case *InfixOperatorDecl:
		return d.Name, true
	case *ClassDecl:
		return d.Name, true
	case *UnionDecl:
		return d.Name, true
	case *UnionElementDecl:
		return d.Name, true
	}
	return "", false
}

// PathName returns the component a declaration contributes to a
// cross-module reference path: its declared name, or the fixed spellings
// "init", "deinit" and "subscript" for the anonymous member kinds. Pattern
// bindings and extensions have no path name of their own.
func PathName(d Decl) (string, bool) {
	if name, ok := Name(d); ok {
		return name, true
	}
	switch d.(type) {
	case *ConstructorDecl:
		return "init", true
	case *DestructorDecl:
		return "deinit", true
	case *SubscriptDecl:
		return "subscript", true
	}
	return "", false
}

// Context returns a declaration's enclosing declaration, or nil for module
// scope.
func Context(d Decl) Decl {
	switch d := d.(type) {
	case *TypeAliasDecl:
		return d.Context
	case *GenericParamDecl:
		return d.Context
	case *AssociatedTypeDecl:
		return d.Context
	case *StructDecl:
		return d.Context
	case *ConstructorDecl:
		return d.Context
	case *VarDecl:
		return d.Context
	case *FuncDecl:
		return d.Context
	case *PatternBindingDecl:
		return d.Context
	case *ProtocolDecl:
		return d.Context
	case *PrefixOperatorDecl:
		return d.Context
	case *PostfixOperatorDecl:
		return d.Context
	case *InfixOperatorDecl:
		return d.Context
	case *ClassDecl:
		return d.Context
	case *UnionDecl:
		return d.Context
	case *UnionElementDecl:
		return d.Context
	case *SubscriptDecl:
		return d.Context
	case *ExtensionDecl:
		return d.Context
	case *DestructorDecl:
		return d.Context
	}
	return nil
}

// Members returns a context declaration's member list, or false for
// declarations that are not contexts.
func Members(d Decl) ([]Decl, bool) {
	switch d := d.(type) {
	case *StructDecl:
		return d.Members, true
	case *ClassDecl:
		return d.Members, true
	case *UnionDecl:
		return d.Members, true
	case *ProtocolDecl:
		return d.Members, true
	case *ExtensionDecl:
		return d.Members, true
	}
	return nil, false
}
