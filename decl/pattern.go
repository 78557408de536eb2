package decl

import "github.com/crux-lang/cruxmod/format"

// Pattern is implemented by every pattern node. Patterns describe how
// values are destructured in parameter lists and bindings.
type Pattern interface {
	Kind() format.RecordKind
	patternNode()
}

// ParenPattern preserves parentheses around a sub-pattern.
type ParenPattern struct {
	Sub      Pattern
	Implicit bool
}

func (*ParenPattern) Kind() format.RecordKind { return format.PatternParen }
func (*ParenPattern) patternNode()            {}

// TuplePatternElem is one element of a tuple pattern.
type TuplePatternElem struct {
	DefaultArg format.DefaultArgumentKind
	Pattern    Pattern
}

// TuplePattern destructures a tuple. Vararg marks a trailing variadic
// element.
type TuplePattern struct {
	Type     Type
	Elems    []TuplePatternElem
	Implicit bool
	Vararg   bool
}

func (*TuplePattern) Kind() format.RecordKind { return format.PatternTuple }
func (*TuplePattern) patternNode()            {}

// NamedPattern binds a single variable.
type NamedPattern struct {
	Var      *VarDecl
	Implicit bool
}

func (*NamedPattern) Kind() format.RecordKind { return format.PatternNamed }
func (*NamedPattern) patternNode()            {}

// AnyPattern matches anything and binds nothing.
type AnyPattern struct {
	Type     Type
	Implicit bool
}

func (*AnyPattern) Kind() format.RecordKind { return format.PatternAny }
func (*AnyPattern) patternNode()            {}

// TypedPattern constrains a sub-pattern with an explicit type.
type TypedPattern struct {
	Sub      Pattern
	Type     Type
	Implicit bool
}

func (*TypedPattern) Kind() format.RecordKind { return format.PatternTyped }
func (*TypedPattern) patternNode()            {}

// IsaPattern matches by dynamic type check.
type IsaPattern struct {
	Type     Type
	Implicit bool
}

func (*IsaPattern) Kind() format.RecordKind { return format.PatternIsa }
func (*IsaPattern) patternNode()            {}

// NominalTypePattern matches a nominal type and destructures it.
type NominalTypePattern struct {
	Type     Type
	Sub      Pattern
	Implicit bool
}

func (*NominalTypePattern) Kind() format.RecordKind { return format.PatternNominalType }
func (*NominalTypePattern) patternNode()            {}

// VarPattern marks its sub-pattern's bindings as mutable.
type VarPattern struct {
	Sub      Pattern
	Implicit bool
}

func (*VarPattern) Kind() format.RecordKind { return format.PatternVar }
func (*VarPattern) patternNode()            {}

// GenericParams is the generic parameter clause of a declaration.
type GenericParams struct {
	Params       []*GenericParamDecl
	Requirements []Requirement
	Archetypes   []Type
}

// Requirement is one constraint in a generic parameter clause.
type Requirement struct {
	Kind   format.RequirementKind
	First  Type
	Second Type
}

// Substitution maps an archetype to its replacement type, with the
// conformances justifying the replacement.
type Substitution struct {
	Archetype    Type
	Replacement  Type
	Conformances []Conformance
}
