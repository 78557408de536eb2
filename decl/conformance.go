package decl

// Conformance describes how a type satisfies a protocol. The compiler
// indexes conformances positionally, so "no information" is a first-class
// value (NoConformance) rather than an omission.
type Conformance interface {
	// ConformingProtocol returns the protocol this conformance is about.
	ConformingProtocol() *ProtocolDecl
	conformanceNode()
}

// NoConformance records the absence of conformance information for a
// protocol slot.
type NoConformance struct {
	Protocol *ProtocolDecl
}

func (c *NoConformance) ConformingProtocol() *ProtocolDecl { return c.Protocol }
func (*NoConformance) conformanceNode()                    {}

// ValueWitness pairs a protocol value requirement with the witness
// satisfying it, plus the substitutions specializing the witness.
type ValueWitness struct {
	Requirement   Decl
	Witness       Decl
	Substitutions []Substitution
}

// TypeWitness pairs an associated type requirement with the type satisfying
// it.
type TypeWitness struct {
	AssociatedType *AssociatedTypeDecl
	Witness        Type
}

// NormalConformance is a directly declared conformance with its complete
// witness tables.
type NormalConformance struct {
	Protocol       *ProtocolDecl
	ValueWitnesses []ValueWitness
	TypeWitnesses  []TypeWitness
	Inherited      []Conformance
	Defaulted      []Decl
}

func (c *NormalConformance) ConformingProtocol() *ProtocolDecl { return c.Protocol }
func (*NormalConformance) conformanceNode()                    {}

// SpecializedConformance applies substitutions to a generic type's
// conformance.
type SpecializedConformance struct {
	Protocol      *ProtocolDecl
	Substitutions []Substitution
	Generic       Conformance
}

func (c *SpecializedConformance) ConformingProtocol() *ProtocolDecl { return c.Protocol }
func (*SpecializedConformance) conformanceNode()                    {}

// InheritedConformance is a superclass conformance viewed from a subclass.
type InheritedConformance struct {
	Protocol   *ProtocolDecl
	Underlying Conformance
}

func (c *InheritedConformance) ConformingProtocol() *ProtocolDecl { return c.Protocol }
func (*InheritedConformance) conformanceNode()                    {}
