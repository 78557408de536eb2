package decl

// DeclaredType returns the type an overloadable value declaration is
// distinguished by, or nil for declarations that cannot be overloaded.
// Cross-module references carry this type so a resolver can split overload
// sets in the target module.
func DeclaredType(d Decl) Type {
	switch d := d.(type) {
	case *FuncDecl:
		return d.Signature
	case *ConstructorDecl:
		return d.Signature
	case *VarDecl:
		return d.Type
	case *SubscriptDecl:
		return d.ElementType
	case *UnionElementDecl:
		return d.ConstructorType
	}
	return nil
}

// EqualTypes reports whether two type trees spell the same type. Nominal
// references compare by declaration name rather than node identity, since the
// two trees typically come from different reader sessions. The comparison is
// cycle-safe: a pair already under comparison is presumed equal.
func EqualTypes(a, b Type) bool {
	return equalTypes(a, b, make(map[typePair]bool))
}

type typePair struct{ a, b Type }

func equalTypes(a, b Type, seen map[typePair]bool) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	pair := typePair{a, b}
	if seen[pair] {
		return true
	}
	seen[pair] = true

	switch a := a.(type) {
	case *AliasType:
		b, ok := b.(*AliasType)
		return ok && equalDeclNames(orNilDecl(a.Decl), orNilDecl(b.Decl))
	case *NominalType:
		b, ok := b.(*NominalType)
		return ok && equalDeclNames(a.Decl, b.Decl) && equalTypes(a.Parent, b.Parent, seen)
	case *ParenType:
		b, ok := b.(*ParenType)
		return ok && equalTypes(a.Inner, b.Inner, seen)
	case *TupleType:
		b, ok := b.(*TupleType)
		if !ok || len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			ae, be := a.Elems[i], b.Elems[i]
			if ae.Name != be.Name || ae.Vararg != be.Vararg || ae.DefaultArg != be.DefaultArg {
				return false
			}
			if !equalTypes(ae.Type, be.Type, seen) {
				return false
			}
		}
		return true
	case *FunctionType:
		b, ok := b.(*FunctionType)
		return ok && a.Convention == b.Convention && a.AutoClosure == b.AutoClosure &&
			a.Thin == b.Thin && a.NoReturn == b.NoReturn &&
			equalTypes(a.Input, b.Input, seen) && equalTypes(a.Result, b.Result, seen)
	case *MetatypeType:
		b, ok := b.(*MetatypeType)
		return ok && equalTypes(a.Instance, b.Instance, seen)
	case *LValueType:
		b, ok := b.(*LValueType)
		return ok && a.Implicit == b.Implicit && a.NonSettable == b.NonSettable &&
			equalTypes(a.Object, b.Object, seen)
	case *ArchetypeType:
		b, ok := b.(*ArchetypeType)
		return ok && a.Name == b.Name && a.Index == b.Index && equalTypes(a.Parent, b.Parent, seen)
	case *ProtocolCompositionType:
		b, ok := b.(*ProtocolCompositionType)
		if !ok || len(a.Protocols) != len(b.Protocols) {
			return false
		}
		for i := range a.Protocols {
			if !equalTypes(a.Protocols[i], b.Protocols[i], seen) {
				return false
			}
		}
		return true
	case *SubstitutedType:
		b, ok := b.(*SubstitutedType)
		return ok && equalTypes(a.Original, b.Original, seen) && equalTypes(a.Replacement, b.Replacement, seen)
	case *GenericParamType:
		b, ok := b.(*GenericParamType)
		if !ok {
			return false
		}
		if a.Decl != nil && b.Decl != nil && (a.Decl.Depth != b.Decl.Depth || a.Decl.Index != b.Decl.Index) {
			return false
		}
		return equalDeclNames(orNilDecl(a.Decl), orNilDecl(b.Decl))
	case *AssociatedTypeType:
		b, ok := b.(*AssociatedTypeType)
		return ok && equalDeclNames(orNilDecl(a.Decl), orNilDecl(b.Decl))
	case *DependentMemberType:
		b, ok := b.(*DependentMemberType)
		return ok && a.Name == b.Name && equalTypes(a.Base, b.Base, seen)
	case *BoundGenericType:
		b, ok := b.(*BoundGenericType)
		if !ok || !equalDeclNames(a.Decl, b.Decl) || len(a.Args) != len(b.Args) {
			return false
		}
		if !equalTypes(a.Parent, b.Parent, seen) {
			return false
		}
		for i := range a.Args {
			if !equalTypes(a.Args[i], b.Args[i], seen) {
				return false
			}
		}
		return true
	case *PolymorphicFunctionType:
		b, ok := b.(*PolymorphicFunctionType)
		return ok && a.Convention == b.Convention && a.Thin == b.Thin && a.NoReturn == b.NoReturn &&
			equalTypes(a.Input, b.Input, seen) && equalTypes(a.Result, b.Result, seen)
	case *UnboundGenericType:
		b, ok := b.(*UnboundGenericType)
		return ok && equalDeclNames(a.Decl, b.Decl) && equalTypes(a.Parent, b.Parent, seen)
	case *SliceType:
		b, ok := b.(*SliceType)
		return ok && equalTypes(a.Element, b.Element, seen)
	case *ArrayType:
		b, ok := b.(*ArrayType)
		return ok && a.Size == b.Size && equalTypes(a.Element, b.Element, seen)
	case *ReferenceStorageType:
		b, ok := b.(*ReferenceStorageType)
		return ok && a.Ownership == b.Ownership && equalTypes(a.Referent, b.Referent, seen)
	case *OptionalType:
		b, ok := b.(*OptionalType)
		return ok && equalTypes(a.Element, b.Element, seen)
	}
	return false
}

func equalDeclNames(a, b Decl) bool {
	if a == nil || b == nil {
		return a == b
	}
	an, _ := Name(a)
	bn, _ := Name(b)
	return an == bn
}

// orNilDecl flattens a typed nil pointer into a nil Decl interface.
func orNilDecl[N any, P interface {
	*N
	Decl
}](p P) Decl {
	if p == nil {
		return nil
	}
	return p
}
