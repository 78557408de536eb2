package cruxmod

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/crux-lang/cruxmod/container"
	"github.com/crux-lang/cruxmod/decl"
	"github.com/crux-lang/cruxmod/format"
)

// Resolver resolves cross-module references for a Reader. The module loader
// implements it by opening the named module and walking the path; tests can
// implement it over a map.
//
// Each method returns the declaration the path names. A missing module or
// path component should produce a ResolutionError; when the failure is an
// absence rather than an inconsistency, the error should also match
// ErrNotFound.
type Resolver interface {
	// ResolveValue resolves a named value or type declaration. path holds
	// the name components from the module scope inward; filter, when
	// non-nil, narrows overloaded candidates to those with a structurally
	// equal declared type.
	ResolveValue(ctx context.Context, module string, path []string, filter decl.Type) (decl.Decl, error)

	// ResolveOperator resolves an operator declaration by name and fixity.
	ResolveOperator(ctx context.Context, module string, name string, kind format.OperatorKind) (decl.Decl, error)

	// ResolveGenericParam resolves the generic parameter at index of the
	// declaration path names.
	ResolveGenericParam(ctx context.Context, module string, path []string, index uint32) (decl.Decl, error)
}

// emitCrossReference writes the stand-in record for a declaration owned by
// another module: the reference kind, a discriminator, and the name path an
// importer replays against that module.
func (s *serializer) emitCrossReference(d decl.Decl, owner *decl.Module) error {
	kind, disc := s.xrefDiscriminator(d)
	path, inExtension, err := s.xrefPath(d, owner)
	if err != nil {
		return err
	}
	idents := make([]uint64, 0, len(path))
	for _, comp := range path {
		idents = append(idents, s.ident(comp))
	}
	s.record(declsBlock, format.CrossReference,
		[]uint64{uint64(kind), disc, b2u(inExtension)}, idents, nil)
	return nil
}

// xrefDiscriminator picks the reference kind and its discriminator:
// operators carry their fixity, generic parameters their index, and values
// their declared type so readers can split overload sets.
func (s *serializer) xrefDiscriminator(d decl.Decl) (format.XRefKind, uint64) {
	switch d := d.(type) {
	case *decl.PrefixOperatorDecl:
		return format.XRefOperator, uint64(format.OperatorPrefix)
	case *decl.PostfixOperatorDecl:
		return format.XRefOperator, uint64(format.OperatorPostfix)
	case *decl.InfixOperatorDecl:
		return format.XRefOperator, uint64(format.OperatorInfix)
	case *decl.GenericParamDecl:
		return format.XRefGenericParameter, uint64(d.Index)
	}
	if t := decl.DeclaredType(d); t != nil {
		return format.XRefValue, s.typeRef(t)
	}
	return format.XRefValue, 0
}

// xrefPath builds the wire path for a foreign declaration. The components
// are the context chain's names, outermost first; an extension contributes
// the name of the type it extends. The path is prefixed with the defining
// module's name and, for declarations reached through an extension, the
// extending module's name before that.
func (s *serializer) xrefPath(d decl.Decl, owner *decl.Module) ([]string, bool, error) {
	var names []string
	inExtension := false
	defining := owner
	for cur := d; cur != nil; cur = decl.Context(cur) {
		if ext, ok := cur.(*decl.ExtensionDecl); ok {
			base, _ := nominalTypeDecl(ext.ExtendedType)
			name := ""
			ok := false
			if base != nil {
				name, ok = decl.Name(base)
			}
			if !ok {
				return nil, false, fmt.Errorf("cruxmod: cannot cross-reference through an extension of an unnamed type in module %q", owner.Name)
			}
			names = append([]string{name}, names...)
			inExtension = true
			if bo := base.DeclOwner(); bo != nil && bo != s.module {
				defining = bo
			} else {
				defining = s.module
			}
			continue
		}
		name, ok := decl.PathName(cur)
		if !ok {
			return nil, false, fmt.Errorf("cruxmod: cannot cross-reference %T in module %q: no path name", cur, owner.Name)
		}
		names = append([]string{name}, names...)
	}
	path := append([]string{defining.Name}, names...)
	if inExtension {
		path = append([]string{owner.Name}, path...)
	}
	return path, inExtension, nil
}

// materializeXRef turns a cross-reference record back into a declaration by
// replaying its path through the configured Resolver. The search starts in
// the extending module when the reference went through an extension, and in
// the defining module otherwise.
func (r *Reader) materializeXRef(ctx context.Context, off uint64, rec container.Record) (decl.Decl, error) {
	kind := format.XRefKind(rec.Scalars[0])
	if !kind.Valid() {
		return nil, corruptf(off, "invalid cross-reference kind %d", rec.Scalars[0])
	}
	disc := rec.Scalars[1]
	inExtension := rec.Scalars[2] != 0

	minComps := 2
	if inExtension {
		minComps = 3
	}
	if len(rec.Array) < minComps {
		return nil, corruptf(off, "cross-reference path has %d components, needs at least %d", len(rec.Array), minComps)
	}
	comps := make([]string, len(rec.Array))
	for i, v := range rec.Array {
		name, err := r.Identifier(format.IdentifierID(v))
		if err != nil {
			return nil, err
		}
		comps[i] = name
	}

	rest := comps
	extending := ""
	if inExtension {
		extending, rest = rest[0], rest[1:]
	}
	defining, names := rest[0], rest[1:]
	target := defining
	if inExtension {
		target = extending
	}

	resolver := r.opts.resolver
	if resolver == nil {
		return nil, NewResolutionError(target, names, "no resolver configured", ErrNoResolver)
	}

	start := time.Now()
	d, err := r.resolveXRef(ctx, resolver, kind, disc, off, target, names)
	r.opts.metricsCollector.RecordResolve(time.Since(start), err)
	r.opts.logger.LogResolve(ctx, target, names, err)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, NewResolutionError(target, names, "resolver returned no declaration", ErrNotFound)
	}
	return d, nil
}

func (r *Reader) resolveXRef(ctx context.Context, resolver Resolver, kind format.XRefKind, disc, off uint64, target string, names []string) (decl.Decl, error) {
	switch kind {
	case format.XRefValue:
		var filter decl.Type
		if disc != 0 {
			if disc > format.MaxID {
				return nil, corruptf(off, "cross-reference filter type %d out of range", disc)
			}
			t, err := r.Type(ctx, format.TypeID(disc))
			if err != nil {
				return nil, err
			}
			filter = t
		}
		return resolver.ResolveValue(ctx, target, names, filter)

	case format.XRefOperator:
		if len(names) != 1 {
			return nil, corruptf(off, "operator cross-reference path has %d components, wants 1", len(names))
		}
		opKind := format.OperatorKind(disc)
		if !opKind.Valid() {
			return nil, corruptf(off, "invalid operator fixity %d in cross-reference", disc)
		}
		return resolver.ResolveOperator(ctx, target, names[0], opKind)

	case format.XRefGenericParameter:
		if disc > math.MaxUint32 {
			return nil, corruptf(off, "generic parameter index %d out of range", disc)
		}
		return resolver.ResolveGenericParam(ctx, target, names, uint32(disc))
	}
	return nil, corruptf(off, "unhandled cross-reference kind %d", kind)
}

// nominalTypeDecl unwraps the declaration behind a nominal type reference,
// through generic application sugar.
func nominalTypeDecl(t decl.Type) (decl.Decl, bool) {
	switch t := t.(type) {
	case *decl.NominalType:
		return t.Decl, t.Decl != nil
	case *decl.BoundGenericType:
		return t.Decl, t.Decl != nil
	case *decl.UnboundGenericType:
		return t.Decl, t.Decl != nil
	}
	return nil, false
}

// nominalTypeName returns the name of the declaration behind a nominal type
// reference.
func nominalTypeName(t decl.Type) (string, bool) {
	d, ok := nominalTypeDecl(t)
	if !ok {
		return "", false
	}
	return decl.Name(d)
}
