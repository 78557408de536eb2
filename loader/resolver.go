package loader

import (
	"context"

	"github.com/crux-lang/cruxmod"
	"github.com/crux-lang/cruxmod/decl"
	"github.com/crux-lang/cruxmod/format"
)

// The Loader is the Resolver of every reader it opens: a cross-reference in
// one session resolves by replaying its name path against another session,
// loading that module first if needed. Resolution failures name the module
// and the failing path component; they never abort unrelated decodes.
//
// Resolution runs while the referring session is mid-materialization and
// re-enters the target session's materializer, so it relies on module import
// graphs being acyclic: the compiler rejects import cycles before anything
// is serialized, and a forged chain of artifacts whose references cycle back
// into a module still being materialized would wait on itself.

var _ cruxmod.Resolver = (*Loader)(nil)

// ResolveValue resolves a named value or type declaration along path. When
// filter is non-nil, overloaded candidates are narrowed to those whose
// declared type spells the same as filter.
func (l *Loader) ResolveValue(ctx context.Context, module string, path []string, filter decl.Type) (decl.Decl, error) {
	if len(path) == 0 {
		return nil, cruxmod.NewResolutionError(module, path, "empty reference path", cruxmod.ErrNotFound)
	}
	s, err := l.Load(ctx, module)
	if err != nil {
		return nil, cruxmod.NewResolutionError(module, path, "module unavailable", err)
	}

	candidates, err := l.rootCandidates(ctx, s, path)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(path); i++ {
		candidates, err = l.memberCandidates(ctx, s, candidates, path, i)
		if err != nil {
			return nil, err
		}
	}

	if filter != nil {
		var matched []decl.Decl
		for _, c := range candidates {
			if decl.EqualTypes(decl.DeclaredType(c), filter) {
				matched = append(matched, c)
			}
		}
		if len(matched) == 0 {
			return nil, cruxmod.NewResolutionError(module, path,
				"no candidate matches the referenced type", cruxmod.ErrNotFound)
		}
		candidates = matched
	}
	if len(candidates) > 1 {
		return nil, cruxmod.NewResolutionError(module, path, "reference is ambiguous", nil)
	}
	return candidates[0], nil
}

// rootCandidates finds the declarations the first path component names at
// module scope. A component that only exists as an extended foreign type
// contributes the module's extensions of that type instead, so the walk can
// descend into their members.
func (l *Loader) rootCandidates(ctx context.Context, s *Session, path []string) ([]decl.Decl, error) {
	decls, err := s.LookupValue(ctx, path[0])
	if err != nil {
		return nil, cruxmod.NewResolutionError(s.name, path, "top-level lookup failed", err)
	}
	if len(decls) > 0 {
		return decls, nil
	}
	if len(path) > 1 {
		exts, err := s.ExtensionsOf(ctx, path[0])
		if err != nil {
			return nil, cruxmod.NewResolutionError(s.name, path, "extension lookup failed", err)
		}
		if len(exts) > 0 {
			scopes := make([]decl.Decl, 0, len(exts))
			for _, ext := range exts {
				scopes = append(scopes, ext)
			}
			return scopes, nil
		}
	}
	return nil, cruxmod.NewResolutionError(s.name, path,
		"module has no declaration named "+path[0], cruxmod.ErrNotFound)
}

// memberCandidates narrows the candidate set to the members named by path
// component i, searching each candidate's own members and, for nominal
// candidates, the members of the module's extensions of it.
func (l *Loader) memberCandidates(ctx context.Context, s *Session, scopes []decl.Decl, path []string, i int) ([]decl.Decl, error) {
	component := path[i]
	var next []decl.Decl
	for _, scope := range scopes {
		members, ok := decl.Members(scope)
		if !ok {
			continue
		}
		next = appendNamedMembers(next, members, component)
		if name, named := decl.Name(scope); named {
			exts, err := s.ExtensionsOf(ctx, name)
			if err != nil {
				return nil, cruxmod.NewResolutionError(s.name, path, "extension lookup failed", err)
			}
			for _, ext := range exts {
				next = appendNamedMembers(next, ext.Members, component)
			}
		}
	}
	if len(next) == 0 {
		return nil, cruxmod.NewResolutionError(s.name, path,
			"no member named "+component, cruxmod.ErrNotFound)
	}
	return next, nil
}

func appendNamedMembers(dst []decl.Decl, members []decl.Decl, component string) []decl.Decl {
	for _, m := range members {
		if m == nil {
			continue
		}
		if name, ok := decl.PathName(m); ok && name == component {
			dst = append(dst, m)
		}
	}
	return dst
}

// ResolveOperator resolves an operator declaration by name and fixity.
func (l *Loader) ResolveOperator(ctx context.Context, module string, name string, kind format.OperatorKind) (decl.Decl, error) {
	s, err := l.Load(ctx, module)
	if err != nil {
		return nil, cruxmod.NewResolutionError(module, []string{name}, "module unavailable", err)
	}
	d, err := s.LookupOperator(ctx, name, kind)
	if err != nil {
		return nil, cruxmod.NewResolutionError(module, []string{name},
			"module exports no "+kind.String()+" operator with this name", err)
	}
	return d, nil
}

// ResolveGenericParam resolves the generic parameter at index of the
// declaration path names.
func (l *Loader) ResolveGenericParam(ctx context.Context, module string, path []string, index uint32) (decl.Decl, error) {
	d, err := l.ResolveValue(ctx, module, path, nil)
	if err != nil {
		return nil, err
	}
	gp := genericParamsOf(d)
	if gp == nil {
		return nil, cruxmod.NewResolutionError(module, path, "declaration has no generic parameters", cruxmod.ErrNotFound)
	}
	if int(index) >= len(gp.Params) {
		return nil, cruxmod.NewResolutionError(module, path, "generic parameter index out of range", cruxmod.ErrNotFound)
	}
	return gp.Params[index], nil
}

func genericParamsOf(d decl.Decl) *decl.GenericParams {
	switch d := d.(type) {
	case *decl.StructDecl:
		return d.GenericParams
	case *decl.ClassDecl:
		return d.GenericParams
	case *decl.UnionDecl:
		return d.GenericParams
	case *decl.FuncDecl:
		return d.GenericParams
	case *decl.ConstructorDecl:
		return d.GenericParams
	}
	return nil
}
