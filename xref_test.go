package cruxmod

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crux-lang/cruxmod/decl"
	"github.com/crux-lang/cruxmod/format"
)

// mapResolver resolves references out of a fixed table, keyed by the module
// name and the dotted path.
type mapResolver struct {
	values    map[string]decl.Decl
	operators map[string]decl.Decl
}

func (r mapResolver) ResolveValue(_ context.Context, module string, path []string, _ decl.Type) (decl.Decl, error) {
	if d, ok := r.values[module+"."+strings.Join(path, ".")]; ok {
		return d, nil
	}
	return nil, NewResolutionError(module, path, "no such declaration", ErrNotFound)
}

func (r mapResolver) ResolveOperator(_ context.Context, module string, name string, kind format.OperatorKind) (decl.Decl, error) {
	if d, ok := r.operators[module+"."+name+"."+kind.String()]; ok {
		return d, nil
	}
	return nil, NewResolutionError(module, []string{name}, "no such operator", ErrNotFound)
}

func (r mapResolver) ResolveGenericParam(_ context.Context, module string, path []string, index uint32) (decl.Decl, error) {
	return nil, NewResolutionError(module, path, "no generic parameters", ErrNotFound)
}

// appModule builds a module whose alias points at a declaration owned by a
// foreign module, forcing the writer to emit a cross-reference.
func appModule() *decl.Module {
	core := &decl.Module{Name: "core"}

	thing := &decl.StructDecl{Name: "Thing"}
	thing.Owner = core

	alias := &decl.TypeAliasDecl{
		Name:       "CoreThing",
		Underlying: &decl.NominalType{Decl: thing},
	}
	return &decl.Module{
		Name:    "app",
		Imports: []decl.Import{{Name: "core", Exported: false}},
		Decls:   []decl.Decl{alias},
	}
}

func TestCrossModuleReference(t *testing.T) {
	data := writeModule(t, appModule())

	resolved := &decl.StructDecl{Name: "Thing"}
	r, err := Open(data, WithResolver(mapResolver{
		values: map[string]decl.Decl{"core.Thing": resolved},
	}))
	require.NoError(t, err)
	defer r.Close()

	alias, ok := lookupOne(t, r, "CoreThing").(*decl.TypeAliasDecl)
	require.True(t, ok)
	nominal, ok := alias.Underlying.(*decl.NominalType)
	require.True(t, ok)
	assert.Same(t, resolved, nominal.Decl)
}

func TestCrossModuleReferenceWithoutResolver(t *testing.T) {
	data := writeModule(t, appModule())

	r, err := Open(data)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.LookupValue("CoreThing")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = r.Decl(context.Background(), entries[0].Decl)
	assert.ErrorIs(t, err, ErrNoResolver)
}

func TestCrossModuleReferenceMissing(t *testing.T) {
	data := writeModule(t, appModule())

	r, err := Open(data, WithResolver(mapResolver{}))
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.LookupValue("CoreThing")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = r.Decl(context.Background(), entries[0].Decl)
	assert.ErrorIs(t, err, ErrNotFound)
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "core", rerr.Module)
	assert.Equal(t, []string{"Thing"}, rerr.Path)
}

func TestCrossModuleOperatorReference(t *testing.T) {
	math := &decl.Module{Name: "math"}
	foreignPlus := &decl.InfixOperatorDecl{Name: "+"}
	foreignPlus.Owner = math

	// A local function implemented against a foreign operator.
	m := &decl.Module{
		Name: "app",
		Decls: []decl.Decl{
			&decl.FuncDecl{
				Name:     "add",
				Operator: foreignPlus,
				Params:   []decl.Pattern{&decl.ParenPattern{Sub: &decl.TuplePattern{}}},
			},
		},
	}
	data := writeModule(t, m)

	resolved := &decl.InfixOperatorDecl{Name: "+", Precedence: 140}
	r, err := Open(data, WithResolver(mapResolver{
		operators: map[string]decl.Decl{"math.+.infix": resolved},
	}))
	require.NoError(t, err)
	defer r.Close()

	add, ok := lookupOne(t, r, "add").(*decl.FuncDecl)
	require.True(t, ok)
	assert.Same(t, resolved, add.Operator)
}
