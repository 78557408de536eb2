package loader

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crux-lang/cruxmod"
	"github.com/crux-lang/cruxmod/blobstore"
	"github.com/crux-lang/cruxmod/decl"
	"github.com/crux-lang/cruxmod/format"
)

// coreModule is the exporting side of the test fixture: a plain struct, a
// generic struct, an overloaded function pair and a force-load marker.
func coreModule() *decl.Module {
	thing := &decl.StructDecl{Name: "Thing"}
	thingTy := &decl.NominalType{Decl: thing}
	size := &decl.VarDecl{Name: "size", Context: thing, Type: thingTy}
	thing.Members = []decl.Decl{size}

	box := &decl.StructDecl{Name: "Box"}
	tParam := &decl.GenericParamDecl{Name: "T", Context: box}
	box.GenericParams = &decl.GenericParams{Params: []*decl.GenericParamDecl{tParam}}

	emptyClause := func() []decl.Pattern {
		return []decl.Pattern{&decl.ParenPattern{Sub: &decl.TuplePattern{}}}
	}
	wrapThing := &decl.FuncDecl{
		Name:      "wrap",
		Signature: &decl.FunctionType{Input: thingTy, Result: thingTy},
		Params:    emptyClause(),
	}
	wrapBox := &decl.FuncDecl{
		Name:      "wrap",
		Signature: &decl.FunctionType{Input: &decl.NominalType{Decl: box}, Result: thingTy},
		Params:    emptyClause(),
	}

	return &decl.Module{
		Name:        "core",
		SourceFiles: []string{"core/thing.cx"},
		Decls:       []decl.Decl{thing, box, wrapThing, wrapBox},
		KnownConformers: map[format.KnownProtocolKind][]decl.Decl{
			format.KnownForceLoad: {thing},
		},
	}
}

// appModule references core's Thing through a cross-module alias.
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

func putModule(t *testing.T, store blobstore.Store, key string, m *decl.Module) {
	t.Helper()
	var buf bytes.Buffer
	_, err := cruxmod.Write(context.Background(), &buf, m)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), key, buf.Bytes()))
}

func newTestStore(t *testing.T) *blobstore.MemoryStore {
	t.Helper()
	store := blobstore.NewMemoryStore()
	putModule(t, store, ArtifactKey("core"), coreModule())
	putModule(t, store, ArtifactKey("app"), appModule())
	return store
}

func TestLoaderLoad(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t))
	defer l.Close()

	s, err := l.Load(ctx, "core")
	require.NoError(t, err)
	assert.Equal(t, "core", s.Name())

	decls, err := s.LookupValue(ctx, "Thing")
	require.NoError(t, err)
	require.Len(t, decls, 1)
	thing, ok := decls[0].(*decl.StructDecl)
	require.True(t, ok)
	assert.Equal(t, "Thing", thing.Name)
	require.Len(t, thing.Members, 1)

	// Force-load already materialized the marked declarations.
	assert.Greater(t, s.Stats().DeclsMaterialized, 0)

	names, err := s.TopLevelNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Box", "Thing", "wrap"}, names)

	deps, err := s.Dependencies()
	require.NoError(t, err)
	assert.Equal(t, []string{"core/thing.cx"}, deps.SourceFiles)
}

func TestLoaderSharesSessions(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t))
	defer l.Close()

	first, err := l.Load(ctx, "core")
	require.NoError(t, err)
	second, err := l.Load(ctx, "core")
	require.NoError(t, err)
	assert.Same(t, first, second)

	s, ok := l.Session("core")
	require.True(t, ok)
	assert.Same(t, first, s)

	_, ok = l.Session("app")
	assert.False(t, ok)
}

func TestLoaderConcurrentLoad(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t))
	defer l.Close()

	var wg sync.WaitGroup
	sessions := make([]*Session, 8)
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := l.Load(ctx, "core")
			assert.NoError(t, err)
			sessions[i] = s
		}()
	}
	wg.Wait()

	for _, s := range sessions[1:] {
		assert.Same(t, sessions[0], s)
	}
}

func TestLoadAll(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t), WithConcurrency(2))
	defer l.Close()

	require.NoError(t, l.LoadAll(ctx, []string{"core", "app"}))
	_, ok := l.Session("core")
	assert.True(t, ok)
	_, ok = l.Session("app")
	assert.True(t, ok)

	err := l.LoadAll(ctx, []string{"core", "missing"})
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestLoaderResolvesAcrossModules(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t))
	defer l.Close()

	app, err := l.Load(ctx, "app")
	require.NoError(t, err)

	decls, err := app.LookupValue(ctx, "CoreThing")
	require.NoError(t, err)
	require.Len(t, decls, 1)
	alias, ok := decls[0].(*decl.TypeAliasDecl)
	require.True(t, ok)

	nominal, ok := alias.Underlying.(*decl.NominalType)
	require.True(t, ok)

	// The alias resolved into core's session: same node, not a copy.
	core, err := l.Load(ctx, "core")
	require.NoError(t, err)
	coreDecls, err := core.LookupValue(ctx, "Thing")
	require.NoError(t, err)
	require.Len(t, coreDecls, 1)
	assert.Same(t, coreDecls[0], nominal.Decl)
}

func TestResolveValueOverloads(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t))
	defer l.Close()

	// Two candidates and no filter is ambiguous.
	_, err := l.ResolveValue(ctx, "core", []string{"wrap"}, nil)
	var rerr *cruxmod.ResolutionError
	require.ErrorAs(t, err, &rerr)

	// A filter spelling one signature narrows the set.
	thingTy := &decl.NominalType{Decl: &decl.StructDecl{Name: "Thing"}}
	filter := &decl.FunctionType{Input: thingTy, Result: thingTy}
	d, err := l.ResolveValue(ctx, "core", []string{"wrap"}, filter)
	require.NoError(t, err)
	fn, ok := d.(*decl.FuncDecl)
	require.True(t, ok)
	assert.True(t, decl.EqualTypes(filter, fn.Signature))

	// Member paths descend through the scope's members.
	d, err = l.ResolveValue(ctx, "core", []string{"Thing", "size"}, nil)
	require.NoError(t, err)
	assert.Equal(t, format.DeclVar, d.Kind())

	_, err = l.ResolveValue(ctx, "core", []string{"Thing", "missing"}, nil)
	assert.ErrorIs(t, err, cruxmod.ErrNotFound)

	_, err = l.ResolveValue(ctx, "nowhere", []string{"Thing"}, nil)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestResolveGenericParam(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t))
	defer l.Close()

	d, err := l.ResolveGenericParam(ctx, "core", []string{"Box"}, 0)
	require.NoError(t, err)
	param, ok := d.(*decl.GenericParamDecl)
	require.True(t, ok)
	assert.Equal(t, "T", param.Name)

	_, err = l.ResolveGenericParam(ctx, "core", []string{"Box"}, 5)
	assert.ErrorIs(t, err, cruxmod.ErrNotFound)

	_, err = l.ResolveGenericParam(ctx, "core", []string{"Thing"}, 0)
	assert.ErrorIs(t, err, cruxmod.ErrNotFound)
}

func TestLoaderRejectsMismatchedArtifact(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	// An artifact stored under the wrong name.
	putModule(t, store, ArtifactKey("renamed"), coreModule())

	l := New(store)
	defer l.Close()

	_, err := l.Load(ctx, "renamed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `holds module "core"`)

	// A failed load is forgotten, not cached.
	_, err = l.Load(ctx, "renamed")
	require.Error(t, err)
}

func TestLoaderStaleArtifact(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	var buf bytes.Buffer
	_, err := cruxmod.WriteFallback(ctx, &buf, coreModule())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, ArtifactKey("stale"), buf.Bytes()))

	l := New(store)
	defer l.Close()

	_, err = l.Load(ctx, "stale")
	assert.ErrorIs(t, err, cruxmod.ErrStaleModule)
}

func TestLoaderClose(t *testing.T) {
	ctx := context.Background()
	l := New(newTestStore(t))

	_, err := l.Load(ctx, "core")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	_, ok := l.Session("core")
	assert.False(t, ok)
}
