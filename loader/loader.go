// Package loader manages the serialized modules a compilation consumes: it
// fetches module artifacts from a blob store, opens a reader session per
// module, and resolves cross-module references between the loaded sessions.
//
// A Loader is safe for concurrent use. Each module gets at most one session;
// concurrent Load calls for the same name share one in-flight open. Reader
// sessions themselves are single-threaded, so every operation on a Session
// runs under that session's lock.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/crux-lang/cruxmod"
	"github.com/crux-lang/cruxmod/blobstore"
	"github.com/crux-lang/cruxmod/decl"
	"github.com/crux-lang/cruxmod/format"
)

// ArtifactExt is the file extension of serialized module artifacts.
const ArtifactExt = ".cxm"

// ArtifactKey returns the blob store key of a module's artifact.
func ArtifactKey(module string) string { return module + ArtifactExt }

type options struct {
	logger      *cruxmod.Logger
	concurrency int64
	fetchLimit  rate.Limit
	fetchBurst  int
	readerOpts  []cruxmod.Option
}

// Option configures a Loader.
type Option func(*options)

// WithLogger configures structured logging for loader operations.
func WithLogger(logger *cruxmod.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithConcurrency bounds how many modules LoadAll opens at once.
func WithConcurrency(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithFetchRate limits artifact fetches from the store, for stores that are
// shared or remote. The default is unlimited.
func WithFetchRate(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.fetchLimit = limit
		o.fetchBurst = burst
	}
}

// WithReaderOptions forwards options to every reader the Loader opens. A
// resolver option is always appended last; the Loader resolves its own
// sessions' cross-references.
func WithReaderOptions(opts ...cruxmod.Option) Option {
	return func(o *options) {
		o.readerOpts = append(o.readerOpts, opts...)
	}
}

// Loader loads serialized modules from a blob store and keeps one session
// per module name.
type Loader struct {
	store   blobstore.Store
	opts    options
	limiter *rate.Limiter

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	once sync.Once
	sess *Session
	err  error
}

// New creates a Loader over a blob store.
func New(store blobstore.Store, optFns ...Option) *Loader {
	opts := options{
		logger:      cruxmod.NoopLogger(),
		concurrency: 4,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	l := &Loader{
		store:    store,
		opts:     opts,
		sessions: make(map[string]*entry),
	}
	if opts.fetchLimit > 0 {
		burst := opts.fetchBurst
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(opts.fetchLimit, burst)
	}
	return l
}

// Load opens the named module, or returns its already-open session.
// Concurrent calls for the same name share one in-flight load; a failed load
// is forgotten so a later call can retry.
func (l *Loader) Load(ctx context.Context, name string) (*Session, error) {
	l.mu.Lock()
	e, ok := l.sessions[name]
	if !ok {
		e = &entry{}
		l.sessions[name] = e
	}
	l.mu.Unlock()

	e.once.Do(func() {
		e.sess, e.err = l.open(ctx, name)
	})
	if e.err != nil {
		l.mu.Lock()
		if l.sessions[name] == e {
			delete(l.sessions, name)
		}
		l.mu.Unlock()
		return nil, e.err
	}
	return e.sess, nil
}

// LoadAll loads the named modules concurrently, bounded by the configured
// concurrency. The first failure cancels the remaining loads.
func (l *Loader) LoadAll(ctx context.Context, names []string) error {
	g, ctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(l.opts.concurrency)
	for _, name := range names {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			_, err := l.Load(ctx, name)
			return err
		})
	}
	return g.Wait()
}

// Session returns the open session for a module, or false if the module has
// not been loaded.
func (l *Loader) Session(name string) (*Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.sessions[name]
	if !ok || e.sess == nil {
		return nil, false
	}
	return e.sess, true
}

// Close closes every open session. The Loader is unusable afterwards.
func (l *Loader) Close() error {
	l.mu.Lock()
	sessions := l.sessions
	l.sessions = make(map[string]*entry)
	l.mu.Unlock()

	var firstErr error
	for _, e := range sessions {
		if e.sess == nil {
			continue
		}
		if err := e.sess.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (l *Loader) open(ctx context.Context, name string) (*Session, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	blob, err := l.store.Open(ctx, ArtifactKey(name))
	if err != nil {
		return nil, fmt.Errorf("loader: module %q: %w", name, err)
	}

	readerOpts := append(append([]cruxmod.Option(nil), l.opts.readerOpts...), cruxmod.WithResolver(l))
	r, err := cruxmod.OpenBlob(ctx, blob, readerOpts...)
	if err != nil {
		blob.Close()
		var stale *cruxmod.StaleModuleError
		if errors.As(err, &stale) {
			l.opts.logger.WarnContext(ctx, "module artifact is stale, rebuild required",
				"module", name,
				"sources", stale.SourceFiles,
			)
		}
		return nil, fmt.Errorf("loader: module %q: %w", name, err)
	}
	if r.Name() != name {
		r.Close()
		return nil, fmt.Errorf("loader: artifact %q holds module %q", ArtifactKey(name), r.Name())
	}

	s := &Session{name: name, r: r}
	if err := s.forceLoad(ctx); err != nil {
		r.Close()
		return nil, fmt.Errorf("loader: module %q: force-load: %w", name, err)
	}
	l.opts.logger.InfoContext(ctx, "module loaded", "module", name, "bytes", blob.Size())
	return s, nil
}

// Session is one loaded module. All methods serialize on the session lock,
// since the underlying reader is single-threaded.
type Session struct {
	name string
	mu   sync.Mutex
	r    *cruxmod.Reader
}

// Name returns the module's name.
func (s *Session) Name() string { return s.name }

func (s *Session) forceLoad(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.ForceLoad(ctx)
}

func (s *Session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Close()
}

// Decl materializes a declaration by ID.
func (s *Session) Decl(ctx context.Context, id format.DeclID) (decl.Decl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Decl(ctx, id)
}

// Type materializes a type by ID.
func (s *Session) Type(ctx context.Context, id format.TypeID) (decl.Type, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Type(ctx, id)
}

// LookupValue materializes the module-scope declarations with the given
// name; several results mean an overload set.
func (s *Session) LookupValue(ctx context.Context, name string) ([]decl.Decl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.r.LookupValue(name)
	if err != nil {
		return nil, err
	}
	decls := make([]decl.Decl, 0, len(entries))
	for _, e := range entries {
		d, err := s.r.Decl(ctx, e.Decl)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// LookupOperator materializes the operator declaration with the given name
// and fixity.
func (s *Session) LookupOperator(ctx context.Context, name string, kind format.OperatorKind) (decl.Decl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := s.r.LookupOperator(name, kind)
	if err != nil {
		return nil, err
	}
	return s.r.Decl(ctx, id)
}

// ExtensionsOf materializes the extensions this module declares on the named
// nominal type.
func (s *Session) ExtensionsOf(ctx context.Context, name string) ([]*decl.ExtensionDecl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.r.ExtensionsOf(name)
	if err != nil {
		return nil, err
	}
	exts := make([]*decl.ExtensionDecl, 0, len(ids))
	for _, id := range ids {
		d, err := s.r.Decl(ctx, id)
		if err != nil {
			return nil, err
		}
		ext, ok := d.(*decl.ExtensionDecl)
		if !ok {
			return nil, fmt.Errorf("loader: extension table entry %d in module %q is a %T", id, s.name, d)
		}
		exts = append(exts, ext)
	}
	return exts, nil
}

// TopLevelDecls materializes every named module-scope declaration.
func (s *Session) TopLevelDecls(ctx context.Context) ([]decl.Decl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.TopLevelDecls(ctx)
}

// TopLevelNames returns the sorted module-scope declaration names.
func (s *Session) TopLevelNames() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.TopLevelNames()
}

// Dependencies returns the module's input manifest.
func (s *Session) Dependencies() (cruxmod.Dependencies, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Dependencies()
}

// KnownConformers materializes the declarations conforming to a well-known
// protocol.
func (s *Session) KnownConformers(ctx context.Context, kind format.KnownProtocolKind) ([]decl.Decl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.r.KnownConformers(kind)
	if err != nil {
		return nil, err
	}
	decls := make([]decl.Decl, 0, len(ids))
	for _, id := range ids {
		d, err := s.r.Decl(ctx, id)
		if err != nil {
			return nil, err
		}
		decls = append(decls, d)
	}
	return decls, nil
}

// Stats returns the underlying reader's work counters.
func (s *Session) Stats() cruxmod.ReaderStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Stats()
}
