package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// CachingStore is a read-through mirror of a remote Store into a LocalStore.
// The first Open of a key fetches the artifact from the remote and lands it
// in the local directory; later opens are served from the mmap-backed local
// copy. Artifacts are immutable, so a mirrored copy never goes stale.
type CachingStore struct {
	remote  Store
	local   *LocalStore
	limiter *rate.Limiter
	warmN   int

	mu       sync.Mutex
	inflight map[string]*fetch
}

type fetch struct {
	done chan struct{}
	err  error
}

type cachingOptions struct {
	fetchLimit rate.Limit
	fetchBurst int
	warmN      int
}

// CachingOption configures a CachingStore.
type CachingOption func(*cachingOptions)

// WithFetchLimit rate-limits remote fetches. The default is unlimited.
func WithFetchLimit(limit rate.Limit, burst int) CachingOption {
	return func(o *cachingOptions) {
		o.fetchLimit = limit
		o.fetchBurst = burst
	}
}

// WithWarmConcurrency bounds how many artifacts Warm fetches at once.
func WithWarmConcurrency(n int) CachingOption {
	return func(o *cachingOptions) {
		if n > 0 {
			o.warmN = n
		}
	}
}

// NewCachingStore creates a CachingStore mirroring remote into local.
func NewCachingStore(remote Store, local *LocalStore, optFns ...CachingOption) *CachingStore {
	opts := cachingOptions{warmN: 4}
	for _, fn := range optFns {
		if fn != nil {
			fn(&opts)
		}
	}
	s := &CachingStore{
		remote:   remote,
		local:    local,
		warmN:    opts.warmN,
		inflight: make(map[string]*fetch),
	}
	if opts.fetchLimit > 0 {
		burst := opts.fetchBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(opts.fetchLimit, burst)
	}
	return s
}

// Open opens the artifact, fetching it from the remote on a local miss.
func (s *CachingStore) Open(ctx context.Context, key string) (Blob, error) {
	b, err := s.local.Open(ctx, key)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if err := s.ensure(ctx, key); err != nil {
		return nil, err
	}
	return s.local.Open(ctx, key)
}

// Warm prefetches the given keys into the local mirror. Keys already present
// are skipped; the first failure cancels the remaining fetches.
func (s *CachingStore) Warm(ctx context.Context, keys []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.warmN)
	for _, key := range keys {
		g.Go(func() error {
			return s.ensure(ctx, key)
		})
	}
	return g.Wait()
}

// ensure lands the remote artifact in the local mirror, deduplicating
// concurrent fetches of the same key.
func (s *CachingStore) ensure(ctx context.Context, key string) error {
	s.mu.Lock()
	if f, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f := &fetch{done: make(chan struct{})}
	s.inflight[key] = f
	s.mu.Unlock()

	f.err = s.fetch(ctx, key)
	close(f.done)

	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	return f.err
}

func (s *CachingStore) fetch(ctx context.Context, key string) error {
	// A concurrent ensure may have landed the artifact already.
	if b, err := s.local.Open(ctx, key); err == nil {
		return b.Close()
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	b, err := s.remote.Open(ctx, key)
	if err != nil {
		return fmt.Errorf("blobstore: fetch %q: %w", key, err)
	}
	defer b.Close()

	data, err := readAll(ctx, b)
	if err != nil {
		return fmt.Errorf("blobstore: fetch %q: %w", key, err)
	}
	return s.local.Put(ctx, key, data)
}

// Put publishes to the remote and drops any stale local copy under the same
// key, so the next Open re-fetches.
func (s *CachingStore) Put(ctx context.Context, key string, data []byte) error {
	if err := s.remote.Put(ctx, key, data); err != nil {
		return err
	}
	return s.local.Delete(ctx, key)
}

// Delete removes the artifact from the remote and the local mirror.
func (s *CachingStore) Delete(ctx context.Context, key string) error {
	if err := s.remote.Delete(ctx, key); err != nil {
		return err
	}
	return s.local.Delete(ctx, key)
}

// List lists the remote, which is authoritative.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.remote.List(ctx, prefix)
}

// readAll reads a blob's full contents, zero-copy source permitting.
func readAll(ctx context.Context, b Blob) ([]byte, error) {
	if m, ok := b.(Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil
	}
	data := make([]byte, b.Size())
	if _, err := b.ReadAt(ctx, data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}
