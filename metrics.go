package cruxmod

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordWrite is called after each module serialization. decls and
	// types are the node counts written, bytes the container size,
	// err nil if successful.
	RecordWrite(decls, types int, bytes int64, duration time.Duration, err error)

	// RecordOpen is called after each container open.
	RecordOpen(duration time.Duration, err error)

	// RecordMaterialize is called after each declaration or type
	// materialization that was not served from cache.
	RecordMaterialize(duration time.Duration, err error)

	// RecordLookup is called after each name-table lookup. hit reports
	// whether the name was present.
	RecordLookup(hit bool, duration time.Duration)

	// RecordResolve is called after each cross-module reference
	// resolution.
	RecordResolve(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordWrite(int, int, int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordOpen(time.Duration, error)                  {}
func (NoopMetricsCollector) RecordMaterialize(time.Duration, error)           {}
func (NoopMetricsCollector) RecordLookup(bool, time.Duration)                 {}
func (NoopMetricsCollector) RecordResolve(time.Duration, error)               {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	WriteCount            atomic.Int64
	WriteErrors           atomic.Int64
	WriteDecls            atomic.Int64
	WriteTypes            atomic.Int64
	WriteBytes            atomic.Int64
	WriteTotalNanos       atomic.Int64
	OpenCount             atomic.Int64
	OpenErrors            atomic.Int64
	MaterializeCount      atomic.Int64
	MaterializeErrors     atomic.Int64
	MaterializeTotalNanos atomic.Int64
	LookupCount           atomic.Int64
	LookupHits            atomic.Int64
	ResolveCount          atomic.Int64
	ResolveErrors         atomic.Int64
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(decls, types int, bytes int64, duration time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.WriteErrors.Add(1)
		return
	}
	b.WriteDecls.Add(int64(decls))
	b.WriteTypes.Add(int64(types))
	b.WriteBytes.Add(bytes)
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(duration time.Duration, err error) {
	b.OpenCount.Add(1)
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordMaterialize implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMaterialize(duration time.Duration, err error) {
	b.MaterializeCount.Add(1)
	b.MaterializeTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MaterializeErrors.Add(1)
	}
}

// RecordLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLookup(hit bool, duration time.Duration) {
	b.LookupCount.Add(1)
	if hit {
		b.LookupHits.Add(1)
	}
}

// RecordResolve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordResolve(duration time.Duration, err error) {
	b.ResolveCount.Add(1)
	if err != nil {
		b.ResolveErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		WriteCount:           b.WriteCount.Load(),
		WriteErrors:          b.WriteErrors.Load(),
		WriteDecls:           b.WriteDecls.Load(),
		WriteTypes:           b.WriteTypes.Load(),
		WriteBytes:           b.WriteBytes.Load(),
		WriteAvgNanos:        avgNanos(b.WriteTotalNanos.Load(), b.WriteCount.Load()),
		OpenCount:            b.OpenCount.Load(),
		OpenErrors:           b.OpenErrors.Load(),
		MaterializeCount:     b.MaterializeCount.Load(),
		MaterializeErrors:    b.MaterializeErrors.Load(),
		MaterializeAvgNanos:  avgNanos(b.MaterializeTotalNanos.Load(), b.MaterializeCount.Load()),
		LookupCount:          b.LookupCount.Load(),
		LookupHits:           b.LookupHits.Load(),
		ResolveCount:         b.ResolveCount.Load(),
		ResolveErrors:        b.ResolveErrors.Load(),
	}
}

func avgNanos(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	WriteCount          int64
	WriteErrors         int64
	WriteDecls          int64
	WriteTypes          int64
	WriteBytes          int64
	WriteAvgNanos       int64
	OpenCount           int64
	OpenErrors          int64
	MaterializeCount    int64
	MaterializeErrors   int64
	MaterializeAvgNanos int64
	LookupCount         int64
	LookupHits          int64
	ResolveCount        int64
	ResolveErrors       int64
}
