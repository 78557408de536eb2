package cruxmod

import (
	"log/slog"

	"github.com/crux-lang/cruxmod/format"
)

type options struct {
	producer         string
	compression      format.CompressionKind
	resolver         Resolver
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures writer and reader behavior.
type Option func(*options)

// WithProducer sets the producer string recorded in the control block,
// typically the compiler name and version. It overrides the module's own
// Producer field.
func WithProducer(producer string) Option {
	return func(o *options) {
		o.producer = producer
	}
}

// WithCompression selects the identifier pool compression. The writer falls
// back to no compression when the pool does not shrink. Readers ignore this
// option; the kind used is recorded in the container.
func WithCompression(kind format.CompressionKind) Option {
	return func(o *options) {
		if !kind.Valid() {
			kind = format.CompressionNone
		}
		o.compression = kind
	}
}

// WithResolver configures cross-module reference resolution. Without one,
// materializing a cross-reference fails with ErrNoResolver. The Loader
// installs itself here on every reader it opens.
func WithResolver(r Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		compression:      format.CompressionNone,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	return o
}
