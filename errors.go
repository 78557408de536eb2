package cruxmod

import (
	"errors"
	"fmt"
	"strings"

	"github.com/crux-lang/cruxmod/container"
	"github.com/crux-lang/cruxmod/format"
)

var (
	// ErrInvalidMagic is returned when a buffer does not start with the
	// serialized-module magic.
	ErrInvalidMagic = errors.New("not a serialized module")

	// ErrStaleModule is returned when a container carries the
	// fallback-to-source marker instead of a declaration graph. The module
	// must be rebuilt from its sources.
	ErrStaleModule = errors.New("module must be rebuilt from source")

	// ErrNotFound is returned when a name lookup has no match.
	ErrNotFound = errors.New("not found")

	// ErrNoResolver is returned when a cross-module reference is
	// materialized on a reader that has no Resolver configured.
	ErrNoResolver = errors.New("no resolver configured")
)

// FormatVersionError reports a container whose major format version this
// build cannot read or write.
type FormatVersionError struct {
	Major uint16
	Minor uint16
}

func (e *FormatVersionError) Error() string {
	return fmt.Sprintf("unsupported module format version %d.%d (this build speaks %d.%d)",
		e.Major, e.Minor, format.VersionMajor, format.VersionMinor)
}

// StaleModuleError carries the rebuild inputs of a fallback container. It
// unwraps to ErrStaleModule.
type StaleModuleError struct {
	Module      string
	SourceFiles []string
}

func (e *StaleModuleError) Error() string {
	if len(e.SourceFiles) == 0 {
		return fmt.Sprintf("module %q must be rebuilt from source", e.Module)
	}
	return fmt.Sprintf("module %q must be rebuilt from source (%d source files)",
		e.Module, len(e.SourceFiles))
}

func (e *StaleModuleError) Unwrap() error { return ErrStaleModule }

// ConsistencyError reports an internal writer invariant violation: an ID was
// referenced by some record but its node was never emitted, or a node was
// emitted twice. It indicates a bug in the serializer or a graph mutated
// during serialization, never bad input bytes.
type ConsistencyError struct {
	Space  string // "decl", "type", "identifier"
	ID     uint32
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("serializer consistency: %s ID %d %s", e.Space, e.ID, e.Reason)
}

// ResolutionError reports a cross-module reference that could not be
// resolved: the target module is unavailable, a path component is missing,
// or the type filter eliminated every candidate.
//
// The underlying error (if any) can be accessed via errors.Unwrap.
type ResolutionError struct {
	Module string
	Path   []string
	Reason string
	cause  error
}

func (e *ResolutionError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("cannot resolve reference into module %q: %s", e.Module, e.Reason)
	}
	return fmt.Sprintf("cannot resolve %s in module %q: %s",
		strings.Join(e.Path, "."), e.Module, e.Reason)
}

func (e *ResolutionError) Unwrap() error { return e.cause }

// NewResolutionError builds a ResolutionError wrapping cause. It is exported
// for Resolver implementations.
func NewResolutionError(module string, path []string, reason string, cause error) *ResolutionError {
	return &ResolutionError{Module: module, Path: path, Reason: reason, cause: cause}
}

// corruptf and corruptErr report malformed container data at a bit offset.
// They produce the container package's CorruptionError so every corruption
// failure in a session, whatever the layer, matches container.ErrCorrupt.

func corruptf(offset uint64, msg string, args ...any) error {
	return &container.CorruptionError{Offset: offset, Reason: fmt.Sprintf(msg, args...)}
}

func corruptErr(offset uint64, err error, reason string) error {
	return &container.CorruptionError{Offset: offset, Reason: reason, Err: err}
}
