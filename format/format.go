// Package format pins the on-disk schema of Crux serialized modules: the
// file magic, the format version pair, the ID spaces, block IDs, record tags,
// per-tag field layouts, and the enums whose wire values must never move.
//
// Everything here is data, not behavior. The engine in the root package and
// the container layer consume these tables; nothing in this package touches
// the wire itself. Any change that is not purely additive requires a major
// version bump.
package format

// Magic identifies a Crux serialized module file. It occupies the first four
// bytes; the bitstream starts immediately after, and every bit offset stored
// in the file is relative to that point.
var Magic = [4]byte{0x43, 0x52, 0x58, 0x4D} // "CRXM"

const (
	// VersionMajor changes when the format changes incompatibly. Readers
	// reject any container whose major version differs from their own.
	VersionMajor = 1

	// VersionMinor changes when record kinds or blocks are added in a way
	// older readers can skip. Readers accept newer minor versions.
	VersionMinor = 0
)

// IDWidth is the wire width of DeclID, TypeID, IdentifierID and BitOffset
// fields. The top bit of the containing 32-bit value is always zero.
const IDWidth = 31

// MaxID is the largest assignable ID in any space.
const MaxID = 1<<IDWidth - 1

// DeclID references a declaration within a single container. 0 is the null
// reference. IDs are dense and assigned in first-visit order starting at 1;
// they carry no meaning across containers.
type DeclID uint32

// NoDecl is the null DeclID.
const NoDecl DeclID = 0

// IsValid reports whether the ID references a declaration.
func (id DeclID) IsValid() bool { return id != NoDecl }

// TypeID references a type within a single container. 0 is the null
// reference.
type TypeID uint32

// NoType is the null TypeID.
const NoType TypeID = 0

// IsValid reports whether the ID references a type.
func (id TypeID) IsValid() bool { return id != NoType }

// IdentifierID references a string in the identifier pool. 0 is the empty
// string and has no pool entry.
type IdentifierID uint32

// NoIdentifier is the IdentifierID of the empty string.
const NoIdentifier IdentifierID = 0

// IsValid reports whether the ID references a pooled identifier.
func (id IdentifierID) IsValid() bool { return id != NoIdentifier }

// BitOffset locates a record inside the bitstream, in bits from the start of
// the stream (file offset 4). Offsets are stored in 31-bit fields, which
// bounds a container at 2^31 bits; the writer enforces the bound.
type BitOffset uint32

// BlockID names a top-level or nested block.
type BlockID uint32

const (
	// FirstApplicationBlock is the lowest block ID available to the module
	// format; lower values are reserved for container infrastructure.
	FirstApplicationBlock BlockID = 8

	// BlockControl holds the version gate and module identity. It must be
	// the first block in every container.
	BlockControl BlockID = 8

	// BlockInput lists what went into the module: source files, imported
	// modules, libraries to link.
	BlockInput BlockID = 9

	// BlockDeclsAndTypes holds every serialized declaration, type, pattern,
	// generic and conformance record, addressed by bit offset.
	BlockDeclsAndTypes BlockID = 10

	// BlockIdentifierData holds the string pool.
	BlockIdentifierData BlockID = 11

	// BlockIndex holds the ID offset tables and the name lookup tables. The
	// writer emits it last.
	BlockIndex BlockID = 12

	// BlockKnownProtocols nests inside BlockIndex and lists, per well-known
	// protocol, the declarations conforming to it.
	BlockKnownProtocols BlockID = 64

	// BlockFallbackToSource is an empty marker block. Its presence means the
	// producer could not serialize the module and consumers must rebuild
	// from the source files listed in the input block.
	BlockFallbackToSource BlockID = 100
)

// BlockName returns a human-readable name for diagnostics.
func BlockName(id BlockID) string {
	switch id {
	case BlockControl:
		return "control"
	case BlockInput:
		return "input"
	case BlockDeclsAndTypes:
		return "decls-and-types"
	case BlockIdentifierData:
		return "identifier-data"
	case BlockIndex:
		return "index"
	case BlockKnownProtocols:
		return "known-protocols"
	case BlockFallbackToSource:
		return "fallback-to-source"
	}
	return "unknown"
}

// SkipsUnknownRecords reports the forward-compatibility policy for a block:
// whether a reader may skip raw records with unknown tags, or must treat
// them as corruption. The declarations block is strict because an unread
// record there would leave a hole in the graph.
func SkipsUnknownRecords(id BlockID) bool {
	switch id {
	case BlockControl, BlockInput, BlockIdentifierData, BlockIndex, BlockKnownProtocols:
		return true
	}
	return false
}
