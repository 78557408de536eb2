package format

// KnownProtocolKind enumerates the protocols the compiler itself reaches for,
// mostly literal-convertibility and iteration. The index block records, per
// kind, which declarations in the module conform, so importers can find them
// without name lookups. 4 bits on the wire.
type KnownProtocolKind uint8

const (
	// KnownForceLoad is not a protocol. Its conformer list names the
	// declarations a loader must materialize eagerly when the module is
	// attached.
	KnownForceLoad KnownProtocolKind = iota

	KnownArrayBound
	KnownSequence
	KnownIterator
	KnownLogicValue
	KnownArrayLiteral
	KnownCharLiteral
	KnownDictLiteral
	KnownFloatLiteral
	KnownIntLiteral
	KnownStringInterpolation
	KnownStringLiteral
	KnownBuiltinCharLiteral
	KnownBuiltinFloatLiteral
	KnownBuiltinIntLiteral
	KnownBuiltinStringLiteral

	// NumKnownProtocolKinds bounds the enum; it is not a wire value.
	NumKnownProtocolKinds
)

func (k KnownProtocolKind) Valid() bool { return k < NumKnownProtocolKinds }

func (k KnownProtocolKind) String() string {
	names := [...]string{
		"force-load",
		"ArrayBound",
		"Sequence",
		"Iterator",
		"LogicValue",
		"ArrayLiteral",
		"CharLiteral",
		"DictLiteral",
		"FloatLiteral",
		"IntLiteral",
		"StringInterpolation",
		"StringLiteral",
		"BuiltinCharLiteral",
		"BuiltinFloatLiteral",
		"BuiltinIntLiteral",
		"BuiltinStringLiteral",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "invalid"
}
