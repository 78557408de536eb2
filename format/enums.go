package format

// The enums below cross the serialization boundary. Their numeric values are
// part of the format; reordering or renumbering is a major version change.
// Each has a Valid method the reader uses before trusting a decoded value.

// CallingConvention describes how a function type is invoked. 2 bits.
type CallingConvention uint8

const (
	ConventionC CallingConvention = iota
	ConventionForeignMethod
	ConventionFreestanding
	ConventionMethod
)

func (c CallingConvention) Valid() bool { return c <= ConventionMethod }

func (c CallingConvention) String() string {
	switch c {
	case ConventionC:
		return "c"
	case ConventionForeignMethod:
		return "foreign-method"
	case ConventionFreestanding:
		return "freestanding"
	case ConventionMethod:
		return "method"
	}
	return "invalid"
}

// XRefKind discriminates what a cross-reference names. 2 bits.
type XRefKind uint8

const (
	XRefValue XRefKind = iota
	XRefOperator
	XRefGenericParameter
)

func (k XRefKind) Valid() bool { return k <= XRefGenericParameter }

// OperatorKind is the fixity of an operator declaration. 2 bits.
type OperatorKind uint8

const (
	OperatorInfix OperatorKind = iota
	OperatorPrefix
	OperatorPostfix
)

func (k OperatorKind) Valid() bool { return k <= OperatorPostfix }

func (k OperatorKind) String() string {
	switch k {
	case OperatorInfix:
		return "infix"
	case OperatorPrefix:
		return "prefix"
	case OperatorPostfix:
		return "postfix"
	}
	return "invalid"
}

// RequirementKind discriminates generic requirements. 1 bit.
type RequirementKind uint8

const (
	RequirementConformance RequirementKind = iota
	RequirementSameType
)

func (k RequirementKind) Valid() bool { return k <= RequirementSameType }

// Associativity of an infix operator. 2 bits.
type Associativity uint8

const (
	NonAssociative Associativity = iota
	LeftAssociative
	RightAssociative
)

func (a Associativity) Valid() bool { return a <= RightAssociative }

// Ownership qualifies a reference storage type. 2 bits.
type Ownership uint8

const (
	OwnershipStrong Ownership = iota
	OwnershipWeak
	OwnershipUnowned
)

func (o Ownership) Valid() bool { return o <= OwnershipUnowned }

// DefaultArgumentKind describes a parameter's default value. 3 bits.
type DefaultArgumentKind uint8

const (
	DefaultArgumentNone DefaultArgumentKind = iota
	DefaultArgumentNormal
	DefaultArgumentFile
	DefaultArgumentLine
	DefaultArgumentColumn
)

func (k DefaultArgumentKind) Valid() bool { return k <= DefaultArgumentColumn }

// LibraryKind distinguishes plain libraries from frameworks in link
// dependency records. 1 bit.
type LibraryKind uint8

const (
	LibraryPlain LibraryKind = iota
	LibraryFramework
)

func (k LibraryKind) Valid() bool { return k <= LibraryFramework }

// CompressionKind selects the identifier pool compression. 2 bits.
type CompressionKind uint8

const (
	CompressionNone CompressionKind = iota
	CompressionLZ4
	CompressionZstd
)

func (k CompressionKind) Valid() bool { return k <= CompressionZstd }

func (k CompressionKind) String() string {
	switch k {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	}
	return "invalid"
}
