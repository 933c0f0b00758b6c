package merkle

import "errors"

// Sentinel errors for the merkle engine. All are deterministic: retrying
// the same call yields the same error.
var (
	// ErrEmptyInput is returned by Build when the file batch is empty.
	ErrEmptyInput = errors.New("cannot build merkle tree from empty input")

	// ErrIndexOutOfRange is returned when a leaf index falls outside
	// [0, leafCount-1].
	ErrIndexOutOfRange = errors.New("leaf index out of range")

	// ErrNoTree is returned when proof generation is requested on a nil or
	// empty tree.
	ErrNoTree = errors.New("no merkle tree present")

	// ErrMalformedProof is returned by Verify when a proof is structurally
	// inconsistent: a sibling range not adjacent to the accumulated range, or
	// an undecodable digest. A well-formed proof that simply fails to match
	// the root returns (false, nil) instead.
	ErrMalformedProof = errors.New("malformed merkle proof")
)
