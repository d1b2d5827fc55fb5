package wire

import (
	"errors"

	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
)

// OperationKind names which of the five wire operations a request carries.
// Values match the wire tag strings exactly.
type OperationKind string

const (
	OpOut     OperationKind = "Out"
	OpInBl    OperationKind = "InBl"
	OpRdBl    OperationKind = "RdBl"
	OpInNonBl OperationKind = "InNonBl"
	OpRdNonBl OperationKind = "RdNonBl"
)

// Operation is a decoded client request: which primitive to invoke, and the
// tuple (data for Out, template for the reads) it carries.
type Operation struct {
	Kind  OperationKind
	Tuple tuplespace.Tuple
}

func operationKindFromTag(tag string) (OperationKind, bool) {
	switch OperationKind(tag) {
	case OpOut, OpInBl, OpRdBl, OpInNonBl, OpRdNonBl:
		return OperationKind(tag), true
	default:
		return "", false
	}
}

// IsBlocking reports whether this operation's read semantics are blocking
// (InBl/RdBl) rather than immediate (Out/InNonBl/RdNonBl).
func (k OperationKind) IsBlocking() bool {
	return k == OpInBl || k == OpRdBl
}

// IsDestructive reports whether this operation removes matched tuples
// (InBl/InNonBl) rather than merely reading them (RdBl/RdNonBl). Out is
// neither a read nor relevant to this distinction.
func (k OperationKind) IsDestructive() bool {
	return k == OpInBl || k == OpInNonBl
}

// errorFromDomain maps a non-nil Space domain error to its wire Error tag.
// Any error not among the four domain sentinels maps to ErrorInternal —
// this is the encoding/decoding failure, transport failure, invariant
// violation catch-all.
func errorFromDomain(err error) Error {
	switch {
	case errors.Is(err, tuplespace.ErrTupleAlreadyPresent):
		return ErrorTupleAlreadyPresent
	case errors.Is(err, tuplespace.ErrTupleNotOnlyData):
		return ErrorTupleNotOnlyData
	case errors.Is(err, tuplespace.ErrTupleOnlyData):
		return ErrorTupleOnlyData
	case errors.Is(err, tuplespace.ErrNoMatchingTuple):
		return ErrorNoMatchingTuple
	default:
		return ErrorInternal
	}
}
