// Package wire implements the tagged-JSON encoding of the tuple-space
// protocol: Operation, Tuple, Field, Value, Kind, and Error, using the
// exact externally-tagged grammar wire-compatibility requires.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
)

// jsonAPI is a json-iterator instance configured to be a drop-in,
// faster-encoding replacement for encoding/json on the request/response hot
// path, while custom (Un)MarshalJSON methods below still use
// encoding/json.RawMessage for the outer tagged-union envelope (the two are
// wire-compatible).
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind is the wire encoding of tuplespace.Kind: the bare strings "Integer"
// or "String".
type Kind string

const (
	KindInteger Kind = "Integer"
	KindString  Kind = "String"
)

func kindFromDomain(k tuplespace.Kind) (Kind, error) {
	switch k {
	case tuplespace.KindInteger:
		return KindInteger, nil
	case tuplespace.KindString:
		return KindString, nil
	default:
		return "", fmt.Errorf("%w: unknown tuplespace.Kind %v", ErrMalformed, k)
	}
}

func (k Kind) toDomain() (tuplespace.Kind, error) {
	switch k {
	case KindInteger:
		return tuplespace.KindInteger, nil
	case KindString:
		return tuplespace.KindString, nil
	default:
		return 0, fmt.Errorf("%w: unknown wire Kind %q", ErrMalformed, string(k))
	}
}

// Value is the wire encoding of tuplespace.Value: {"Integer":i32} or
// {"String":str}.
type Value struct {
	Integer *int32  `json:"Integer,omitempty"`
	String  *string `json:"String,omitempty"`
}

func valueFromDomain(v tuplespace.Value) (Value, error) {
	switch v.Kind() {
	case tuplespace.KindInteger:
		i := v.Int()
		return Value{Integer: &i}, nil
	case tuplespace.KindString:
		s := v.Str()
		return Value{String: &s}, nil
	default:
		return Value{}, fmt.Errorf("%w: unknown tuplespace.Value kind", ErrMalformed)
	}
}

func (v Value) toDomain() (tuplespace.Value, error) {
	switch {
	case v.Integer != nil && v.String == nil:
		return tuplespace.NewIntegerValue(*v.Integer), nil
	case v.String != nil && v.Integer == nil:
		return tuplespace.NewStringValue(*v.String), nil
	default:
		return tuplespace.Value{}, fmt.Errorf("%w: Value must have exactly one of Integer/String", ErrMalformed)
	}
}

// Field is the wire encoding of tuplespace.Field: {"Value":Value} or
// {"Type":Kind}.
type Field struct {
	Value *Value `json:"Value,omitempty"`
	Type  *Kind  `json:"Type,omitempty"`
}

func fieldFromDomain(f tuplespace.Field) (Field, error) {
	if f.IsConcrete() {
		v, err := valueFromDomain(f.Value())
		if err != nil {
			return Field{}, err
		}
		return Field{Value: &v}, nil
	}
	k, err := kindFromDomain(f.WildcardKind())
	if err != nil {
		return Field{}, err
	}
	return Field{Type: &k}, nil
}

func (f Field) toDomain() (tuplespace.Field, error) {
	switch {
	case f.Value != nil && f.Type == nil:
		v, err := f.Value.toDomain()
		if err != nil {
			return tuplespace.Field{}, err
		}
		return tuplespace.Concrete(v), nil
	case f.Type != nil && f.Value == nil:
		k, err := f.Type.toDomain()
		if err != nil {
			return tuplespace.Field{}, err
		}
		return tuplespace.Wildcard(k), nil
	default:
		return tuplespace.Field{}, fmt.Errorf("%w: Field must have exactly one of Value/Type", ErrMalformed)
	}
}

// Tuple is the wire encoding of tuplespace.Tuple: {"tuples":[Field, ...]}.
type Tuple struct {
	Tuples []Field `json:"tuples"`
}

// TupleFromDomain converts a tuplespace.Tuple to its wire representation.
func TupleFromDomain(t tuplespace.Tuple) (Tuple, error) {
	fields := t.Fields()
	wireFields := make([]Field, len(fields))
	for i, f := range fields {
		wf, err := fieldFromDomain(f)
		if err != nil {
			return Tuple{}, err
		}
		wireFields[i] = wf
	}
	return Tuple{Tuples: wireFields}, nil
}

// ToDomain converts a wire Tuple to a tuplespace.Tuple.
func (t Tuple) ToDomain() (tuplespace.Tuple, error) {
	fields := make([]tuplespace.Field, len(t.Tuples))
	for i, wf := range t.Tuples {
		f, err := wf.toDomain()
		if err != nil {
			return tuplespace.Tuple{}, err
		}
		fields[i] = f
	}
	return tuplespace.NewTuple(fields...), nil
}

// TupleListFromDomain converts a slice of domain tuples for the payload
// frame of a successful read.
func TupleListFromDomain(tuples []tuplespace.Tuple) ([]Tuple, error) {
	out := make([]Tuple, len(tuples))
	for i, t := range tuples {
		wt, err := TupleFromDomain(t)
		if err != nil {
			return nil, err
		}
		out[i] = wt
	}
	return out, nil
}

// Error is the wire encoding of the protocol's error/status sentinel: a
// bare JSON string, one of the constants below.
type Error string

const (
	ErrorNone                Error = "NoError"
	ErrorTupleAlreadyPresent Error = "TupleAlreadyPresentError"
	ErrorTupleNotOnlyData    Error = "TupleNotOnlyDataError"
	ErrorTupleOnlyData       Error = "TupleOnlyDataError"
	ErrorNoMatchingTuple     Error = "NoMatchingTupleError"
	ErrorInternal            Error = "Error"
)

// ErrMalformed is returned when decoding encounters JSON that does not
// conform to the wire grammar. It maps to the wire-level InternalError.
var ErrMalformed = errors.New("wire: malformed message")

// ErrorFromDomain maps a Space domain error to its wire Error value. A nil
// err maps to ErrorNone.
func ErrorFromDomain(err error) Error {
	switch {
	case err == nil:
		return ErrorNone
	default:
		return errorFromDomain(err)
	}
}

// MarshalOperation encodes op as the externally-tagged JSON object the
// grammar describes: {"Out":Tuple}, {"InBl":Tuple}, etc.
func MarshalOperation(op Operation) ([]byte, error) {
	tuple, err := TupleFromDomain(op.Tuple)
	if err != nil {
		return nil, err
	}

	payload, err := jsonAPI.Marshal(tuple)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal tuple: %v", ErrMalformed, err)
	}

	envelope := map[string]json.RawMessage{string(op.Kind): payload}
	out, err := jsonAPI.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal operation envelope: %v", ErrMalformed, err)
	}
	return out, nil
}

// UnmarshalOperation decodes a single-key tagged JSON object into an
// Operation, rejecting anything that isn't exactly one of the five
// recognized tags.
func UnmarshalOperation(data []byte) (Operation, error) {
	var envelope map[string]json.RawMessage
	if err := jsonAPI.Unmarshal(data, &envelope); err != nil {
		return Operation{}, fmt.Errorf("%w: decode operation envelope: %v", ErrMalformed, err)
	}
	if len(envelope) != 1 {
		return Operation{}, fmt.Errorf("%w: operation envelope must have exactly one tag, got %d", ErrMalformed, len(envelope))
	}

	for tag, raw := range envelope {
		kind, ok := operationKindFromTag(tag)
		if !ok {
			return Operation{}, fmt.Errorf("%w: unknown operation tag %q", ErrMalformed, tag)
		}

		var wt Tuple
		if err := jsonAPI.Unmarshal(raw, &wt); err != nil {
			return Operation{}, fmt.Errorf("%w: decode tuple for %q: %v", ErrMalformed, tag, err)
		}

		t, err := wt.ToDomain()
		if err != nil {
			return Operation{}, err
		}

		return Operation{Kind: kind, Tuple: t}, nil
	}

	panic("unreachable: envelope has exactly one entry")
}

// MarshalTupleList encodes the payload frame for a successful read: a bare
// JSON array of Tuple.
func MarshalTupleList(tuples []tuplespace.Tuple) ([]byte, error) {
	wireTuples, err := TupleListFromDomain(tuples)
	if err != nil {
		return nil, err
	}
	out, err := jsonAPI.Marshal(wireTuples)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal tuple list: %v", ErrMalformed, err)
	}
	return out, nil
}

// MarshalError encodes the single-frame Error/status response: a bare JSON
// string.
func MarshalError(e Error) ([]byte, error) {
	out, err := jsonAPI.Marshal(string(e))
	if err != nil {
		return nil, fmt.Errorf("%w: marshal error frame: %v", ErrMalformed, err)
	}
	return out, nil
}
