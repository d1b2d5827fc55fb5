package tuplespace

import (
	"errors"
	"strings"
)

// ErrInvariantViolation indicates that Matches was asked to match against a
// right-hand side that was not data-only. The space never stores templates,
// so observing this means an invariant was broken upstream of the call; it
// maps to the wire-level InternalError.
var ErrInvariantViolation = errors.New("tuplespace: match target is not data-only")

// Tuple is an ordered sequence of fields. Its length is its arity. A Tuple
// is data-only iff every field is Concrete; otherwise it is a template used
// only to query the space, never stored in it.
type Tuple struct {
	fields []Field
}

// NewTuple builds a Tuple from its ordered fields.
func NewTuple(fields ...Field) Tuple {
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return Tuple{fields: cp}
}

// Arity returns the number of fields in the tuple.
func (t Tuple) Arity() int { return len(t.fields) }

// Field returns the field at position i.
func (t Tuple) Field(i int) Field { return t.fields[i] }

// Fields returns a copy of the tuple's fields, safe for the caller to hold.
func (t Tuple) Fields() []Field {
	cp := make([]Field, len(t.fields))
	copy(cp, t.fields)
	return cp
}

// IsDataOnly reports whether every field in the tuple is Concrete.
func (t Tuple) IsDataOnly() bool {
	for _, f := range t.fields {
		if f.IsWildcard() {
			return false
		}
	}
	return true
}

// Equal reports field-by-field structural equality. Tuples of different
// arity are never equal.
func Equal(a, b Tuple) bool {
	if len(a.fields) != len(b.fields) {
		return false
	}
	for i := range a.fields {
		if !a.fields[i].Equal(b.fields[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether t and other are field-by-field equal.
func (t Tuple) Equal(other Tuple) bool { return Equal(t, other) }

// Matches reports whether data matches the template: equal arity, and at
// each position either the template field is Concrete and equal to the data
// field, or the template field is a Wildcard whose kind agrees with the data
// field's concrete kind.
//
// Matches returns ErrInvariantViolation if data is not data-only — a stored
// or candidate tuple containing a Wildcard indicates a space invariant
// break upstream of this call.
func Matches(template, data Tuple) (bool, error) {
	if !data.IsDataOnly() {
		return false, ErrInvariantViolation
	}
	if template.Arity() != data.Arity() {
		return false, nil
	}
	for i := range template.fields {
		tf := template.fields[i]
		df := data.fields[i]
		if tf.IsConcrete() {
			if !tf.Value().Equal(df.Value()) {
				return false, nil
			}
			continue
		}
		if tf.WildcardKind() != df.Value().Kind() {
			return false, nil
		}
	}
	return true, nil
}

// Matches reports whether data matches this template.
func (t Tuple) Matches(data Tuple) (bool, error) { return Matches(t, data) }

func (t Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
