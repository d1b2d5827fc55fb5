package tuplespace_test

import (
	"errors"
	"testing"

	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
)

func intTuple(vals ...int32) tuplespace.Tuple {
	fields := make([]tuplespace.Field, len(vals))
	for i, v := range vals {
		fields[i] = tuplespace.Concrete(tuplespace.NewIntegerValue(v))
	}
	return tuplespace.NewTuple(fields...)
}

func TestTupleIsDataOnly(t *testing.T) {
	data := intTuple(1, 2)
	if !data.IsDataOnly() {
		t.Error("all-concrete tuple should be data-only")
	}

	template := tuplespace.NewTuple(
		tuplespace.Concrete(tuplespace.NewIntegerValue(1)),
		tuplespace.Wildcard(tuplespace.KindInteger),
	)
	if template.IsDataOnly() {
		t.Error("tuple with a wildcard should not be data-only")
	}
}

func TestTupleEqual(t *testing.T) {
	a := intTuple(1, 2, 3)
	b := intTuple(1, 2, 3)
	c := intTuple(1, 2, 4)
	d := intTuple(1, 2)

	if !a.Equal(b) {
		t.Error("identical tuples should be equal")
	}
	if a.Equal(c) {
		t.Error("tuples differing in one field should not be equal")
	}
	if a.Equal(d) {
		t.Error("tuples of different arity should not be equal")
	}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		template tuplespace.Tuple
		data     tuplespace.Tuple
		want     bool
	}{
		{
			name:     "exact concrete match",
			template: intTuple(5, 2),
			data:     intTuple(5, 2),
			want:     true,
		},
		{
			name:     "concrete mismatch",
			template: intTuple(5, 2),
			data:     intTuple(5, 3),
			want:     false,
		},
		{
			name: "wildcard kind match",
			template: tuplespace.NewTuple(
				tuplespace.Wildcard(tuplespace.KindInteger),
				tuplespace.Concrete(tuplespace.NewIntegerValue(2)),
			),
			data: intTuple(99, 2),
			want: true,
		},
		{
			name: "wildcard kind mismatch",
			template: tuplespace.NewTuple(
				tuplespace.Wildcard(tuplespace.KindString),
				tuplespace.Concrete(tuplespace.NewIntegerValue(2)),
			),
			data: intTuple(99, 2),
			want: false,
		},
		{
			name:     "arity mismatch",
			template: intTuple(1),
			data:     intTuple(1, 2),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tuplespace.Matches(tt.template, tt.data)
			if err != nil {
				t.Fatalf("Matches() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchesRejectsTemplateData(t *testing.T) {
	template := tuplespace.NewTuple(tuplespace.Wildcard(tuplespace.KindInteger))
	badData := tuplespace.NewTuple(tuplespace.Wildcard(tuplespace.KindInteger))

	_, err := tuplespace.Matches(template, badData)
	if !errors.Is(err, tuplespace.ErrInvariantViolation) {
		t.Errorf("Matches() error = %v, want ErrInvariantViolation", err)
	}
}
