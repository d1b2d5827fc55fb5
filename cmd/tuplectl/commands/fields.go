package commands

import (
	"strconv"
	"strings"

	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
)

// parseDataFields converts positional CLI arguments into a data-only tuple.
// Each argument that parses as a base-10 32-bit integer becomes an Integer
// field; everything else is taken verbatim as a String field.
func parseDataFields(args []string) tuplespace.Tuple {
	fields := make([]tuplespace.Field, len(args))
	for i, a := range args {
		fields[i] = tuplespace.Concrete(parseValue(a))
	}
	return tuplespace.NewTuple(fields...)
}

// parseTemplateFields converts positional CLI arguments into a template
// tuple. The tokens "?int" and "?str" produce typed wildcards; any other
// token is parsed the same way parseDataFields parses a concrete field.
func parseTemplateFields(args []string) tuplespace.Tuple {
	fields := make([]tuplespace.Field, len(args))
	for i, a := range args {
		switch a {
		case "?int":
			fields[i] = tuplespace.Wildcard(tuplespace.KindInteger)
		case "?str":
			fields[i] = tuplespace.Wildcard(tuplespace.KindString)
		default:
			fields[i] = tuplespace.Concrete(parseValue(a))
		}
	}
	return tuplespace.NewTuple(fields...)
}

func parseValue(a string) tuplespace.Value {
	if n, err := strconv.ParseInt(a, 10, 32); err == nil {
		return tuplespace.NewIntegerValue(int32(n))
	}
	return tuplespace.NewStringValue(a)
}

// formatTuple renders a tuple as a space-separated list of its field values,
// quoting strings so they are distinguishable from integers. parseDataFields
// does not unquote, so the quoted form is not parsed back to the same tuple.
func formatTuple(t tuplespace.Tuple) string {
	parts := make([]string, t.Arity())
	for i, f := range t.Fields() {
		v := f.Value()
		switch v.Kind() {
		case tuplespace.KindInteger:
			parts[i] = strconv.FormatInt(int64(v.Int()), 10)
		case tuplespace.KindString:
			parts[i] = strconv.Quote(v.Str())
		}
	}
	return strings.Join(parts, " ")
}
