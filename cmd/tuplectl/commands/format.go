package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// tupleView is the JSON rendering of a tuple: one string per field, integers
// in base 10 and strings as-is (unlike the table rendering, which quotes
// strings via formatTuple).
type tupleView struct {
	Arity  int      `json:"arity"`
	Fields []string `json:"fields"`
}

// formatTuples renders tuples in the requested output format.
func formatTuples(tuples []tuplespace.Tuple, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatTuplesJSON(tuples)
	case formatTable, "":
		return formatTuplesTable(tuples), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatTuplesTable(tuples []tuplespace.Tuple) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ARITY\tFIELDS")

	for _, t := range tuples {
		fmt.Fprintf(w, "%d\t%s\n", t.Arity(), formatTuple(t))
	}

	if err := w.Flush(); err != nil {
		return buf.String()
	}
	return buf.String()
}

func formatTuplesJSON(tuples []tuplespace.Tuple) (string, error) {
	views := make([]tupleView, len(tuples))
	for i, t := range tuples {
		fields := make([]string, t.Arity())
		for j, f := range t.Fields() {
			v := f.Value()
			switch v.Kind() {
			case tuplespace.KindInteger:
				fields[j] = strconv.FormatInt(int64(v.Int()), 10)
			case tuplespace.KindString:
				fields[j] = v.Str()
			}
		}
		views[i] = tupleView{Arity: t.Arity(), Fields: fields}
	}

	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal tuples: %w", err)
	}
	return string(data) + "\n", nil
}
