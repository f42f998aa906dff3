package query

import (
	"strings"

	"github.com/mosaicolabs/mosaico/internal/catalog"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Matches evaluates the query against one record. Conditions are a
// conjunction; a null cell never satisfies any condition, including
// $neq.
func (q *Query) Matches(schema *types.Schema, rec types.Record) bool {
	for _, c := range q.Conds {
		if !condMatches(schema, rec, c) {
			return false
		}
	}
	return true
}

func condMatches(schema *types.Schema, rec types.Record, c Cond) bool {
	cell := cellValue(schema, rec, c.Column)
	if cell.IsNull() {
		return false
	}

	if c.Op == catalog.OpMatch {
		if cell.Kind() != types.KindText {
			return false
		}
		return strings.Contains(cell.Str(), c.Args[0].Str())
	}

	if f, ok := cell.AsFloat(); ok {
		return numericMatches(f, c)
	}
	if cell.Kind() == types.KindText {
		return literalMatches(cell.Str(), c)
	}
	// Boolean and bytes cells support equality only.
	return exactMatches(cell, c)
}

func cellValue(schema *types.Schema, rec types.Record, column string) types.Value {
	if column == types.TimestampColumn {
		return types.Integer(rec.Timestamp)
	}
	i := schema.ColumnIndex(column)
	if i < 0 || i >= len(rec.Values) {
		return types.Null()
	}
	return rec.Values[i]
}

func numericMatches(v float64, c Cond) bool {
	arg := func(i int) (float64, bool) { return c.Args[i].AsFloat() }
	switch c.Op {
	case catalog.OpEq:
		a, ok := arg(0)
		return ok && v == a
	case catalog.OpNeq:
		a, ok := arg(0)
		return ok && v != a
	case catalog.OpLt:
		a, ok := arg(0)
		return ok && v < a
	case catalog.OpLeq:
		a, ok := arg(0)
		return ok && v <= a
	case catalog.OpGt:
		a, ok := arg(0)
		return ok && v > a
	case catalog.OpGeq:
		a, ok := arg(0)
		return ok && v >= a
	case catalog.OpBetween:
		lo, okLo := arg(0)
		hi, okHi := arg(1)
		return okLo && okHi && v >= lo && v <= hi
	case catalog.OpIn:
		for i := range c.Args {
			if a, ok := arg(i); ok && v == a {
				return true
			}
		}
	}
	return false
}

func literalMatches(v string, c Cond) bool {
	arg := func(i int) string { return c.Args[i].Canonical() }
	switch c.Op {
	case catalog.OpEq:
		return v == arg(0)
	case catalog.OpNeq:
		return v != arg(0)
	case catalog.OpLt:
		return v < arg(0)
	case catalog.OpLeq:
		return v <= arg(0)
	case catalog.OpGt:
		return v > arg(0)
	case catalog.OpGeq:
		return v >= arg(0)
	case catalog.OpBetween:
		return v >= arg(0) && v <= arg(1)
	case catalog.OpIn:
		for i := range c.Args {
			if v == arg(i) {
				return true
			}
		}
	}
	return false
}

func exactMatches(cell types.Value, c Cond) bool {
	switch c.Op {
	case catalog.OpEq:
		return cell.Canonical() == c.Args[0].Canonical()
	case catalog.OpNeq:
		return cell.Canonical() != c.Args[0].Canonical()
	case catalog.OpIn:
		for _, a := range c.Args {
			if cell.Canonical() == a.Canonical() {
				return true
			}
		}
	}
	return false
}
