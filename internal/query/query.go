// Package query builds and evaluates record filters. A query is a
// conjunction of field conditions over one ontology type; it is lowered
// to pruning conditions for the chunk pruner and evaluated row by row
// against the surviving chunks.
package query

import (
	"fmt"

	"github.com/mosaicolabs/mosaico/internal/catalog"
	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/internal/ontology"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Cond is one validated field condition.
type Cond struct {
	// FieldKey is the user-supplied dotted key, e.g. "gps.latitude".
	FieldKey string
	// Column is the schema column the key resolved to.
	Column string
	Op     catalog.Op
	Args   []types.Value
}

// Query is a validated conjunction of conditions over one ontology type.
type Query struct {
	Tag   string
	Conds []Cond
}

// Empty reports whether the query has no conditions and matches
// everything.
func (q *Query) Empty() bool { return len(q.Conds) == 0 }

// PruneConditions lowers the query for the chunk pruner.
func (q *Query) PruneConditions() []catalog.Condition {
	out := make([]catalog.Condition, 0, len(q.Conds))
	for _, c := range q.Conds {
		out = append(out, catalog.Condition{Column: c.Column, Op: c.Op, Args: c.Args})
	}
	return out
}

// Builder accumulates conditions fluently and validates them against the
// ontology registry. The first error sticks: later calls are no-ops and
// Build returns it.
type Builder struct {
	reg   *ontology.Registry
	tag   string
	conds []Cond
	seen  map[string]bool
	err   error
}

// NewBuilder creates a builder against an ontology registry.
func NewBuilder(reg *ontology.Registry) *Builder {
	return &Builder{reg: reg, seen: make(map[string]bool)}
}

// Where adds one condition on a dotted field key. Arguments are plain Go
// values (int, int64, float64, string, bool, []byte) converted to the
// value model.
func (b *Builder) Where(key string, op catalog.Op, args ...interface{}) *Builder {
	if b.err != nil {
		return b
	}

	tag, col, err := b.resolve(key)
	if err != nil {
		b.err = err
		return b
	}
	if b.tag == "" {
		b.tag = tag
	} else if b.tag != tag {
		b.err = errors.NewValidationError(errors.CodeMixedOntology,
			fmt.Sprintf("field %q has ontology type %q, query is over %q", key, tag, b.tag))
		return b
	}
	if b.seen[key] {
		b.err = errors.NewValidationError(errors.CodeDuplicateFieldPath,
			fmt.Sprintf("field %q appears more than once", key))
		return b
	}

	values, err := convertArgs(key, op, col, args)
	if err != nil {
		b.err = err
		return b
	}

	b.seen[key] = true
	b.conds = append(b.conds, Cond{FieldKey: key, Column: col.Name, Op: op, Args: values})
	return b
}

// Err returns the sticky validation error, if any.
func (b *Builder) Err() error { return b.err }

// Build returns the validated query.
func (b *Builder) Build() (*Query, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Query{Tag: b.tag, Conds: b.conds}, nil
}

func (b *Builder) resolve(key string) (string, types.ColumnDef, error) {
	tag, col, err := b.reg.ResolveField(key)
	if err != nil {
		// Field resolution failures are query validation errors, not
		// catalog lookups.
		return "", types.ColumnDef{}, errors.NewValidationError(errors.CodeUnknownFieldPath,
			fmt.Sprintf("unknown field path %q", key))
	}
	return tag, col, nil
}

// arity returns the argument count contract of an operator; -1 means one
// or more.
func arity(op catalog.Op) (int, bool) {
	switch op {
	case catalog.OpEq, catalog.OpNeq, catalog.OpLt, catalog.OpLeq,
		catalog.OpGt, catalog.OpGeq, catalog.OpMatch:
		return 1, true
	case catalog.OpBetween:
		return 2, true
	case catalog.OpIn:
		return -1, true
	}
	return 0, false
}

func convertArgs(key string, op catalog.Op, col types.ColumnDef, args []interface{}) ([]types.Value, error) {
	want, known := arity(op)
	if !known {
		return nil, errors.NewValidationError(errors.CodeInvalidQuery,
			fmt.Sprintf("unknown operator %q", op))
	}
	if want >= 0 && len(args) != want {
		return nil, errors.NewValidationError(errors.CodeInvalidQuery,
			fmt.Sprintf("%s on %q takes %d arguments, got %d", op, key, want, len(args)))
	}
	if want < 0 && len(args) == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidQuery,
			fmt.Sprintf("%s on %q needs at least one argument", op, key))
	}

	values := make([]types.Value, 0, len(args))
	for _, a := range args {
		v, err := toValue(a)
		if err != nil {
			return nil, errors.NewValidationError(errors.CodeInvalidQuery,
				fmt.Sprintf("argument for %q: %v", key, err))
		}
		if err := checkArgType(key, op, col, v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func toValue(a interface{}) (types.Value, error) {
	switch x := a.(type) {
	case types.Value:
		return x, nil
	case int:
		return types.Integer(int64(x)), nil
	case int32:
		return types.Integer(int64(x)), nil
	case int64:
		return types.Integer(x), nil
	case float32:
		return types.Float(float64(x)), nil
	case float64:
		return types.Float(x), nil
	case string:
		return types.Text(x), nil
	case bool:
		return types.Boolean(x), nil
	case []byte:
		return types.Bytes(x), nil
	case nil:
		return types.Null(), nil
	}
	return types.Value{}, fmt.Errorf("unsupported argument type %T", a)
}

// checkArgType rejects arguments whose kind cannot compare against the
// column type. Integer arguments widen to float columns and vice versa.
func checkArgType(key string, op catalog.Op, col types.ColumnDef, v types.Value) error {
	if v.IsNull() {
		return errors.NewValidationError(errors.CodeInvalidQuery,
			fmt.Sprintf("null argument for %q: null never matches a condition", key))
	}
	if op == catalog.OpMatch {
		if col.Type != types.ColumnText {
			return errors.NewValidationError(errors.CodeInvalidQuery,
				fmt.Sprintf("%s only applies to text fields, %q is %s", op, key, col.Type))
		}
		if v.Kind() != types.KindText {
			return errors.NewValidationError(errors.CodeTypeMismatch,
				fmt.Sprintf("%s on %q needs a string pattern", op, key))
		}
		return nil
	}

	ok := false
	switch col.Type {
	case types.ColumnInteger, types.ColumnFloat:
		_, ok = v.AsFloat()
	case types.ColumnText:
		ok = v.Kind() == types.KindText
	case types.ColumnBoolean:
		ok = v.Kind() == types.KindBoolean
	case types.ColumnBytes:
		ok = v.Kind() == types.KindBytes
	}
	if !ok {
		return errors.NewValidationError(errors.CodeTypeMismatch,
			fmt.Sprintf("argument kind does not match %s field %q", col.Type, key))
	}
	return nil
}
