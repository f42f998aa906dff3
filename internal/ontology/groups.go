package ontology

import (
	"fmt"

	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// FieldGroup is a named set of columns spliced into a schema at
// construction time. Composition replaces inheritance: a sensor schema is
// its base fields plus whichever optional groups apply.
type FieldGroup struct {
	Name    string
	Columns []types.ColumnDef
}

// Group builds an ad-hoc field group.
func Group(name string, columns ...types.ColumnDef) FieldGroup {
	return FieldGroup{Name: name, Columns: columns}
}

// HeaderGroup carries the common message header fields.
func HeaderGroup() FieldGroup {
	return FieldGroup{
		Name: "header",
		Columns: []types.ColumnDef{
			{Name: "header.frame_id", Type: types.ColumnText, Nullable: true},
			{Name: "header.seq", Type: types.ColumnInteger, Nullable: true},
		},
	}
}

// CovarianceGroup expands to dim*dim nullable float columns named
// "<field>.covariance_<i>".
func CovarianceGroup(field string, dim int) FieldGroup {
	cols := make([]types.ColumnDef, 0, dim*dim)
	for i := 0; i < dim*dim; i++ {
		cols = append(cols, types.ColumnDef{
			Name:     fmt.Sprintf("%s.covariance_%d", field, i),
			Type:     types.ColumnFloat,
			Nullable: true,
		})
	}
	return FieldGroup{Name: field + ".covariance", Columns: cols}
}

// Vector3Group expands to the x/y/z float components of a named vector.
func Vector3Group(field string) FieldGroup {
	return FieldGroup{
		Name: field,
		Columns: []types.ColumnDef{
			{Name: field + ".x", Type: types.ColumnFloat},
			{Name: field + ".y", Type: types.ColumnFloat},
			{Name: field + ".z", Type: types.ColumnFloat},
		},
	}
}

// QuaternionGroup expands to the x/y/z/w float components of a rotation.
func QuaternionGroup(field string) FieldGroup {
	g := Vector3Group(field)
	g.Columns = append(g.Columns, types.ColumnDef{Name: field + ".w", Type: types.ColumnFloat})
	return g
}

// Compose splices field groups into one schema, rejecting duplicate
// column names across groups.
func Compose(tag string, groups ...FieldGroup) (*types.Schema, error) {
	seen := make(map[string]string)
	var cols []types.ColumnDef
	for _, g := range groups {
		for _, c := range g.Columns {
			if prev, ok := seen[c.Name]; ok {
				return nil, errors.NewValidationError(errors.CodeInvalidArgument,
					fmt.Sprintf("column %q appears in groups %q and %q of tag %q", c.Name, prev, g.Name, tag))
			}
			seen[c.Name] = g.Name
			cols = append(cols, c)
		}
	}
	return types.NewSchema(tag, cols), nil
}

// mustCompose panics on invalid built-in definitions; used only at init.
func mustCompose(tag string, groups ...FieldGroup) *types.Schema {
	s, err := Compose(tag, groups...)
	if err != nil {
		panic(err)
	}
	return s
}
