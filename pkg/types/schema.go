package types

// ColumnType is the logical type of a schema column.
type ColumnType string

const (
	ColumnInteger ColumnType = "INTEGER"
	ColumnFloat   ColumnType = "FLOAT"
	ColumnText    ColumnType = "TEXT"
	ColumnBoolean ColumnType = "BOOLEAN"
	ColumnBytes   ColumnType = "BYTES"
)

// Numeric reports whether the column type participates in numeric
// min/max statistics.
func (t ColumnType) Numeric() bool {
	return t == ColumnInteger || t == ColumnFloat
}

// Literal reports whether the column type participates in lexicographic
// min/max statistics.
func (t ColumnType) Literal() bool {
	return t == ColumnText
}

// ColumnDef defines a single column in a schema.
type ColumnDef struct {
	// Name is the column name, unique within the schema
	Name string `json:"name"`

	// Type is the logical column type
	Type ColumnType `json:"type"`

	// Nullable indicates whether the column can contain null values
	Nullable bool `json:"nullable"`
}

// Schema is the ordered column list of one ontology type.
type Schema struct {
	// Tag identifies the ontology type this schema describes
	Tag string `json:"tag"`

	// Columns defines the columns in schema order
	Columns []ColumnDef `json:"columns"`

	index map[string]int
}

// NewSchema builds a schema and its column lookup index.
func NewSchema(tag string, columns []ColumnDef) *Schema {
	s := &Schema{Tag: tag, Columns: columns}
	s.buildIndex()
	return s
}

func (s *Schema) buildIndex() {
	s.index = make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		s.index[c.Name] = i
	}
}

// ColumnIndex returns the position of the named column, or -1.
func (s *Schema) ColumnIndex(name string) int {
	if s.index == nil {
		s.buildIndex()
	}
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

// Column returns the definition of the named column.
func (s *Schema) Column(name string) (ColumnDef, bool) {
	i := s.ColumnIndex(name)
	if i < 0 {
		return ColumnDef{}, false
	}
	return s.Columns[i], true
}
