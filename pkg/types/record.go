package types

// TimestampColumn is the implicit column name carrying a record's timestamp.
// Every topic exposes it for queries and chunk statistics regardless of
// ontology type.
const TimestampColumn = "message_timestamp"

// Record is one decoded row of a topic stream. Values are positional and
// aligned with the owning schema's column order.
type Record struct {
	// Timestamp is nanoseconds since the Unix epoch.
	Timestamp int64

	// Values holds one Value per schema column.
	Values []Value
}

// NewRecord builds a record over the given positional values.
func NewRecord(ts int64, values []Value) Record {
	return Record{Timestamp: ts, Values: values}
}

// EmptyRecord allocates a record with a null value per column.
func EmptyRecord(ts int64, columns int) Record {
	return Record{Timestamp: ts, Values: make([]Value, columns)}
}

// Value returns the cell at the schema index of the named column.
// Returns the null value for unknown columns or TimestampColumn as an
// integer.
func (r Record) Value(s *Schema, column string) Value {
	if column == TimestampColumn {
		return Integer(r.Timestamp)
	}
	idx := s.ColumnIndex(column)
	if idx < 0 || idx >= len(r.Values) {
		return Null()
	}
	return r.Values[idx]
}
