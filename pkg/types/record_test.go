package types

import "testing"

func TestNewRecordHoldsPositionalValues(t *testing.T) {
	vals := []Value{Float(1.5), Text("front"), Null()}
	rec := NewRecord(42, vals)

	if rec.Timestamp != 42 {
		t.Fatalf("Timestamp = %d, want 42", rec.Timestamp)
	}
	if len(rec.Values) != 3 {
		t.Fatalf("len(Values) = %d, want 3", len(rec.Values))
	}
	if rec.Values[0].Float64() != 1.5 || rec.Values[1].Str() != "front" {
		t.Fatalf("values not stored positionally: %v", rec.Values)
	}
	if !rec.Values[2].IsNull() {
		t.Fatal("third value should be null")
	}
}

func TestEmptyRecordIsAllNull(t *testing.T) {
	rec := EmptyRecord(7, 4)

	if rec.Timestamp != 7 {
		t.Fatalf("Timestamp = %d, want 7", rec.Timestamp)
	}
	if len(rec.Values) != 4 {
		t.Fatalf("len(Values) = %d, want 4", len(rec.Values))
	}
	for i, v := range rec.Values {
		if !v.IsNull() {
			t.Fatalf("Values[%d] kind = %v, want null", i, v.Kind())
		}
	}
}

func TestRecordValueLookup(t *testing.T) {
	schema := NewSchema("test", []ColumnDef{
		{Name: "latitude", Type: ColumnFloat},
		{Name: "status", Type: ColumnInteger, Nullable: true},
	})
	rec := NewRecord(100, []Value{Float(48.85), Integer(2)})

	if got := rec.Value(schema, "latitude"); got.Float64() != 48.85 {
		t.Fatalf("latitude = %v, want 48.85", got)
	}
	if got := rec.Value(schema, TimestampColumn); got.Int() != 100 {
		t.Fatalf("timestamp column = %v, want 100", got)
	}
	if got := rec.Value(schema, "no_such_column"); !got.IsNull() {
		t.Fatalf("unknown column = %v, want null", got)
	}
}
