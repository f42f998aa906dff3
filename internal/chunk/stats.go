// Package chunk implements the immutable chunk storage engine: buffering
// records per topic, flushing them as write-once payloads, and computing
// the per-column zone-map statistics submitted to the catalog.
package chunk

import (
	"github.com/mosaicolabs/mosaico/internal/bloom"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// NumericStats holds the zone map of one numeric column in one chunk.
// NaN never enters min/max; it only raises HasNaN.
type NumericStats struct {
	Min     float64
	Max     float64
	HasNull bool
	HasNaN  bool

	seen bool
}

// Observe folds one cell into the stats. A null value only raises
// HasNull.
func (s *NumericStats) Observe(v types.Value) {
	if v.IsNull() {
		s.HasNull = true
		return
	}
	if v.IsNaN() {
		s.HasNaN = true
		return
	}
	f, ok := v.AsFloat()
	if !ok {
		return
	}
	if !s.seen || f < s.Min {
		s.Min = f
	}
	if !s.seen || f > s.Max {
		s.Max = f
	}
	s.seen = true
}

// Empty reports whether no non-null, non-NaN value was observed.
func (s *NumericStats) Empty() bool { return !s.seen }

// LiteralStats holds the zone map of one text-comparable column in one
// chunk: lexicographic min/max over the canonical string representation.
type LiteralStats struct {
	Min     string
	Max     string
	HasNull bool

	seen bool
}

// Observe folds one cell into the stats.
func (s *LiteralStats) Observe(v types.Value) {
	if v.IsNull() {
		s.HasNull = true
		return
	}
	c := v.Canonical()
	if !s.seen || c < s.Min {
		s.Min = c
	}
	if !s.seen || c > s.Max {
		s.Max = c
	}
	s.seen = true
}

// Empty reports whether no non-null value was observed.
func (s *LiteralStats) Empty() bool { return !s.seen }

// ColumnStats is the flush-time statistics payload for one column of one
// chunk. Exactly one of Numeric/Literal is set; Bloom accompanies
// literal columns and feeds the topic-level zone map.
type ColumnStats struct {
	Column  string
	Numeric *NumericStats
	Literal *LiteralStats
	Bloom   *bloom.Filter
}

// bloomExpectedItems sizes per-chunk literal blooms. Chunks are bounded
// by the flush thresholds, so a small filter suffices.
const (
	bloomExpectedItems = 4096
	bloomTargetFPR     = 0.01
)

// StatsTracker accumulates per-column statistics for one chunk between
// flushes. The implicit timestamp column is tracked as a numeric column.
type StatsTracker struct {
	schema    *types.Schema
	timestamp NumericStats
	numeric   []NumericStats
	literal   []LiteralStats
	blooms    []*bloom.Filter
}

// NewStatsTracker creates a tracker for one schema.
func NewStatsTracker(schema *types.Schema) *StatsTracker {
	t := &StatsTracker{
		schema:  schema,
		numeric: make([]NumericStats, len(schema.Columns)),
		literal: make([]LiteralStats, len(schema.Columns)),
		blooms:  make([]*bloom.Filter, len(schema.Columns)),
	}
	for i, c := range schema.Columns {
		if c.Type.Literal() {
			t.blooms[i] = bloom.NewWithEstimates(bloomExpectedItems, bloomTargetFPR)
		}
	}
	return t
}

// Update folds one record into the statistics.
func (t *StatsTracker) Update(rec types.Record) {
	t.timestamp.Observe(types.Integer(rec.Timestamp))
	for i, c := range t.schema.Columns {
		if i >= len(rec.Values) {
			break
		}
		v := rec.Values[i]
		switch {
		case c.Type.Numeric():
			t.numeric[i].Observe(v)
		case c.Type.Literal():
			t.literal[i].Observe(v)
			if !v.IsNull() {
				t.blooms[i].Add([]byte(v.Canonical()))
			}
		}
		// Boolean and bytes columns carry no zone-map statistics.
	}
}

// Snapshot returns one ColumnStats per tracked column that observed at
// least one value (or a null), plus the implicit timestamp column.
// Columns whose chunk slice was entirely absent yield no row.
func (t *StatsTracker) Snapshot() []ColumnStats {
	var out []ColumnStats

	if !t.timestamp.Empty() {
		ts := t.timestamp
		out = append(out, ColumnStats{Column: types.TimestampColumn, Numeric: &ts})
	}

	for i, c := range t.schema.Columns {
		switch {
		case c.Type.Numeric():
			if s := t.numeric[i]; !s.Empty() || s.HasNull || s.HasNaN {
				cp := s
				out = append(out, ColumnStats{Column: c.Name, Numeric: &cp})
			}
		case c.Type.Literal():
			if s := t.literal[i]; !s.Empty() || s.HasNull {
				cp := s
				out = append(out, ColumnStats{Column: c.Name, Literal: &cp, Bloom: t.blooms[i]})
			}
		}
	}
	return out
}

// Reset clears the tracker for the next chunk.
func (t *StatsTracker) Reset() {
	t.timestamp = NumericStats{}
	for i, c := range t.schema.Columns {
		t.numeric[i] = NumericStats{}
		t.literal[i] = LiteralStats{}
		if c.Type.Literal() {
			t.blooms[i] = bloom.NewWithEstimates(bloomExpectedItems, bloomTargetFPR)
		}
	}
}
