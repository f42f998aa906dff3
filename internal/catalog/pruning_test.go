package catalog

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/mosaicolabs/mosaico/internal/chunk"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

func numStats(min, max float64) NumericStatRow {
	return NumericStatRow{Min: &min, Max: &max}
}

func litStats(min, max string) LiteralStatRow {
	return LiteralStatRow{Min: &min, Max: &max}
}

func TestPruner_NumericOperatorTable(t *testing.T) {
	// Chunk with latitude in [10, 20].
	cs := &ChunkColumnStats{
		Chunk:   &ChunkRecord{ID: 1},
		Numeric: map[string]NumericStatRow{"latitude": numStats(10, 20)},
		Literal: map[string]LiteralStatRow{},
	}

	cases := []struct {
		name string
		cond Condition
		skip bool
	}{
		{"eq inside", Condition{"latitude", OpEq, []types.Value{types.Float(15)}}, false},
		{"eq below min", Condition{"latitude", OpEq, []types.Value{types.Float(5)}}, true},
		{"eq above max", Condition{"latitude", OpEq, []types.Value{types.Float(25)}}, true},
		{"eq at min", Condition{"latitude", OpEq, []types.Value{types.Float(10)}}, false},
		{"lt above min", Condition{"latitude", OpLt, []types.Value{types.Float(11)}}, false},
		{"lt at min", Condition{"latitude", OpLt, []types.Value{types.Float(10)}}, true},
		{"leq at min", Condition{"latitude", OpLeq, []types.Value{types.Float(10)}}, false},
		{"leq below min", Condition{"latitude", OpLeq, []types.Value{types.Float(9)}}, true},
		{"gt below max", Condition{"latitude", OpGt, []types.Value{types.Float(19)}}, false},
		{"gt at max", Condition{"latitude", OpGt, []types.Value{types.Float(20)}}, true},
		{"geq at max", Condition{"latitude", OpGeq, []types.Value{types.Float(20)}}, false},
		{"geq above max", Condition{"latitude", OpGeq, []types.Value{types.Float(21)}}, true},
		{"between overlapping", Condition{"latitude", OpBetween, []types.Value{types.Float(18), types.Float(30)}}, false},
		{"between above", Condition{"latitude", OpBetween, []types.Value{types.Float(21), types.Float(30)}}, true},
		{"between below", Condition{"latitude", OpBetween, []types.Value{types.Float(0), types.Float(9)}}, true},
		{"in with one inside", Condition{"latitude", OpIn, []types.Value{types.Float(3), types.Float(12)}}, false},
		{"in all outside", Condition{"latitude", OpIn, []types.Value{types.Float(3), types.Float(25)}}, true},
		{"in empty", Condition{"latitude", OpIn, nil}, true},
		{"match never prunes", Condition{"latitude", OpMatch, []types.Value{types.Text("1")}}, false},
		{"unknown column never prunes", Condition{"speed", OpEq, []types.Value{types.Float(999)}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := chunkSkippable(cs, []Condition{tc.cond}); got != tc.skip {
				t.Errorf("skippable = %v, want %v", got, tc.skip)
			}
		})
	}
}

func TestPruner_LiteralOperatorTable(t *testing.T) {
	cs := &ChunkColumnStats{
		Chunk:   &ChunkRecord{ID: 1},
		Numeric: map[string]NumericStatRow{},
		Literal: map[string]LiteralStatRow{"frame": litStats("base_link", "odom")},
	}

	cases := []struct {
		name string
		cond Condition
		skip bool
	}{
		{"eq inside", Condition{"frame", OpEq, []types.Value{types.Text("map")}}, false},
		{"eq below", Condition{"frame", OpEq, []types.Value{types.Text("aaa")}}, true},
		{"eq above", Condition{"frame", OpEq, []types.Value{types.Text("zzz")}}, true},
		{"lt at min", Condition{"frame", OpLt, []types.Value{types.Text("base_link")}}, true},
		{"gt at max", Condition{"frame", OpGt, []types.Value{types.Text("odom")}}, true},
		{"between overlap", Condition{"frame", OpBetween, []types.Value{types.Text("camera"), types.Text("zzz")}}, false},
		{"in all outside", Condition{"frame", OpIn, []types.Value{types.Text("aa"), types.Text("zz")}}, true},
		{"match never prunes", Condition{"frame", OpMatch, []types.Value{types.Text("odo")}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := chunkSkippable(cs, []Condition{tc.cond}); got != tc.skip {
				t.Errorf("skippable = %v, want %v", got, tc.skip)
			}
		})
	}
}

func TestPruner_AllNullColumn(t *testing.T) {
	cs := &ChunkColumnStats{
		Chunk:   &ChunkRecord{ID: 1},
		Numeric: map[string]NumericStatRow{"altitude": {HasNull: true}},
		Literal: map[string]LiteralStatRow{},
	}

	// A column holding only nulls can satisfy no comparison.
	if !chunkSkippable(cs, []Condition{{"altitude", OpEq, []types.Value{types.Float(1)}}}) {
		t.Error("all-null column should prune equality")
	}

	// Unless the chunk also holds NaN cells, which do satisfy $neq.
	cs.Numeric["altitude"] = NumericStatRow{HasNull: true, HasNaN: true}
	if chunkSkippable(cs, []Condition{{"altitude", OpNeq, []types.Value{types.Float(1)}}}) {
		t.Error("NaN cells satisfy $neq, chunk must survive")
	}
}

func TestPruner_ConjunctionPrunesOnAnyCondition(t *testing.T) {
	cs := &ChunkColumnStats{
		Chunk: &ChunkRecord{ID: 1},
		Numeric: map[string]NumericStatRow{
			"latitude":  numStats(10, 20),
			"longitude": numStats(40, 50),
		},
		Literal: map[string]LiteralStatRow{},
	}

	conds := []Condition{
		{"latitude", OpEq, []types.Value{types.Float(15)}},  // satisfiable
		{"longitude", OpGt, []types.Value{types.Float(60)}}, // impossible
	}
	if !chunkSkippable(cs, conds) {
		t.Error("one impossible condition must prune the chunk")
	}
}

func TestPruner_EndToEnd(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seq := mustSequence(t, cat, "prune-run")
	topic := mustTopic(t, cat, seq.ID, "prune-run/gps")
	schema := navSchema()

	// Three chunks with disjoint latitude ranges and distinct statuses.
	chunks := []struct {
		lat    []float64
		status string
	}{
		{[]float64{10, 12, 14}, "gps_fix"},
		{[]float64{20, 22, 24}, "dead_reckoning"},
		{[]float64{30, 32, 34}, "gps_fix"},
	}
	for i, c := range chunks {
		tracker := newTrackerFor(schema, c.lat, c.status)
		if _, err := cat.AppendChunk(ctx, topic.ID, "chunks/prune/000"+c.status, int64(len(c.lat)), 256, tracker.Snapshot()); err != nil {
			t.Fatalf("AppendChunk %d: %v", i, err)
		}
	}

	pruner := NewPruner(cat)

	res, err := pruner.Prune(ctx, topic.ID, []Condition{
		{"latitude", OpBetween, []types.Value{types.Float(19), types.Float(25)}},
	})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.TotalChunks != 3 || res.Pruned != 2 || len(res.Candidates) != 1 {
		t.Fatalf("between prune = %+v, want 1 candidate of 3", res)
	}

	// Timestamp pruning through the implicit column.
	res, err = pruner.Prune(ctx, topic.ID, []Condition{
		{types.TimestampColumn, OpGeq, []types.Value{types.Integer(1000)}},
	})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if res.Pruned != 3 {
		t.Fatalf("timestamp prune = %+v, want all pruned", res)
	}

	// Bloom early-out: a status no chunk ever wrote empties the scan
	// without consulting per-chunk stats.
	res, err = pruner.Prune(ctx, topic.ID, []Condition{
		{"status", OpEq, []types.Value{types.Text("rtk_float")}},
	})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("bloom miss should prune everything, got %+v", res)
	}
}

func newTrackerFor(schema *types.Schema, lats []float64, status string) *chunk.StatsTracker {
	tr := chunk.NewStatsTracker(schema)
	for i, lat := range lats {
		tr.Update(types.NewRecord(int64(i), []types.Value{
			types.Float(lat), types.Float(lat + 1), types.Text(status)}))
	}
	return tr
}

// No false negatives: a pruned chunk can contain no matching value.
func TestPruner_NoFalseNegativesProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	genOp := gen.OneConstOf(OpEq, OpNeq, OpLt, OpLeq, OpGt, OpGeq, OpBetween, OpIn)

	properties.Property("pruned chunks contain no match", prop.ForAll(
		func(values []float64, op Op, a, b float64) bool {
			if len(values) == 0 {
				return true
			}
			min, max := values[0], values[0]
			for _, v := range values {
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
			}
			cs := &ChunkColumnStats{
				Chunk:   &ChunkRecord{ID: 1},
				Numeric: map[string]NumericStatRow{"v": {Min: &min, Max: &max}},
				Literal: map[string]LiteralStatRow{},
			}
			cond := Condition{Column: "v", Op: op, Args: []types.Value{types.Float(a)}}
			if op == OpBetween || op == OpIn {
				cond.Args = append(cond.Args, types.Float(b))
			}

			if !chunkSkippable(cs, []Condition{cond}) {
				return true // kept chunks carry no obligation
			}
			for _, v := range values {
				if matchesScalar(v, cond) {
					return false // pruned a chunk with a match
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
		genOp,
		gen.Float64Range(-1e6, 1e6),
		gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}

// matchesScalar is the row-level comparison the pruner must never
// contradict.
func matchesScalar(v float64, cond Condition) bool {
	arg := func(i int) float64 {
		f, _ := cond.Args[i].AsFloat()
		return f
	}
	switch cond.Op {
	case OpEq:
		return v == arg(0)
	case OpNeq:
		return v != arg(0)
	case OpLt:
		return v < arg(0)
	case OpLeq:
		return v <= arg(0)
	case OpGt:
		return v > arg(0)
	case OpGeq:
		return v >= arg(0)
	case OpBetween:
		return v >= arg(0) && v <= arg(1)
	case OpIn:
		for i := range cond.Args {
			if v == arg(i) {
				return true
			}
		}
		return false
	}
	return false
}
