package catalog

import (
	"context"

	"github.com/mosaicolabs/mosaico/internal/bloom"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Op is a pruning comparison operator. The set mirrors the query
// expression operators; $match is carried but never prunable, it always
// falls through to the row filter.
type Op string

const (
	OpEq      Op = "$eq"
	OpNeq     Op = "$neq"
	OpLt      Op = "$lt"
	OpLeq     Op = "$leq"
	OpGt      Op = "$gt"
	OpGeq     Op = "$geq"
	OpBetween Op = "$between"
	OpIn      Op = "$in"
	OpMatch   Op = "$match"
)

// Condition is one column predicate of a conjunctive query, lowered to
// the form the pruner understands. Args carries one value for the
// comparison operators, two for $between, and one or more for $in.
type Condition struct {
	Column string
	Op     Op
	Args   []types.Value
}

// PruneResult is the outcome of pruning one topic's chunk list.
type PruneResult struct {
	Candidates  []*ChunkRecord
	TotalChunks int
	Pruned      int
}

// Pruner decides which chunks of a topic can be skipped for a
// conjunction of conditions using the per-chunk min/max statistics and
// the topic-level bloom zone maps. Pruning is conservative: a chunk is
// skipped only when a condition is provably false for every record in
// it, so the surviving candidates are a superset of the matching chunks.
type Pruner struct {
	catalog Catalog
}

// NewPruner creates a pruner over a catalog.
func NewPruner(catalog Catalog) *Pruner {
	return &Pruner{catalog: catalog}
}

// Prune returns the chunks of a topic that may contain records matching
// every condition, in append order.
func (p *Pruner) Prune(ctx context.Context, topicID int64, conds []Condition) (*PruneResult, error) {
	stats, err := p.catalog.ChunkStats(ctx, topicID)
	if err != nil {
		return nil, err
	}
	result := &PruneResult{TotalChunks: len(stats)}

	// Topic-level bloom early-out: if a literal equality or membership
	// condition misses the merged zone map entirely, no chunk of the
	// topic can match and the scan is empty.
	for _, cond := range conds {
		if cond.Op != OpEq && cond.Op != OpIn {
			continue
		}
		zm, err := p.catalog.ZoneMap(ctx, topicID, cond.Column)
		if err != nil {
			return nil, err
		}
		if zm != nil && !bloomMayMatch(zm, cond.Args) {
			result.Pruned = len(stats)
			return result, nil
		}
	}

	for _, cs := range stats {
		if chunkSkippable(cs, conds) {
			result.Pruned++
			continue
		}
		result.Candidates = append(result.Candidates, cs.Chunk)
	}
	return result, nil
}

func bloomMayMatch(zm *bloom.Filter, args []types.Value) bool {
	for _, a := range args {
		if a.IsNull() {
			continue
		}
		if zm.MaybeContains([]byte(a.Canonical())) {
			return true
		}
	}
	return false
}

// chunkSkippable reports whether any condition is provably false over
// the whole chunk. Conditions are a conjunction: one impossible
// condition rules the chunk out.
func chunkSkippable(cs *ChunkColumnStats, conds []Condition) bool {
	for _, cond := range conds {
		if conditionImpossible(cs, cond) {
			return true
		}
	}
	return false
}

func conditionImpossible(cs *ChunkColumnStats, cond Condition) bool {
	if cond.Op == OpMatch {
		// Substring matches are opaque to min/max ordering.
		return false
	}

	if ns, ok := cs.Numeric[cond.Column]; ok {
		return numericImpossible(ns, cond)
	}
	if ls, ok := cs.Literal[cond.Column]; ok {
		return literalImpossible(ls, cond)
	}
	// No statistics for the column: never prune on absence.
	return false
}

// numericImpossible applies the min/max skip rules to a numeric column.
// Null and NaN cells never satisfy a comparison, so a chunk whose column
// holds only nulls and NaNs (nil min) fails every operator.
func numericImpossible(s NumericStatRow, cond Condition) bool {
	if s.Min == nil || s.Max == nil {
		return cond.Op != OpNeq || !s.HasNaN
	}
	min, max := *s.Min, *s.Max

	switch cond.Op {
	case OpEq:
		v, ok := numArg(cond, 0)
		return ok && (v < min || v > max)
	case OpNeq:
		// Provably false only when every cell equals v; NaN cells
		// satisfy the inequality, so they keep the chunk alive.
		v, ok := numArg(cond, 0)
		return ok && min == max && min == v && !s.HasNaN && !s.HasNull
	case OpLt:
		v, ok := numArg(cond, 0)
		return ok && min >= v
	case OpLeq:
		v, ok := numArg(cond, 0)
		return ok && min > v
	case OpGt:
		v, ok := numArg(cond, 0)
		return ok && max <= v
	case OpGeq:
		v, ok := numArg(cond, 0)
		return ok && max < v
	case OpBetween:
		lo, okLo := numArg(cond, 0)
		hi, okHi := numArg(cond, 1)
		return okLo && okHi && (max < lo || min > hi)
	case OpIn:
		if len(cond.Args) == 0 {
			return true
		}
		for _, a := range cond.Args {
			if v, ok := a.AsFloat(); ok && v >= min && v <= max {
				return false
			}
		}
		return true
	}
	return false
}

// literalImpossible applies the same rules over lexicographic order of
// canonical string representations.
func literalImpossible(s LiteralStatRow, cond Condition) bool {
	if s.Min == nil || s.Max == nil {
		return cond.Op != OpNeq
	}
	min, max := *s.Min, *s.Max

	switch cond.Op {
	case OpEq:
		v, ok := strArg(cond, 0)
		return ok && (v < min || v > max)
	case OpNeq:
		v, ok := strArg(cond, 0)
		return ok && min == max && min == v && !s.HasNull
	case OpLt:
		v, ok := strArg(cond, 0)
		return ok && min >= v
	case OpLeq:
		v, ok := strArg(cond, 0)
		return ok && min > v
	case OpGt:
		v, ok := strArg(cond, 0)
		return ok && max <= v
	case OpGeq:
		v, ok := strArg(cond, 0)
		return ok && max < v
	case OpBetween:
		lo, okLo := strArg(cond, 0)
		hi, okHi := strArg(cond, 1)
		return okLo && okHi && (max < lo || min > hi)
	case OpIn:
		if len(cond.Args) == 0 {
			return true
		}
		for _, a := range cond.Args {
			if a.IsNull() {
				continue
			}
			if v := a.Canonical(); v >= min && v <= max {
				return false
			}
		}
		return true
	}
	return false
}

func numArg(cond Condition, i int) (float64, bool) {
	if i >= len(cond.Args) {
		return 0, false
	}
	return cond.Args[i].AsFloat()
}

func strArg(cond Condition, i int) (string, bool) {
	if i >= len(cond.Args) || cond.Args[i].IsNull() {
		return "", false
	}
	return cond.Args[i].Canonical(), true
}
