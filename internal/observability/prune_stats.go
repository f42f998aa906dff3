// Package observability provides retrieval statistics tracking for
// performance monitoring.
package observability

import (
	"sort"
	"sync"
	"time"
)

// PruneStats tracks per-column predicate frequency and chunk pruning
// effectiveness across retrievals.
type PruneStats struct {
	mu         sync.RWMutex
	columnFreq map[string]*ColumnStats
	window     time.Duration

	retrievals   int64
	totalChunks  int64
	prunedChunks int64
}

// ColumnStats holds predicate statistics for one column.
type ColumnStats struct {
	Column    string
	Frequency int64
	LastSeen  time.Time
	Operators map[string]int // operator → count (e.g., "$eq" → 5, "$in" → 2)
}

// NewPruneStats creates a new statistics tracker.
// window: time duration for pruning stale entries (e.g., 1 hour)
func NewPruneStats(window time.Duration) *PruneStats {
	return &PruneStats{
		columnFreq: make(map[string]*ColumnStats),
		window:     window,
	}
}

// RecordPredicate records a predicate access for a column.
// This method is O(1) and thread-safe.
func (p *PruneStats) RecordPredicate(column, operator string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats, exists := p.columnFreq[column]
	if !exists {
		stats = &ColumnStats{
			Column:    column,
			Operators: make(map[string]int),
		}
		p.columnFreq[column] = stats
	}

	stats.Frequency++
	stats.LastSeen = time.Now()
	stats.Operators[operator]++
}

// RecordRetrieve records the pruning outcome of one retrieval.
func (p *PruneStats) RecordRetrieve(totalChunks, prunedChunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrievals++
	p.totalChunks += int64(totalChunks)
	p.prunedChunks += int64(prunedChunks)
}

// PruneRatio returns the fraction of chunks skipped across all recorded
// retrievals.
func (p *PruneStats) PruneRatio() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.totalChunks == 0 {
		return 0
	}
	return float64(p.prunedChunks) / float64(p.totalChunks)
}

// Retrievals returns the number of recorded retrievals.
func (p *PruneStats) Retrievals() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.retrievals
}

// TopColumns returns the top N columns by predicate frequency,
// descending. Frequency ties break alphabetically for stable output.
func (p *PruneStats) TopColumns(n int) []ColumnStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if n <= 0 || len(p.columnFreq) == 0 {
		return []ColumnStats{}
	}

	stats := make([]ColumnStats, 0, len(p.columnFreq))
	for _, s := range p.columnFreq {
		cp := ColumnStats{
			Column:    s.Column,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Operators: make(map[string]int, len(s.Operators)),
		}
		for op, count := range s.Operators {
			cp.Operators[op] = count
		}
		stats = append(stats, cp)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Column < stats[j].Column
	})

	if len(stats) > n {
		stats = stats[:n]
	}
	return stats
}

// Prune drops columns not seen within the window.
func (p *PruneStats) Prune() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.window)
	var removed int
	for column, s := range p.columnFreq {
		if s.LastSeen.Before(cutoff) {
			delete(p.columnFreq, column)
			removed++
		}
	}
	return removed
}
