package catalog

import (
	"time"

	"github.com/mosaicolabs/mosaico/pkg/types"
)

// OwnerKind identifies which entity a notification belongs to.
type OwnerKind string

const (
	OwnerSequence OwnerKind = "sequence"
	OwnerTopic    OwnerKind = "topic"
)

// Notification types written by the platform. Clients may record
// additional types of their own.
const (
	NotifyProgress = "progress"
	NotifyError    = "error"
)

// SequenceRecord is one row of the sequences table.
type SequenceRecord struct {
	ID        int64
	UUID      string
	Name      string
	Locked    bool
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// TopicRecord is one row of the topics table.
type TopicRecord struct {
	ID          int64
	UUID        string
	SequenceID  int64
	Name        string
	Locked      bool
	Metadata    map[string]interface{}
	Format      types.SerializationFormat
	OntologyTag string
	CreatedAt   time.Time
}

// ChunkRecord is one row of the chunks table.
type ChunkRecord struct {
	ID          int64
	UUID        string
	TopicID     int64
	DataFile    string
	RecordCount int64
	SizeBytes   int64
	CreatedAt   time.Time
}

// NotificationRecord is one row of the notification log.
type NotificationRecord struct {
	ID        int64
	OwnerKind OwnerKind
	OwnerID   int64
	Type      string
	Message   string
	CreatedAt time.Time
}

// SequenceFilter selects sequences in FindSequences. Zero fields are
// ignored; NamePattern is a substring match.
type SequenceFilter struct {
	Name          string
	NamePattern   string
	UUID          string
	Locked        *bool
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Metadata      map[string]interface{}
}

// TopicFilter selects topics in FindTopics.
type TopicFilter struct {
	Name          string
	NamePattern   string
	UUID          string
	SequenceID    int64
	OntologyTag   string
	Locked        *bool
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Metadata      map[string]interface{}
}

// ChunkColumnStats is the statistics view of one chunk used by the
// pruner: per-column numeric and literal zone maps keyed by column name.
type ChunkColumnStats struct {
	Chunk   *ChunkRecord
	Numeric map[string]NumericStatRow
	Literal map[string]LiteralStatRow
}

// NumericStatRow mirrors one column_chunk_stats_numeric row.
type NumericStatRow struct {
	Min     *float64
	Max     *float64
	HasNull bool
	HasNaN  bool
}

// LiteralStatRow mirrors one column_chunk_stats_literal row.
type LiteralStatRow struct {
	Min     *string
	Max     *string
	HasNull bool
}
