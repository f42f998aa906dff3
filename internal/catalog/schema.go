// Package catalog provides the durable metadata store for sequences,
// topics, chunks, per-chunk statistics, lifecycle locks, and the
// notification log.
package catalog

// The catalog is a SQLite database (catalog.db) and the source of truth
// for all platform metadata. Chunk and statistics rows cascade on topic
// deletion through foreign keys; the topic -> sequence reference is
// deliberately NOT cascading, so deleting a sequence must explicitly
// delete its topics first.

// CreateSequencesTableSQL creates the sequences table.
const CreateSequencesTableSQL = `
CREATE TABLE IF NOT EXISTS sequences (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL UNIQUE,
    locked INTEGER NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at INTEGER NOT NULL
)`

// CreateTopicsTableSQL creates the topics table. The sequence_id foreign
// key has no ON DELETE action: a sequence with live topics must not be
// deletable in one step.
const CreateTopicsTableSQL = `
CREATE TABLE IF NOT EXISTS topics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    sequence_id INTEGER NOT NULL REFERENCES sequences(id),
    name TEXT NOT NULL UNIQUE,
    locked INTEGER NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL DEFAULT '{}',
    serialization_format TEXT NOT NULL,
    ontology_tag TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateChunksTableSQL creates the chunks table. Chunk rows are
// append-only; deleting a topic cascades its chunks.
const CreateChunksTableSQL = `
CREATE TABLE IF NOT EXISTS chunks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid TEXT NOT NULL UNIQUE,
    topic_id INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    data_file TEXT NOT NULL,
    record_count INTEGER NOT NULL DEFAULT 0,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
)`

// CreateColumnsTableSQL creates the columns table. Columns are scoped per
// ontology type and shared across topics of that type.
const CreateColumnsTableSQL = `
CREATE TABLE IF NOT EXISTS columns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    ontology_tag TEXT NOT NULL,
    UNIQUE(name, ontology_tag)
)`

// CreateLiteralStatsTableSQL creates the literal zone-map statistics
// table: one row per (column, chunk) for text-comparable columns.
const CreateLiteralStatsTableSQL = `
CREATE TABLE IF NOT EXISTS column_chunk_stats_literal (
    column_id INTEGER NOT NULL REFERENCES columns(id),
    chunk_id INTEGER NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
    min_value TEXT,
    max_value TEXT,
    has_null INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (column_id, chunk_id)
)`

// CreateNumericStatsTableSQL creates the numeric zone-map statistics
// table: one row per (column, chunk) for numeric columns.
const CreateNumericStatsTableSQL = `
CREATE TABLE IF NOT EXISTS column_chunk_stats_numeric (
    column_id INTEGER NOT NULL REFERENCES columns(id),
    chunk_id INTEGER NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
    min_value REAL,
    max_value REAL,
    has_null INTEGER NOT NULL DEFAULT 0,
    has_nan INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (column_id, chunk_id)
)`

// CreateNotificationsTableSQL creates the append-only notification log.
// SQLite cannot point one foreign key at two tables, so ownership is
// modelled as (owner_kind, owner_id) and cascades are performed
// explicitly inside the owner delete transactions.
const CreateNotificationsTableSQL = `
CREATE TABLE IF NOT EXISTS notifications (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_kind TEXT NOT NULL CHECK (owner_kind IN ('sequence', 'topic')),
    owner_id INTEGER NOT NULL,
    type TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateZoneMapsTableSQL creates the topic-level bloom zone maps.
// Each row holds a merged filter over every value a literal column has
// received across all chunks of a topic, enabling equality and
// membership pruning before chunk-level min/max checks.
const CreateZoneMapsTableSQL = `
CREATE TABLE IF NOT EXISTS zone_maps (
    topic_id INTEGER NOT NULL REFERENCES topics(id) ON DELETE CASCADE,
    column_id INTEGER NOT NULL REFERENCES columns(id),
    bloom_data BLOB NOT NULL,
    item_count INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (topic_id, column_id)
)`

// CreateIndexesSQL creates the lookup indexes.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_topics_sequence ON topics(sequence_id)`,
	`CREATE INDEX IF NOT EXISTS idx_chunks_topic ON chunks(topic_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stats_literal_chunk ON column_chunk_stats_literal(chunk_id)`,
	`CREATE INDEX IF NOT EXISTS idx_stats_numeric_chunk ON column_chunk_stats_numeric(chunk_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_owner ON notifications(owner_kind, owner_id)`,
}

// AllSchemaSQL returns all statements needed to initialize the catalog.
func AllSchemaSQL() []string {
	statements := []string{
		CreateSequencesTableSQL,
		CreateTopicsTableSQL,
		CreateChunksTableSQL,
		CreateColumnsTableSQL,
		CreateLiteralStatsTableSQL,
		CreateNumericStatsTableSQL,
		CreateNotificationsTableSQL,
		CreateZoneMapsTableSQL,
	}
	statements = append(statements, CreateIndexesSQL...)
	return statements
}
