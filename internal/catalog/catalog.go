package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mosaicolabs/mosaico/internal/bloom"
	"github.com/mosaicolabs/mosaico/internal/chunk"
	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Catalog manages all platform metadata in catalog.db.
type Catalog interface {
	// CreateSequence registers a new unlocked sequence.
	CreateSequence(ctx context.Context, name string, metadata map[string]interface{}) (*SequenceRecord, error)

	// CreateTopic registers a new unlocked topic under an unlocked sequence.
	CreateTopic(ctx context.Context, sequenceID int64, name, ontologyTag string, format types.SerializationFormat, metadata map[string]interface{}) (*TopicRecord, error)

	// LockTopic irreversibly locks a topic. Locking an already locked
	// topic is a no-op.
	LockTopic(ctx context.Context, topicID int64) error

	// LockSequence irreversibly locks a sequence. Fails unless every
	// child topic is already locked.
	LockSequence(ctx context.Context, sequenceID int64) error

	// DeleteTopic removes an unlocked topic, cascading its chunks,
	// statistics, zone maps, and notifications. Returns the data file
	// references of the deleted chunks so callers can remove the
	// physical objects.
	DeleteTopic(ctx context.Context, topicID int64) ([]string, error)

	// DeleteSequence removes an unlocked sequence. Child topics are
	// deleted explicitly first inside the same transaction; a locked
	// child makes the whole operation fail.
	DeleteSequence(ctx context.Context, sequenceID int64) ([]string, error)

	// AppendChunk atomically inserts a chunk row plus its per-column
	// statistics rows and folds literal blooms into the topic zone maps.
	AppendChunk(ctx context.Context, topicID int64, dataFile string, recordCount, sizeBytes int64, stats []chunk.ColumnStats) (*ChunkRecord, error)

	// RecordNotification appends to the notification log of an owner.
	RecordNotification(ctx context.Context, kind OwnerKind, ownerID int64, ntype, message string) error

	// ListNotifications returns the notification log of an owner, oldest
	// first.
	ListNotifications(ctx context.Context, kind OwnerKind, ownerID int64) ([]*NotificationRecord, error)

	// PurgeNotifications drops the notification log of an unlocked owner.
	PurgeNotifications(ctx context.Context, kind OwnerKind, ownerID int64) error

	// UpdateSequenceMetadata replaces the metadata of an unlocked sequence.
	UpdateSequenceMetadata(ctx context.Context, sequenceID int64, metadata map[string]interface{}) error

	// UpdateTopicMetadata replaces the metadata of an unlocked topic.
	UpdateTopicMetadata(ctx context.Context, topicID int64, metadata map[string]interface{}) error

	GetSequence(ctx context.Context, id int64) (*SequenceRecord, error)
	GetSequenceByName(ctx context.Context, name string) (*SequenceRecord, error)
	FindSequences(ctx context.Context, filter SequenceFilter) ([]*SequenceRecord, error)

	GetTopic(ctx context.Context, id int64) (*TopicRecord, error)
	GetTopicByName(ctx context.Context, name string) (*TopicRecord, error)
	FindTopics(ctx context.Context, filter TopicFilter) ([]*TopicRecord, error)

	// ListChunks returns a topic's chunks in append order.
	ListChunks(ctx context.Context, topicID int64) ([]*ChunkRecord, error)
	GetChunkByUUID(ctx context.Context, chunkUUID string) (*ChunkRecord, error)

	// ChunkStats returns every chunk of a topic with its per-column zone
	// maps, keyed by column name. Input to the pruner.
	ChunkStats(ctx context.Context, topicID int64) ([]*ChunkColumnStats, error)

	// ZoneMap returns the merged bloom filter of a literal column across
	// all chunks of a topic, or nil if none exists.
	ZoneMap(ctx context.Context, topicID int64, column string) (*bloom.Filter, error)

	// Close closes the catalog database connections.
	Close() error
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	// Prepared statement cache for the read connection
	findStmtCache map[string]*sql.Stmt
	findStmtMu    sync.RWMutex
}

// NewCatalog opens (or creates) a SQLite catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	// Write connection: single writer with WAL mode. Foreign keys must be
	// on for chunk/statistics cascades.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Read connection pool: concurrent readers via read-only mode
	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	if _, err := readDB.Exec("PRAGMA read_uncommitted = true"); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("catalog: failed to set read_uncommitted pragma: %w", err)
	}

	c := &SQLiteCatalog{
		db:            db,
		readDB:        readDB,
		dbPath:        dbPath,
		findStmtCache: make(map[string]*sql.Stmt),
	}

	if err := c.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("catalog: failed to initialize schema: %w", err)
	}

	return c, nil
}

// initSchema creates all required tables and indexes.
func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes both database connections.
func (c *SQLiteCatalog) Close() error {
	c.findStmtMu.Lock()
	for _, stmt := range c.findStmtCache {
		stmt.Close()
	}
	c.findStmtCache = make(map[string]*sql.Stmt)
	c.findStmtMu.Unlock()

	if err := c.readDB.Close(); err != nil {
		c.db.Close()
		return err
	}
	return c.db.Close()
}

// CreateSequence registers a new unlocked sequence.
func (c *SQLiteCatalog) CreateSequence(ctx context.Context, name string, metadata map[string]interface{}) (*SequenceRecord, error) {
	if name == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidArgument, "sequence name must not be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var exists int
	err := c.db.QueryRowContext(ctx, "SELECT 1 FROM sequences WHERE name = ?", name).Scan(&exists)
	if err == nil {
		return nil, errors.NewAlreadyExistsError(fmt.Sprintf("sequence %q already exists", name))
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("catalog: failed to check sequence name: %w", err)
	}

	rec := &SequenceRecord{
		UUID:      uuid.New().String(),
		Name:      name,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	res, err := c.db.ExecContext(ctx,
		"INSERT INTO sequences (uuid, name, locked, metadata, created_at) VALUES (?, ?, 0, ?, ?)",
		rec.UUID, rec.Name, metaJSON, rec.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to insert sequence: %w", err)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to read sequence id: %w", err)
	}
	return rec, nil
}

// CreateTopic registers a new unlocked topic under an unlocked sequence.
func (c *SQLiteCatalog) CreateTopic(ctx context.Context, sequenceID int64, name, ontologyTag string, format types.SerializationFormat, metadata map[string]interface{}) (*TopicRecord, error) {
	if name == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidArgument, "topic name must not be empty")
	}
	if !format.Valid() {
		return nil, errors.NewValidationError(errors.CodeInvalidFormat,
			fmt.Sprintf("unknown serialization format %q", format))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seqLocked bool
	err = tx.QueryRowContext(ctx, "SELECT locked FROM sequences WHERE id = ?", sequenceID).Scan(&seqLocked)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeSequenceNotFound,
			fmt.Sprintf("sequence %d not found", sequenceID))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to load sequence: %w", err)
	}
	if seqLocked {
		return nil, errors.NewImmutabilityViolation(errors.CodeSequenceLocked,
			fmt.Sprintf("cannot create topic under locked sequence %d", sequenceID))
	}

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM topics WHERE name = ?", name).Scan(&exists)
	if err == nil {
		return nil, errors.NewAlreadyExistsError(fmt.Sprintf("topic %q already exists", name))
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("catalog: failed to check topic name: %w", err)
	}

	rec := &TopicRecord{
		UUID:        uuid.New().String(),
		SequenceID:  sequenceID,
		Name:        name,
		Metadata:    metadata,
		Format:      format,
		OntologyTag: ontologyTag,
		CreatedAt:   time.Now(),
	}
	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO topics (uuid, sequence_id, name, locked, metadata, serialization_format, ontology_tag, created_at)
		 VALUES (?, ?, ?, 0, ?, ?, ?, ?)`,
		rec.UUID, sequenceID, name, metaJSON, string(format), ontologyTag, rec.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to insert topic: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("catalog: failed to read topic id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: failed to commit topic: %w", err)
	}
	return rec, nil
}

// LockTopic irreversibly locks a topic.
func (c *SQLiteCatalog) LockTopic(ctx context.Context, topicID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, "UPDATE topics SET locked = 1 WHERE id = ?", topicID)
	if err != nil {
		return fmt.Errorf("catalog: failed to lock topic: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: failed to read lock result: %w", err)
	}
	if n == 0 {
		return errors.NewNotFoundError(errors.CodeTopicNotFound,
			fmt.Sprintf("topic %d not found", topicID))
	}
	return nil
}

// LockSequence irreversibly locks a sequence once every child topic is
// locked. The precondition model (rather than a cascading lock) keeps
// LockTopic an explicit step of the finalize protocol.
func (c *SQLiteCatalog) LockSequence(ctx context.Context, sequenceID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked bool
	err = tx.QueryRowContext(ctx, "SELECT locked FROM sequences WHERE id = ?", sequenceID).Scan(&locked)
	if err == sql.ErrNoRows {
		return errors.NewNotFoundError(errors.CodeSequenceNotFound,
			fmt.Sprintf("sequence %d not found", sequenceID))
	}
	if err != nil {
		return fmt.Errorf("catalog: failed to load sequence: %w", err)
	}
	if locked {
		return nil // already locked, idempotent
	}

	var unlockedTopics int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM topics WHERE sequence_id = ? AND locked = 0", sequenceID).Scan(&unlockedTopics)
	if err != nil {
		return fmt.Errorf("catalog: failed to count unlocked topics: %w", err)
	}
	if unlockedTopics > 0 {
		return errors.NewConsistencyError(errors.CodeUnlockedTopics,
			fmt.Sprintf("sequence %d has %d unlocked topics", sequenceID, unlockedTopics))
	}

	if _, err := tx.ExecContext(ctx, "UPDATE sequences SET locked = 1 WHERE id = ?", sequenceID); err != nil {
		return fmt.Errorf("catalog: failed to lock sequence: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: failed to commit sequence lock: %w", err)
	}
	return nil
}

// DeleteTopic removes an unlocked topic and everything under it.
func (c *SQLiteCatalog) DeleteTopic(ctx context.Context, topicID int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	files, err := c.deleteTopicTx(ctx, tx, topicID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: failed to commit topic delete: %w", err)
	}
	return files, nil
}

// deleteTopicTx deletes one topic inside an open transaction and returns
// its chunk data files.
func (c *SQLiteCatalog) deleteTopicTx(ctx context.Context, tx *sql.Tx, topicID int64) ([]string, error) {
	var locked bool
	err := tx.QueryRowContext(ctx, "SELECT locked FROM topics WHERE id = ?", topicID).Scan(&locked)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeTopicNotFound,
			fmt.Sprintf("topic %d not found", topicID))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to load topic: %w", err)
	}
	if locked {
		return nil, errors.NewImmutabilityViolation(errors.CodeTopicLocked,
			fmt.Sprintf("cannot delete locked topic %d", topicID))
	}

	rows, err := tx.QueryContext(ctx, "SELECT data_file FROM chunks WHERE topic_id = ?", topicID)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list chunk files: %w", err)
	}
	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalog: failed to scan chunk file: %w", err)
		}
		files = append(files, f)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: failed to iterate chunk files: %w", err)
	}

	// Chunks, statistics, and zone maps cascade through foreign keys;
	// the notification log is owner-kinded and cascades explicitly.
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM notifications WHERE owner_kind = ? AND owner_id = ?", OwnerTopic, topicID); err != nil {
		return nil, fmt.Errorf("catalog: failed to delete topic notifications: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM topics WHERE id = ?", topicID); err != nil {
		return nil, fmt.Errorf("catalog: failed to delete topic: %w", err)
	}
	return files, nil
}

// DeleteSequence removes an unlocked sequence, deleting its topics first
// in the same transaction. The topic foreign key does not cascade, so a
// plain row delete would orphan topics; the explicit child pass is the
// documented deletion procedure.
func (c *SQLiteCatalog) DeleteSequence(ctx context.Context, sequenceID int64) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked bool
	err = tx.QueryRowContext(ctx, "SELECT locked FROM sequences WHERE id = ?", sequenceID).Scan(&locked)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeSequenceNotFound,
			fmt.Sprintf("sequence %d not found", sequenceID))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to load sequence: %w", err)
	}
	if locked {
		return nil, errors.NewImmutabilityViolation(errors.CodeSequenceLocked,
			fmt.Sprintf("cannot delete locked sequence %d", sequenceID))
	}

	rows, err := tx.QueryContext(ctx, "SELECT id, locked FROM topics WHERE sequence_id = ?", sequenceID)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list topics: %w", err)
	}
	var topicIDs []int64
	for rows.Next() {
		var id int64
		var topicLocked bool
		if err := rows.Scan(&id, &topicLocked); err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalog: failed to scan topic: %w", err)
		}
		if topicLocked {
			rows.Close()
			return nil, errors.NewImmutabilityViolation(errors.CodeTopicLocked,
				fmt.Sprintf("sequence %d has locked topic %d", sequenceID, id))
		}
		topicIDs = append(topicIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: failed to iterate topics: %w", err)
	}

	var files []string
	for _, topicID := range topicIDs {
		topicFiles, err := c.deleteTopicTx(ctx, tx, topicID)
		if err != nil {
			return nil, err
		}
		files = append(files, topicFiles...)
	}

	// Guard against topics created concurrently with the delete.
	var remaining int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM topics WHERE sequence_id = ?", sequenceID).Scan(&remaining); err != nil {
		return nil, fmt.Errorf("catalog: failed to recount topics: %w", err)
	}
	if remaining > 0 {
		return nil, errors.NewConsistencyError(errors.CodeOrphanedTopics,
			fmt.Sprintf("sequence %d still has %d topics", sequenceID, remaining))
	}

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM notifications WHERE owner_kind = ? AND owner_id = ?", OwnerSequence, sequenceID); err != nil {
		return nil, fmt.Errorf("catalog: failed to delete sequence notifications: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sequences WHERE id = ?", sequenceID); err != nil {
		return nil, fmt.Errorf("catalog: failed to delete sequence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: failed to commit sequence delete: %w", err)
	}
	return files, nil
}

// AppendChunk atomically inserts a chunk row and its statistics rows.
func (c *SQLiteCatalog) AppendChunk(ctx context.Context, topicID int64, dataFile string, recordCount, sizeBytes int64, stats []chunk.ColumnStats) (*ChunkRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked bool
	var ontologyTag string
	err = tx.QueryRowContext(ctx, "SELECT locked, ontology_tag FROM topics WHERE id = ?", topicID).
		Scan(&locked, &ontologyTag)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeTopicNotFound,
			fmt.Sprintf("topic %d not found", topicID))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to load topic: %w", err)
	}
	if locked {
		return nil, errors.NewImmutabilityViolation(errors.CodeTopicLocked,
			fmt.Sprintf("cannot append chunk to locked topic %d", topicID))
	}

	rec := &ChunkRecord{
		UUID:        uuid.New().String(),
		TopicID:     topicID,
		DataFile:    dataFile,
		RecordCount: recordCount,
		SizeBytes:   sizeBytes,
		CreatedAt:   time.Now(),
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (uuid, topic_id, data_file, record_count, size_bytes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UUID, topicID, dataFile, recordCount, sizeBytes, rec.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to insert chunk: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("catalog: failed to read chunk id: %w", err)
	}

	for _, stat := range stats {
		columnID, err := ensureColumnTx(ctx, tx, stat.Column, ontologyTag)
		if err != nil {
			return nil, err
		}

		switch {
		case stat.Numeric != nil:
			var minV, maxV interface{}
			if !stat.Numeric.Empty() {
				minV, maxV = stat.Numeric.Min, stat.Numeric.Max
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO column_chunk_stats_numeric (column_id, chunk_id, min_value, max_value, has_null, has_nan)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				columnID, rec.ID, minV, maxV, stat.Numeric.HasNull, stat.Numeric.HasNaN)
			if err != nil {
				return nil, fmt.Errorf("catalog: failed to insert numeric stats for %q: %w", stat.Column, err)
			}
		case stat.Literal != nil:
			var minV, maxV interface{}
			if !stat.Literal.Empty() {
				minV, maxV = stat.Literal.Min, stat.Literal.Max
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO column_chunk_stats_literal (column_id, chunk_id, min_value, max_value, has_null)
				 VALUES (?, ?, ?, ?, ?)`,
				columnID, rec.ID, minV, maxV, stat.Literal.HasNull)
			if err != nil {
				return nil, fmt.Errorf("catalog: failed to insert literal stats for %q: %w", stat.Column, err)
			}
			if stat.Bloom != nil {
				if err := mergeZoneMapTx(ctx, tx, topicID, columnID, stat.Bloom); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("catalog: failed to commit chunk: %w", err)
	}
	return rec, nil
}

// ensureColumnTx upserts a (name, ontology_tag) column row and returns
// its id.
func ensureColumnTx(ctx context.Context, tx *sql.Tx, name, ontologyTag string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO columns (name, ontology_tag) VALUES (?, ?)", name, ontologyTag); err != nil {
		return 0, fmt.Errorf("catalog: failed to upsert column %q: %w", name, err)
	}
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM columns WHERE name = ? AND ontology_tag = ?", name, ontologyTag).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("catalog: failed to resolve column %q: %w", name, err)
	}
	return id, nil
}

// mergeZoneMapTx ORs a chunk's literal bloom into the topic zone map.
// A geometry mismatch drops the row: a missing zone map only disables
// bloom pruning, it can never cause a false negative.
func mergeZoneMapTx(ctx context.Context, tx *sql.Tx, topicID, columnID int64, incoming *bloom.Filter) error {
	var blob []byte
	err := tx.QueryRowContext(ctx,
		"SELECT bloom_data FROM zone_maps WHERE topic_id = ? AND column_id = ?",
		topicID, columnID).Scan(&blob)

	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO zone_maps (topic_id, column_id, bloom_data, item_count, updated_at)
			 VALUES (?, ?, ?, ?, ?)`,
			topicID, columnID, incoming.Marshal(), incoming.Count(), time.Now().Unix())
		if err != nil {
			return fmt.Errorf("catalog: failed to insert zone map: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("catalog: failed to load zone map: %w", err)
	}

	merged, err := bloom.Unmarshal(blob)
	if err == nil {
		err = merged.Merge(incoming)
	}
	if err != nil {
		if _, derr := tx.ExecContext(ctx,
			"DELETE FROM zone_maps WHERE topic_id = ? AND column_id = ?", topicID, columnID); derr != nil {
			return fmt.Errorf("catalog: failed to drop stale zone map: %w", derr)
		}
		return nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE zone_maps SET bloom_data = ?, item_count = ?, updated_at = ?
		 WHERE topic_id = ? AND column_id = ?`,
		merged.Marshal(), merged.Count(), time.Now().Unix(), topicID, columnID)
	if err != nil {
		return fmt.Errorf("catalog: failed to update zone map: %w", err)
	}
	return nil
}

// RecordNotification appends to the notification log of an owner.
func (c *SQLiteCatalog) RecordNotification(ctx context.Context, kind OwnerKind, ownerID int64, ntype, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ownerExists(ctx, kind, ownerID); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx,
		"INSERT INTO notifications (owner_kind, owner_id, type, message, created_at) VALUES (?, ?, ?, ?, ?)",
		string(kind), ownerID, ntype, message, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("catalog: failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns an owner's notification log, oldest first.
func (c *SQLiteCatalog) ListNotifications(ctx context.Context, kind OwnerKind, ownerID int64) ([]*NotificationRecord, error) {
	rows, err := c.readDB.QueryContext(ctx,
		`SELECT id, owner_kind, owner_id, type, message, created_at FROM notifications
		 WHERE owner_kind = ? AND owner_id = ? ORDER BY id`,
		string(kind), ownerID)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*NotificationRecord
	for rows.Next() {
		var n NotificationRecord
		var kindStr string
		var createdAt int64
		if err := rows.Scan(&n.ID, &kindStr, &n.OwnerID, &n.Type, &n.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("catalog: failed to scan notification: %w", err)
		}
		n.OwnerKind = OwnerKind(kindStr)
		n.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, &n)
	}
	return out, rows.Err()
}

// PurgeNotifications drops the notification log of an unlocked owner.
func (c *SQLiteCatalog) PurgeNotifications(ctx context.Context, kind OwnerKind, ownerID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	locked, err := c.ownerLocked(ctx, kind, ownerID)
	if err != nil {
		return err
	}
	if locked {
		code := errors.CodeSequenceLocked
		if kind == OwnerTopic {
			code = errors.CodeTopicLocked
		}
		return errors.NewImmutabilityViolation(code,
			fmt.Sprintf("cannot purge notifications of locked %s %d", kind, ownerID))
	}

	_, err = c.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE owner_kind = ? AND owner_id = ?", string(kind), ownerID)
	if err != nil {
		return fmt.Errorf("catalog: failed to purge notifications: %w", err)
	}
	return nil
}

// UpdateSequenceMetadata replaces the metadata of an unlocked sequence.
func (c *SQLiteCatalog) UpdateSequenceMetadata(ctx context.Context, sequenceID int64, metadata map[string]interface{}) error {
	return c.updateMetadata(ctx, OwnerSequence, sequenceID, metadata)
}

// UpdateTopicMetadata replaces the metadata of an unlocked topic.
func (c *SQLiteCatalog) UpdateTopicMetadata(ctx context.Context, topicID int64, metadata map[string]interface{}) error {
	return c.updateMetadata(ctx, OwnerTopic, topicID, metadata)
}

func (c *SQLiteCatalog) updateMetadata(ctx context.Context, kind OwnerKind, id int64, metadata map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	locked, err := c.ownerLocked(ctx, kind, id)
	if err != nil {
		return err
	}
	if locked {
		code := errors.CodeSequenceLocked
		if kind == OwnerTopic {
			code = errors.CodeTopicLocked
		}
		return errors.NewImmutabilityViolation(code,
			fmt.Sprintf("cannot update metadata of locked %s %d", kind, id))
	}

	metaJSON, err := marshalMetadata(metadata)
	if err != nil {
		return err
	}
	table := "sequences"
	if kind == OwnerTopic {
		table = "topics"
	}
	_, err = c.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET metadata = ? WHERE id = ?", table), metaJSON, id)
	if err != nil {
		return fmt.Errorf("catalog: failed to update metadata: %w", err)
	}
	return nil
}

// ownerExists verifies a notification owner row exists.
func (c *SQLiteCatalog) ownerExists(ctx context.Context, kind OwnerKind, id int64) error {
	_, err := c.ownerLocked(ctx, kind, id)
	return err
}

// ownerLocked loads the locked flag of a sequence or topic on the write
// connection; callers hold the write mutex.
func (c *SQLiteCatalog) ownerLocked(ctx context.Context, kind OwnerKind, id int64) (bool, error) {
	table, code := "sequences", errors.CodeSequenceNotFound
	if kind == OwnerTopic {
		table, code = "topics", errors.CodeTopicNotFound
	}
	var locked bool
	err := c.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT locked FROM %s WHERE id = ?", table), id).Scan(&locked)
	if err == sql.ErrNoRows {
		return false, errors.NewNotFoundError(code, fmt.Sprintf("%s %d not found", kind, id))
	}
	if err != nil {
		return false, fmt.Errorf("catalog: failed to load %s: %w", kind, err)
	}
	return locked, nil
}

func marshalMetadata(metadata map[string]interface{}) (string, error) {
	if metadata == nil {
		return "{}", nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "", errors.NewValidationError(errors.CodeInvalidArgument,
			fmt.Sprintf("metadata is not JSON-encodable: %v", err))
	}
	return string(data), nil
}

func unmarshalMetadata(data string) (map[string]interface{}, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("catalog: corrupt metadata: %w", err)
	}
	return m, nil
}

// matchMetadata applies exact-match metadata predicates in memory after
// the SQL scan; metadata keys are user-defined and unindexed.
func matchMetadata(have, want map[string]interface{}) bool {
	for k, v := range want {
		hv, ok := have[k]
		if !ok || fmt.Sprint(hv) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

// getOrPrepareStmt returns a cached prepared statement for the read
// connection, preparing it on first use.
func (c *SQLiteCatalog) getOrPrepareStmt(query string) (*sql.Stmt, error) {
	c.findStmtMu.RLock()
	stmt, ok := c.findStmtCache[query]
	c.findStmtMu.RUnlock()
	if ok {
		return stmt, nil
	}

	c.findStmtMu.Lock()
	defer c.findStmtMu.Unlock()
	if stmt, ok := c.findStmtCache[query]; ok {
		return stmt, nil
	}
	stmt, err := c.readDB.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to prepare statement: %w", err)
	}
	c.findStmtCache[query] = stmt
	return stmt, nil
}

const sequenceColumns = "id, uuid, name, locked, metadata, created_at"

func scanSequence(scan func(dest ...interface{}) error) (*SequenceRecord, error) {
	var rec SequenceRecord
	var meta string
	var createdAt int64
	if err := scan(&rec.ID, &rec.UUID, &rec.Name, &rec.Locked, &meta, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if rec.Metadata, err = unmarshalMetadata(meta); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

// GetSequence retrieves a sequence by id.
func (c *SQLiteCatalog) GetSequence(ctx context.Context, id int64) (*SequenceRecord, error) {
	stmt, err := c.getOrPrepareStmt("SELECT " + sequenceColumns + " FROM sequences WHERE id = ?")
	if err != nil {
		return nil, err
	}
	rec, err := scanSequence(stmt.QueryRowContext(ctx, id).Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeSequenceNotFound,
			fmt.Sprintf("sequence %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to get sequence: %w", err)
	}
	return rec, nil
}

// GetSequenceByName retrieves a sequence by its unique name.
func (c *SQLiteCatalog) GetSequenceByName(ctx context.Context, name string) (*SequenceRecord, error) {
	stmt, err := c.getOrPrepareStmt("SELECT " + sequenceColumns + " FROM sequences WHERE name = ?")
	if err != nil {
		return nil, err
	}
	rec, err := scanSequence(stmt.QueryRowContext(ctx, name).Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeSequenceNotFound,
			fmt.Sprintf("sequence %q not found", name))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to get sequence: %w", err)
	}
	return rec, nil
}

// FindSequences returns sequences matching the filter.
func (c *SQLiteCatalog) FindSequences(ctx context.Context, filter SequenceFilter) ([]*SequenceRecord, error) {
	query := "SELECT " + sequenceColumns + " FROM sequences"
	var clauses []string
	var args []interface{}

	if filter.Name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.NamePattern != "" {
		clauses = append(clauses, "name LIKE ?")
		args = append(args, "%"+filter.NamePattern+"%")
	}
	if filter.UUID != "" {
		clauses = append(clauses, "uuid = ?")
		args = append(args, filter.UUID)
	}
	if filter.Locked != nil {
		clauses = append(clauses, "locked = ?")
		args = append(args, *filter.Locked)
	}
	if !filter.CreatedAfter.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.CreatedAfter.Unix())
	}
	if !filter.CreatedBefore.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, filter.CreatedBefore.Unix())
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to find sequences: %w", err)
	}
	defer rows.Close()

	var out []*SequenceRecord
	for rows.Next() {
		rec, err := scanSequence(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to scan sequence: %w", err)
		}
		if len(filter.Metadata) > 0 && !matchMetadata(rec.Metadata, filter.Metadata) {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const topicColumns = "id, uuid, sequence_id, name, locked, metadata, serialization_format, ontology_tag, created_at"

func scanTopic(scan func(dest ...interface{}) error) (*TopicRecord, error) {
	var rec TopicRecord
	var meta, format string
	var createdAt int64
	if err := scan(&rec.ID, &rec.UUID, &rec.SequenceID, &rec.Name, &rec.Locked,
		&meta, &format, &rec.OntologyTag, &createdAt); err != nil {
		return nil, err
	}
	var err error
	if rec.Metadata, err = unmarshalMetadata(meta); err != nil {
		return nil, err
	}
	rec.Format = types.SerializationFormat(format)
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

// GetTopic retrieves a topic by id.
func (c *SQLiteCatalog) GetTopic(ctx context.Context, id int64) (*TopicRecord, error) {
	stmt, err := c.getOrPrepareStmt("SELECT " + topicColumns + " FROM topics WHERE id = ?")
	if err != nil {
		return nil, err
	}
	rec, err := scanTopic(stmt.QueryRowContext(ctx, id).Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeTopicNotFound,
			fmt.Sprintf("topic %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to get topic: %w", err)
	}
	return rec, nil
}

// GetTopicByName retrieves a topic by its unique name.
func (c *SQLiteCatalog) GetTopicByName(ctx context.Context, name string) (*TopicRecord, error) {
	stmt, err := c.getOrPrepareStmt("SELECT " + topicColumns + " FROM topics WHERE name = ?")
	if err != nil {
		return nil, err
	}
	rec, err := scanTopic(stmt.QueryRowContext(ctx, name).Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeTopicNotFound,
			fmt.Sprintf("topic %q not found", name))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to get topic: %w", err)
	}
	return rec, nil
}

// FindTopics returns topics matching the filter.
func (c *SQLiteCatalog) FindTopics(ctx context.Context, filter TopicFilter) ([]*TopicRecord, error) {
	query := "SELECT " + topicColumns + " FROM topics"
	var clauses []string
	var args []interface{}

	if filter.Name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.NamePattern != "" {
		clauses = append(clauses, "name LIKE ?")
		args = append(args, "%"+filter.NamePattern+"%")
	}
	if filter.UUID != "" {
		clauses = append(clauses, "uuid = ?")
		args = append(args, filter.UUID)
	}
	if filter.SequenceID != 0 {
		clauses = append(clauses, "sequence_id = ?")
		args = append(args, filter.SequenceID)
	}
	if filter.OntologyTag != "" {
		clauses = append(clauses, "ontology_tag = ?")
		args = append(args, filter.OntologyTag)
	}
	if filter.Locked != nil {
		clauses = append(clauses, "locked = ?")
		args = append(args, *filter.Locked)
	}
	if !filter.CreatedAfter.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, filter.CreatedAfter.Unix())
	}
	if !filter.CreatedBefore.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, filter.CreatedBefore.Unix())
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := c.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to find topics: %w", err)
	}
	defer rows.Close()

	var out []*TopicRecord
	for rows.Next() {
		rec, err := scanTopic(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to scan topic: %w", err)
		}
		if len(filter.Metadata) > 0 && !matchMetadata(rec.Metadata, filter.Metadata) {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const chunkColumns = "id, uuid, topic_id, data_file, record_count, size_bytes, created_at"

func scanChunk(scan func(dest ...interface{}) error) (*ChunkRecord, error) {
	var rec ChunkRecord
	var createdAt int64
	if err := scan(&rec.ID, &rec.UUID, &rec.TopicID, &rec.DataFile,
		&rec.RecordCount, &rec.SizeBytes, &createdAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(createdAt, 0)
	return &rec, nil
}

// ListChunks returns a topic's chunks in append order.
func (c *SQLiteCatalog) ListChunks(ctx context.Context, topicID int64) ([]*ChunkRecord, error) {
	stmt, err := c.getOrPrepareStmt("SELECT " + chunkColumns + " FROM chunks WHERE topic_id = ? ORDER BY id")
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, topicID)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to list chunks: %w", err)
	}
	defer rows.Close()

	var out []*ChunkRecord
	for rows.Next() {
		rec, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("catalog: failed to scan chunk: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetChunkByUUID retrieves a chunk by its globally unique UUID.
func (c *SQLiteCatalog) GetChunkByUUID(ctx context.Context, chunkUUID string) (*ChunkRecord, error) {
	stmt, err := c.getOrPrepareStmt("SELECT " + chunkColumns + " FROM chunks WHERE uuid = ?")
	if err != nil {
		return nil, err
	}
	rec, err := scanChunk(stmt.QueryRowContext(ctx, chunkUUID).Scan)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError(errors.CodeChunkNotFound,
			fmt.Sprintf("chunk %q not found", chunkUUID))
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to get chunk: %w", err)
	}
	return rec, nil
}

// ChunkStats returns every chunk of a topic with its per-column zone
// maps.
func (c *SQLiteCatalog) ChunkStats(ctx context.Context, topicID int64) ([]*ChunkColumnStats, error) {
	chunks, err := c.ListChunks(ctx, topicID)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*ChunkColumnStats, len(chunks))
	out := make([]*ChunkColumnStats, 0, len(chunks))
	for _, ch := range chunks {
		cs := &ChunkColumnStats{
			Chunk:   ch,
			Numeric: make(map[string]NumericStatRow),
			Literal: make(map[string]LiteralStatRow),
		}
		byID[ch.ID] = cs
		out = append(out, cs)
	}

	rows, err := c.readDB.QueryContext(ctx,
		`SELECT s.chunk_id, col.name, s.min_value, s.max_value, s.has_null, s.has_nan
		 FROM column_chunk_stats_numeric s
		 JOIN columns col ON col.id = s.column_id
		 JOIN chunks ch ON ch.id = s.chunk_id
		 WHERE ch.topic_id = ?`, topicID)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to load numeric stats: %w", err)
	}
	for rows.Next() {
		var chunkID int64
		var name string
		var row NumericStatRow
		if err := rows.Scan(&chunkID, &name, &row.Min, &row.Max, &row.HasNull, &row.HasNaN); err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalog: failed to scan numeric stats: %w", err)
		}
		if cs, ok := byID[chunkID]; ok {
			cs.Numeric[name] = row
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = c.readDB.QueryContext(ctx,
		`SELECT s.chunk_id, col.name, s.min_value, s.max_value, s.has_null
		 FROM column_chunk_stats_literal s
		 JOIN columns col ON col.id = s.column_id
		 JOIN chunks ch ON ch.id = s.chunk_id
		 WHERE ch.topic_id = ?`, topicID)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to load literal stats: %w", err)
	}
	for rows.Next() {
		var chunkID int64
		var name string
		var row LiteralStatRow
		if err := rows.Scan(&chunkID, &name, &row.Min, &row.Max, &row.HasNull); err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalog: failed to scan literal stats: %w", err)
		}
		if cs, ok := byID[chunkID]; ok {
			cs.Literal[name] = row
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// ZoneMap returns the merged literal bloom of (topic, column), or nil.
func (c *SQLiteCatalog) ZoneMap(ctx context.Context, topicID int64, column string) (*bloom.Filter, error) {
	var blob []byte
	err := c.readDB.QueryRowContext(ctx,
		`SELECT z.bloom_data FROM zone_maps z
		 JOIN columns col ON col.id = z.column_id
		 WHERE z.topic_id = ? AND col.name = ?`, topicID, column).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to load zone map: %w", err)
	}
	f, err := bloom.Unmarshal(blob)
	if err != nil {
		// Unreadable zone map: treat as absent, pruning stays safe.
		return nil, nil
	}
	return f, nil
}
