// Package engine composes the catalog, the chunk store, and the codecs
// into the platform's operational core: ingest sessions, retrieval
// streams, and lifecycle operations.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mosaicolabs/mosaico/internal/catalog"
	"github.com/mosaicolabs/mosaico/internal/chunk"
	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/internal/observability"
	"github.com/mosaicolabs/mosaico/internal/ontology"
	"github.com/mosaicolabs/mosaico/internal/query"
	"github.com/mosaicolabs/mosaico/internal/storage"
	"github.com/mosaicolabs/mosaico/internal/stream"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Config tunes the engine.
type Config struct {
	Writer   chunk.WriterConfig
	Prefetch int
}

// DefaultConfig returns the default engine tuning.
func DefaultConfig() Config {
	return Config{Writer: chunk.DefaultWriterConfig(), Prefetch: 4}
}

// Engine is the operational core of one mosaicod instance.
type Engine struct {
	catalog  catalog.Catalog
	store    storage.ObjectStorage
	registry *ontology.Registry
	pruner   *catalog.Pruner
	stats    *observability.PruneStats
	cfg      Config
	logger   *log.Logger

	mu     sync.Mutex
	active map[int64]bool // topics with an open append session
}

// New creates an engine over a catalog and an object store.
func New(cat catalog.Catalog, store storage.ObjectStorage, registry *ontology.Registry, cfg Config, logger *log.Logger) *Engine {
	if registry == nil {
		registry = ontology.Default()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		catalog:  cat,
		store:    store,
		registry: registry,
		pruner:   catalog.NewPruner(cat),
		stats:    observability.NewPruneStats(time.Hour),
		cfg:      cfg,
		logger:   logger,
		active:   make(map[int64]bool),
	}
}

// Catalog exposes the metadata store for read-side operations.
func (e *Engine) Catalog() catalog.Catalog { return e.catalog }

// Stats exposes retrieval statistics.
func (e *Engine) Stats() *observability.PruneStats { return e.stats }

// CreateSequence registers a new recording sequence.
func (e *Engine) CreateSequence(ctx context.Context, name string, metadata map[string]interface{}) (*catalog.SequenceRecord, error) {
	return e.catalog.CreateSequence(ctx, name, metadata)
}

// CreateTopic registers a topic under a sequence. The ontology tag
// determines the schema and the serialization format.
func (e *Engine) CreateTopic(ctx context.Context, sequenceName, topicName, ontologyTag string, metadata map[string]interface{}) (*catalog.TopicRecord, error) {
	desc, err := e.registry.Lookup(ontologyTag)
	if err != nil {
		return nil, err
	}
	seq, err := e.catalog.GetSequenceByName(ctx, sequenceName)
	if err != nil {
		return nil, err
	}
	return e.catalog.CreateTopic(ctx, seq.ID, topicName, ontologyTag, desc.Format, metadata)
}

// LockTopic locks a topic by name.
func (e *Engine) LockTopic(ctx context.Context, topicName string) error {
	topic, err := e.catalog.GetTopicByName(ctx, topicName)
	if err != nil {
		return err
	}
	e.mu.Lock()
	activeWriter := e.active[topic.ID]
	e.mu.Unlock()
	if activeWriter {
		return errors.New(errors.ErrCategoryConflict, errors.CodeActiveWriter,
			fmt.Sprintf("topic %q has an open append session", topicName))
	}
	return e.catalog.LockTopic(ctx, topic.ID)
}

// LockSequence locks a sequence by name once all its topics are locked.
func (e *Engine) LockSequence(ctx context.Context, sequenceName string) error {
	seq, err := e.catalog.GetSequenceByName(ctx, sequenceName)
	if err != nil {
		return err
	}
	return e.catalog.LockSequence(ctx, seq.ID)
}

// DeleteTopic removes a topic and its chunk objects.
func (e *Engine) DeleteTopic(ctx context.Context, topicName string) error {
	topic, err := e.catalog.GetTopicByName(ctx, topicName)
	if err != nil {
		return err
	}
	e.mu.Lock()
	activeWriter := e.active[topic.ID]
	e.mu.Unlock()
	if activeWriter {
		return errors.New(errors.ErrCategoryConflict, errors.CodeActiveWriter,
			fmt.Sprintf("topic %q has an open append session", topicName))
	}

	files, err := e.catalog.DeleteTopic(ctx, topic.ID)
	if err != nil {
		return err
	}
	e.removeObjects(ctx, files)
	return nil
}

// DeleteSequence removes a sequence, its topics, and their chunk objects.
func (e *Engine) DeleteSequence(ctx context.Context, sequenceName string) error {
	seq, err := e.catalog.GetSequenceByName(ctx, sequenceName)
	if err != nil {
		return err
	}
	files, err := e.catalog.DeleteSequence(ctx, seq.ID)
	if err != nil {
		return err
	}
	e.removeObjects(ctx, files)
	return nil
}

// removeObjects deletes chunk objects after their catalog rows are gone.
// Failures leave orphaned objects, never dangling catalog entries; they
// are logged and later swept by List-based reconciliation.
func (e *Engine) removeObjects(ctx context.Context, files []string) {
	for _, f := range files {
		if err := e.store.Delete(ctx, f); err != nil {
			e.logger.Printf("engine: orphaned chunk object %q: %v", f, err)
		}
	}
}

// AppendSession is one exclusive ingest session on a topic.
type AppendSession struct {
	engine *Engine
	topic  *catalog.TopicRecord
	writer *chunk.Writer
	closed bool
}

// OpenAppend opens the single allowed append session on a topic.
func (e *Engine) OpenAppend(ctx context.Context, topicName string) (*AppendSession, error) {
	topic, err := e.catalog.GetTopicByName(ctx, topicName)
	if err != nil {
		return nil, err
	}
	if topic.Locked {
		return nil, errors.NewImmutabilityViolation(errors.CodeTopicLocked,
			fmt.Sprintf("topic %q is locked", topicName))
	}
	desc, err := e.registry.Lookup(topic.OntologyTag)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.active[topic.ID] {
		e.mu.Unlock()
		return nil, errors.New(errors.ErrCategoryConflict, errors.CodeActiveWriter,
			fmt.Sprintf("topic %q already has an append session", topicName))
	}
	e.active[topic.ID] = true
	e.mu.Unlock()

	writer, err := chunk.NewWriter(desc.Schema, topic.Format, e.cfg.Writer, e.flushFunc(topic))
	if err != nil {
		e.release(topic.ID)
		return nil, err
	}
	return &AppendSession{engine: e, topic: topic, writer: writer}, nil
}

// flushFunc uploads the payload before registering the chunk: a failed
// catalog insert must not leave a catalog row pointing at nothing, so
// the object goes first and is removed again if the insert fails.
func (e *Engine) flushFunc(topic *catalog.TopicRecord) chunk.FlushFunc {
	return func(ctx context.Context, payload []byte, recordCount int64, stats []chunk.ColumnStats) error {
		dataFile := fmt.Sprintf("chunks/%s/%s.chk", topic.UUID, uuid.New().String())
		if err := e.store.Put(ctx, dataFile, payload); err != nil {
			return err
		}
		if _, err := e.catalog.AppendChunk(ctx, topic.ID, dataFile, recordCount, int64(len(payload)), stats); err != nil {
			if derr := e.store.Delete(ctx, dataFile); derr != nil {
				e.logger.Printf("engine: orphaned chunk object %q after failed append: %v", dataFile, derr)
				return errors.NewPartialWriteError(
					fmt.Sprintf("chunk upload succeeded but registration failed for %q", dataFile), err)
			}
			return err
		}
		return nil
	}
}

func (e *Engine) release(topicID int64) {
	e.mu.Lock()
	delete(e.active, topicID)
	e.mu.Unlock()
}

// Append buffers one record.
func (s *AppendSession) Append(ctx context.Context, rec types.Record) error {
	return s.writer.Append(ctx, rec)
}

// Flush forces the buffered records out as a chunk.
func (s *AppendSession) Flush(ctx context.Context) error {
	return s.writer.Flush(ctx)
}

// Close flushes the remainder and releases the topic for other writers.
func (s *AppendSession) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	if err := s.writer.Close(ctx); err != nil {
		return err
	}
	s.closed = true
	s.engine.release(s.topic.ID)
	return nil
}

// Abort drops buffered records and releases the topic. Chunks already
// flushed stay; the caller's error policy decides whether to delete the
// topic afterwards.
func (s *AppendSession) Abort() {
	if s.closed {
		return
	}
	s.writer.Abort()
	s.closed = true
	s.engine.release(s.topic.ID)
}

// Topic returns the session's topic record.
func (s *AppendSession) Topic() *catalog.TopicRecord { return s.topic }

// OpenRetrieve opens a filtered stream over one topic. The chunk list is
// snapshotted and pruned at open time: chunks appended afterwards are
// not part of this stream.
func (e *Engine) OpenRetrieve(ctx context.Context, topicName string, q *query.Query) (*stream.TopicStreamer, error) {
	topic, err := e.catalog.GetTopicByName(ctx, topicName)
	if err != nil {
		return nil, err
	}
	desc, err := e.registry.Lookup(topic.OntologyTag)
	if err != nil {
		return nil, err
	}
	if q != nil && !q.Empty() && q.Tag != topic.OntologyTag {
		return nil, errors.NewValidationError(errors.CodeMixedOntology,
			fmt.Sprintf("query is over ontology type %q, topic %q is %q", q.Tag, topicName, topic.OntologyTag))
	}

	paths, pruneStats, err := e.pruneTopic(ctx, topic, q)
	if err != nil {
		return nil, err
	}
	if pruneStats.TotalChunks > 0 {
		e.logger.Printf("engine: topic %q scan: %d of %d chunks pruned",
			topicName, pruneStats.Pruned, pruneStats.TotalChunks)
	}
	return stream.NewTopicStreamer(topic.Name, desc.Schema, topic.Format, e.store, paths, e.cfg.Prefetch, q)
}

func (e *Engine) pruneTopic(ctx context.Context, topic *catalog.TopicRecord, q *query.Query) ([]string, *catalog.PruneResult, error) {
	var conds []catalog.Condition
	if q != nil {
		conds = q.PruneConditions()
	}
	res, err := e.pruner.Prune(ctx, topic.ID, conds)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range conds {
		e.stats.RecordPredicate(c.Column, string(c.Op))
	}
	e.stats.RecordRetrieve(res.TotalChunks, res.Pruned)
	paths := make([]string, 0, len(res.Candidates))
	for _, c := range res.Candidates {
		paths = append(paths, c.DataFile)
	}
	return paths, res, nil
}

// OpenSequenceRetrieve opens a merged stream over every topic of a
// sequence. A non-nil query filters the topics of its ontology type;
// topics of other types stream unfiltered.
func (e *Engine) OpenSequenceRetrieve(ctx context.Context, sequenceName string, q *query.Query) (*stream.SequenceStreamer, error) {
	seq, err := e.catalog.GetSequenceByName(ctx, sequenceName)
	if err != nil {
		return nil, err
	}
	topics, err := e.catalog.FindTopics(ctx, catalog.TopicFilter{SequenceID: seq.ID})
	if err != nil {
		return nil, err
	}

	streamers := make([]*stream.TopicStreamer, 0, len(topics))
	for _, topic := range topics {
		desc, err := e.registry.Lookup(topic.OntologyTag)
		if err != nil {
			return nil, err
		}
		topicQuery := q
		if q != nil && q.Tag != topic.OntologyTag {
			topicQuery = nil
		}
		paths, _, err := e.pruneTopic(ctx, topic, topicQuery)
		if err != nil {
			return nil, err
		}
		s, err := stream.NewTopicStreamer(topic.Name, desc.Schema, topic.Format, e.store, paths, e.cfg.Prefetch, topicQuery)
		if err != nil {
			return nil, err
		}
		streamers = append(streamers, s)
	}
	return stream.NewSequenceStreamer(streamers), nil
}
