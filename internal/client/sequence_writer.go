package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/mosaicolabs/mosaico/internal/catalog"
	"github.com/mosaicolabs/mosaico/internal/ontology"
)

// SequenceWriter drives one recording session: it creates topics under
// its sequence, hands out their writers, and finalizes the whole
// sequence in one step. Finalize locks every topic and then the
// sequence, so a locked sequence is always a complete one; what happens
// to a partial sequence on failure is the writer's OnErrorPolicy.
type SequenceWriter struct {
	client   *Client
	name     string
	policy   OnErrorPolicy
	registry *ontology.Registry

	mu        sync.Mutex
	topics    map[string]*TopicWriter
	finalized bool
}

// Name returns the sequence name.
func (w *SequenceWriter) Name() string { return w.name }

// CreateTopic registers a topic under the sequence and opens its append
// stream.
func (w *SequenceWriter) CreateTopic(ctx context.Context, topicName, ontologyTag string, metadata map[string]interface{}) (*TopicWriter, error) {
	w.mu.Lock()
	if w.finalized {
		w.mu.Unlock()
		return nil, fmt.Errorf("sequence %q already finalized", w.name)
	}
	w.mu.Unlock()

	desc, err := w.registry.Lookup(ontologyTag)
	if err != nil {
		return nil, err
	}
	if err := w.client.createTopic(ctx, w.name, topicName, ontologyTag, metadata); err != nil {
		return nil, err
	}
	stream, err := w.client.openAppend(ctx, topicName)
	if err != nil {
		return nil, err
	}

	tw := newTopicWriter(w.client, topicName, desc.Schema, stream)
	w.mu.Lock()
	w.topics[topicName] = tw
	w.mu.Unlock()
	return tw, nil
}

// RecordProgress appends a progress notification to the sequence.
func (w *SequenceWriter) RecordProgress(ctx context.Context, message string) error {
	return w.client.recordNotification(ctx, catalog.OwnerSequence, w.name,
		catalog.NotifyProgress, message)
}

// Finalize closes every topic writer, locks every topic, and locks the
// sequence. On any failure it applies the error policy: delete the
// partial sequence, or keep it unlocked with an error notification.
func (w *SequenceWriter) Finalize(ctx context.Context) error {
	w.mu.Lock()
	if w.finalized {
		w.mu.Unlock()
		return nil
	}
	w.finalized = true
	topics := make([]*TopicWriter, 0, len(w.topics))
	for _, tw := range w.topics {
		topics = append(topics, tw)
	}
	w.mu.Unlock()

	var firstErr error
	for _, tw := range topics {
		if err := tw.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close topic %q: %w", tw.Topic(), err)
		}
	}
	if firstErr == nil {
		for _, tw := range topics {
			if err := w.client.lockTopic(ctx, tw.Topic()); err != nil {
				firstErr = fmt.Errorf("lock topic %q: %w", tw.Topic(), err)
				break
			}
		}
	}
	if firstErr == nil {
		if err := w.client.lockSequence(ctx, w.name); err != nil {
			firstErr = fmt.Errorf("lock sequence %q: %w", w.name, err)
		}
	}
	if firstErr == nil {
		return nil
	}

	switch w.policy {
	case OnErrorDelete:
		for _, tw := range topics {
			tw.Abort()
		}
		if err := w.client.DeleteSequence(ctx, w.name); err != nil {
			return fmt.Errorf("finalize failed (%v); delete also failed: %w", firstErr, err)
		}
	default:
		if err := w.client.recordNotification(ctx, catalog.OwnerSequence, w.name,
			catalog.NotifyError, firstErr.Error()); err != nil {
			return fmt.Errorf("finalize failed (%v); notification also failed: %w", firstErr, err)
		}
	}
	return firstErr
}

// Abort ends the session without locking anything, applying the error
// policy to what was already ingested.
func (w *SequenceWriter) Abort(ctx context.Context) error {
	w.mu.Lock()
	if w.finalized {
		w.mu.Unlock()
		return nil
	}
	w.finalized = true
	topics := make([]*TopicWriter, 0, len(w.topics))
	for _, tw := range w.topics {
		topics = append(topics, tw)
	}
	w.mu.Unlock()

	for _, tw := range topics {
		tw.Abort()
	}
	if w.policy == OnErrorDelete {
		return w.client.DeleteSequence(ctx, w.name)
	}
	return w.client.recordNotification(ctx, catalog.OwnerSequence, w.name,
		catalog.NotifyError, "ingestion aborted")
}
