package client

import (
	"context"
	"sync"

	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/internal/wire"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// TopicWriter pushes records into one topic. Pushes are handed to the
// topic's processing lane and sent asynchronously in push order; the
// first send failure sticks and surfaces on the next Push, Flush, or
// Close.
type TopicWriter struct {
	client *Client
	topic  string
	schema *types.Schema
	stream wire.AppendStream

	// sendCtx spans the writer's lifetime. Lane tasks send under it, so
	// a record accepted by Push still goes out after the caller's
	// context is cancelled.
	sendCtx    context.Context
	cancelSend context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

func newTopicWriter(client *Client, topic string, schema *types.Schema, stream wire.AppendStream) *TopicWriter {
	ctx, cancel := context.WithCancel(context.Background())
	return &TopicWriter{
		client:     client,
		topic:      topic,
		schema:     schema,
		stream:     stream,
		sendCtx:    ctx,
		cancelSend: cancel,
	}
}

// Topic returns the topic name.
func (w *TopicWriter) Topic() string { return w.topic }

// Schema returns the topic's ontology schema.
func (w *TopicWriter) Schema() *types.Schema { return w.schema }

// Push enqueues one record. The call returns once the record is queued
// on the topic's lane; the send itself happens on the lane goroutine
// under the writer's own context, so cancelling ctx after Push returns
// does not drop the record.
func (w *TopicWriter) Push(ctx context.Context, rec types.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errors.NewValidationError(errors.CodeInvalidArgument,
			"push on closed topic writer")
	}
	if w.err != nil {
		err := w.err
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	ok := w.client.lanes.submit(w.topic, func() {
		if err := w.client.retry.Do(w.sendCtx, func() error {
			return w.stream.Send(w.sendCtx, rec)
		}); err != nil {
			w.setErr(err)
		}
	})
	if !ok {
		return errors.NewValidationError(errors.CodeInvalidArgument,
			"push after client close")
	}
	return nil
}

// Flush drains the topic's lane and forces the buffered chunk out.
func (w *TopicWriter) Flush(ctx context.Context) error {
	w.client.lanes.barrier(w.topic)
	if err := w.Err(); err != nil {
		return err
	}
	if err := w.client.retry.Do(ctx, func() error {
		return w.stream.Flush(ctx)
	}); err != nil {
		w.setErr(err)
		return err
	}
	return nil
}

// Close drains the lane, flushes the remainder, and ends the append
// stream. Closing twice is a no-op.
func (w *TopicWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		err := w.err
		w.mu.Unlock()
		return err
	}
	w.closed = true
	w.mu.Unlock()
	defer w.cancelSend()

	w.client.lanes.barrier(w.topic)
	if err := w.Err(); err != nil {
		w.stream.Abort()
		return err
	}
	if err := w.stream.CloseSend(ctx); err != nil {
		w.setErr(err)
		return err
	}
	return nil
}

// Abort drains the lane, drops buffered records, and ends the stream.
func (w *TopicWriter) Abort() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	defer w.cancelSend()

	w.client.lanes.barrier(w.topic)
	w.stream.Abort()
}

// Err returns the sticky first send error, if any.
func (w *TopicWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *TopicWriter) setErr(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}
