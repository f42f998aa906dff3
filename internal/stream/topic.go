// Package stream delivers stored records back to clients: per-topic
// streams over pruned chunk lists, and sequence streams that merge
// topics into one global timestamp order.
package stream

import (
	"context"
	"io"

	"github.com/mosaicolabs/mosaico/internal/chunk"
	"github.com/mosaicolabs/mosaico/internal/query"
	"github.com/mosaicolabs/mosaico/internal/storage"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// TopicStreamer iterates matching records of one topic in timestamp
// order. It keeps a one-record lookahead so the head timestamp can be
// inspected without consuming it.
type TopicStreamer struct {
	name   string
	schema *types.Schema
	reader *chunk.Reader
	filter *query.Query

	peeked *types.Record
	done   bool
}

// NewTopicStreamer creates a streamer over an ordered chunk path list.
// filter may be nil to stream every record.
func NewTopicStreamer(name string, schema *types.Schema, format types.SerializationFormat, store storage.ObjectStorage, paths []string, prefetch int, filter *query.Query) (*TopicStreamer, error) {
	reader, err := chunk.NewReader(schema, format, store, paths, prefetch)
	if err != nil {
		return nil, err
	}
	return &TopicStreamer{
		name:   name,
		schema: schema,
		reader: reader,
		filter: filter,
	}, nil
}

// Name returns the topic name.
func (s *TopicStreamer) Name() string { return s.name }

// Schema returns the topic schema.
func (s *TopicStreamer) Schema() *types.Schema { return s.schema }

// NextTimestamp returns the timestamp of the next matching record
// without consuming it. Repeated calls return the same value; io.EOF
// means the stream is exhausted.
func (s *TopicStreamer) NextTimestamp(ctx context.Context) (int64, error) {
	if err := s.fill(ctx); err != nil {
		return 0, err
	}
	return s.peeked.Timestamp, nil
}

// Next returns the next matching record, or io.EOF.
func (s *TopicStreamer) Next(ctx context.Context) (types.Record, error) {
	if err := s.fill(ctx); err != nil {
		return types.Record{}, err
	}
	rec := *s.peeked
	s.peeked = nil
	return rec, nil
}

// fill advances the lookahead to the next record that passes the filter.
func (s *TopicStreamer) fill(ctx context.Context) error {
	if s.peeked != nil {
		return nil
	}
	if s.done {
		return io.EOF
	}
	for {
		rec, err := s.reader.Next(ctx)
		if err != nil {
			if err == io.EOF {
				s.done = true
			}
			return err
		}
		if s.filter != nil && !s.filter.Matches(s.schema, rec) {
			continue
		}
		s.peeked = &rec
		return nil
	}
}
