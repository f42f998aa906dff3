package client

import (
	"context"

	"github.com/mosaicolabs/mosaico/internal/wire"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// TopicReader iterates one topic's record stream in timestamp order.
// Next returns io.EOF after the last record.
type TopicReader struct {
	stream wire.RecordStream
}

func (r *TopicReader) Next(ctx context.Context) (types.Record, error) {
	return r.stream.Recv(ctx)
}

// SequenceReader iterates a merged sequence stream; every message names
// the topic its record came from. Next returns io.EOF after the last
// message.
type SequenceReader struct {
	stream wire.MessageStream
}

func (r *SequenceReader) Next(ctx context.Context) (wire.Message, error) {
	return r.stream.Recv(ctx)
}
