package stream

import (
	"context"
	"io"

	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Message is one record of a merged sequence stream, tagged with the
// topic it came from.
type Message struct {
	Topic  string
	Record types.Record
}

// SequenceStreamer merges the topic streams of one sequence into a
// single non-decreasing timestamp order. Ties are broken by the
// lexicographically smallest topic name, making replay deterministic.
type SequenceStreamer struct {
	topics []*TopicStreamer
}

// NewSequenceStreamer merges the given topic streamers. Each streamer
// must deliver records in non-decreasing timestamp order, which stored
// topics guarantee by the append contract.
func NewSequenceStreamer(topics []*TopicStreamer) *SequenceStreamer {
	return &SequenceStreamer{topics: topics}
}

// Next returns the globally next message, or io.EOF once every topic is
// exhausted. The merge peeks every live head and consumes the earliest;
// topic counts per sequence are small, so a linear scan beats heap
// bookkeeping.
func (s *SequenceStreamer) Next(ctx context.Context) (Message, error) {
	var best *TopicStreamer
	var bestTS int64

	for _, t := range s.topics {
		ts, err := t.NextTimestamp(ctx)
		if err == io.EOF {
			continue
		}
		if err != nil {
			return Message{}, err
		}
		if best == nil || ts < bestTS || (ts == bestTS && t.Name() < best.Name()) {
			best = t
			bestTS = ts
		}
	}
	if best == nil {
		return Message{}, io.EOF
	}

	rec, err := best.Next(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: best.Name(), Record: rec}, nil
}
