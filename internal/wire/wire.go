// Package wire defines the connection contracts between clients and the
// platform. Control connections carry metadata and lifecycle calls, data
// connections carry record streams; the split mirrors the client's
// resource pools, which size and schedule the two planes differently.
package wire

import (
	"context"

	"github.com/mosaicolabs/mosaico/internal/catalog"
	"github.com/mosaicolabs/mosaico/internal/query"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Transport hands out connections to one mosaicod instance.
type Transport interface {
	// Control opens a control-plane connection.
	Control(ctx context.Context) (ControlConn, error)

	// Data opens a data-plane connection.
	Data(ctx context.Context) (DataConn, error)

	// Close releases the transport and all pooled connections.
	Close() error
}

// ControlConn carries metadata and lifecycle operations.
type ControlConn interface {
	CreateSequence(ctx context.Context, name string, metadata map[string]interface{}) (*catalog.SequenceRecord, error)
	CreateTopic(ctx context.Context, sequenceName, topicName, ontologyTag string, metadata map[string]interface{}) (*catalog.TopicRecord, error)

	GetSequence(ctx context.Context, name string) (*catalog.SequenceRecord, error)
	GetTopic(ctx context.Context, name string) (*catalog.TopicRecord, error)
	FindSequences(ctx context.Context, filter catalog.SequenceFilter) ([]*catalog.SequenceRecord, error)
	FindTopics(ctx context.Context, filter catalog.TopicFilter) ([]*catalog.TopicRecord, error)

	LockTopic(ctx context.Context, topicName string) error
	LockSequence(ctx context.Context, sequenceName string) error
	DeleteTopic(ctx context.Context, topicName string) error
	DeleteSequence(ctx context.Context, sequenceName string) error

	UpdateSequenceMetadata(ctx context.Context, sequenceName string, metadata map[string]interface{}) error
	UpdateTopicMetadata(ctx context.Context, topicName string, metadata map[string]interface{}) error

	RecordNotification(ctx context.Context, kind catalog.OwnerKind, ownerName, ntype, message string) error
	ListNotifications(ctx context.Context, kind catalog.OwnerKind, ownerName string) ([]*catalog.NotificationRecord, error)
	PurgeNotifications(ctx context.Context, kind catalog.OwnerKind, ownerName string) error

	Close() error
}

// DataConn carries record streams.
type DataConn interface {
	// OpenAppend opens the exclusive append stream of a topic.
	OpenAppend(ctx context.Context, topicName string) (AppendStream, error)

	// OpenRetrieve opens a filtered record stream over one topic.
	OpenRetrieve(ctx context.Context, topicName string, q *query.Query) (RecordStream, error)

	// OpenSequenceRetrieve opens a merged stream over a whole sequence.
	OpenSequenceRetrieve(ctx context.Context, sequenceName string, q *query.Query) (MessageStream, error)

	Close() error
}

// AppendStream pushes records into one topic.
type AppendStream interface {
	Send(ctx context.Context, rec types.Record) error
	Flush(ctx context.Context) error

	// CloseSend flushes the remainder and ends the stream.
	CloseSend(ctx context.Context) error

	// Abort drops buffered records and ends the stream.
	Abort()
}

// RecordStream delivers the records of one topic; Recv returns io.EOF
// after the last record.
type RecordStream interface {
	Recv(ctx context.Context) (types.Record, error)
}

// MessageStream delivers topic-tagged records of a merged sequence
// stream; Recv returns io.EOF after the last message.
type MessageStream interface {
	Recv(ctx context.Context) (Message, error)
}

// Message is one merged-stream element.
type Message struct {
	Topic  string
	Record types.Record
}
