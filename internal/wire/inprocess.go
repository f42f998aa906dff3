package wire

import (
	"context"

	"github.com/mosaicolabs/mosaico/internal/catalog"
	"github.com/mosaicolabs/mosaico/internal/engine"
	"github.com/mosaicolabs/mosaico/internal/query"
	"github.com/mosaicolabs/mosaico/internal/stream"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// InProcessTransport serves the wire contracts directly from an engine
// in the same process. It backs embedded deployments and the client
// test suite; a network transport implements the same interfaces.
type InProcessTransport struct {
	engine *engine.Engine
}

// NewInProcessTransport wraps an engine.
func NewInProcessTransport(e *engine.Engine) *InProcessTransport {
	return &InProcessTransport{engine: e}
}

func (t *InProcessTransport) Control(ctx context.Context) (ControlConn, error) {
	return &inProcessControl{engine: t.engine}, nil
}

func (t *InProcessTransport) Data(ctx context.Context) (DataConn, error) {
	return &inProcessData{engine: t.engine}, nil
}

func (t *InProcessTransport) Close() error { return nil }

type inProcessControl struct {
	engine *engine.Engine
}

func (c *inProcessControl) CreateSequence(ctx context.Context, name string, metadata map[string]interface{}) (*catalog.SequenceRecord, error) {
	return c.engine.CreateSequence(ctx, name, metadata)
}

func (c *inProcessControl) CreateTopic(ctx context.Context, sequenceName, topicName, ontologyTag string, metadata map[string]interface{}) (*catalog.TopicRecord, error) {
	return c.engine.CreateTopic(ctx, sequenceName, topicName, ontologyTag, metadata)
}

func (c *inProcessControl) GetSequence(ctx context.Context, name string) (*catalog.SequenceRecord, error) {
	return c.engine.Catalog().GetSequenceByName(ctx, name)
}

func (c *inProcessControl) GetTopic(ctx context.Context, name string) (*catalog.TopicRecord, error) {
	return c.engine.Catalog().GetTopicByName(ctx, name)
}

func (c *inProcessControl) FindSequences(ctx context.Context, filter catalog.SequenceFilter) ([]*catalog.SequenceRecord, error) {
	return c.engine.Catalog().FindSequences(ctx, filter)
}

func (c *inProcessControl) FindTopics(ctx context.Context, filter catalog.TopicFilter) ([]*catalog.TopicRecord, error) {
	return c.engine.Catalog().FindTopics(ctx, filter)
}

func (c *inProcessControl) LockTopic(ctx context.Context, topicName string) error {
	return c.engine.LockTopic(ctx, topicName)
}

func (c *inProcessControl) LockSequence(ctx context.Context, sequenceName string) error {
	return c.engine.LockSequence(ctx, sequenceName)
}

func (c *inProcessControl) DeleteTopic(ctx context.Context, topicName string) error {
	return c.engine.DeleteTopic(ctx, topicName)
}

func (c *inProcessControl) DeleteSequence(ctx context.Context, sequenceName string) error {
	return c.engine.DeleteSequence(ctx, sequenceName)
}

func (c *inProcessControl) UpdateSequenceMetadata(ctx context.Context, sequenceName string, metadata map[string]interface{}) error {
	seq, err := c.engine.Catalog().GetSequenceByName(ctx, sequenceName)
	if err != nil {
		return err
	}
	return c.engine.Catalog().UpdateSequenceMetadata(ctx, seq.ID, metadata)
}

func (c *inProcessControl) UpdateTopicMetadata(ctx context.Context, topicName string, metadata map[string]interface{}) error {
	topic, err := c.engine.Catalog().GetTopicByName(ctx, topicName)
	if err != nil {
		return err
	}
	return c.engine.Catalog().UpdateTopicMetadata(ctx, topic.ID, metadata)
}

func (c *inProcessControl) ownerID(ctx context.Context, kind catalog.OwnerKind, ownerName string) (int64, error) {
	if kind == catalog.OwnerTopic {
		topic, err := c.engine.Catalog().GetTopicByName(ctx, ownerName)
		if err != nil {
			return 0, err
		}
		return topic.ID, nil
	}
	seq, err := c.engine.Catalog().GetSequenceByName(ctx, ownerName)
	if err != nil {
		return 0, err
	}
	return seq.ID, nil
}

func (c *inProcessControl) RecordNotification(ctx context.Context, kind catalog.OwnerKind, ownerName, ntype, message string) error {
	id, err := c.ownerID(ctx, kind, ownerName)
	if err != nil {
		return err
	}
	return c.engine.Catalog().RecordNotification(ctx, kind, id, ntype, message)
}

func (c *inProcessControl) ListNotifications(ctx context.Context, kind catalog.OwnerKind, ownerName string) ([]*catalog.NotificationRecord, error) {
	id, err := c.ownerID(ctx, kind, ownerName)
	if err != nil {
		return nil, err
	}
	return c.engine.Catalog().ListNotifications(ctx, kind, id)
}

func (c *inProcessControl) PurgeNotifications(ctx context.Context, kind catalog.OwnerKind, ownerName string) error {
	id, err := c.ownerID(ctx, kind, ownerName)
	if err != nil {
		return err
	}
	return c.engine.Catalog().PurgeNotifications(ctx, kind, id)
}

func (c *inProcessControl) Close() error { return nil }

type inProcessData struct {
	engine *engine.Engine
}

func (d *inProcessData) OpenAppend(ctx context.Context, topicName string) (AppendStream, error) {
	session, err := d.engine.OpenAppend(ctx, topicName)
	if err != nil {
		return nil, err
	}
	return &inProcessAppend{session: session}, nil
}

func (d *inProcessData) OpenRetrieve(ctx context.Context, topicName string, q *query.Query) (RecordStream, error) {
	s, err := d.engine.OpenRetrieve(ctx, topicName, q)
	if err != nil {
		return nil, err
	}
	return &inProcessRecords{stream: s}, nil
}

func (d *inProcessData) OpenSequenceRetrieve(ctx context.Context, sequenceName string, q *query.Query) (MessageStream, error) {
	s, err := d.engine.OpenSequenceRetrieve(ctx, sequenceName, q)
	if err != nil {
		return nil, err
	}
	return &inProcessMessages{stream: s}, nil
}

func (d *inProcessData) Close() error { return nil }

type inProcessAppend struct {
	session *engine.AppendSession
}

func (a *inProcessAppend) Send(ctx context.Context, rec types.Record) error {
	return a.session.Append(ctx, rec)
}

func (a *inProcessAppend) Flush(ctx context.Context) error {
	return a.session.Flush(ctx)
}

func (a *inProcessAppend) CloseSend(ctx context.Context) error {
	return a.session.Close(ctx)
}

func (a *inProcessAppend) Abort() {
	a.session.Abort()
}

type inProcessRecords struct {
	stream *stream.TopicStreamer
}

func (r *inProcessRecords) Recv(ctx context.Context) (types.Record, error) {
	return r.stream.Next(ctx)
}

type inProcessMessages struct {
	stream *stream.SequenceStreamer
}

func (m *inProcessMessages) Recv(ctx context.Context) (Message, error) {
	msg, err := m.stream.Next(ctx)
	if err != nil {
		return Message{}, err
	}
	return Message{Topic: msg.Topic, Record: msg.Record}, nil
}
