// Package client is the embeddable Mosaico client. It owns three
// resource pools: one serialized control connection for metadata calls,
// a striped data-plane connection pool for record streams, and a
// processing-lane pool that keeps per-topic record handling ordered.
package client

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/mosaicolabs/mosaico/internal/catalog"
	"github.com/mosaicolabs/mosaico/internal/ontology"
	"github.com/mosaicolabs/mosaico/internal/query"
	"github.com/mosaicolabs/mosaico/internal/wire"
)

// OnErrorPolicy decides what a sequence writer does with partially
// ingested data when finalization hits an error.
type OnErrorPolicy int

const (
	// OnErrorReport keeps the partial sequence and records an error
	// notification on it.
	OnErrorReport OnErrorPolicy = iota

	// OnErrorDelete removes the partial sequence and its chunk data.
	OnErrorDelete
)

// Config tunes the client pools.
type Config struct {
	// DataConns is the data-plane pool size; defaults to GOMAXPROCS.
	DataConns int
	// Lanes is the processing-lane count; defaults to DataConns.
	Lanes int
	// Retry bounds transient-fault retries on control and data calls.
	Retry RetryPolicy
}

// DefaultConfig returns the default pool sizing.
func DefaultConfig() Config {
	n := runtime.GOMAXPROCS(0)
	return Config{DataConns: n, Lanes: n, Retry: DefaultRetryPolicy()}
}

// Client talks to one mosaicod instance over a wire transport.
type Client struct {
	transport wire.Transport
	registry  *ontology.Registry
	retry     RetryPolicy

	controlMu sync.Mutex
	control   wire.ControlConn

	data []wire.DataConn
	next atomic.Uint64

	lanes *lanePool

	closeOnce sync.Once
	closeErr  error
}

// New connects a client over the given transport.
func New(ctx context.Context, transport wire.Transport, cfg Config) (*Client, error) {
	if cfg.DataConns < 1 {
		cfg.DataConns = runtime.GOMAXPROCS(0)
	}
	if cfg.Lanes < 1 {
		cfg.Lanes = cfg.DataConns
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry = DefaultRetryPolicy()
	}

	control, err := transport.Control(ctx)
	if err != nil {
		return nil, err
	}
	data := make([]wire.DataConn, 0, cfg.DataConns)
	for i := 0; i < cfg.DataConns; i++ {
		conn, err := transport.Data(ctx)
		if err != nil {
			control.Close()
			for _, d := range data {
				d.Close()
			}
			return nil, err
		}
		data = append(data, conn)
	}

	return &Client{
		transport: transport,
		registry:  ontology.Default(),
		retry:     cfg.Retry,
		control:   control,
		data:      data,
		lanes:     newLanePool(cfg.Lanes),
	}, nil
}

// Close drains the processing lanes and releases every connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.lanes.close()

		var firstErr error
		if err := c.control.Close(); err != nil {
			firstErr = err
		}
		for _, d := range c.data {
			if err := d.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := c.transport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		c.closeErr = firstErr
	})
	return c.closeErr
}

// dataConn picks the next data connection round-robin.
func (c *Client) dataConn() wire.DataConn {
	i := c.next.Add(1)
	return c.data[int(i)%len(c.data)]
}

// withControl serializes one call on the control connection.
func (c *Client) withControl(ctx context.Context, call func(wire.ControlConn) error) error {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()
	return c.retry.Do(ctx, func() error { return call(c.control) })
}

// Query starts a query builder against the client's ontology registry.
func (c *Client) Query() *query.Builder {
	return query.NewBuilder(c.registry)
}

// FindSequences lists sequences matching the filter.
func (c *Client) FindSequences(ctx context.Context, filter catalog.SequenceFilter) ([]*catalog.SequenceRecord, error) {
	var out []*catalog.SequenceRecord
	err := c.withControl(ctx, func(conn wire.ControlConn) error {
		var err error
		out, err = conn.FindSequences(ctx, filter)
		return err
	})
	return out, err
}

// FindTopics lists topics matching the filter.
func (c *Client) FindTopics(ctx context.Context, filter catalog.TopicFilter) ([]*catalog.TopicRecord, error) {
	var out []*catalog.TopicRecord
	err := c.withControl(ctx, func(conn wire.ControlConn) error {
		var err error
		out, err = conn.FindTopics(ctx, filter)
		return err
	})
	return out, err
}

// ListNotifications returns the notification log of a sequence or topic.
func (c *Client) ListNotifications(ctx context.Context, kind catalog.OwnerKind, ownerName string) ([]*catalog.NotificationRecord, error) {
	var out []*catalog.NotificationRecord
	err := c.withControl(ctx, func(conn wire.ControlConn) error {
		var err error
		out, err = conn.ListNotifications(ctx, kind, ownerName)
		return err
	})
	return out, err
}

// DeleteSequence removes an unlocked sequence and its data.
func (c *Client) DeleteSequence(ctx context.Context, name string) error {
	return c.withControl(ctx, func(conn wire.ControlConn) error {
		return conn.DeleteSequence(ctx, name)
	})
}

// DeleteTopic removes an unlocked topic and its data.
func (c *Client) DeleteTopic(ctx context.Context, name string) error {
	return c.withControl(ctx, func(conn wire.ControlConn) error {
		return conn.DeleteTopic(ctx, name)
	})
}

// OpenTopicReader streams one topic, optionally filtered.
func (c *Client) OpenTopicReader(ctx context.Context, topicName string, q *query.Query) (*TopicReader, error) {
	var s wire.RecordStream
	err := c.retry.Do(ctx, func() error {
		var err error
		s, err = c.dataConn().OpenRetrieve(ctx, topicName, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &TopicReader{stream: s}, nil
}

// OpenSequenceReader streams a whole sequence in merged timestamp order.
func (c *Client) OpenSequenceReader(ctx context.Context, sequenceName string, q *query.Query) (*SequenceReader, error) {
	var s wire.MessageStream
	err := c.retry.Do(ctx, func() error {
		var err error
		s, err = c.dataConn().OpenSequenceRetrieve(ctx, sequenceName, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &SequenceReader{stream: s}, nil
}

// CreateSequenceWriter registers a sequence and returns its writer.
func (c *Client) CreateSequenceWriter(ctx context.Context, name string, metadata map[string]interface{}, policy OnErrorPolicy) (*SequenceWriter, error) {
	err := c.withControl(ctx, func(conn wire.ControlConn) error {
		_, err := conn.CreateSequence(ctx, name, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &SequenceWriter{
		client:   c,
		name:     name,
		policy:   policy,
		topics:   make(map[string]*TopicWriter),
		registry: c.registry,
	}, nil
}

func (c *Client) recordNotification(ctx context.Context, kind catalog.OwnerKind, ownerName, ntype, message string) error {
	return c.withControl(ctx, func(conn wire.ControlConn) error {
		return conn.RecordNotification(ctx, kind, ownerName, ntype, message)
	})
}

func (c *Client) lockTopic(ctx context.Context, name string) error {
	return c.withControl(ctx, func(conn wire.ControlConn) error {
		return conn.LockTopic(ctx, name)
	})
}

func (c *Client) lockSequence(ctx context.Context, name string) error {
	return c.withControl(ctx, func(conn wire.ControlConn) error {
		return conn.LockSequence(ctx, name)
	})
}

func (c *Client) createTopic(ctx context.Context, sequenceName, topicName, tag string, metadata map[string]interface{}) error {
	if _, err := c.registry.Lookup(tag); err != nil {
		return err
	}
	return c.withControl(ctx, func(conn wire.ControlConn) error {
		_, err := conn.CreateTopic(ctx, sequenceName, topicName, tag, metadata)
		return err
	})
}

func (c *Client) openAppend(ctx context.Context, topicName string) (wire.AppendStream, error) {
	var s wire.AppendStream
	err := c.retry.Do(ctx, func() error {
		var err error
		s, err = c.dataConn().OpenAppend(ctx, topicName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("open append on %q: %w", topicName, err)
	}
	return s, nil
}
