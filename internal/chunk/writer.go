package chunk

import (
	"context"
	"fmt"

	"github.com/mosaicolabs/mosaico/internal/codec"
	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

// Default flush thresholds. Fixed-shape formats flush by record count;
// byte-heavy formats flush by buffered payload size.
const (
	DefaultMaxRecords = 4096
	DefaultMaxBytes   = 8 << 20
)

// FlushFunc receives one finished chunk: the encoded payload, its record
// count, and the column statistics gathered while buffering. The
// callback owns registering the chunk with the catalog and uploading the
// payload; an error aborts the flush and keeps the writer's buffer.
type FlushFunc func(ctx context.Context, payload []byte, recordCount int64, stats []ColumnStats) error

// WriterConfig tunes the flush policy of one writer.
type WriterConfig struct {
	MaxRecords int
	MaxBytes   int
}

// DefaultWriterConfig returns the default flush thresholds.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{MaxRecords: DefaultMaxRecords, MaxBytes: DefaultMaxBytes}
}

// Writer buffers time-ordered records for one topic and flushes them as
// immutable chunks. It enforces the append contract: records arrive in
// non-decreasing timestamp order and match the topic schema.
type Writer struct {
	schema  *types.Schema
	format  types.SerializationFormat
	codec   codec.Codec
	cfg     WriterConfig
	onFlush FlushFunc

	buf      []types.Record
	bufBytes int
	tracker  *StatsTracker
	lastTS   int64
	any      bool
	closed   bool
}

// NewWriter creates a writer for one topic.
func NewWriter(schema *types.Schema, format types.SerializationFormat, cfg WriterConfig, onFlush FlushFunc) (*Writer, error) {
	c, err := codec.ForFormat(format)
	if err != nil {
		return nil, err
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = DefaultMaxRecords
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Writer{
		schema:  schema,
		format:  format,
		codec:   c,
		cfg:     cfg,
		onFlush: onFlush,
		tracker: NewStatsTracker(schema),
	}, nil
}

// Append buffers one record, flushing if the policy threshold is hit.
func (w *Writer) Append(ctx context.Context, rec types.Record) error {
	if w.closed {
		return errors.NewValidationError(errors.CodeInvalidArgument, "writer is closed")
	}
	if len(rec.Values) != len(w.schema.Columns) {
		return errors.NewValidationError(errors.CodeInvalidArgument,
			fmt.Sprintf("record has %d values, schema %q has %d columns",
				len(rec.Values), w.schema.Tag, len(w.schema.Columns)))
	}
	if w.any && rec.Timestamp < w.lastTS {
		return errors.NewValidationError(errors.CodeInvalidArgument,
			fmt.Sprintf("timestamp %d is before previous record %d: appends must be time-ordered",
				rec.Timestamp, w.lastTS))
	}

	w.buf = append(w.buf, rec)
	w.bufBytes += recordSize(rec)
	w.tracker.Update(rec)
	w.lastTS = rec.Timestamp
	w.any = true

	if w.shouldFlush() {
		return w.Flush(ctx)
	}
	return nil
}

func (w *Writer) shouldFlush() bool {
	if w.format.FlushByBytes() {
		return w.bufBytes >= w.cfg.MaxBytes
	}
	return len(w.buf) >= w.cfg.MaxRecords
}

// Flush encodes the buffered records into one chunk and hands it to the
// flush callback. A failed flush leaves the buffer intact so the caller
// can retry or abort.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}

	payload, err := w.codec.Encode(w.schema, w.buf)
	if err != nil {
		return err
	}
	if err := w.onFlush(ctx, payload, int64(len(w.buf)), w.tracker.Snapshot()); err != nil {
		return err
	}

	w.buf = w.buf[:0]
	w.bufBytes = 0
	w.tracker.Reset()
	return nil
}

// Close flushes any buffered records and rejects further appends.
func (w *Writer) Close(ctx context.Context) error {
	if w.closed {
		return nil
	}
	if err := w.Flush(ctx); err != nil {
		return err
	}
	w.closed = true
	return nil
}

// Abort drops the buffered records without flushing. Chunks already
// flushed are untouched; discarding them is the caller's policy.
func (w *Writer) Abort() {
	w.buf = nil
	w.bufBytes = 0
	w.tracker.Reset()
	w.closed = true
}

// BufferedRecords returns the number of records awaiting flush.
func (w *Writer) BufferedRecords() int { return len(w.buf) }

// recordSize estimates the encoded footprint of one record for the
// byte-based flush policy. Exact wire size is not needed, only a stable
// proxy for memory pressure.
func recordSize(rec types.Record) int {
	size := 8 // timestamp
	for _, v := range rec.Values {
		switch v.Kind() {
		case types.KindText:
			size += len(v.Str())
		case types.KindBytes:
			size += len(v.Blob())
		case types.KindNull:
			// free
		default:
			size += 8
		}
	}
	return size
}
