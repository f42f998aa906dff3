package client

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mosaicolabs/mosaico/internal/catalog"
	"github.com/mosaicolabs/mosaico/internal/chunk"
	"github.com/mosaicolabs/mosaico/internal/engine"
	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/internal/ontology"
	"github.com/mosaicolabs/mosaico/internal/storage"
	"github.com/mosaicolabs/mosaico/internal/wire"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir, err := os.MkdirTemp("", "mosaico-client-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cat, err := catalog.NewCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })

	store, err := storage.NewLocalStorage(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatalf("NewLocalStorage: %v", err)
	}

	ecfg := engine.DefaultConfig()
	ecfg.Writer = chunk.WriterConfig{MaxRecords: 4, MaxBytes: 1 << 20}
	e := engine.New(cat, store, ontology.Default(), ecfg, nil)

	c, err := New(context.Background(), wire.NewInProcessTransport(e),
		Config{DataConns: 2, Lanes: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func gpsRecord(t *testing.T, ts int64, lat, lon float64) types.Record {
	t.Helper()
	desc, err := ontology.Default().Lookup("gps")
	if err != nil {
		t.Fatalf("Lookup(gps): %v", err)
	}
	values := make([]types.Value, len(desc.Schema.Columns))
	for i := range values {
		values[i] = types.Null()
	}
	values[desc.Schema.ColumnIndex("latitude")] = types.Float(lat)
	values[desc.Schema.ColumnIndex("longitude")] = types.Float(lon)
	return types.NewRecord(ts, values)
}

func TestClient_IngestFinalizeAndRead(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	sw, err := c.CreateSequenceWriter(ctx, "drive-01", map[string]interface{}{"vehicle": "v7"}, OnErrorReport)
	if err != nil {
		t.Fatalf("CreateSequenceWriter: %v", err)
	}
	tw, err := sw.CreateTopic(ctx, "drive-01/gps", "gps", nil)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	const n = 10
	for i := 0; i < n; i++ {
		if err := tw.Push(ctx, gpsRecord(t, int64(i*100), 44.0+float64(i), 11.0)); err != nil {
			t.Fatalf("Push %d: %v", i, err)
		}
	}
	if err := sw.RecordProgress(ctx, "half done"); err != nil {
		t.Fatalf("RecordProgress: %v", err)
	}
	if err := sw.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	// Finalize locked the topic and then the sequence.
	seqs, err := c.FindSequences(ctx, catalog.SequenceFilter{Name: "drive-01"})
	if err != nil || len(seqs) != 1 {
		t.Fatalf("FindSequences = %v, %v", seqs, err)
	}
	if !seqs[0].Locked {
		t.Fatal("sequence not locked after Finalize")
	}
	topics, err := c.FindTopics(ctx, catalog.TopicFilter{Name: "drive-01/gps"})
	if err != nil || len(topics) != 1 {
		t.Fatalf("FindTopics = %v, %v", topics, err)
	}
	if !topics[0].Locked {
		t.Fatal("topic not locked after Finalize")
	}

	notes, err := c.ListNotifications(ctx, catalog.OwnerSequence, "drive-01")
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notes) != 1 || notes[0].Type != catalog.NotifyProgress {
		t.Fatalf("notifications = %v, want one progress entry", notes)
	}

	r, err := c.OpenTopicReader(ctx, "drive-01/gps", nil)
	if err != nil {
		t.Fatalf("OpenTopicReader: %v", err)
	}
	var count int
	for {
		rec, err := r.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if rec.Timestamp != int64(count*100) {
			t.Fatalf("record %d timestamp = %d", count, rec.Timestamp)
		}
		count++
	}
	if count != n {
		t.Fatalf("read %d records, want %d", count, n)
	}
}

func TestClient_SequenceReaderMergesTopics(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	sw, err := c.CreateSequenceWriter(ctx, "drive-02", nil, OnErrorReport)
	if err != nil {
		t.Fatalf("CreateSequenceWriter: %v", err)
	}
	front, err := sw.CreateTopic(ctx, "drive-02/gps-front", "gps", nil)
	if err != nil {
		t.Fatalf("CreateTopic(front): %v", err)
	}
	rear, err := sw.CreateTopic(ctx, "drive-02/gps-rear", "gps", nil)
	if err != nil {
		t.Fatalf("CreateTopic(rear): %v", err)
	}

	// Interleave pushes across the two lanes; each topic's own order is
	// what must survive.
	for _, ts := range []int64{0, 20, 40} {
		front.Push(ctx, gpsRecord(t, ts, 44, 11))
	}
	for _, ts := range []int64{10, 30} {
		rear.Push(ctx, gpsRecord(t, ts, 45, 11))
	}
	if err := sw.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	mr, err := c.OpenSequenceReader(ctx, "drive-02", nil)
	if err != nil {
		t.Fatalf("OpenSequenceReader: %v", err)
	}
	var order []int64
	for {
		msg, err := mr.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		order = append(order, msg.Record.Timestamp)
	}
	want := []int64{0, 10, 20, 30, 40}
	if len(order) != len(want) {
		t.Fatalf("merged %d records, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestClient_OnErrorDeleteRemovesSequence(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	sw, err := c.CreateSequenceWriter(ctx, "drive-03", nil, OnErrorDelete)
	if err != nil {
		t.Fatalf("CreateSequenceWriter: %v", err)
	}
	tw, err := sw.CreateTopic(ctx, "drive-03/gps", "gps", nil)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	// A timestamp regression fails the asynchronous send and sticks.
	tw.Push(ctx, gpsRecord(t, 100, 44, 11))
	tw.Push(ctx, gpsRecord(t, 50, 44, 11))

	if err := sw.Finalize(ctx); err == nil {
		t.Fatal("Finalize succeeded, want error from out-of-order push")
	}

	seqs, err := c.FindSequences(ctx, catalog.SequenceFilter{Name: "drive-03"})
	if err != nil {
		t.Fatalf("FindSequences: %v", err)
	}
	if len(seqs) != 0 {
		t.Fatalf("sequence survived OnErrorDelete: %v", seqs)
	}
}

func TestClient_OnErrorReportKeepsSequence(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	sw, err := c.CreateSequenceWriter(ctx, "drive-04", nil, OnErrorReport)
	if err != nil {
		t.Fatalf("CreateSequenceWriter: %v", err)
	}
	tw, err := sw.CreateTopic(ctx, "drive-04/gps", "gps", nil)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	tw.Push(ctx, gpsRecord(t, 100, 44, 11))
	tw.Push(ctx, gpsRecord(t, 50, 44, 11))

	if err := sw.Finalize(ctx); err == nil {
		t.Fatal("Finalize succeeded, want error")
	}

	seqs, err := c.FindSequences(ctx, catalog.SequenceFilter{Name: "drive-04"})
	if err != nil || len(seqs) != 1 {
		t.Fatalf("FindSequences = %v, %v", seqs, err)
	}
	if seqs[0].Locked {
		t.Fatal("failed sequence must stay unlocked")
	}
	notes, err := c.ListNotifications(ctx, catalog.OwnerSequence, "drive-04")
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	var sawError bool
	for _, n := range notes {
		if n.Type == catalog.NotifyError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("notifications = %v, want an error entry", notes)
	}
}

func TestClient_PushAfterCloseFails(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	sw, err := c.CreateSequenceWriter(ctx, "drive-05", nil, OnErrorReport)
	if err != nil {
		t.Fatalf("CreateSequenceWriter: %v", err)
	}
	tw, err := sw.CreateTopic(ctx, "drive-05/gps", "gps", nil)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	tw.Push(ctx, gpsRecord(t, 0, 44, 11))
	if err := tw.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := tw.Push(ctx, gpsRecord(t, 1, 44, 11)); !errors.IsValidation(err) {
		t.Fatalf("push after close err = %v, want validation", err)
	}
}

func TestClient_PushSurvivesCallerContextCancel(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	sw, err := c.CreateSequenceWriter(ctx, "drive-06", nil, OnErrorReport)
	if err != nil {
		t.Fatalf("CreateSequenceWriter: %v", err)
	}
	tw, err := sw.CreateTopic(ctx, "drive-06/gps", "gps", nil)
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	// A record accepted by Push is delivered even when the caller's
	// context dies right after the call returns.
	pushCtx, cancel := context.WithCancel(ctx)
	if err := tw.Push(pushCtx, gpsRecord(t, 0, 44, 11)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	cancel()

	// A context already cancelled at call time refuses the push.
	if err := tw.Push(pushCtx, gpsRecord(t, 100, 44, 11)); err != context.Canceled {
		t.Fatalf("push with cancelled ctx err = %v, want context.Canceled", err)
	}

	if err := sw.Finalize(ctx); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	r, err := c.OpenTopicReader(ctx, "drive-06/gps", nil)
	if err != nil {
		t.Fatalf("OpenTopicReader: %v", err)
	}
	rec, err := r.Next(ctx)
	if err != nil || rec.Timestamp != 0 {
		t.Fatalf("Next = %v, %v, want record at timestamp 0", rec, err)
	}
	if _, err := r.Next(ctx); err != io.EOF {
		t.Fatalf("second Next err = %v, want EOF", err)
	}
}

func TestRetryPolicy_RetriesTransientErrors(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	ctx := context.Background()

	var calls int
	err := policy.Do(ctx, func() error {
		calls++
		if calls < 3 {
			return errors.NewTransportError(errors.CodeConnectionFailed, "refused", nil)
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("err = %v, calls = %d", err, calls)
	}
}

func TestRetryPolicy_TerminalErrorsSurfaceImmediately(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseBackoff: time.Millisecond}

	var calls int
	err := policy.Do(context.Background(), func() error {
		calls++
		return errors.NewValidationError(errors.CodeInvalidArgument, "bad record")
	})
	if calls != 1 {
		t.Fatalf("terminal error retried %d times", calls)
	}
	if !errors.IsValidation(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestRetryPolicy_ExhaustionWrapsLastError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 2, BaseBackoff: time.Millisecond}

	err := policy.Do(context.Background(), func() error {
		return errors.NewTransportError(errors.CodeStreamBroken, "reset", nil)
	})
	if errors.GetCode(err) != errors.CodeRetriesExhausted {
		t.Fatalf("err = %v, want retries exhausted", err)
	}
	// Exhaustion itself must not be retryable.
	if errors.IsRetryable(err) {
		t.Fatal("retries-exhausted error marked retryable")
	}
}

func TestLanePool_KeyOrderingAndBarrier(t *testing.T) {
	p := newLanePool(4)
	defer p.close()

	const n = 200
	var got []int
	for i := 0; i < n; i++ {
		i := i
		if !p.submit("topic-a", func() { got = append(got, i) }) {
			t.Fatal("submit refused")
		}
	}
	p.barrier("topic-a")

	if len(got) != n {
		t.Fatalf("ran %d tasks, want %d", len(got), n)
	}
	for i := range got {
		if got[i] != i {
			t.Fatalf("task order broken at %d: %v", i, got[i])
		}
	}
}

func TestLanePool_SubmitAfterCloseRefused(t *testing.T) {
	p := newLanePool(2)
	p.close()
	if p.submit("k", func() {}) {
		t.Fatal("submit accepted after close")
	}
}

func TestLanePool_CloseWithSaturatedLane(t *testing.T) {
	p := newLanePool(1)

	// Stall the worker, then fill the lane queue so further submits
	// block on the channel send.
	gate := make(chan struct{})
	if !p.submit("k", func() { <-gate }) {
		t.Fatal("submit refused")
	}
	for i := 0; i < laneQueueDepth; i++ {
		if !p.submit("k", func() {}) {
			t.Fatal("submit refused while filling queue")
		}
	}

	// Every racing submit must either run its task or be refused,
	// never panic on a closed lane.
	var ran, refused atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !p.submit("k", func() { ran.Add(1) }) {
				refused.Add(1)
			}
		}()
	}

	// Let the blocked submits contend with close, then unstall the
	// worker so everything drains.
	closed := make(chan struct{})
	go func() {
		p.close()
		close(closed)
	}()
	time.Sleep(10 * time.Millisecond)
	close(gate)

	wg.Wait()
	<-closed

	if got := ran.Load() + refused.Load(); got != 8 {
		t.Fatalf("accounted for %d of 8 racing submits", got)
	}
	if p.submit("k", func() {}) {
		t.Fatal("submit accepted after close")
	}
}
