package catalog

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mosaicolabs/mosaico/internal/chunk"
	"github.com/mosaicolabs/mosaico/internal/errors"
	"github.com/mosaicolabs/mosaico/pkg/types"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	dir, err := os.MkdirTemp("", "mosaico-catalog-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cat, err := NewCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { cat.Close() })
	return cat
}

// navSchema is a small navigation-style schema with both numeric and
// literal columns, so one tracker exercises every stats path.
func navSchema() *types.Schema {
	return types.NewSchema("nav", []types.ColumnDef{
		{Name: "latitude", Type: types.ColumnFloat},
		{Name: "longitude", Type: types.ColumnFloat, Nullable: true},
		{Name: "status", Type: types.ColumnText, Nullable: true},
	})
}

func mustSequence(t *testing.T, cat *SQLiteCatalog, name string) *SequenceRecord {
	t.Helper()
	seq, err := cat.CreateSequence(context.Background(), name, nil)
	if err != nil {
		t.Fatalf("CreateSequence(%q): %v", name, err)
	}
	return seq
}

func mustTopic(t *testing.T, cat *SQLiteCatalog, seqID int64, name string) *TopicRecord {
	t.Helper()
	topic, err := cat.CreateTopic(context.Background(), seqID, name, "gps", types.FormatDefault, nil)
	if err != nil {
		t.Fatalf("CreateTopic(%q): %v", name, err)
	}
	return topic
}

func TestCatalog_SequenceLifecycle(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seq := mustSequence(t, cat, "drive-2026-08-30")
	if seq.ID == 0 || seq.UUID == "" {
		t.Fatalf("sequence missing identifiers: %+v", seq)
	}
	if seq.Locked {
		t.Error("new sequence must be unlocked")
	}

	got, err := cat.GetSequenceByName(ctx, "drive-2026-08-30")
	if err != nil {
		t.Fatalf("GetSequenceByName: %v", err)
	}
	if got.UUID != seq.UUID {
		t.Errorf("uuid = %q, want %q", got.UUID, seq.UUID)
	}

	if _, err := cat.CreateSequence(ctx, "drive-2026-08-30", nil); !errors.IsConflict(err) {
		t.Errorf("duplicate name should conflict, got %v", err)
	}

	if _, err := cat.GetSequence(ctx, 9999); !errors.IsNotFound(err) {
		t.Errorf("missing sequence should be not found, got %v", err)
	}
}

func TestCatalog_LockSequenceRequiresLockedTopics(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seq := mustSequence(t, cat, "run-01")
	topicA := mustTopic(t, cat, seq.ID, "run-01/gps")
	topicB := mustTopic(t, cat, seq.ID, "run-01/imu")

	err := cat.LockSequence(ctx, seq.ID)
	if !errors.IsConsistency(err) {
		t.Fatalf("locking with unlocked topics should fail, got %v", err)
	}
	if errors.GetCode(err) != errors.CodeUnlockedTopics {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.CodeUnlockedTopics)
	}

	if err := cat.LockTopic(ctx, topicA.ID); err != nil {
		t.Fatalf("LockTopic A: %v", err)
	}
	if err := cat.LockSequence(ctx, seq.ID); !errors.IsConsistency(err) {
		t.Fatalf("one unlocked topic must still block the lock, got %v", err)
	}

	if err := cat.LockTopic(ctx, topicB.ID); err != nil {
		t.Fatalf("LockTopic B: %v", err)
	}
	// Re-locking an already locked topic is a no-op.
	if err := cat.LockTopic(ctx, topicB.ID); err != nil {
		t.Fatalf("re-lock should be idempotent: %v", err)
	}

	if err := cat.LockSequence(ctx, seq.ID); err != nil {
		t.Fatalf("LockSequence: %v", err)
	}
	// Idempotent on the sequence too.
	if err := cat.LockSequence(ctx, seq.ID); err != nil {
		t.Fatalf("re-lock sequence should be idempotent: %v", err)
	}

	got, err := cat.GetSequence(ctx, seq.ID)
	if err != nil {
		t.Fatalf("GetSequence: %v", err)
	}
	if !got.Locked {
		t.Error("sequence must be locked")
	}
}

func TestCatalog_LockedEntitiesAreImmutable(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seq := mustSequence(t, cat, "run-02")
	topic := mustTopic(t, cat, seq.ID, "run-02/gps")
	if err := cat.LockTopic(ctx, topic.ID); err != nil {
		t.Fatalf("LockTopic: %v", err)
	}
	if err := cat.LockSequence(ctx, seq.ID); err != nil {
		t.Fatalf("LockSequence: %v", err)
	}

	if _, err := cat.AppendChunk(ctx, topic.ID, "chunks/x.chk", 10, 100, nil); !errors.IsImmutability(err) {
		t.Errorf("append to locked topic should fail, got %v", err)
	}
	if _, err := cat.DeleteTopic(ctx, topic.ID); !errors.IsImmutability(err) {
		t.Errorf("delete of locked topic should fail, got %v", err)
	}
	if _, err := cat.DeleteSequence(ctx, seq.ID); !errors.IsImmutability(err) {
		t.Errorf("delete of locked sequence should fail, got %v", err)
	}
	if err := cat.UpdateTopicMetadata(ctx, topic.ID, map[string]interface{}{"a": 1}); !errors.IsImmutability(err) {
		t.Errorf("metadata update of locked topic should fail, got %v", err)
	}
	if err := cat.PurgeNotifications(ctx, OwnerSequence, seq.ID); !errors.IsImmutability(err) {
		t.Errorf("purge on locked sequence should fail, got %v", err)
	}
	if _, err := cat.CreateTopic(ctx, seq.ID, "run-02/late", "gps", types.FormatDefault, nil); !errors.IsImmutability(err) {
		t.Errorf("create topic under locked sequence should fail, got %v", err)
	}
}

func TestCatalog_DeleteSequenceCascades(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seq := mustSequence(t, cat, "run-03")
	topicA := mustTopic(t, cat, seq.ID, "run-03/gps")
	topicB := mustTopic(t, cat, seq.ID, "run-03/imu")

	stats := []chunk.ColumnStats{{
		Column:  "latitude",
		Numeric: &chunk.NumericStats{},
	}}
	stats[0].Numeric.Observe(types.Float(45.0))
	if _, err := cat.AppendChunk(ctx, topicA.ID, "chunks/a-0001.chk", 10, 512, stats); err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}
	if _, err := cat.AppendChunk(ctx, topicB.ID, "chunks/b-0001.chk", 5, 256, nil); err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}
	if err := cat.RecordNotification(ctx, OwnerTopic, topicA.ID, NotifyProgress, "50%"); err != nil {
		t.Fatalf("RecordNotification: %v", err)
	}

	files, err := cat.DeleteSequence(ctx, seq.ID)
	if err != nil {
		t.Fatalf("DeleteSequence: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("deleted files = %v, want two chunk files", files)
	}

	if _, err := cat.GetSequence(ctx, seq.ID); !errors.IsNotFound(err) {
		t.Errorf("sequence should be gone, got %v", err)
	}
	if _, err := cat.GetTopic(ctx, topicA.ID); !errors.IsNotFound(err) {
		t.Errorf("topic should be gone, got %v", err)
	}
	notes, err := cat.ListNotifications(ctx, OwnerTopic, topicA.ID)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("notifications should cascade, got %d rows", len(notes))
	}
}

func TestCatalog_DeleteSequenceBlockedByLockedTopic(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seq := mustSequence(t, cat, "run-04")
	topic := mustTopic(t, cat, seq.ID, "run-04/gps")
	mustTopic(t, cat, seq.ID, "run-04/imu")
	if err := cat.LockTopic(ctx, topic.ID); err != nil {
		t.Fatalf("LockTopic: %v", err)
	}

	if _, err := cat.DeleteSequence(ctx, seq.ID); !errors.IsImmutability(err) {
		t.Fatalf("delete with locked child should fail, got %v", err)
	}

	// Nothing was deleted: the transaction rolled back as a unit.
	if _, err := cat.GetTopicByName(ctx, "run-04/imu"); err != nil {
		t.Errorf("unlocked sibling must survive the failed delete: %v", err)
	}
}

func TestCatalog_AppendChunkStoresStats(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seq := mustSequence(t, cat, "run-05")
	topic := mustTopic(t, cat, seq.ID, "run-05/gps")

	tracker := chunk.NewStatsTracker(navSchema())
	tracker.Update(types.NewRecord(100, []types.Value{types.Float(44.5), types.Float(11.3), types.Text("gps_fix")}))
	tracker.Update(types.NewRecord(200, []types.Value{types.Float(45.5), types.Null(), types.Text("no_fix")}))
	tracker.Update(types.NewRecord(300, []types.Value{types.Float(math.NaN()), types.Float(12.0), types.Text("gps_fix")}))

	rec, err := cat.AppendChunk(ctx, topic.ID, "chunks/run-05/0001.chk", 3, 1024, tracker.Snapshot())
	if err != nil {
		t.Fatalf("AppendChunk: %v", err)
	}
	if rec.UUID == "" || rec.RecordCount != 3 {
		t.Fatalf("chunk record malformed: %+v", rec)
	}

	all, err := cat.ChunkStats(ctx, topic.ID)
	if err != nil {
		t.Fatalf("ChunkStats: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("chunks = %d, want 1", len(all))
	}
	cs := all[0]

	ts, ok := cs.Numeric[types.TimestampColumn]
	if !ok || ts.Min == nil || *ts.Min != 100 || *ts.Max != 300 {
		t.Errorf("timestamp stats = %+v, want [100, 300]", ts)
	}

	lat, ok := cs.Numeric["latitude"]
	if !ok {
		t.Fatal("latitude stats missing")
	}
	if *lat.Min != 44.5 || *lat.Max != 45.5 {
		t.Errorf("latitude range = [%v, %v], want [44.5, 45.5]", *lat.Min, *lat.Max)
	}
	if !lat.HasNaN {
		t.Error("NaN observation must set has_nan")
	}
	if lat.HasNull {
		t.Error("latitude saw no nulls")
	}

	lon := cs.Numeric["longitude"]
	if !lon.HasNull {
		t.Error("longitude null must set has_null")
	}

	status, ok := cs.Literal["status"]
	if !ok || *status.Min != "gps_fix" || *status.Max != "no_fix" {
		t.Errorf("status stats = %+v, want [gps_fix, no_fix]", status)
	}

	zm, err := cat.ZoneMap(ctx, topic.ID, "status")
	if err != nil {
		t.Fatalf("ZoneMap: %v", err)
	}
	if zm == nil {
		t.Fatal("literal column should have a zone map")
	}
	if !zm.MaybeContains([]byte("gps_fix")) || !zm.MaybeContains([]byte("no_fix")) {
		t.Error("zone map must contain every observed value")
	}
}

func TestCatalog_ZoneMapMergesAcrossChunks(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seq := mustSequence(t, cat, "run-06")
	topic := mustTopic(t, cat, seq.ID, "run-06/gps")
	schema := navSchema()

	for i, status := range []string{"gps_fix", "dead_reckoning"} {
		tracker := chunk.NewStatsTracker(schema)
		tracker.Update(types.NewRecord(int64(i*100), []types.Value{
			types.Float(44.0), types.Float(11.0), types.Text(status)}))
		if _, err := cat.AppendChunk(ctx, topic.ID, "chunks/run-06/000"+status+".chk", 1, 64, tracker.Snapshot()); err != nil {
			t.Fatalf("AppendChunk %d: %v", i, err)
		}
	}

	zm, err := cat.ZoneMap(ctx, topic.ID, "status")
	if err != nil {
		t.Fatalf("ZoneMap: %v", err)
	}
	if zm == nil {
		t.Fatal("zone map missing after two appends")
	}
	if !zm.MaybeContains([]byte("gps_fix")) || !zm.MaybeContains([]byte("dead_reckoning")) {
		t.Error("merged zone map must cover values from both chunks")
	}
}

func TestCatalog_Notifications(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seq := mustSequence(t, cat, "run-07")

	if err := cat.RecordNotification(ctx, OwnerSequence, seq.ID, NotifyProgress, "ingest 10%"); err != nil {
		t.Fatalf("RecordNotification: %v", err)
	}
	if err := cat.RecordNotification(ctx, OwnerSequence, seq.ID, NotifyError, "camera dropout"); err != nil {
		t.Fatalf("RecordNotification: %v", err)
	}
	if err := cat.RecordNotification(ctx, OwnerSequence, 9999, NotifyProgress, "x"); !errors.IsNotFound(err) {
		t.Errorf("notification for missing owner should fail, got %v", err)
	}

	notes, err := cat.ListNotifications(ctx, OwnerSequence, seq.ID)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("notifications = %d, want 2", len(notes))
	}
	if notes[0].Type != NotifyProgress || notes[1].Type != NotifyError {
		t.Errorf("order not oldest-first: %+v", notes)
	}

	if err := cat.PurgeNotifications(ctx, OwnerSequence, seq.ID); err != nil {
		t.Fatalf("PurgeNotifications: %v", err)
	}
	notes, err = cat.ListNotifications(ctx, OwnerSequence, seq.ID)
	if err != nil {
		t.Fatalf("ListNotifications after purge: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("purge left %d notifications", len(notes))
	}
}

func TestCatalog_FindSequences(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seqA, err := cat.CreateSequence(ctx, "highway-am", map[string]interface{}{"vehicle": "v1", "weather": "rain"})
	if err != nil {
		t.Fatalf("CreateSequence: %v", err)
	}
	if _, err := cat.CreateSequence(ctx, "highway-pm", map[string]interface{}{"vehicle": "v2"}); err != nil {
		t.Fatalf("CreateSequence: %v", err)
	}
	mustSequence(t, cat, "parking-lot")
	if err := cat.LockSequence(ctx, seqA.ID); err != nil {
		t.Fatalf("LockSequence: %v", err)
	}

	got, err := cat.FindSequences(ctx, SequenceFilter{NamePattern: "highway"})
	if err != nil {
		t.Fatalf("FindSequences: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("pattern match = %d sequences, want 2", len(got))
	}

	locked := true
	got, err = cat.FindSequences(ctx, SequenceFilter{Locked: &locked})
	if err != nil {
		t.Fatalf("FindSequences: %v", err)
	}
	if len(got) != 1 || got[0].ID != seqA.ID {
		t.Errorf("locked filter returned %+v", got)
	}

	got, err = cat.FindSequences(ctx, SequenceFilter{Metadata: map[string]interface{}{"vehicle": "v1"}})
	if err != nil {
		t.Fatalf("FindSequences: %v", err)
	}
	if len(got) != 1 || got[0].Name != "highway-am" {
		t.Errorf("metadata filter returned %+v", got)
	}
}

func TestCatalog_FindTopics(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seqA := mustSequence(t, cat, "run-08")
	seqB := mustSequence(t, cat, "run-09")
	mustTopic(t, cat, seqA.ID, "run-08/gps")
	if _, err := cat.CreateTopic(ctx, seqA.ID, "run-08/cam", "image", types.FormatImage, nil); err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	mustTopic(t, cat, seqB.ID, "run-09/gps")

	got, err := cat.FindTopics(ctx, TopicFilter{SequenceID: seqA.ID})
	if err != nil {
		t.Fatalf("FindTopics: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("sequence filter = %d topics, want 2", len(got))
	}

	got, err = cat.FindTopics(ctx, TopicFilter{OntologyTag: "gps"})
	if err != nil {
		t.Fatalf("FindTopics: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ontology filter = %d topics, want 2", len(got))
	}

	got, err = cat.FindTopics(ctx, TopicFilter{SequenceID: seqB.ID, OntologyTag: "image"})
	if err != nil {
		t.Fatalf("FindTopics: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("combined filter = %d topics, want 0", len(got))
	}
}

func TestCatalog_UpdateMetadata(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	seq := mustSequence(t, cat, "run-10")
	if err := cat.UpdateSequenceMetadata(ctx, seq.ID, map[string]interface{}{"operator": "field-team"}); err != nil {
		t.Fatalf("UpdateSequenceMetadata: %v", err)
	}
	got, err := cat.GetSequence(ctx, seq.ID)
	if err != nil {
		t.Fatalf("GetSequence: %v", err)
	}
	if got.Metadata["operator"] != "field-team" {
		t.Errorf("metadata = %+v", got.Metadata)
	}
}
