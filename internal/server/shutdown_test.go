package server

import (
	"context"
	stderrors "errors"
	"testing"
	"time"
)

func TestShutdownManager_ClosersRunInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{
		ShutdownTimeout: time.Second,
		DrainTimeout:    100 * time.Millisecond,
	})

	var order []string
	sm.RegisterCloser(CloserFunc(func() error {
		order = append(order, "catalog")
		return nil
	}))
	sm.RegisterCloser(CloserFunc(func() error {
		order = append(order, "engine")
		return nil
	}))

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if len(order) != 2 || order[0] != "engine" || order[1] != "catalog" {
		t.Fatalf("close order = %v, want [engine catalog]", order)
	}

	// Shutdown is idempotent.
	if err := sm.Shutdown(context.Background(), "again"); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if len(order) != 2 {
		t.Fatalf("closers ran again: %v", order)
	}
}

func TestShutdownManager_DrainsInFlightSessions(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{
		ShutdownTimeout: time.Second,
		DrainTimeout:    500 * time.Millisecond,
	})

	if !sm.TrackSession() {
		t.Fatal("TrackSession refused before shutdown")
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		sm.UntrackSession()
	}()

	if err := sm.Shutdown(context.Background(), "test"); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if sm.InFlightCount() != 0 {
		t.Fatalf("in-flight = %d after drain", sm.InFlightCount())
	}
	if sm.TrackSession() {
		t.Fatal("TrackSession accepted during shutdown")
	}
}

func TestShutdownManager_DrainTimeout(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{
		ShutdownTimeout: time.Second,
		DrainTimeout:    50 * time.Millisecond,
	})

	sm.TrackSession() // never untracked

	err := sm.Shutdown(context.Background(), "test")
	if err == nil {
		t.Fatal("Shutdown succeeded with a stuck session")
	}
}

func TestMultiCloser_ReturnsFirstError(t *testing.T) {
	boom := stderrors.New("boom")
	var closed []int
	mc := NewMultiCloser(
		CloserFunc(func() error { closed = append(closed, 1); return nil }),
		CloserFunc(func() error { closed = append(closed, 2); return boom }),
		CloserFunc(func() error { closed = append(closed, 3); return nil }),
	)

	if err := mc.Close(); !stderrors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if len(closed) != 3 {
		t.Fatalf("closed = %v, want all three despite error", closed)
	}
}
