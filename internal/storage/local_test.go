package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/mosaicolabs/mosaico/internal/errors"
)

func TestLocalStorage_PutGet(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	objectPath := "chunks/topic-a/0001.chk"
	content := []byte("chunk payload")
	if err := store.Put(ctx, objectPath, content); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := store.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	got, err := store.Get(ctx, objectPath)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	if err := store.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = store.Exists(ctx, objectPath)
	if err != nil {
		t.Fatalf("Exists after delete failed: %v", err)
	}
	if exists {
		t.Error("object should be gone after delete")
	}
}

func TestLocalStorage_GetMissing(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	_, err = store.Get(context.Background(), "chunks/missing.chk")
	if !errors.IsNotFound(err) {
		t.Errorf("missing object should be not found, got %v", err)
	}
	if errors.GetCode(err) != errors.CodeObjectNotFound {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.CodeObjectNotFound)
	}
}

func TestLocalStorage_DeleteMissingIsIdempotent(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	if err := store.Delete(context.Background(), "chunks/missing.chk"); err != nil {
		t.Errorf("deleting a missing object should succeed: %v", err)
	}
}

func TestLocalStorage_List(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx := context.Background()

	paths := []string{
		"chunks/topic-a/0001.chk",
		"chunks/topic-a/0002.chk",
		"chunks/topic-b/0001.chk",
	}
	for _, p := range paths {
		if err := store.Put(ctx, p, []byte(p)); err != nil {
			t.Fatalf("Put(%q): %v", p, err)
		}
	}

	got, err := store.List(ctx, "chunks/topic-a")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("List returned %v, want 2 objects", got)
	}

	got, err = store.List(ctx, "chunks/missing-prefix")
	if err != nil {
		t.Fatalf("List of missing prefix failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("missing prefix should list nothing, got %v", got)
	}
}
