package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRemove(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	key, err := store.Write(ctx, "generated/images/abc/image-01.png", []byte("artifact"))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if key != "generated/images/abc/image-01.png" {
		t.Fatalf("key = %q", key)
	}

	data, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "artifact" {
		t.Fatalf("data = %q", data)
	}

	if err := store.Remove(ctx, key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.BasePath(), "generated/images/abc/image-01.png")); !os.IsNotExist(err) {
		t.Fatalf("file still present after remove: %v", err)
	}
	// removing twice stays idempotent
	if err := store.Remove(ctx, key); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestWriteRejectsTraversalKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.Write(context.Background(), "../outside.txt", []byte("x")); err == nil {
		t.Fatalf("expected traversal key to be rejected")
	}
	if _, err := store.Write(context.Background(), "   ", []byte("x")); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}
