package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestOfflineStorePutGet tests the basic write/read cycle
func TestOfflineStorePutGet(t *testing.T) {
	s, err := NewOfflineStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewOfflineStore failed: %v", err)
	}

	ctx := context.Background()
	if err := s.Put(ctx, "asset-1", "https://cdn.example.com/asset-1?sig=x"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	url, ok := s.Get("asset-1")
	if !ok || url != "https://cdn.example.com/asset-1?sig=x" {
		t.Errorf("Get = %q, %v", url, ok)
	}

	if _, ok := s.Get("never-stored"); ok {
		t.Error("Get returned ok for missing asset")
	}
}

// TestOfflineStoreOverwrite tests that repeat writes for an asset
// replace in place instead of accumulating files
func TestOfflineStoreOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, err := NewOfflineStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	s.Put(ctx, "asset-1", "https://old.example.com")
	s.Put(ctx, "asset-1", "https://new.example.com")

	url, _ := s.Get("asset-1")
	if url != "https://new.example.com" {
		t.Errorf("expected overwritten URL, got %q", url)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file, got %d", len(entries))
	}
	if !strings.HasSuffix(entries[0].Name(), ".offline") {
		t.Errorf("unexpected filename %q", entries[0].Name())
	}
}

// TestOfflineStoreCancelledContext tests that a cancelled context
// aborts the write
func TestOfflineStoreCancelledContext(t *testing.T) {
	s, err := NewOfflineStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Put(ctx, "asset-1", "https://cdn.example.com"); err == nil {
		t.Error("expected error from cancelled context")
	}
	if _, ok := s.Get("asset-1"); ok {
		t.Error("write went through despite cancelled context")
	}
}

// TestOfflineStoreHashedNames tests that distinct assets map to
// distinct files
func TestOfflineStoreHashedNames(t *testing.T) {
	s, err := NewOfflineStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if s.pathFor("asset-1") == s.pathFor("asset-2") {
		t.Error("distinct assets hashed to the same path")
	}
	if filepath.Dir(s.pathFor("asset-1")) != s.directory {
		t.Error("path escapes the store directory")
	}
}
