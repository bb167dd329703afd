package store

import (
	"context"
	"path/filepath"
	"testing"
)

func TestMemory_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, _ := m.Get(ctx, BucketSync, "missing"); ok {
		t.Error("Expected missing key")
	}

	if err := m.Set(ctx, BucketSync, KeyAuthorKeywords, "张三"); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	value, ok, err := m.Get(ctx, BucketSync, KeyAuthorKeywords)
	if err != nil || !ok || value != "张三" {
		t.Errorf("Expected 张三, got %q ok=%v err=%v", value, ok, err)
	}

	// Same key in another bucket is independent.
	if _, ok, _ := m.Get(ctx, BucketLocal, KeyAuthorKeywords); ok {
		t.Error("Buckets must be independent")
	}

	if err := m.Delete(ctx, BucketSync, KeyAuthorKeywords); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, ok, _ := m.Get(ctx, BucketSync, KeyAuthorKeywords); ok {
		t.Error("Expected key deleted")
	}
}

func TestGetDefault(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	value, err := GetDefault(ctx, m, BucketSync, KeyBlockingEnabled, "true")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if value != "true" {
		t.Errorf("Expected fallback 'true', got %q", value)
	}

	m.Set(ctx, BucketSync, KeyBlockingEnabled, "false")
	value, _ = GetDefault(ctx, m, BucketSync, KeyBlockingEnabled, "true")
	if value != "false" {
		t.Errorf("Expected stored 'false', got %q", value)
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Expected no error opening store, got: %v", err)
	}
	defer s.Close()

	if err := s.Set(ctx, BucketLocal, KeyStats, `{"total":1}`); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// Upsert overwrites.
	if err := s.Set(ctx, BucketLocal, KeyStats, `{"total":2}`); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	value, ok, err := s.Get(ctx, BucketLocal, KeyStats)
	if err != nil || !ok {
		t.Fatalf("Expected stored value, got ok=%v err=%v", ok, err)
	}
	if value != `{"total":2}` {
		t.Errorf("Expected upserted value, got %q", value)
	}
}
