package judgments

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aiengineer/rageval/internal/pkg/errors"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	err := s.Add(ctx, []Judgment{
		{QueryID: "q1", DocID: "doc3"},
		{QueryID: "q1", DocID: "doc1"},
		{QueryID: "q1", DocID: "doc1"},
		{QueryID: "q2", DocID: "doc9"},
	})
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	gt, err := s.GroundTruth(ctx, "q1")
	if err != nil {
		t.Fatalf("GroundTruth() error = %v", err)
	}
	if diff := cmp.Diff([]string{"doc1", "doc3"}, gt); diff != "" {
		t.Errorf("GroundTruth(q1) mismatch (-want +got):\n%s", diff)
	}

	unknown, err := s.GroundTruth(ctx, "nope")
	if err != nil {
		t.Fatalf("GroundTruth(unknown) error = %v", err)
	}
	if len(unknown) != 0 {
		t.Errorf("GroundTruth(unknown) = %v, want empty", unknown)
	}

	queries, err := s.Queries(ctx)
	if err != nil {
		t.Fatalf("Queries() error = %v", err)
	}
	if diff := cmp.Diff([]string{"q1", "q2"}, queries); diff != "" {
		t.Errorf("Queries() mismatch (-want +got):\n%s", diff)
	}

	if err := s.Delete(ctx, "q2"); err != nil {
		t.Fatalf("Delete(q2) error = %v", err)
	}
	if err := s.Delete(ctx, "q2"); !errors.IsNotFound(err) {
		t.Errorf("second Delete(q2) error = %v, want NOT_FOUND", err)
	}

	queries, err = s.Queries(ctx)
	if err != nil {
		t.Fatalf("Queries() error = %v", err)
	}
	if diff := cmp.Diff([]string{"q1"}, queries); diff != "" {
		t.Errorf("Queries() after delete mismatch (-want +got):\n%s", diff)
	}

	if err := s.Add(ctx, []Judgment{{QueryID: "", DocID: "x"}}); !errors.IsValidation(err) {
		t.Errorf("Add(empty query id) error = %v, want VALIDATION_ERROR", err)
	}
	if err := s.Add(ctx, []Judgment{{QueryID: "q3", DocID: " "}}); !errors.IsValidation(err) {
		t.Errorf("Add(blank doc id) error = %v, want VALIDATION_ERROR", err)
	}
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	exerciseStore(t, s)
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	s.Close()

	if _, err := s.GroundTruth(context.Background(), "q1"); errors.CodeOf(err) != errors.CodeUnavailable {
		t.Errorf("GroundTruth after Close error = %v, want SERVICE_UNAVAILABLE", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "judgments.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "judgments.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	if err := s.Add(ctx, []Judgment{{QueryID: "q1", DocID: "doc1"}}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	s.Close()

	s, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Close()

	gt, err := s.GroundTruth(ctx, "q1")
	if err != nil {
		t.Fatalf("GroundTruth() error = %v", err)
	}
	if diff := cmp.Diff([]string{"doc1"}, gt); diff != "" {
		t.Errorf("GroundTruth after reopen (-want +got):\n%s", diff)
	}
}

func TestNewSQLiteStore_EmptyPath(t *testing.T) {
	if _, err := NewSQLiteStore(""); !errors.IsValidation(err) {
		t.Errorf("NewSQLiteStore(\"\") error = %v, want VALIDATION_ERROR", err)
	}
}

func TestNewRedisStore_InvalidURL(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), "invalid://url", ""); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestRedisStore(t *testing.T) {
	// Skip if Redis not available
	s, err := NewRedisStore(context.Background(), "redis://localhost:6379/15", "rageval:test:judgments:")
	if err != nil {
		t.Skip("Redis not available:", err)
	}
	defer s.Close()

	ctx := context.Background()
	for _, q := range []string{"q1", "q2", "q3"} {
		_ = s.Delete(ctx, q)
	}

	exerciseStore(t, s)

	_ = s.Delete(ctx, "q1")
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{Type: TypeMemory})
	if err != nil {
		t.Fatalf("New(memory) error = %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("New(memory) = %T, want *MemoryStore", s)
	}

	s, err = New(ctx, Config{Type: TypeSQLite, SQLitePath: filepath.Join(t.TempDir(), "j.db")})
	if err != nil {
		t.Fatalf("New(sqlite) error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("New(sqlite) = %T, want *SQLiteStore", s)
	}

	if _, err := New(ctx, Config{Type: "cassandra"}); !errors.IsValidation(err) {
		t.Errorf("New(unknown) error = %v, want VALIDATION_ERROR", err)
	}
}

func TestGroup(t *testing.T) {
	got := Group([]Judgment{
		{QueryID: "q1", DocID: "a"},
		{QueryID: "q2", DocID: "b"},
		{QueryID: "q1", DocID: "c"},
	})
	want := map[string][]string{"q1": {"a", "c"}, "q2": {"b"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Group() mismatch (-want +got):\n%s", diff)
	}
}
