package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/goodtune/kfocus/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "data", "kfocus.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kfocus.db")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := store.Usage().Add(ctx, "example.com", 42); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer store.Close()

	seconds, err := store.Usage().Seconds(ctx, "example.com")
	if err != nil {
		t.Fatalf("Seconds failed: %v", err)
	}
	if seconds != 42 {
		t.Errorf("Expected 42 seconds to persist, got %d", seconds)
	}
}

func TestUsageStore_Add(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tests := []struct {
		domain    string
		seconds   int64
		wantTotal int64
		wantErr   bool
	}{
		{"a.com", 45, 45, false},
		{"a.com", 15, 60, false},
		{"b.com", 1, 1, false},
		{"a.com", 0, 0, true},
		{"a.com", -5, 0, true},
	}

	for _, tt := range tests {
		total, err := store.Usage().Add(ctx, tt.domain, tt.seconds)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Add(%s, %d) expected error", tt.domain, tt.seconds)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Add(%s, %d) failed: %v", tt.domain, tt.seconds, err)
		}
		if total != tt.wantTotal {
			t.Errorf("Add(%s, %d) = %d, want %d", tt.domain, tt.seconds, total, tt.wantTotal)
		}
	}

	all, err := store.Usage().TimeBySite(ctx)
	if err != nil {
		t.Fatalf("TimeBySite failed: %v", err)
	}
	if len(all) != 2 || all["a.com"] != 60 || all["b.com"] != 1 {
		t.Errorf("Unexpected usage record: %v", all)
	}
}

func TestUsageStore_ConcurrentAdd(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Usage().Add(ctx, "example.com", 3); err != nil {
				t.Errorf("Add failed: %v", err)
			}
		}()
	}
	wg.Wait()

	seconds, err := store.Usage().Seconds(ctx, "example.com")
	if err != nil {
		t.Fatalf("Seconds failed: %v", err)
	}
	if seconds != 60 {
		t.Errorf("Expected 60 seconds after concurrent increments, got %d", seconds)
	}
}

func TestUsageStore_Reset(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, _ = store.Usage().Add(ctx, "example.com", 3000)
	if err := store.Limits().Set(ctx, "example.com", 3600); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	marker, err := store.Usage().LastReset(ctx)
	if err != nil {
		t.Fatalf("LastReset failed: %v", err)
	}
	if marker != "" {
		t.Errorf("Expected empty marker, got %q", marker)
	}

	for _, date := range []string{"Sun Oct 18 2026", "Mon Oct 19 2026"} {
		if err := store.Usage().Reset(ctx, date); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
	}

	all, err := store.Usage().TimeBySite(ctx)
	if err != nil {
		t.Fatalf("TimeBySite failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("Expected empty usage after reset, got %v", all)
	}

	marker, err = store.Usage().LastReset(ctx)
	if err != nil {
		t.Fatalf("LastReset failed: %v", err)
	}
	if marker != "Mon Oct 19 2026" {
		t.Errorf("Expected latest marker, got %q", marker)
	}

	limit, err := store.Limits().Get(ctx, "example.com")
	if err != nil || limit != 3600 {
		t.Errorf("Expected limit 3600 untouched, got %d (%v)", limit, err)
	}
}

func TestLimitStore(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	limits := store.Limits()

	if _, err := limits.Get(ctx, "example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := limits.Set(ctx, "example.com", -1); err == nil {
		t.Error("Set with negative seconds should fail")
	}
	if err := limits.Set(ctx, "example.com", 1800); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := limits.Set(ctx, "example.com", 900); err != nil {
		t.Fatalf("Set (overwrite) failed: %v", err)
	}
	if err := limits.Set(ctx, "youtube.com", 3600); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	all, err := limits.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 || all["example.com"] != 900 || all["youtube.com"] != 3600 {
		t.Errorf("Unexpected limits: %v", all)
	}

	if err := limits.Delete(ctx, "example.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := limits.Get(ctx, "example.com"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := limits.Delete(ctx, "never-set.com"); err != nil {
		t.Errorf("Deleting an unset limit should succeed, got %v", err)
	}
}

func TestStore_Remove(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, _ = store.Usage().Add(ctx, "example.com", 10)
	_ = store.Limits().Set(ctx, "example.com", 60)
	_ = store.Usage().Reset(ctx, "Mon Oct 19 2026")
	_, _ = store.Usage().Add(ctx, "example.com", 10)

	if err := store.Remove(ctx, storage.KeyTimeBySite, storage.KeyLastReset, storage.KeyBlockedSites); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	all, _ := store.Usage().TimeBySite(ctx)
	if len(all) != 0 {
		t.Errorf("Expected usage removed, got %v", all)
	}
	marker, _ := store.Usage().LastReset(ctx)
	if marker != "" {
		t.Errorf("Expected marker removed, got %q", marker)
	}
	if _, err := store.Limits().Get(ctx, "example.com"); err != nil {
		t.Errorf("Expected limits to survive, got %v", err)
	}

	if err := store.Remove(ctx, storage.Key("bogus")); err == nil {
		t.Error("Expected error for unknown record")
	}
}
