package policy

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/goodtune/kfocus/internal/policy/opa"
	"github.com/goodtune/kfocus/internal/storage"
	"github.com/goodtune/kfocus/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "kfocus.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEngine(t *testing.T, store storage.Store) *Engine {
	t.Helper()
	opaEngine, err := opa.NewEngine(opa.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create OPA engine: %v", err)
	}
	return NewEngine(store, opaEngine, zerolog.Nop())
}

type failingDecider struct{}

func (failingDecider) Evaluate(context.Context, map[string]interface{}) (*opa.Decision, error) {
	return nil, errors.New("policy unavailable")
}

func TestEvaluate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		used  int64
		limit int64
		want  Status
	}{
		{"no limit", 5000, 0, Status{ShouldBlock: false, Used: 5000, Limit: 0}},
		{"under limit", 3000, 3600, Status{ShouldBlock: false, Used: 3000, Limit: 3600}},
		{"at limit", 3600, 3600, Status{ShouldBlock: true, Used: 3600, Limit: 3600}},
		{"over limit", 4000, 3600, Status{ShouldBlock: true, Used: 4000, Limit: 3600}},
		{"unused", 0, 1800, Status{ShouldBlock: false, Used: 0, Limit: 1800}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := openTestStore(t)
			if tt.used > 0 {
				if _, err := store.Usage().Add(ctx, "example.com", tt.used); err != nil {
					t.Fatalf("Add failed: %v", err)
				}
			}
			if tt.limit > 0 {
				if err := store.Limits().Set(ctx, "example.com", tt.limit); err != nil {
					t.Fatalf("Set failed: %v", err)
				}
			}

			for _, engine := range []*Engine{
				newTestEngine(t, store),
				NewEngine(store, nil, zerolog.Nop()),
				NewEngine(store, failingDecider{}, zerolog.Nop()),
			} {
				got, err := engine.Evaluate(ctx, "example.com")
				if err != nil {
					t.Fatalf("Evaluate failed: %v", err)
				}
				if got != tt.want {
					t.Errorf("Evaluate() = %+v, want %+v", got, tt.want)
				}
			}
		})
	}
}

func TestEvaluate_NoSideEffects(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	engine := newTestEngine(t, store)

	if _, err := engine.Evaluate(ctx, "unseen.com"); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	usage, _ := store.Usage().TimeBySite(ctx)
	limits, _ := store.Limits().List(ctx)
	if len(usage) != 0 || len(limits) != 0 {
		t.Errorf("Evaluate must not write, got usage=%v limits=%v", usage, limits)
	}
}

func TestEvaluate_StorageError(t *testing.T) {
	store := openTestStore(t)
	engine := NewEngine(store, nil, zerolog.Nop())
	_ = store.Close()

	if _, err := engine.Evaluate(context.Background(), "example.com"); err == nil {
		t.Error("Expected error from closed store")
	}
}

func TestComputeLevel(t *testing.T) {
	tests := []struct {
		status      Status
		wantPercent float64
		wantState   LevelState
	}{
		{Status{Used: 100, Limit: 0}, 0, LevelOK},
		{Status{Used: 0, Limit: 100}, 0, LevelOK},
		{Status{Used: 75, Limit: 100}, 75, LevelOK},
		{Status{Used: 76, Limit: 100}, 76, LevelWarning},
		{Status{Used: 90, Limit: 100}, 90, LevelWarning},
		{Status{Used: 91, Limit: 100}, 91, LevelDanger},
		{Status{Used: 250, Limit: 100, ShouldBlock: true}, 100, LevelDanger},
	}

	for _, tt := range tests {
		got := ComputeLevel(tt.status)
		if got.Percent != tt.wantPercent || got.State != tt.wantState {
			t.Errorf("ComputeLevel(%+v) = %+v, want %v%% %s", tt.status, got, tt.wantPercent, tt.wantState)
		}
	}
}
