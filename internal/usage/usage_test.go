package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/kfocus/internal/config"
	"github.com/goodtune/kfocus/internal/storage"
	"github.com/goodtune/kfocus/internal/storage/redis"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/rs/zerolog"
)

func setupTestStore(t *testing.T) storage.Store {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := redis.Open(config.RedisConfig{
		Host:         mr.Addr(),
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	})
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestTracker_Record(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 10, 19, 14, 0, 0, 0, time.Local)

	tests := []struct {
		name        string
		end         time.Time
		wantCounted int64
	}{
		{"whole seconds", start.Add(45 * time.Second), 45},
		{"fraction rounded down", start.Add(20*time.Second + 900*time.Millisecond), 20},
		{"under a second", start.Add(999 * time.Millisecond), 0},
		{"zero", start, 0},
		{"clock went backwards", start.Add(-5 * time.Second), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)
			_, _ = store.Usage().Add(ctx, "other.com", 7)
			tracker := NewTracker(store.Usage(), zerolog.Nop())

			counted, err := tracker.Record(ctx, "a.com", start, tt.end)
			if err != nil {
				t.Fatalf("Record failed: %v", err)
			}
			if counted != tt.wantCounted {
				t.Errorf("Record() = %d, want %d", counted, tt.wantCounted)
			}

			all, err := store.Usage().TimeBySite(ctx)
			if err != nil {
				t.Fatalf("TimeBySite failed: %v", err)
			}
			if all["a.com"] != tt.wantCounted {
				t.Errorf("Expected a.com = %d, got %d", tt.wantCounted, all["a.com"])
			}
			if _, exists := all["a.com"]; tt.wantCounted == 0 && exists {
				t.Error("Discarded session must not create an entry")
			}
			if all["other.com"] != 7 {
				t.Errorf("Other domains must be untouched, got %d", all["other.com"])
			}
		})
	}
}

func TestTracker_RecordStorageError(t *testing.T) {
	store := setupTestStore(t)
	tracker := NewTracker(store.Usage(), zerolog.Nop())
	_ = store.Close()

	start := time.Now()
	if _, err := tracker.Record(context.Background(), "a.com", start, start.Add(time.Minute)); err == nil {
		t.Error("Expected error from closed store")
	}
}

func TestResetter_Reset(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	clock := timeutil.NewTestClock(time.Date(2026, 10, 19, 0, 0, 1, 0, time.Local))

	_, _ = store.Usage().Add(ctx, "example.com", 3000)
	_ = store.Limits().Set(ctx, "example.com", 3600)

	resetter := NewResetter(store.Usage(), clock, zerolog.Nop())
	if err := resetter.Reset(ctx, "alarm"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	all, _ := store.Usage().TimeBySite(ctx)
	if len(all) != 0 {
		t.Errorf("Expected empty usage, got %v", all)
	}
	marker, _ := store.Usage().LastReset(ctx)
	if marker != "Mon Oct 19 2026" {
		t.Errorf("Expected marker for today, got %q", marker)
	}
	limit, err := store.Limits().Get(ctx, "example.com")
	if err != nil || limit != 3600 {
		t.Errorf("Limits must survive reset, got %d (%v)", limit, err)
	}

	// A duplicate fire is not suppressed and still succeeds.
	if err := resetter.Reset(ctx, "alarm"); err != nil {
		t.Errorf("Duplicate reset failed: %v", err)
	}
}

func TestResetter_CatchUp(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		marker    string
		wantReset bool
	}{
		{"never reset", "", false},
		{"reset today", "Mon Oct 19 2026", false},
		{"missed a day", "Sat Oct 17 2026", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := setupTestStore(t)
			if tt.marker != "" {
				_ = store.Usage().Reset(ctx, tt.marker)
			}
			_, _ = store.Usage().Add(ctx, "example.com", 100)

			clock := timeutil.NewTestClock(time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local))
			resetter := NewResetter(store.Usage(), clock, zerolog.Nop())

			didReset, err := resetter.CatchUp(ctx)
			if err != nil {
				t.Fatalf("CatchUp failed: %v", err)
			}
			if didReset != tt.wantReset {
				t.Errorf("CatchUp() = %v, want %v", didReset, tt.wantReset)
			}

			seconds, _ := store.Usage().Seconds(ctx, "example.com")
			if tt.wantReset && seconds != 0 {
				t.Errorf("Expected usage cleared, got %d", seconds)
			}
			if !tt.wantReset && seconds != 100 {
				t.Errorf("Expected usage kept, got %d", seconds)
			}
		})
	}
}

func TestCalculateNextReset(t *testing.T) {
	loc := time.Local
	tests := []struct {
		name      string
		resetTime string
		now       time.Time
		want      time.Time
	}{
		{"midnight evening", "00:00", time.Date(2026, 10, 19, 22, 0, 0, 0, loc), time.Date(2026, 10, 20, 0, 0, 0, 0, loc)},
		{"midnight exactly", "00:00", time.Date(2026, 10, 19, 0, 0, 0, 0, loc), time.Date(2026, 10, 20, 0, 0, 0, 0, loc)},
		{"morning before", "04:30", time.Date(2026, 10, 19, 3, 0, 0, 0, loc), time.Date(2026, 10, 19, 4, 30, 0, 0, loc)},
		{"morning after", "04:30", time.Date(2026, 10, 19, 5, 0, 0, 0, loc), time.Date(2026, 10, 20, 4, 30, 0, 0, loc)},
		{"end of month", "00:00", time.Date(2026, 10, 31, 23, 59, 59, 0, loc), time.Date(2026, 11, 1, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := NewResetScheduler(SchedulerConfig{ResetTime: tt.resetTime}, nil, zerolog.Nop())
			if err != nil {
				t.Fatalf("NewResetScheduler failed: %v", err)
			}
			if got := rs.calculateNextReset(tt.now); !got.Equal(tt.want) {
				t.Errorf("calculateNextReset(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestNewResetScheduler_InvalidTime(t *testing.T) {
	if _, err := NewResetScheduler(SchedulerConfig{ResetTime: "noon"}, nil, zerolog.Nop()); err == nil {
		t.Error("Expected error for invalid reset time")
	}
}

func TestResetScheduler_Fires(t *testing.T) {
	clock := timeutil.NewTestClock(time.Date(2026, 10, 19, 22, 0, 0, 0, time.Local))

	var mu sync.Mutex
	var waits []time.Duration
	fired := make(chan struct{}, 10)

	fire := func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return errors.New("storage unavailable") // logged, scheduling continues
	}

	rs, err := NewResetScheduler(SchedulerConfig{Period: 24 * time.Hour, Clock: clock}, fire, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResetScheduler failed: %v", err)
	}
	rs.after = func(d time.Duration) <-chan time.Time {
		mu.Lock()
		waits = append(waits, d)
		mu.Unlock()

		clock.Advance(d)
		ch := make(chan time.Time, 1)
		ch <- clock.Now()
		return ch
	}

	rs.Start(context.Background())
	for i := 0; i < 3; i++ {
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("reset %d did not fire", i+1)
		}
	}
	rs.Stop()
	rs.Stop() // idempotent

	mu.Lock()
	defer mu.Unlock()
	if len(waits) < 3 {
		t.Fatalf("Expected at least 3 waits, got %d", len(waits))
	}
	if waits[0] != 2*time.Hour {
		t.Errorf("First wait should run until midnight, got %v", waits[0])
	}
	for i, w := range waits[1:3] {
		if w != 24*time.Hour {
			t.Errorf("Wait %d should be one period, got %v", i+2, w)
		}
	}
}

func TestResetScheduler_StopBeforeFire(t *testing.T) {
	rs, err := NewResetScheduler(SchedulerConfig{}, func(context.Context) error {
		t.Error("fire should not be called")
		return nil
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewResetScheduler failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.Start(ctx)
	cancel()
	rs.Stop()
}
