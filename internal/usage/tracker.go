package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/kfocus/internal/metrics"
	"github.com/goodtune/kfocus/internal/storage"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/rs/zerolog"
)

// Tracker persists the time of closed sessions
type Tracker struct {
	usageStore storage.UsageStore
	logger     zerolog.Logger
}

// NewTracker creates a new usage tracker
func NewTracker(usageStore storage.UsageStore, logger zerolog.Logger) *Tracker {
	return &Tracker{
		usageStore: usageStore,
		logger:     logger.With().Str("component", "usage-tracker").Logger(),
	}
}

// Record adds the whole seconds between startedAt and endedAt to domain.
// Sessions shorter than one second are discarded and return 0.
func (t *Tracker) Record(ctx context.Context, domain string, startedAt, endedAt time.Time) (int64, error) {
	elapsed := timeutil.ElapsedSeconds(startedAt, endedAt)
	if elapsed <= 0 {
		metrics.SessionsClosed.WithLabelValues("discarded").Inc()
		t.logger.Debug().
			Str("domain", domain).
			Int64("elapsed", elapsed).
			Msg("Session too short, not counting")
		return 0, nil
	}

	total, err := t.usageStore.Add(ctx, domain, elapsed)
	if err != nil {
		metrics.SessionsClosed.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("failed to add usage: %w", err)
	}

	metrics.SessionsClosed.WithLabelValues("recorded").Inc()
	metrics.TrackedSeconds.WithLabelValues(domain).Add(float64(elapsed))

	t.logger.Debug().
		Str("domain", domain).
		Int64("elapsed", elapsed).
		Int64("total", total).
		Msg("Usage recorded")

	return elapsed, nil
}
