package usage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/kfocus/internal/metrics"
	"github.com/goodtune/kfocus/internal/storage"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/rs/zerolog"
)

// Resetter empties the day's usage and stamps the last-reset marker
type Resetter struct {
	usageStore storage.UsageStore
	clock      timeutil.Clock
	logger     zerolog.Logger
}

// NewResetter creates a new daily resetter
func NewResetter(usageStore storage.UsageStore, clock timeutil.Clock, logger zerolog.Logger) *Resetter {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Resetter{
		usageStore: usageStore,
		clock:      clock,
		logger:     logger.With().Str("component", "reset").Logger(),
	}
}

// Reset performs the daily usage reset. Failures are reported, not retried.
func (r *Resetter) Reset(ctx context.Context, trigger string) error {
	date := timeutil.DateStamp(r.clock.Now())

	if err := r.usageStore.Reset(ctx, date); err != nil {
		metrics.ResetsTotal.WithLabelValues(trigger, "error").Inc()
		return fmt.Errorf("failed to reset daily usage: %w", err)
	}

	metrics.ResetsTotal.WithLabelValues(trigger, "ok").Inc()
	r.logger.Info().Str("trigger", trigger).Str("date", date).Msg("Daily usage reset complete")
	return nil
}

// CatchUp resets when the last-reset marker names an earlier day, which
// happens when the host was down at the scheduled time. A missing marker is
// left alone.
func (r *Resetter) CatchUp(ctx context.Context) (bool, error) {
	marker, err := r.usageStore.LastReset(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read last reset: %w", err)
	}

	today := timeutil.DateStamp(r.clock.Now())
	if marker == "" || marker == today {
		return false, nil
	}

	r.logger.Info().Str("last_reset", marker).Str("today", today).Msg("Missed daily reset, catching up")
	if err := r.Reset(ctx, "catch-up"); err != nil {
		return false, err
	}
	return true, nil
}

// ResetScheduler fires the daily reset at the configured time of day and
// then every period
type ResetScheduler struct {
	fire      func(ctx context.Context) error
	hour      int
	minute    int
	period    time.Duration
	clock     timeutil.Clock
	after     func(time.Duration) <-chan time.Time
	logger    zerolog.Logger
	stopChan  chan struct{}
	stopOnce  sync.Once
	waitGroup sync.WaitGroup
}

// SchedulerConfig holds reset scheduler settings
type SchedulerConfig struct {
	ResetTime string // HH:MM, local time
	Period    time.Duration
	Clock     timeutil.Clock
}

// NewResetScheduler creates a new reset scheduler. fire is called on every
// tick; it normally submits the reset alarm to the session coordinator.
func NewResetScheduler(cfg SchedulerConfig, fire func(ctx context.Context) error, logger zerolog.Logger) (*ResetScheduler, error) {
	if cfg.ResetTime == "" {
		cfg.ResetTime = "00:00"
	}
	// Parse reset time (HH:MM format)
	parsedTime, err := time.Parse("15:04", cfg.ResetTime)
	if err != nil {
		return nil, fmt.Errorf("invalid reset time: %w", err)
	}
	if cfg.Period <= 0 {
		cfg.Period = 24 * time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}

	return &ResetScheduler{
		fire:     fire,
		hour:     parsedTime.Hour(),
		minute:   parsedTime.Minute(),
		period:   cfg.Period,
		clock:    cfg.Clock,
		after:    time.After,
		logger:   logger.With().Str("component", "reset-scheduler").Logger(),
		stopChan: make(chan struct{}),
	}, nil
}

// Start begins the reset scheduler
func (rs *ResetScheduler) Start(ctx context.Context) {
	rs.waitGroup.Add(1)
	go rs.run(ctx)
	rs.logger.Info().
		Str("reset_time", fmt.Sprintf("%02d:%02d", rs.hour, rs.minute)).
		Dur("period", rs.period).
		Msg("Daily usage reset scheduler started")
}

// Stop stops the reset scheduler and waits for the loop to exit
func (rs *ResetScheduler) Stop() {
	rs.stopOnce.Do(func() { close(rs.stopChan) })
	rs.waitGroup.Wait()
	rs.logger.Info().Msg("Daily usage reset scheduler stopped")
}

// run is the main scheduler loop. After the first fire the schedule
// advances by a fixed period rather than being recomputed.
func (rs *ResetScheduler) run(ctx context.Context) {
	defer rs.waitGroup.Done()

	nextReset := rs.calculateNextReset(rs.clock.Now())
	for {
		waitDuration := nextReset.Sub(rs.clock.Now())
		if waitDuration < 0 {
			waitDuration = 0
		}

		rs.logger.Info().
			Time("next_reset", nextReset).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next daily reset")

		// Wait until reset time or stop signal
		select {
		case <-rs.after(waitDuration):
			rs.performReset(ctx)
			nextReset = nextReset.Add(rs.period)
		case <-rs.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// calculateNextReset returns the first reset time strictly after now
func (rs *ResetScheduler) calculateNextReset(now time.Time) time.Time {
	if rs.hour == 0 && rs.minute == 0 {
		return timeutil.NextMidnight(now)
	}

	todayReset := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.hour, rs.minute, 0, 0,
		now.Location(),
	)

	// If we've already reached today's reset time, schedule for tomorrow
	if !todayReset.After(now) {
		return todayReset.AddDate(0, 0, 1)
	}
	return todayReset
}

// performReset fires the reset. Errors are logged; the next tick retries.
func (rs *ResetScheduler) performReset(ctx context.Context) {
	rs.logger.Info().Msg("Performing daily usage reset")
	if err := rs.fire(ctx); err != nil {
		rs.logger.Error().Err(err).Msg("Daily usage reset failed")
	}
}
