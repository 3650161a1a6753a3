package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goodtune/kfocus/internal/metrics"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/google/uuid"
)

func (c *Coordinator) handleTabActivated(ctx context.Context, e TabActivated) error {
	closeErr := c.closeSession(ctx)

	tab, err := c.browser.Tab(ctx, e.TabID)
	if err != nil {
		// The tab may have closed before the event was handled.
		c.logger.Warn().Err(err).Int("tab_id", e.TabID).Msg("Activated tab is not available")
		return closeErr
	}

	return errors.Join(closeErr, c.openSession(ctx, tab))
}

func (c *Coordinator) handleTabUpdated(ctx context.Context, e TabUpdated) error {
	tab := e.Tab
	tab.ID = e.TabID
	if tab.URL == "" {
		tab.URL = e.URL
	}

	var errs []error

	// Page finished loading in the observed domain: re-apply block state,
	// the timer keeps running.
	if e.Status == "complete" && tab.Active {
		domain, ok := timeutil.DomainKey(tab.URL)
		if cur := c.current.Load(); ok && cur != nil && cur.Domain == domain {
			errs = append(errs, c.enforce(ctx, domain, tab.ID))
		}
	}

	if e.URL != "" {
		cur := c.current.Load()
		switch {
		case cur != nil && cur.TabID == tab.ID:
			errs = append(errs, c.closeSession(ctx), c.openSession(ctx, tab))
		case cur == nil && tab.Active:
			// Navigating the focused tab away from an untracked page.
			errs = append(errs, c.openSession(ctx, tab))
		}
	}

	return errors.Join(errs...)
}

func (c *Coordinator) handleTabRemoved(ctx context.Context, e TabRemoved) error {
	if cur := c.current.Load(); cur != nil && cur.TabID == e.TabID {
		return c.closeSession(ctx)
	}
	return nil
}

func (c *Coordinator) handleIdleStateChanged(ctx context.Context, e IdleStateChanged) error {
	c.logger.Debug().Str("state", string(e.State)).Msg("Idle state changed")

	switch e.State {
	case IdleIdle, IdleLocked:
		c.userIdle = true
		return c.closeSession(ctx)

	case IdleActive:
		c.userIdle = false
		closeErr := c.closeSession(ctx)

		tab, err := c.browser.ActiveTab(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("No active tab to resume")
			return closeErr
		}
		return errors.Join(closeErr, c.openSession(ctx, tab))

	default:
		c.logger.Warn().Str("state", string(e.State)).Msg("Unknown idle state")
		return nil
	}
}

func (c *Coordinator) handleMessage(ctx context.Context, e Message) error {
	if e.MessageType != MessageCheckLimits {
		c.logger.Debug().Str("type", e.MessageType).Msg("Ignoring message")
		return nil
	}
	if e.Sender == nil {
		return nil
	}

	domain, ok := timeutil.DomainKey(e.Sender.URL)
	if !ok {
		return nil
	}
	return c.enforce(ctx, domain, e.Sender.ID)
}

func (c *Coordinator) handleAlarm(ctx context.Context, e AlarmFired) error {
	if e.Name != AlarmDailyReset {
		c.logger.Debug().Str("alarm", e.Name).Msg("Ignoring alarm")
		return nil
	}
	return c.reset(ctx, "alarm")
}

func (c *Coordinator) reset(ctx context.Context, trigger string) error {
	if c.resetter == nil {
		return fmt.Errorf("no resetter configured")
	}
	return c.resetter.Reset(ctx, trigger)
}

// openSession starts observing tab if its URL has a domain key. Nothing is
// opened while the user is idle.
func (c *Coordinator) openSession(ctx context.Context, tab Tab) error {
	if c.userIdle {
		return nil
	}

	domain, ok := timeutil.DomainKey(tab.URL)
	if !ok {
		c.logger.Debug().Int("tab_id", tab.ID).Msg("Tab has no trackable domain")
		return nil
	}

	s := &Session{
		ID:        uuid.NewString(),
		TabID:     tab.ID,
		Domain:    domain,
		StartedAt: c.clock.Now(),
	}
	if !c.current.CompareAndSwap(nil, s) {
		// Unreachable while every transition closes first.
		return fmt.Errorf("session already open for tab %d", c.current.Load().TabID)
	}

	c.logger.Debug().
		Str("session_id", s.ID).
		Int("tab_id", s.TabID).
		Str("domain", s.Domain).
		Msg("Session opened")

	return c.enforce(ctx, domain, tab.ID)
}

// closeSession empties the slot before persisting, so a second close finds
// nothing to do.
func (c *Coordinator) closeSession(ctx context.Context) error {
	s := c.current.Load()
	if s == nil || !c.current.CompareAndSwap(s, nil) {
		return nil
	}

	// The slot is already empty, so the write must not be lost to a
	// cancelled caller.
	now := c.clock.Now()
	counted, err := c.recorder.Record(context.WithoutCancel(ctx), s.Domain, s.StartedAt, now)
	if err != nil {
		return fmt.Errorf("failed to record session for %s: %w", s.Domain, err)
	}

	c.logger.Debug().
		Str("session_id", s.ID).
		Str("domain", s.Domain).
		Int64("seconds", counted).
		Msg("Session closed")
	return nil
}

// enforce evaluates domain and updates the page and badge of tabID.
func (c *Coordinator) enforce(ctx context.Context, domain string, tabID int) error {
	start := time.Now()
	status, err := c.evaluator.Evaluate(ctx, domain)
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to evaluate %s: %w", domain, err)
	}

	if !status.ShouldBlock {
		if err := c.browser.SetBadge(ctx, tabID, Badge{}); err != nil {
			c.logger.Debug().Err(err).Int("tab_id", tabID).Msg("Failed to clear badge")
		}
		return nil
	}

	c.logger.Info().
		Str("domain", domain).
		Int("tab_id", tabID).
		Int64("used", status.Used).
		Int64("limit", status.Limit).
		Msg("Limit reached, blocking page")
	metrics.BlockDirectives.WithLabelValues(domain).Inc()

	// The page script may not be injected yet; it asks again on load.
	if err := c.browser.SendDirective(ctx, tabID, Directive{Type: DirectiveBlockPage}); err != nil {
		c.logger.Debug().Err(err).Int("tab_id", tabID).Msg("Block directive not delivered")
	}
	if err := c.browser.SetBadge(ctx, tabID, BlockedBadge); err != nil {
		c.logger.Debug().Err(err).Int("tab_id", tabID).Msg("Failed to set badge")
	}
	return nil
}
