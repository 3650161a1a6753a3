// Package session owns the observed-tab session and the state machine that
// opens, refreshes and closes it in response to browser events.
package session

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/goodtune/kfocus/internal/metrics"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/rs/zerolog"
)

// ErrStopped is returned by Submit once the dispatcher has exited.
var ErrStopped = errors.New("session: coordinator stopped")

const defaultQueueSize = 64

// envelope carries one event through the queue.
type envelope struct {
	ctx    context.Context
	event  Event
	result chan error
}

// Coordinator runs every event handler on a single dispatcher goroutine, so
// handlers never overlap. Only Current may be called from other goroutines
// without going through Submit.
type Coordinator struct {
	browser   Browser
	evaluator Evaluator
	recorder  Recorder
	resetter  Resetter
	clock     timeutil.Clock
	logger    zerolog.Logger

	current atomic.Pointer[Session]

	// userIdle is owned by the dispatcher.
	userIdle bool

	queue chan envelope
	done  chan struct{}
}

// Config holds the coordinator's collaborators.
type Config struct {
	Browser   Browser
	Evaluator Evaluator
	Recorder  Recorder
	Resetter  Resetter
	Clock     timeutil.Clock
	QueueSize int
}

// NewCoordinator creates a coordinator in the Idle state. Run must be
// called for submitted events to be processed.
func NewCoordinator(cfg Config, logger zerolog.Logger) *Coordinator {
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	return &Coordinator{
		browser:   cfg.Browser,
		evaluator: cfg.Evaluator,
		recorder:  cfg.Recorder,
		resetter:  cfg.Resetter,
		clock:     cfg.Clock,
		logger:    logger.With().Str("component", "session").Logger(),
		queue:     make(chan envelope, cfg.QueueSize),
		done:      make(chan struct{}),
	}
}

// Run dispatches queued events until ctx is cancelled. On exit the observed
// session is closed so its time is persisted, and queued events are
// rejected with ErrStopped.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info().Msg("Session coordinator started")
	defer close(c.done)

	for {
		select {
		case env := <-c.queue:
			env.result <- c.dispatch(env.ctx, env.event)
		case <-ctx.Done():
			c.shutdown()
			return nil
		}
	}
}

func (c *Coordinator) shutdown() {
	// Persist the observed time with a fresh context; ctx is already done.
	if err := c.closeSession(context.Background()); err != nil {
		c.logger.Error().Err(err).Msg("Failed to flush session on shutdown")
	}

	for {
		select {
		case env := <-c.queue:
			env.result <- ErrStopped
		default:
			c.logger.Info().Msg("Session coordinator stopped")
			return
		}
	}
}

// Submit enqueues an event and waits for its handler to finish. The handler
// runs with ctx. Handler failures are logged by the coordinator and also
// returned here.
func (c *Coordinator) Submit(ctx context.Context, ev Event) error {
	env := envelope{ctx: ctx, event: ev, result: make(chan error, 1)}

	select {
	case <-c.done:
		return ErrStopped
	default:
	}

	select {
	case c.queue <- env:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-env.result:
		return err
	case <-c.done:
		// The dispatcher answers every envelope it takes before exiting.
		select {
		case err := <-env.result:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseSession closes the observed session, persisting its time. Closing an
// idle coordinator is a no-op.
func (c *Coordinator) CloseSession(ctx context.Context) error {
	return c.Submit(ctx, CloseRequested{})
}

// Current returns a copy of the observed session.
func (c *Coordinator) Current() (Session, bool) {
	s := c.current.Load()
	if s == nil {
		return Session{}, false
	}
	return *s, true
}

func (c *Coordinator) dispatch(ctx context.Context, ev Event) error {
	metrics.EventsTotal.WithLabelValues(ev.Type()).Inc()

	var err error
	switch e := ev.(type) {
	case TabActivated:
		err = c.handleTabActivated(ctx, e)
	case TabUpdated:
		err = c.handleTabUpdated(ctx, e)
	case TabRemoved:
		err = c.handleTabRemoved(ctx, e)
	case IdleStateChanged:
		err = c.handleIdleStateChanged(ctx, e)
	case Message:
		err = c.handleMessage(ctx, e)
	case AlarmFired:
		err = c.handleAlarm(ctx, e)
	case CloseRequested:
		err = c.closeSession(ctx)
	case ResetRequested:
		err = c.reset(ctx, e.Trigger)
	default:
		c.logger.Warn().Str("type", ev.Type()).Msg("Ignoring unknown event")
		return nil
	}

	if err != nil {
		c.logger.Error().Err(err).Str("event", ev.Type()).Msg("Event handler failed")
	}
	return err
}
