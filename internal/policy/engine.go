package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/goodtune/kfocus/internal/policy/opa"
	"github.com/goodtune/kfocus/internal/storage"
	"github.com/rs/zerolog"
)

// Decider produces a limit decision from gathered facts.
type Decider interface {
	Evaluate(ctx context.Context, input map[string]interface{}) (*opa.Decision, error)
}

// Engine handles limit evaluation by gathering facts and calling OPA
type Engine struct {
	usage   storage.UsageStore
	limits  storage.LimitStore
	decider Decider
	logger  zerolog.Logger
}

// NewEngine creates a new fact-based limit engine. A nil decider evaluates
// with the native comparison only.
func NewEngine(store storage.Store, decider Decider, logger zerolog.Logger) *Engine {
	return &Engine{
		usage:   store.Usage(),
		limits:  store.Limits(),
		decider: decider,
		logger:  logger.With().Str("component", "policy").Logger(),
	}
}

// Evaluate reports whether domain has reached its daily limit. It reads
// storage and never writes.
func (e *Engine) Evaluate(ctx context.Context, domain string) (Status, error) {
	used, limit, err := e.gatherFacts(ctx, domain)
	if err != nil {
		return Status{}, err
	}

	native := Decide(used, limit)
	if e.decider == nil {
		return native, nil
	}

	decision, err := e.decider.Evaluate(ctx, map[string]interface{}{
		"domain": domain,
		"used":   used,
		"limit":  limit,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("domain", domain).Msg("OPA evaluation failed, falling back to native comparison")
		return native, nil
	}

	return Status{
		ShouldBlock: decision.ShouldBlock,
		Used:        used,
		Limit:       decision.Limit,
	}, nil
}

// gatherFacts reads accumulated seconds and the configured limit
func (e *Engine) gatherFacts(ctx context.Context, domain string) (used, limit int64, err error) {
	used, err = e.usage.Seconds(ctx, domain)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read usage: %w", err)
	}

	limit, err = e.limits.Get(ctx, domain)
	if errors.Is(err, storage.ErrNotFound) {
		return used, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read limit: %w", err)
	}
	return used, limit, nil
}
