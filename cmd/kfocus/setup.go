package main

import (
	"fmt"
	"os"
	"time"

	"github.com/goodtune/kfocus/internal/config"
	"github.com/goodtune/kfocus/internal/policy"
	"github.com/goodtune/kfocus/internal/policy/opa"
	"github.com/goodtune/kfocus/internal/storage"
	"github.com/goodtune/kfocus/internal/storage/redis"
	"github.com/goodtune/kfocus/internal/storage/sqlite"
	"github.com/rs/zerolog"
)

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "redis":
		return redis.Open(cfg.Redis)
	case "sqlite", "":
		return sqlite.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// newPolicyEngine builds the limit evaluator and returns the OPA engine
// separately so the server can reload it on SIGHUP.
func newPolicyEngine(cfg *config.Config, store storage.Store, logger zerolog.Logger) (*policy.Engine, *opa.Engine, error) {
	opaEngine, err := opa.NewEngine(opa.Config{PolicyDir: cfg.Policy.OPAPolicyDir}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OPA engine: %w", err)
	}
	return policy.NewEngine(store, opaEngine, logger), opaEngine, nil
}

// quietLogger is used by the one-shot commands
func quietLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	// Set log level
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
