// Package sqlite provides a SQLite-backed implementation of storage.Store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/goodtune/kfocus/internal/storage"
	_ "modernc.org/sqlite"
)

// Store persists the tracker records in a single SQLite file.
type Store struct {
	db         *sql.DB
	usageStore *usageStore
	limitStore *limitStore
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := storage.EnsureParentDir(cleanPath); err != nil {
		return nil, err
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps read-modify-write transactions serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.usageStore = &usageStore{db: db}
	s.limitStore = &limitStore{db: db}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS time_by_site (
			domain TEXT PRIMARY KEY,
			seconds INTEGER NOT NULL CHECK (seconds >= 0)
		)`,
		`CREATE TABLE IF NOT EXISTS limits (
			domain TEXT PRIMARY KEY,
			seconds INTEGER NOT NULL CHECK (seconds > 0)
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Usage returns the UsageStore implementation
func (s *Store) Usage() storage.UsageStore {
	return s.usageStore
}

// Limits returns the LimitStore implementation
func (s *Store) Limits() storage.LimitStore {
	return s.limitStore
}

// Remove deletes whole records by name.
func (s *Store) Remove(ctx context.Context, names ...storage.Key) error {
	if len(names) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, name := range names {
		var stmt string
		var args []any
		switch name {
		case storage.KeyTimeBySite:
			stmt = `DELETE FROM time_by_site`
		case storage.KeyLimits:
			stmt = `DELETE FROM limits`
		case storage.KeyLastReset:
			stmt = `DELETE FROM meta WHERE key = ?`
			args = []any{string(storage.KeyLastReset)}
		case storage.KeyBlockedSites:
			// never written
			continue
		default:
			return fmt.Errorf("unknown record %q", name)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove: %w", err)
	}
	return nil
}

func scanSecondsMap(rows *sql.Rows) (map[string]int64, error) {
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var domain string
		var seconds int64
		if err := rows.Scan(&domain, &seconds); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result[domain] = seconds
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
