package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goodtune/kfocus/internal/storage"
)

type limitStore struct {
	db *sql.DB
}

func (s *limitStore) Get(ctx context.Context, domain string) (int64, error) {
	var seconds int64
	err := s.db.QueryRowContext(ctx, `SELECT seconds FROM limits WHERE domain = ?`, domain).Scan(&seconds)
	if isNoRows(err) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query limit for %s: %w", domain, err)
	}
	return seconds, nil
}

func (s *limitStore) List(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain, seconds FROM limits`)
	if err != nil {
		return nil, fmt.Errorf("query limits: %w", err)
	}
	return scanSecondsMap(rows)
}

func (s *limitStore) Set(ctx context.Context, domain string, seconds int64) error {
	if err := storage.ValidateLimit(seconds); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO limits (domain, seconds) VALUES (?, ?)
		ON CONFLICT(domain) DO UPDATE SET seconds = excluded.seconds`, domain, seconds)
	if err != nil {
		return fmt.Errorf("save limit for %s: %w", domain, err)
	}
	return nil
}

func (s *limitStore) Delete(ctx context.Context, domain string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM limits WHERE domain = ?`, domain); err != nil {
		return fmt.Errorf("delete limit for %s: %w", domain, err)
	}
	return nil
}
