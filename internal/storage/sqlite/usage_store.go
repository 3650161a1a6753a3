package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goodtune/kfocus/internal/storage"
)

type usageStore struct {
	db *sql.DB
}

func (s *usageStore) TimeBySite(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT domain, seconds FROM time_by_site`)
	if err != nil {
		return nil, fmt.Errorf("query usage: %w", err)
	}
	return scanSecondsMap(rows)
}

func (s *usageStore) Seconds(ctx context.Context, domain string) (int64, error) {
	var seconds int64
	err := s.db.QueryRowContext(ctx, `SELECT seconds FROM time_by_site WHERE domain = ?`, domain).Scan(&seconds)
	if isNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query usage for %s: %w", domain, err)
	}
	return seconds, nil
}

// Add increments with an upsert, so the read and the write happen in one
// statement.
func (s *usageStore) Add(ctx context.Context, domain string, seconds int64) (int64, error) {
	if err := storage.ValidateIncrement(seconds); err != nil {
		return 0, err
	}

	var total int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO time_by_site (domain, seconds) VALUES (?, ?)
		ON CONFLICT(domain) DO UPDATE SET seconds = time_by_site.seconds + excluded.seconds
		RETURNING seconds`, domain, seconds).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("increment usage for %s: %w", domain, err)
	}
	return total, nil
}

func (s *usageStore) Reset(ctx context.Context, date string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM time_by_site`); err != nil {
		return fmt.Errorf("clear usage: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		string(storage.KeyLastReset), date); err != nil {
		return fmt.Errorf("stamp last reset: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

func (s *usageStore) LastReset(ctx context.Context) (string, error) {
	var date string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, string(storage.KeyLastReset)).Scan(&date)
	if isNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query last reset: %w", err)
	}
	return date, nil
}
