package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store represents the root storage interface.
// It persists the four named records of the tracker; every write replaces
// or increments whole values, never partial structures.
type Store interface {
	Close() error
	Usage() UsageStore
	Limits() LimitStore
	Remove(ctx context.Context, keys ...Key) error
}

// UsageStore manages the time-by-site record and its last-reset marker.
type UsageStore interface {
	// TimeBySite returns the whole domain -> seconds mapping. An empty
	// record yields an empty, non-nil map.
	TimeBySite(ctx context.Context) (map[string]int64, error)
	// Seconds returns the accumulated seconds for one domain, 0 if unseen.
	Seconds(ctx context.Context, domain string) (int64, error)
	// Add atomically increments a domain's seconds and returns the new total.
	Add(ctx context.Context, domain string, seconds int64) (int64, error)
	// Reset empties time-by-site and stamps last-reset in a single step.
	Reset(ctx context.Context, date string) error
	// LastReset returns the last-reset marker, or "" if never reset.
	LastReset(ctx context.Context) (string, error)
}

// LimitStore manages the limits record.
type LimitStore interface {
	// Get returns the limit in seconds, or ErrNotFound when the domain is
	// unlimited.
	Get(ctx context.Context, domain string) (int64, error)
	List(ctx context.Context) (map[string]int64, error)
	Set(ctx context.Context, domain string, seconds int64) error
	Delete(ctx context.Context, domain string) error
}
