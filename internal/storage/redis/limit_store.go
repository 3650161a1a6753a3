package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goodtune/kfocus/internal/storage"
	"github.com/redis/go-redis/v9"
)

type limitStore struct {
	client *redis.Client
	keys   keys
}

// Get returns the configured limit for a domain
func (s *limitStore) Get(ctx context.Context, domain string) (int64, error) {
	raw, err := s.client.HGet(ctx, s.keys.record(storage.KeyLimits), domain).Result()
	if errors.Is(err, redis.Nil) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read limit for %s: %w", domain, err)
	}

	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse limit for %s: %w", domain, err)
	}
	return seconds, nil
}

// List returns every configured limit
func (s *limitStore) List(ctx context.Context) (map[string]int64, error) {
	data, err := s.client.HGetAll(ctx, s.keys.record(storage.KeyLimits)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read limits: %w", err)
	}
	return parseSecondsMap(data)
}

// Set creates or replaces a domain limit
func (s *limitStore) Set(ctx context.Context, domain string, seconds int64) error {
	if err := storage.ValidateLimit(seconds); err != nil {
		return err
	}

	if err := s.client.HSet(ctx, s.keys.record(storage.KeyLimits), domain, seconds).Err(); err != nil {
		return fmt.Errorf("failed to set limit for %s: %w", domain, err)
	}
	return nil
}

// Delete removes a domain limit, making it unlimited
func (s *limitStore) Delete(ctx context.Context, domain string) error {
	if err := s.client.HDel(ctx, s.keys.record(storage.KeyLimits), domain).Err(); err != nil {
		return fmt.Errorf("failed to delete limit for %s: %w", domain, err)
	}
	return nil
}
