package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/goodtune/kfocus/internal/storage"
	"github.com/redis/go-redis/v9"
)

var (
	resetScript     = redis.NewScript(resetUsageScript)
	incrementScript = redis.NewScript(incrementUsageScript)
)

type usageStore struct {
	client *redis.Client
	keys   keys
}

// TimeBySite returns the full usage record
func (s *usageStore) TimeBySite(ctx context.Context) (map[string]int64, error) {
	data, err := s.client.HGetAll(ctx, s.keys.record(storage.KeyTimeBySite)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}
	return parseSecondsMap(data)
}

// Seconds returns accumulated seconds for a single domain
func (s *usageStore) Seconds(ctx context.Context, domain string) (int64, error) {
	raw, err := s.client.HGet(ctx, s.keys.record(storage.KeyTimeBySite), domain).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read usage for %s: %w", domain, err)
	}

	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse usage for %s: %w", domain, err)
	}
	return seconds, nil
}

// Add atomically increments a domain's usage
func (s *usageStore) Add(ctx context.Context, domain string, seconds int64) (int64, error) {
	if err := storage.ValidateIncrement(seconds); err != nil {
		return 0, err
	}

	redisKeys := []string{s.keys.record(storage.KeyTimeBySite)}
	total, err := incrementScript.Run(ctx, s.client, redisKeys, domain, seconds).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage for %s: %w", domain, err)
	}
	return total, nil
}

// Reset clears usage and stamps the last-reset marker
func (s *usageStore) Reset(ctx context.Context, date string) error {
	redisKeys := []string{
		s.keys.record(storage.KeyTimeBySite),
		s.keys.record(storage.KeyLastReset),
	}

	if err := resetScript.Run(ctx, s.client, redisKeys, date).Err(); err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

// LastReset returns the last-reset marker
func (s *usageStore) LastReset(ctx context.Context) (string, error) {
	date, err := s.client.Get(ctx, s.keys.record(storage.KeyLastReset)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last reset: %w", err)
	}
	return date, nil
}
