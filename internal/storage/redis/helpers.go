package redis

import (
	"fmt"
	"strconv"

	"github.com/goodtune/kfocus/internal/storage"
)

const defaultKeyPrefix = "kfocus"

// keys builds Redis key names for the named records, e.g.
// kfocus:time-by-site.
type keys struct {
	prefix string
}

func (k keys) record(name storage.Key) string {
	return fmt.Sprintf("%s:%s", k.prefix, name)
}

// parseSecondsMap converts a Redis hash of domain -> integer strings
func parseSecondsMap(data map[string]string) (map[string]int64, error) {
	out := make(map[string]int64, len(data))
	for domain, raw := range data {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse seconds for %s: %w", domain, err)
		}
		out[domain] = seconds
	}
	return out, nil
}
