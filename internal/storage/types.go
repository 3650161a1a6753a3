package storage

import "fmt"

// Key names one of the persisted records.
type Key string

const (
	// KeyTimeBySite maps domain -> accumulated seconds for the current day.
	KeyTimeBySite Key = "time-by-site"
	// KeyLimits maps domain -> daily limit in seconds.
	KeyLimits Key = "limits"
	// KeyBlockedSites is reserved and never written.
	KeyBlockedSites Key = "blocked-sites"
	// KeyLastReset holds the date of the last daily reset.
	KeyLastReset Key = "last-reset"
)

// Keys lists every named record.
var Keys = []Key{KeyTimeBySite, KeyLimits, KeyBlockedSites, KeyLastReset}

// ParseKey validates a record name.
func ParseKey(s string) (Key, error) {
	for _, k := range Keys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown record %q", s)
}

// ValidateLimit checks a limit value before it is persisted.
func ValidateLimit(seconds int64) error {
	if seconds <= 0 {
		return fmt.Errorf("limit must be a positive number of seconds, got %d", seconds)
	}
	return nil
}

// ValidateIncrement checks a usage increment before it is persisted.
func ValidateIncrement(seconds int64) error {
	if seconds <= 0 {
		return fmt.Errorf("usage increment must be positive, got %d", seconds)
	}
	return nil
}
