package timeutil

import (
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

// DomainKey extracts the tracking key from a tab URL: the lowercase ASCII
// hostname with a single leading "www." removed.
//
// Only http and https URLs are tracked. Internal pages (chrome://,
// about:, file://, extension pages) and unparsable input report false,
// which callers treat as "nothing to monitor" rather than an error.
func DomainKey(rawURL string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", false
	}

	host := u.Hostname()
	if host == "" {
		return "", false
	}

	host = toASCIIHost(host)
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", false
	}

	return host, true
}

// NormalizeDomain turns user input from the limits configuration (a bare
// domain such as "www.YouTube.com" or a full URL) into a domain key.
func NormalizeDomain(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", false
	}
	if !strings.Contains(input, "://") {
		input = "https://" + input
	}
	return DomainKey(input)
}

// toASCIIHost lowercases host and converts internationalised labels to
// punycode. IP literals are returned unchanged.
func toASCIIHost(host string) string {
	if net.ParseIP(host) != nil {
		return strings.ToLower(host)
	}

	ascii, err := idna.Lookup.ToASCII(host)
	if err == nil {
		return strings.ToLower(ascii)
	}

	// Lookup rejects some hostnames browsers accept (underscores, for
	// example). Plain ASCII hosts are still usable as keys.
	if isASCII(host) {
		return strings.ToLower(host)
	}
	return ""
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
