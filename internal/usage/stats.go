package usage

import "sort"

// SiteTime is one domain's accumulated time today.
type SiteTime struct {
	Domain  string `json:"domain"`
	Seconds int64  `json:"seconds"`
}

// TopSites returns up to n domains ordered by time, most used first. Ties
// are ordered by domain so output is stable.
func TopSites(timeBySite map[string]int64, n int) []SiteTime {
	sites := make([]SiteTime, 0, len(timeBySite))
	for domain, seconds := range timeBySite {
		sites = append(sites, SiteTime{Domain: domain, Seconds: seconds})
	}

	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Seconds != sites[j].Seconds {
			return sites[i].Seconds > sites[j].Seconds
		}
		return sites[i].Domain < sites[j].Domain
	})

	if n >= 0 && len(sites) > n {
		sites = sites[:n]
	}
	return sites
}

// Total sums all accumulated seconds.
func Total(timeBySite map[string]int64) int64 {
	var total int64
	for _, seconds := range timeBySite {
		total += seconds
	}
	return total
}
