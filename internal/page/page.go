// Package page contains the registry of pages, which scopes follow-up
// navigations to page generations and keeps the per-page statistics.
package page

import (
	"strings"
)

// Handle identifies one generation of a page.  A generation starts with each
// top-level navigation.
type Handle struct {
	// ID is the opaque identity of the page.
	ID string

	// Generation identifies the navigation of the page.  Generations are
	// unique within a [Registry] and grow with every navigation.
	Generation uint64
}

// Stats are the per-page statistics.  They reset on each top-level
// navigation.
type Stats struct {
	// AdsTrackers is the number of blocked ads and trackers.
	AdsTrackers uint64 `json:"ads_trackers"`

	// HTTPSUpgrades is the number of requests upgraded to HTTPS.
	HTTPSUpgrades uint64 `json:"https_upgrades"`

	// Scripts is the number of blocked scripts.
	Scripts uint64 `json:"scripts"`

	// Fingerprinting is the number of reported fingerprinting attempts.
	Fingerprinting uint64 `json:"fingerprinting"`
}

// Counter is a statistics counter.
type Counter uint8

// Counter values.
const (
	CounterAdsTrackers Counter = iota + 1
	CounterHTTPSUpgrades
	CounterScripts
	CounterFingerprinting
)

// increment increments the counter c in s.
func (s *Stats) increment(c Counter) {
	switch c {
	case CounterAdsTrackers:
		s.AdsTrackers++
	case CounterHTTPSUpgrades:
		s.HTTPSUpgrades++
	case CounterScripts:
		s.Scripts++
	case CounterFingerprinting:
		s.Fingerprinting++
	default:
		// Go on.
	}
}

// UserAgentToken is the prefix of the User-Agent product token that carries the
// page identity, for example "WebShieldPage/42".
const UserAgentToken = "WebShieldPage/"

// IDFromUserAgent returns the page identity from the User-Agent header value or
// an empty string if there is none.
func IDFromUserAgent(ua string) (id string) {
	for _, tok := range strings.Fields(ua) {
		id, ok := strings.CutPrefix(tok, UserAgentToken)
		if ok {
			return id
		}
	}

	return ""
}
