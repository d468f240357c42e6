package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilterRulesTotal is a gauge with the number of rules loaded by each
	// filter list classifier.
	FilterRulesTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "rules_total",
		Subsystem: subsystemFilter,
		Namespace: namespace,
		Help:      "The number of rules loaded by filters.",
	}, []string{"filter"})

	// filterCacheLookups is a counter with the total number of lookups to the
	// decision caches.  "hit" is "1" if the decision was found in the cache,
	// otherwise it is "0".
	filterCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "cache_lookups",
		Subsystem: subsystemFilter,
		Namespace: namespace,
		Help:      "Total number of decision cache lookups.",
	}, []string{"filter", "hit"})

	// filterBlocked is a counter with the total number of requests blocked by
	// each filter.
	filterBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "blocked_total",
		Subsystem: subsystemFilter,
		Namespace: namespace,
		Help:      "Total number of requests blocked by filters.",
	}, []string{"filter"})
)

// FilterCacheLookups returns the hit and miss counters for the filter with the
// given id.
func FilterCacheLookups(id string) (hits, misses prometheus.Counter) {
	hits = filterCacheLookups.With(prometheus.Labels{"filter": id, "hit": "1"})
	misses = filterCacheLookups.With(prometheus.Labels{"filter": id, "hit": "0"})

	return hits, misses
}

// FilterBlocked returns the blocked-requests counter for the filter with the
// given id.
func FilterBlocked(id string) (c prometheus.Counter) {
	return filterBlocked.With(prometheus.Labels{"filter": id})
}
