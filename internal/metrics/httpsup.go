package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPSUpRulesetsTotal is a gauge with the number of loaded HTTPS upgrade
	// rulesets.
	HTTPSUpRulesetsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "rulesets_total",
		Subsystem: subsystemHTTPSUp,
		Namespace: namespace,
		Help:      "The number of loaded HTTPS upgrade rulesets.",
	})

	// HTTPSUpTargetsTotal is a gauge with the number of domains in the HTTPS
	// upgrade domain index.
	HTTPSUpTargetsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "targets_total",
		Subsystem: subsystemHTTPSUp,
		Namespace: namespace,
		Help:      "The number of domains in the HTTPS upgrade domain index.",
	})

	// HTTPSUpMalformedRulesets is a counter with the number of rulesets that
	// could not be parsed or compiled.
	HTTPSUpMalformedRulesets = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "malformed_rulesets_total",
		Subsystem: subsystemHTTPSUp,
		Namespace: namespace,
		Help:      "Total number of skipped malformed rulesets.",
	})

	// httpsUpResults is a counter with the outcomes of rewrite attempts.
	httpsUpResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "results_total",
		Subsystem: subsystemHTTPSUp,
		Namespace: namespace,
		Help:      "Total number of HTTPS upgrade lookups by outcome.",
	}, []string{"result"})

	// HTTPSUpResultsNone is the counter of lookups without a ruleset.
	HTTPSUpResultsNone = httpsUpResults.With(prometheus.Labels{"result": "none"})

	// HTTPSUpResultsChecked is the counter of lookups with a ruleset but
	// without a change.
	HTTPSUpResultsChecked = httpsUpResults.With(prometheus.Labels{"result": "checked"})

	// HTTPSUpResultsRewritten is the counter of rewritten URLs.
	HTTPSUpResultsRewritten = httpsUpResults.With(prometheus.Labels{"result": "rewritten"})
)
