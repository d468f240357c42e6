package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// interceptorDecisions is a counter with the decisions of the request
	// interceptor.
	interceptorDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "decisions_total",
		Subsystem: subsystemInterceptor,
		Namespace: namespace,
		Help:      "Total number of interception decisions by action.",
	}, []string{"action"})

	// InterceptorPages is a gauge with the number of registered pages.
	InterceptorPages = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "pages",
		Subsystem: subsystemInterceptor,
		Namespace: namespace,
		Help:      "The number of pages in the page registry.",
	})

	// InterceptorDroppedNavigations is a counter with the number of scheduled
	// navigations dropped because their page generation had ended.
	InterceptorDroppedNavigations = promauto.NewCounter(prometheus.CounterOpts{
		Name:      "dropped_navigations_total",
		Subsystem: subsystemInterceptor,
		Namespace: namespace,
		Help:      "Total number of dropped stale navigations.",
	})
)

// IncrementDecisions increments the decision counter for action.
func IncrementDecisions(action string) {
	interceptorDecisions.With(prometheus.Labels{"action": action}).Inc()
}
