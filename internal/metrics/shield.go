package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ShieldOverridesTotal is a gauge with the number of domains that have
	// non-default shield configurations.
	ShieldOverridesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "overrides_total",
		Subsystem: subsystemShield,
		Namespace: namespace,
		Help:      "The number of domains with non-default shield configurations.",
	})

	// ShieldPersistStatus is a gauge with the status of the last persistence
	// operation.  "0" means error, "1" means success.
	ShieldPersistStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name:      "persist_status",
		Subsystem: subsystemShield,
		Namespace: namespace,
		Help:      "Status of the last shield persistence operation. 1 means success.",
	})
)
