package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ArtifactUpdatedTime is a gauge with the last time when the artifact was
	// installed.
	ArtifactUpdatedTime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "updated_time",
		Subsystem: subsystemArtifact,
		Namespace: namespace,
		Help:      "Time when the artifact was last installed.",
	}, []string{"artifact"})

	// ArtifactUpdateStatus is a gauge with status of the last artifact update.
	// "0" means error, "1" means success.
	ArtifactUpdateStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "update_status",
		Subsystem: subsystemArtifact,
		Namespace: namespace,
		Help:      "Status of the artifact update. 1 means success.",
	}, []string{"artifact"})

	// ArtifactSize is a gauge with the size of the installed artifact in
	// bytes.
	ArtifactSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name:      "size_bytes",
		Subsystem: subsystemArtifact,
		Namespace: namespace,
		Help:      "Size of the installed artifact.",
	}, []string{"artifact"})

	// ArtifactRetries is a counter with the number of scheduled download
	// retries.
	ArtifactRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "retries_total",
		Subsystem: subsystemArtifact,
		Namespace: namespace,
		Help:      "Total number of scheduled artifact download retries.",
	}, []string{"artifact"})

	// artifactRevalidations is a counter with the number of revalidation
	// checks.  "changed" is "1" if the server had a different version.
	artifactRevalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name:      "revalidations_total",
		Subsystem: subsystemArtifact,
		Namespace: namespace,
		Help:      "Total number of artifact revalidation checks.",
	}, []string{"artifact", "changed"})
)

// IncrementRevalidations increments the revalidation counter for the artifact
// with the given id.
func IncrementRevalidations(id string, changed bool) {
	artifactRevalidations.With(prometheus.Labels{
		"artifact": id,
		"changed":  BoolString(changed),
	}).Inc()
}
