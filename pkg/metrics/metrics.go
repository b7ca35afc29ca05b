package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_mutations_total",
			Help: "Mutations applied to the board by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	snapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_mirror_snapshots_total",
			Help: "Collection snapshots received per collection",
		},
		[]string{"collection"},
	)

	mirrorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_mirror_errors_total",
			Help: "Subscription failures per collection",
		},
		[]string{"collection"},
	)

	mirroredItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "launchpad_mirror_items",
			Help: "Documents currently mirrored per collection",
		},
		[]string{"collection"},
	)

	metadataFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launchpad_metadata_fetches_total",
			Help: "Paper metadata lookups by source kind and outcome",
		},
		[]string{"kind", "status"},
	)
)

// TrackMutation counts a mutation; err decides the status label.
func TrackMutation(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	mutations.WithLabelValues(operation, status).Inc()
}

func TrackSnapshot(collection string, items int) {
	snapshots.WithLabelValues(collection).Inc()
	mirroredItems.WithLabelValues(collection).Set(float64(items))
}

func TrackMirrorError(collection string) {
	mirrorErrors.WithLabelValues(collection).Inc()
}

// TrackMetadata counts a metadata lookup. status is one of hit, ok or failed.
func TrackMetadata(kind, status string) {
	metadataFetches.WithLabelValues(kind, status).Inc()
}
