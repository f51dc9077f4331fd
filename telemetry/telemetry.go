// Package telemetry defines the Prometheus collectors mounted at
// /metrics by cmd/watchtowerd.
//
// Grounded on persistorai-persistor's internal/metrics package: plain
// package-level vars, `prometheus.MustRegister` in init(), one
// vector per label combination the caller cares about.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	FramesCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_frames_captured_total",
			Help: "Total frames produced by a camera's Frame Source.",
		},
		[]string{"camera_id"},
	)

	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_frames_dropped_total",
			Help: "Total frames dropped at the Frame Source's bounded outbound channel (drop-newest).",
		},
		[]string{"camera_id"},
	)

	DetectorLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchtower_detector_latency_seconds",
			Help:    "Detector.Detect wall time per invocation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"camera_id"},
	)

	EmbedderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watchtower_embedder_latency_seconds",
			Help:    "Embedder.Embed wall time per invocation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"camera_id"},
	)

	MatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_matches_total",
			Help: "Face detections resolved against an existing identity, by camera.",
		},
		[]string{"camera_id"},
	)

	NewIdentitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_new_identities_total",
			Help: "Face detections that created a new identity, by camera.",
		},
		[]string{"camera_id"},
	)

	ActiveRecordings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchtower_active_recordings",
			Help: "Number of cameras currently in the Recording state.",
		},
	)

	StorageBytesReclaimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watchtower_storage_bytes_reclaimed_total",
			Help: "Bytes freed by the Storage Janitor's eviction pass.",
		},
		[]string{"camera_id"},
	)

	StorageUsedPercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "watchtower_storage_used_percent",
			Help: "Most recently measured recordings storage usage as a percentage of max_storage_bytes.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FramesCaptured, FramesDropped,
		DetectorLatency, EmbedderLatency,
		MatchesTotal, NewIdentitiesTotal,
		ActiveRecordings, StorageBytesReclaimed, StorageUsedPercent,
	)
}
