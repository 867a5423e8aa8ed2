// Package metrics exposes Prometheus instrumentation for the sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransportRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ts_transport_retries_total",
			Help: "Outbound HTTP attempts retried after a transient failure",
		},
	)

	FeedSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ts_feed_syncs_total",
			Help: "Feed sync runs by source and terminal status",
		},
		[]string{"source", "status"},
	)

	IndicatorsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ts_indicators_upserted_total",
			Help: "Indicator upserts by source and outcome (created/updated)",
		},
		[]string{"source", "outcome"},
	)

	IndicatorsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ts_indicators_skipped_total",
			Help: "Raw feed records dropped during normalization",
		},
		[]string{"source"},
	)

	CorrelationMatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ts_correlation_matches_total",
			Help: "Indicator-to-asset match upserts by outcome (created/updated)",
		},
		[]string{"outcome"},
	)

	AlertsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ts_alerts_generated_total",
			Help: "High-confidence match notifications fanned out",
		},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ts_sync_duration_seconds",
			Help:    "Wall time of a full organization sync",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
)
