package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RoundsTotal counts finished rounds by outcome.
	// Labels: outcome (completed, setup_failed, commit_failed, rejected, canceled)
	RoundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitebuilder",
			Subsystem: "orchestrator",
			Name:      "rounds_total",
			Help:      "Total number of finished rounds by outcome",
		},
		[]string{"outcome"},
	)

	// RoundDuration tracks end-to-end round duration.
	RoundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sitebuilder",
			Subsystem: "orchestrator",
			Name:      "round_duration_seconds",
			Help:      "End-to-end duration of one round in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// CommitsTotal counts commit attempts by result.
	// Labels: result (success, error)
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitebuilder",
			Subsystem: "orchestrator",
			Name:      "commits_total",
			Help:      "Total number of commit attempts",
		},
		[]string{"result"},
	)

	// DeliveriesTotal counts completion payload deliveries by result.
	// Labels: result (accepted, exhausted)
	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sitebuilder",
			Subsystem: "orchestrator",
			Name:      "deliveries_total",
			Help:      "Total number of completion payload deliveries",
		},
		[]string{"result"},
	)
)
