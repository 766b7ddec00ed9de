// Package metrics defines the Prometheus collectors of the wellness engine.
//
// Collectors are registered on the default registry at package init through
// promauto and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wellness"

var (
	// ComplianceLogsTotal counts accepted completion entries.
	// Labels: frequency
	ComplianceLogsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "logs_total",
		Help:      "Accepted compliance log entries by task frequency.",
	}, []string{"frequency"})

	// DuplicateCompletionsTotal counts completions rejected as Conflict.
	DuplicateCompletionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "duplicate_completions_total",
		Help:      "Completion attempts rejected because the task was already logged for the day.",
	})

	// ZoneCompletionsTotal counts zones completed, by zone and trigger.
	// Labels: zone, trigger (auto, doctor)
	ZoneCompletionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "zones",
		Name:      "completions_total",
		Help:      "Zones completed by zone number and trigger.",
	}, []string{"zone", "trigger"})

	// ZoneRefreshSeconds measures lazy zone refresh latency.
	ZoneRefreshSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "zones",
		Name:      "refresh_seconds",
		Help:      "Latency of recomputing a patient's zone progress.",
		Buckets:   prometheus.DefBuckets,
	})

	// RecommendationsComputedTotal counts computed recommendation bundles.
	RecommendationsComputedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recommend",
		Name:      "computed_total",
		Help:      "Recommendation bundles computed from body metrics.",
	})

	// NotificationFailuresTotal counts notification sends that failed.
	// Labels: event
	NotificationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notify",
		Name:      "failures_total",
		Help:      "Failed notification sends by event.",
	}, []string{"event"})
)
