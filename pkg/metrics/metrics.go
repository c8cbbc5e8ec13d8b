// Package metrics provides Prometheus metrics for the fusion service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Ramsey-B/fusion/pkg/models"
)

var (
	// PassesTotal tracks reconciliation passes by status
	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "pass",
			Name:      "runs_total",
			Help:      "Total number of reconciliation passes by status",
		},
		[]string{"fusion_source_id", "status"},
	)

	// PassDuration tracks pass duration in seconds
	PassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fusion",
			Subsystem: "pass",
			Name:      "duration_seconds",
			Help:      "Duration of reconciliation passes in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"fusion_source_id"},
	)

	// AccountsProcessed tracks how source accounts were settled
	AccountsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "pass",
			Name:      "accounts_total",
			Help:      "Total number of source accounts settled by outcome",
		},
		[]string{"fusion_source_id", "outcome"},
	)

	// ReviewsTotal tracks review requests by lifecycle event
	ReviewsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "review",
			Name:      "requests_total",
			Help:      "Total number of review requests by event",
		},
		[]string{"fusion_source_id", "event"},
	)

	// LockContention tracks passes skipped because another worker holds the lock
	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "scheduler",
			Name:      "lock_contention_total",
			Help:      "Total number of passes skipped because the fusion source was locked",
		},
		[]string{"fusion_source_id"},
	)

	// DLQMessagesTotal tracks messages parked in the dead letter queue
	DLQMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "dlq",
			Name:      "messages_total",
			Help:      "Total number of consumed messages parked in the dead letter queue",
		},
		[]string{"topic", "reason"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fusion",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fusion",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)
)

// RecordPass records the outcome of one reconciliation pass
func RecordPass(fusionSourceID, status string, durationSeconds float64, summary *models.PassSummary) {
	PassesTotal.WithLabelValues(fusionSourceID, status).Inc()
	PassDuration.WithLabelValues(fusionSourceID).Observe(durationSeconds)

	if summary == nil {
		return
	}
	AccountsProcessed.WithLabelValues(fusionSourceID, "baseline").Add(float64(summary.Baselines))
	AccountsProcessed.WithLabelValues(fusionSourceID, "auto").Add(float64(summary.AutoLinked))
	AccountsProcessed.WithLabelValues(fusionSourceID, "unmatched").Add(float64(summary.Unmatched))
	AccountsProcessed.WithLabelValues(fusionSourceID, "failed").Add(float64(summary.Failed))
	ReviewsTotal.WithLabelValues(fusionSourceID, "opened").Add(float64(summary.ReviewsOpened))
	ReviewsTotal.WithLabelValues(fusionSourceID, "resolved").Add(float64(summary.ReviewsResolved))
}

// RecordReviewDecision records a decision delivered through the API or Kafka
func RecordReviewDecision(fusionSourceID string) {
	ReviewsTotal.WithLabelValues(fusionSourceID, "decided").Inc()
}

// RecordLockContention records a pass skipped on a held lock
func RecordLockContention(fusionSourceID string) {
	LockContention.WithLabelValues(fusionSourceID).Inc()
}

// RecordDLQMessage records a message parked in the dead letter queue
func RecordDLQMessage(topic, reason string) {
	DLQMessagesTotal.WithLabelValues(topic, reason).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
