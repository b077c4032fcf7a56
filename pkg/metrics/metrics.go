// Package metrics provides Prometheus metrics for the fern service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal tracks synchronization runs by source type and outcome
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of synchronization runs by outcome",
		},
		[]string{"source_type", "outcome"},
	)

	// SyncRunDuration tracks synchronization run duration in seconds
	SyncRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of synchronization runs in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"source_type"},
	)

	// RelationshipsTotal tracks relationship entries by action
	RelationshipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "relationships_total",
			Help:      "Total number of relationship entries by target type and action",
		},
		[]string{"source_type", "target_type", "action"},
	)

	// StoreWritesTotal tracks writes issued against the document store
	StoreWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "store",
			Name:      "writes_total",
			Help:      "Total number of document store writes by operation and status",
		},
		[]string{"operation", "status"},
	)

	// ReverseFailuresTotal tracks dropped reverse propagation writes
	ReverseFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "sync",
			Name:      "reverse_failures_total",
			Help:      "Total number of reverse relationship writes that failed",
		},
		[]string{"target_type"},
	)

	// MessagesConsumedTotal tracks change events read from Kafka
	MessagesConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_consumed_total",
			Help:      "Total number of change event messages consumed by status",
		},
		[]string{"topic", "status"},
	)

	// EventsPublishedTotal tracks relationship events published to Kafka
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "events_published_total",
			Help:      "Total number of relationship events published by status",
		},
		[]string{"topic", "status"},
	)
)

// RecordSyncRun records a completed synchronization run.
func RecordSyncRun(sourceType, outcome string, durationSeconds float64) {
	SyncRunsTotal.WithLabelValues(sourceType, outcome).Inc()
	SyncRunDuration.WithLabelValues(sourceType).Observe(durationSeconds)
}

// RecordRelationship records a relationship entry.
func RecordRelationship(sourceType, targetType, action string) {
	RelationshipsTotal.WithLabelValues(sourceType, targetType, action).Inc()
}

// RecordStoreWrite records a store write attempt.
func RecordStoreWrite(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreWritesTotal.WithLabelValues(operation, status).Inc()
}

// RecordReverseFailure records a dropped reverse relationship write.
func RecordReverseFailure(targetType string) {
	ReverseFailuresTotal.WithLabelValues(targetType).Inc()
}

// RecordMessage records a consumed change event.
func RecordMessage(topic, status string) {
	MessagesConsumedTotal.WithLabelValues(topic, status).Inc()
}

// RecordPublish records a published relationship event.
func RecordPublish(topic string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	EventsPublishedTotal.WithLabelValues(topic, status).Inc()
}
