// Package metrics exposes Prometheus counters and gauges for the pub/sub
// engine. Metrics are registered on the default registry; serve them with
// promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TriggerIterations counts sync trigger iterations, including idle ones.
	TriggerIterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_trigger_iterations_total",
		Help: "Total number of sync trigger iterations.",
	})

	// TriggerErrors counts iterations that failed with an error or panic.
	TriggerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_trigger_errors_total",
		Help: "Total number of sync trigger iterations that failed.",
	})

	// TriggerTopicsSynced counts topics handed over to delivery.
	TriggerTopicsSynced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_trigger_topics_synced_total",
		Help: "Total number of topics handed over to delivery.",
	})

	// TriggerNonGDForwarded counts non-GD messages pulled from the backlog
	// and forwarded to delivery.
	TriggerNonGDForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_trigger_non_gd_forwarded_total",
		Help: "Total number of in-RAM messages forwarded to delivery.",
	})

	// MessagesPublished counts accepted publications, by persistence kind.
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topichub_messages_published_total",
		Help: "Total number of messages accepted for publication.",
	}, []string{"kind"})

	// PublishRejected counts publications rejected by permission checks.
	PublishRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_publish_rejected_total",
		Help: "Total number of publications rejected by permission checks.",
	})

	// BacklogMessages tracks how many distinct messages the in-RAM backlog
	// currently holds.
	BacklogMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topichub_backlog_messages",
		Help: "Current number of distinct messages in the in-RAM backlog.",
	})
)
