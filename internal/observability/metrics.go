// Package observability provides Prometheus metrics for the ingestion pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every pipeline metric.
type Metrics struct {
	// Ingestion
	AssetsProcessed    *prometheus.CounterVec
	SnapshotsPersisted prometheus.Counter
	AssetDuration      prometheus.Histogram
	UpstreamFailures   *prometheus.CounterVec

	// Alerts
	AlertsTriggered prometheus.Counter
	AlertsSkipped   *prometheus.CounterVec
	Notifications   *prometheus.CounterVec

	// Queue
	BatchesEnqueued prometheus.Counter
	BatchesHandled  *prometheus.CounterVec
	BatchRetries    prometheus.Counter
	BatchesDropped  prometheus.Counter

	// Health
	LastSuccessfulBatch prometheus.Gauge
}

// NewMetrics registers all metrics on reg. A nil reg uses the default registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "rug_sentinel"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AssetsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "assets_processed_total",
			Help:      "Assets handled by batch workers, by outcome",
		}, []string{"outcome"}),
		SnapshotsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "snapshots_persisted_total",
			Help:      "Snapshot bundles committed to the store",
		}),
		AssetDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "asset_duration_seconds",
			Help:      "Wall time of one asset's gate, fetch, persist and evaluate cycle",
			Buckets:   prometheus.DefBuckets,
		}),
		UpstreamFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "upstream_failures_total",
			Help:      "Failed upstream fetches, by resource",
		}, []string{"resource"}),

		AlertsTriggered: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "triggered_total",
			Help:      "Alert rules transitioned to triggered",
		}),
		AlertsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "skipped_total",
			Help:      "Alert rules skipped during evaluation, by reason",
		}, []string{"reason"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "notifications_total",
			Help:      "Notification attempts, by channel and result",
		}, []string{"channel", "result"}),

		BatchesEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "batches_enqueued_total",
			Help:      "Batches published to the queue",
		}),
		BatchesHandled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "batches_handled_total",
			Help:      "Batches consumed, by result",
		}, []string{"result"}),
		BatchRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "batch_retries_total",
			Help:      "Batches republished for another attempt",
		}),
		BatchesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "batches_dropped_total",
			Help:      "Batches dropped after exhausting their attempts",
		}),

		LastSuccessfulBatch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix time of the last batch that completed without infrastructure failure",
		}),
	}
}

// Discard returns m, or a fresh set on a private registry when m is nil.
func Discard(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	return NewMetrics("", prometheus.NewRegistry())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
