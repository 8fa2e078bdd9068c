package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// IssuesSubmittedTotal counts accepted issue submissions.
	IssuesSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "citypulse",
		Subsystem: "issues",
		Name:      "submitted_total",
		Help:      "Total number of issues accepted for persistence.",
	})

	// ClassificationsTotal counts classification passes by outcome.
	ClassificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citypulse",
		Subsystem: "classifier",
		Name:      "classifications_total",
		Help:      "Total number of AI classification passes, labeled by result.",
	}, []string{"result"})

	// ClassificationDurationSeconds is end-to-end time per classification pass.
	ClassificationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "citypulse",
		Subsystem: "classifier",
		Name:      "classification_duration_seconds",
		Help:      "End-to-end time to classify one issue (gateway call + reconcile + write).",
		// Keep buckets fairly coarse to avoid high-cardinality time series.
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60},
	})

	// ClassifyTasksPublishedTotal counts deferred classification tasks handed
	// to the queue.
	ClassifyTasksPublishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "citypulse",
		Subsystem: "classifier",
		Name:      "tasks_published_total",
		Help:      "Total number of classification tasks published to RabbitMQ.",
	})

	// RabbitMQConnected is 1 when the classify subscriber considers itself connected.
	RabbitMQConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "citypulse",
		Subsystem: "classifier",
		Name:      "rabbitmq_connected",
		Help:      "Whether the classification RabbitMQ subscriber is currently connected (best-effort).",
	})

	// RabbitMQLastConnectSeconds is a unix timestamp (seconds) of last successful connect.
	RabbitMQLastConnectSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "citypulse",
		Subsystem: "classifier",
		Name:      "rabbitmq_last_connect_timestamp_seconds",
		Help:      "Unix timestamp (seconds) of the last successful RabbitMQ connect (best-effort).",
	})

	// ReportsGeneratedTotal counts authority report generations by outcome.
	ReportsGeneratedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "citypulse",
		Subsystem: "reports",
		Name:      "generated_total",
		Help:      "Total number of authority report generations, labeled by result.",
	}, []string{"result"})
)

// Register registers citypulse metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			IssuesSubmittedTotal,
			ClassificationsTotal,
			ClassificationDurationSeconds,
			ClassifyTasksPublishedTotal,
			RabbitMQConnected,
			RabbitMQLastConnectSeconds,
			ReportsGeneratedTotal,
		)
	})
}

func NowUnixSeconds() float64 {
	return float64(time.Now().Unix())
}
