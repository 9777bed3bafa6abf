package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	IngestRuns         prometheus.Counter
	IngestedMessages   prometheus.Counter
	ProcessingCycles   prometheus.Counter
	SuggestionSuccess  prometheus.Counter
	SuggestionFailures prometheus.Counter
	SuggestionDefaults prometheus.Counter
	ProcessingTime     prometheus.Histogram
	ActionsExecuted    *prometheus.CounterVec
	QueueDepth         prometheus.Gauge
}

// NewMetrics registers the metrics with reg. A nil registerer keeps them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		IngestRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_assistant_ingest_runs_total",
			Help: "Total number of message fetch operations",
		}),
		IngestedMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_assistant_ingested_messages_total",
			Help: "Total number of new inbound messages stored",
		}),
		ProcessingCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_assistant_processing_cycles_total",
			Help: "Total number of suggestion processing cycles",
		}),
		SuggestionSuccess: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_assistant_suggestion_success_total",
			Help: "Messages that received a suggestion set",
		}),
		SuggestionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_assistant_suggestion_failures_total",
			Help: "Suggestion attempts that failed and will be retried",
		}),
		SuggestionDefaults: factory.NewCounter(prometheus.CounterOpts{
			Name: "smart_mail_assistant_suggestion_defaults_total",
			Help: "Suggestion sets replaced by the safe default after unparsable output",
		}),
		ProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smart_mail_assistant_processing_duration_seconds",
			Help:    "Time spent generating suggestions for one message",
			Buckets: prometheus.DefBuckets,
		}),
		ActionsExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smart_mail_assistant_actions_total",
			Help: "Action executions by type and audit status",
		}, []string{"action", "status"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "smart_mail_assistant_queue_depth",
			Help: "Eligible messages selected in the last processing cycle",
		}),
	}
}
