package metrics

import "github.com/prometheus/client_golang/prometheus"

// Turn processing Prometheus metrics.
var (
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnisource",
			Name:      "turns_total",
			Help:      "Total number of processed conversation turns",
		},
		[]string{"route", "status"},
	)

	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omnisource",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn processing duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	ReasoningRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnisource",
			Name:      "reasoning_requests_total",
			Help:      "Total number of reasoning service calls",
		},
		[]string{"operation", "status"}, // operation: classify / generate_sql / synthesize
	)

	ReasoningRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omnisource",
			Name:      "reasoning_request_duration_seconds",
			Help:      "Reasoning service call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	EngineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnisource",
			Name:      "engine_requests_total",
			Help:      "Total number of retrieval engine invocations",
		},
		[]string{"engine", "status"},
	)

	EvidenceItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnisource",
			Name:      "evidence_items_total",
			Help:      "Total evidence items collected per source",
		},
		[]string{"source"},
	)

	UnverifiedCitationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "omnisource",
			Name:      "unverified_citations_total",
			Help:      "Citation tokens dropped because they matched no retrieved evidence",
		},
	)
)

var turnMetricsRegistered bool

// RegisterTurnMetrics registers turn processing metrics. Must be called once from main.
func RegisterTurnMetrics() {
	if turnMetricsRegistered {
		return
	}
	prometheus.MustRegister(TurnsTotal)
	prometheus.MustRegister(TurnDuration)
	prometheus.MustRegister(ReasoningRequestsTotal)
	prometheus.MustRegister(ReasoningRequestDuration)
	prometheus.MustRegister(EngineRequestsTotal)
	prometheus.MustRegister(EvidenceItemsTotal)
	prometheus.MustRegister(UnverifiedCitationsTotal)
	turnMetricsRegistered = true
}
