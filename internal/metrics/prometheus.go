package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/circuitbreaker"
)

var (
	ChatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_chat_duration_seconds",
			Help:    "Chat exchange duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"outcome"},
	)

	ChatTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_chat_total",
			Help: "Total chat exchanges by outcome",
		},
		[]string{"outcome"},
	)

	StageFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_chat_stage_fallbacks_total",
			Help: "Chat stages that degraded to their fallback value",
		},
		[]string{"stage"},
	)

	RetrievedDocuments = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "helpdesk_retrieved_documents",
			Help:    "Documents retrieved per chat exchange",
			Buckets: []float64{0, 1, 2, 3, 5, 10},
		},
	)

	TicketsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_tickets_processed_total",
			Help: "Tickets processed by status",
		},
		[]string{"status"},
	)

	ClassificationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "helpdesk_classification_duration_seconds",
			Help:    "Classification latency by kind",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	ClassificationErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_classification_errors_total",
			Help: "Classification failures by kind",
		},
		[]string{"kind"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "helpdesk_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "helpdesk_document_chunks_ingested_total",
			Help: "Document chunks written to the documents collection",
		},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "helpdesk_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			ChatDuration,
			ChatTotal,
			StageFallbacks,
			RetrievedDocuments,
			TicketsProcessed,
			ClassificationDuration,
			ClassificationErrors,
			LLMTokensUsed,
			CacheHits,
			CacheMisses,
			DocumentsIngested,
			BreakerState,
		)
	})
}

// RecordBreakerState is a circuitbreaker.Config.OnStateChange hook.
func RecordBreakerState(name string, _ circuitbreaker.State, to circuitbreaker.State) {
	BreakerState.WithLabelValues(name).Set(float64(to))
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
