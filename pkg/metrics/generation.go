package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeNoImage = "no_image"
)

var (
	// BackendCalls counts calls to the generation backends by backend and outcome
	BackendCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricNamePrefix,
		Name:      "generation_backend_calls_total",
		Help:      "Number of calls to the image generation backends.",
	}, []string{"backend", "outcome"})

	// Fallbacks counts text-to-image failures answered by the edit-capable backend
	Fallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricNamePrefix,
		Name:      "generation_fallbacks_total",
		Help:      "Number of text-to-image requests that fell back to the edit-capable backend.",
	})

	// SaveFailures counts conversation saves that failed after a successful generation
	SaveFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: metricNamePrefix,
		Name:      "conversation_save_failures_total",
		Help:      "Number of conversation saves that failed.",
	})
)

// AddGenerationMetrics registers the generation and persistence counters
func AddGenerationMetrics() {
	register(BackendCalls, Fallbacks, SaveFailures)
}
