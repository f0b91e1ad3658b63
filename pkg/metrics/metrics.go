// Package metrics exposes prometheus instrumentation for the linking
// subsystem.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Extraction outcome label values.
const (
	OutcomeHit  = "hit"
	OutcomeMiss = "miss"
)

var (
	// ExtractionTotal counts identifier extraction attempts by outcome.
	// Misses are expected (~15% of historical records), so they are counted
	// rather than logged as errors.
	ExtractionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeline",
		Subsystem: "linking",
		Name:      "extraction_total",
		Help:      "Identifier extraction attempts by outcome.",
	}, []string{"outcome"})

	// LinkMutationsTotal counts link store mutations by operation.
	LinkMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeline",
		Subsystem: "linking",
		Name:      "link_mutations_total",
		Help:      "Link store mutations by operation.",
	}, []string{"operation"})

	// SuggestionsTotal counts suggestion lifecycle events by kind and event.
	SuggestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeline",
		Subsystem: "linking",
		Name:      "suggestions_total",
		Help:      "Suggestion lifecycle events by kind and event.",
	}, []string{"kind", "event"})

	// FeedbackEntriesTotal counts feedback log appends by feature type.
	FeedbackEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pipeline",
		Subsystem: "linking",
		Name:      "feedback_entries_total",
		Help:      "Feedback log appends by feature type.",
	}, []string{"feature_type"})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
