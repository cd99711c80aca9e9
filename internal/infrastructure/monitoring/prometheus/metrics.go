// Package prometheus defines the engine's metric set.  Components record
// through the Metrics struct rather than creating collectors ad hoc, so that
// the full metric surface is visible in one place.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine exposes.
type Metrics struct {
	// Training pipeline
	TrainingCyclesTotal   *prometheus.CounterVec // labels: outcome ("success"|"failure"|"skipped")
	TrainingDuration      prometheus.Histogram
	TrainingUtterances    prometheus.Histogram
	TaggingFailuresTotal  prometheus.Counter

	// Prediction pipeline
	PredictionsTotal    *prometheus.CounterVec // labels: language
	PredictionDuration  prometheus.Histogram
	LanguageFallbacks   prometheus.Counter
	ExactMatchHitsTotal prometheus.Counter

	// Language provider
	ProviderRequestsTotal  *prometheus.CounterVec // labels: provider, operation
	ProviderFailoversTotal *prometheus.CounterVec // labels: provider
	ProviderCacheHits      prometheus.Counter
	ProviderCacheMisses    prometheus.Counter

	// Model store
	ModelSavesTotal prometheus.Counter
	ModelLoadsTotal *prometheus.CounterVec // labels: outcome ("hit"|"miss"|"error")
}

// NewMetrics constructs the full metric set and registers it on reg.
// Registration conflicts panic, matching promauto semantics: a duplicate
// registration is always a programming error.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "nlu"
	}
	m := &Metrics{
		TrainingCyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_cycles_total",
			Help:      "Training cycles by outcome.",
		}, []string{"outcome"}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Wall-clock duration of full training cycles.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		TrainingUtterances: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_utterances",
			Help:      "Number of training utterances per cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		TaggingFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tagging_failures_total",
			Help:      "Per-utterance entity tagging failures contained during training.",
		}),
		PredictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction calls by elected language.",
		}, []string{"language"}),
		PredictionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_duration_seconds",
			Help:      "End-to-end prediction latency.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		LanguageFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "language_fallbacks_total",
			Help:      "Predictions that fell back to the bot default language.",
		}),
		ExactMatchHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exact_match_hits_total",
			Help:      "Predictions short-circuited by an exact training-utterance match.",
		}),
		ProviderRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Language-provider requests by provider and operation.",
		}, []string{"provider", "operation"}),
		ProviderFailoversTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failovers_total",
			Help:      "Requests that failed over past a provider.",
		}, []string{"provider"}),
		ProviderCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_cache_hits_total",
			Help:      "Tokenize/vectorize results served from cache.",
		}),
		ProviderCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_cache_misses_total",
			Help:      "Tokenize/vectorize results that required a provider call.",
		}),
		ModelSavesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_saves_total",
			Help:      "Models persisted to the model store.",
		}),
		ModelLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_loads_total",
			Help:      "Model store load attempts by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.TrainingCyclesTotal,
		m.TrainingDuration,
		m.TrainingUtterances,
		m.TaggingFailuresTotal,
		m.PredictionsTotal,
		m.PredictionDuration,
		m.LanguageFallbacks,
		m.ExactMatchHitsTotal,
		m.ProviderRequestsTotal,
		m.ProviderFailoversTotal,
		m.ProviderCacheHits,
		m.ProviderCacheMisses,
		m.ModelSavesTotal,
		m.ModelLoadsTotal,
	)
	return m
}

// NewNopMetrics constructs a metric set on a private registry.  Components
// can record into it freely; nothing is exposed.  Intended for tests and for
// deployments with metrics disabled.
func NewNopMetrics() *Metrics {
	return NewMetrics("nlu_test", prometheus.NewRegistry())
}

// ObserveTraining records a completed training cycle.
func (m *Metrics) ObserveTraining(outcome string, utterances int, elapsed time.Duration) {
	m.TrainingCyclesTotal.WithLabelValues(outcome).Inc()
	m.TrainingDuration.Observe(elapsed.Seconds())
	m.TrainingUtterances.Observe(float64(utterances))
}

// ObservePrediction records a completed prediction call.
func (m *Metrics) ObservePrediction(language string, elapsed time.Duration) {
	m.PredictionsTotal.WithLabelValues(language).Inc()
	m.PredictionDuration.Observe(elapsed.Seconds())
}
