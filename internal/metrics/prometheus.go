package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service.
// Record helpers tolerate a nil receiver so tests can run components
// without registering collectors.
type Metrics struct {
	// Request pipeline metrics
	TranscriptionRequests prometheus.Counter
	TranscriptionFailures prometheus.Counter
	ConditioningDuration  prometheus.Histogram
	TranscriptionDuration prometheus.Histogram
	AudioDuration         prometheus.Histogram

	// Cache metrics
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	CacheStores  prometheus.Counter
	CacheErrors  prometheus.Counter
	CacheCleared prometheus.Counter

	// Conditioning metrics
	StageFallbacks *prometheus.CounterVec

	// Hallucination filter metrics
	HallucinationsFiltered *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Request pipeline metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_transcription_requests_total",
			Help: "Total number of transcription requests processed",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_transcription_failures_total",
			Help: "Total number of requests that failed in the recognition backend",
		}),
		ConditioningDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_conditioning_duration_seconds",
			Help:    "Time spent conditioning uploaded audio",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_transcription_duration_seconds",
			Help:    "Time spent in the recognition backend",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		AudioDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "whisper_audio_duration_seconds",
			Help:    "Duration of uploaded audio after conditioning",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1.7 minutes
		}),

		// Cache metrics
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_cache_hits_total",
			Help: "Total number of result cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_cache_misses_total",
			Help: "Total number of result cache misses",
		}),
		CacheStores: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_cache_stores_total",
			Help: "Total number of results stored in the cache",
		}),
		CacheErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_cache_errors_total",
			Help: "Total number of cache operations that failed",
		}),
		CacheCleared: promauto.NewCounter(prometheus.CounterOpts{
			Name: "whisper_cache_cleared_total",
			Help: "Total number of cache entries removed by clear requests",
		}),

		// Conditioning metrics
		StageFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_conditioning_stage_fallbacks_total",
			Help: "Total number of conditioning stages that fell back to their input",
		}, []string{"stage"}),

		// Hallucination filter metrics
		HallucinationsFiltered: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_hallucinations_filtered_total",
			Help: "Total number of transcripts suppressed as hallucinations",
		}, []string{"rule"}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whisper_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "whisper_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordTranscriptionRequest increments the transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	if m == nil {
		return
	}
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionFailure increments the backend failures counter
func (m *Metrics) RecordTranscriptionFailure() {
	if m == nil {
		return
	}
	m.TranscriptionFailures.Inc()
}

// RecordConditioningDuration records time spent conditioning one upload
func (m *Metrics) RecordConditioningDuration(seconds float64) {
	if m == nil {
		return
	}
	m.ConditioningDuration.Observe(seconds)
}

// RecordTranscriptionDuration records time spent in the recognition backend
func (m *Metrics) RecordTranscriptionDuration(seconds float64) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(seconds)
}

// RecordAudioDuration records the duration of conditioned audio
func (m *Metrics) RecordAudioDuration(seconds float64) {
	if m == nil {
		return
	}
	m.AudioDuration.Observe(seconds)
}

// RecordCacheHit increments the cache hits counter
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// RecordCacheMiss increments the cache misses counter
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// RecordCacheStore records a cache store attempt
func (m *Metrics) RecordCacheStore(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.CacheStores.Inc()
	} else {
		m.CacheErrors.Inc()
	}
}

// RecordCacheError increments the cache errors counter
func (m *Metrics) RecordCacheError() {
	if m == nil {
		return
	}
	m.CacheErrors.Inc()
}

// RecordCacheCleared adds the number of entries removed by a clear request
func (m *Metrics) RecordCacheCleared(count int) {
	if m == nil {
		return
	}
	m.CacheCleared.Add(float64(count))
}

// RecordStageFallback records a conditioning stage falling back to its input
func (m *Metrics) RecordStageFallback(stage string) {
	if m == nil {
		return
	}
	m.StageFallbacks.WithLabelValues(stage).Inc()
}

// RecordHallucinationFiltered increments the suppressed transcripts counter
// for the rule that fired
func (m *Metrics) RecordHallucinationFiltered(rule string) {
	if m == nil {
		return
	}
	m.HallucinationsFiltered.WithLabelValues(rule).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
