package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// Every Record method is safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsActive  prometheus.Gauge

	// Ingestion metrics
	DocumentsTotal *prometheus.CounterVec
	ChunksCreated  prometheus.Counter

	// Index metrics
	ChunksIndexed      prometheus.Counter
	UpsertBatchesTotal *prometheus.CounterVec
	SearchesTotal      *prometheus.CounterVec
	SearchDuration     prometheus.Histogram
	EmbeddingCache     *prometheus.CounterVec

	// LLM metrics
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensEstimated *prometheus.CounterVec
	LLMCacheHits       prometheus.Counter
	LLMCacheMisses     prometheus.Counter
	CircuitState       *prometheus.GaugeVec

	// Generation outcomes
	GenerationsTotal *prometheus.CounterVec

	registry prometheus.Gatherer
}

// NewMetrics creates a metrics instance registered on reg.
// A nil reg uses a fresh private registry, which keeps tests isolated.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "qaagent"
	}

	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	m := &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_active",
				Help:      "Number of active HTTP requests",
			},
		),

		DocumentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_processed_total",
				Help:      "Documents processed by the ingestion pipeline",
			},
			[]string{"file_type", "status"},
		),
		ChunksCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_created_total",
				Help:      "Chunks produced by the splitter",
			},
		),

		ChunksIndexed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_indexed_total",
				Help:      "Chunks written to the vector store",
			},
		),
		UpsertBatchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upsert_batches_total",
				Help:      "Vector store upsert batches by outcome",
			},
			[]string{"status"},
		),
		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Similarity searches by outcome",
			},
			[]string{"status", "filter_fallback"},
		),
		SearchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "search_duration_seconds",
				Help:      "Similarity search duration including query embedding",
				Buckets:   prometheus.DefBuckets,
			},
		),
		EmbeddingCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "embedding_cache_total",
				Help:      "Embedding cache lookups by layer",
			},
			[]string{"layer"},
		),

		LLMRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Language model requests by backend and outcome",
			},
			[]string{"backend", "model", "status"},
		),
		LLMRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Language model request duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"backend"},
		),
		LLMTokensEstimated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_estimated_total",
				Help:      "Estimated tokens sent to and received from the model",
			},
			[]string{"direction"},
		),
		LLMCacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_cache_hits_total",
				Help:      "Language model response cache hits",
			},
		),
		LLMCacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_cache_misses_total",
				Help:      "Language model response cache misses",
			},
		),
		CircuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),

		GenerationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Test case and script generations by outcome",
			},
			[]string{"kind", "outcome"},
		),

		registry: gatherer,
	}

	return m
}

// Handler returns the Prometheus HTTP handler for this instance's registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDocument records one processed document
func (m *Metrics) RecordDocument(fileType, status string, chunks int) {
	if m == nil {
		return
	}
	m.DocumentsTotal.WithLabelValues(fileType, status).Inc()
	m.ChunksCreated.Add(float64(chunks))
}

// RecordUpsertBatch records one vector store write batch
func (m *Metrics) RecordUpsertBatch(status string, points int) {
	if m == nil {
		return
	}
	m.UpsertBatchesTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.ChunksIndexed.Add(float64(points))
	}
}

// RecordSearch records a similarity search
func (m *Metrics) RecordSearch(status string, fallback bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.SearchesTotal.WithLabelValues(status, strconv.FormatBool(fallback)).Inc()
	m.SearchDuration.Observe(duration.Seconds())
}

// RecordEmbeddingCache records an embedding cache lookup (memory, redis or miss)
func (m *Metrics) RecordEmbeddingCache(layer string) {
	if m == nil {
		return
	}
	m.EmbeddingCache.WithLabelValues(layer).Inc()
}

// RecordLLMRequest records language model request metrics
func (m *Metrics) RecordLLMRequest(backend, model, status string, duration time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestsTotal.WithLabelValues(backend, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(backend).Observe(duration.Seconds())
	m.LLMTokensEstimated.WithLabelValues("input").Add(float64(inputTokens))
	m.LLMTokensEstimated.WithLabelValues("output").Add(float64(outputTokens))
}

// RecordLLMCache records a response cache lookup
func (m *Metrics) RecordLLMCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.LLMCacheHits.Inc()
		return
	}
	m.LLMCacheMisses.Inc()
}

// RecordCircuitState records a circuit breaker state transition
func (m *Metrics) RecordCircuitState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(name).Set(float64(state))
}

// RecordGeneration records a test case or script generation outcome
func (m *Metrics) RecordGeneration(kind, outcome string) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(kind, outcome).Inc()
}

// HTTPMiddleware returns middleware for recording HTTP metrics.
// Paths are labelled with the chi route pattern to bound cardinality.
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			next.ServeHTTP(w, r)
			return
		}

		m.HTTPRequestsActive.Inc()
		defer m.HTTPRequestsActive.Dec()

		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		m.RecordHTTPRequest(r.Method, path, wrapped.statusCode, time.Since(start))
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
