// Package metrics exposes the service's Prometheus instrumentation on a
// dedicated registry so only our own series appear under /metrics.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type ServerMetrics struct {
	registry *prometheus.Registry
	service  string

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	retrievalResults   *prometheus.HistogramVec
	searchDuration     prometheus.Histogram
	answerConfidence   prometheus.Histogram
	responseTypesTotal *prometheus.CounterVec
	indexedVectors     prometheus.Gauge

	ingestTotal    *prometheus.CounterVec
	ingestDuration *prometheus.HistogramVec
}

func NewServerMetrics(service string) *ServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pqa",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pqa",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pqa",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	retrievalResults := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pqa",
			Subsystem: "retrieval",
			Name:      "results_per_method",
			Help:      "Distribution of candidates produced per retrieval method.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
		[]string{"service", "method"},
	)
	searchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pqa",
			Subsystem: "retrieval",
			Name:      "search_duration_seconds",
			Help:      "Hybrid search duration in seconds.",
			Buckets:   prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	answerConfidence := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pqa",
			Subsystem: "qa",
			Name:      "answer_confidence",
			Help:      "Distribution of confidence scores on answered questions.",
			Buckets:   []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	responseTypesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pqa",
			Subsystem: "qa",
			Name:      "response_types_total",
			Help:      "Total answered questions by response classification.",
		},
		[]string{"service", "response_type"},
	)
	indexedVectors := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pqa",
			Subsystem: "index",
			Name:      "vectors",
			Help:      "Number of vectors currently held by the dense index.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	ingestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pqa",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total processed documents by status.",
		},
		[]string{"service", "status"},
	)
	ingestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pqa",
			Subsystem: "ingest",
			Name:      "document_duration_seconds",
			Help:      "Document processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		retrievalResults,
		searchDuration,
		answerConfidence,
		responseTypesTotal,
		indexedVectors,
		ingestTotal,
		ingestDuration,
	)

	return &ServerMetrics{
		registry:           registry,
		service:            service,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		retrievalResults:   retrievalResults,
		searchDuration:     searchDuration,
		answerConfidence:   answerConfidence,
		responseTypesTotal: responseTypesTotal,
		indexedVectors:     indexedVectors,
		ingestTotal:        ingestTotal,
		ingestDuration:     ingestDuration,
	}
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *ServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/documents/"):
		return "/v1/documents/{document_id}"
	default:
		return path
	}
}

// ObserveRetrieval and ObserveSearchDuration satisfy the retrieval engine's
// Recorder interface.
func (m *ServerMetrics) ObserveRetrieval(method string, results int) {
	if method == "" {
		method = "unknown"
	}
	m.retrievalResults.WithLabelValues(m.service, method).Observe(float64(results))
}

func (m *ServerMetrics) ObserveSearchDuration(seconds float64) {
	m.searchDuration.Observe(seconds)
}

func (m *ServerMetrics) RecordAnswer(service, responseType string, confidence float64) {
	if responseType == "" {
		responseType = "unknown"
	}
	m.responseTypesTotal.WithLabelValues(service, responseType).Inc()
	m.answerConfidence.Observe(confidence)
}

func (m *ServerMetrics) SetIndexedVectors(count int) {
	m.indexedVectors.Set(float64(count))
}

func (m *ServerMetrics) FinishDocument(service string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ingestTotal.WithLabelValues(service, status).Inc()
	m.ingestDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
