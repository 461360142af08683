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

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	documentsSavedTotal     *prometheus.CounterVec
	duplicatesDetectedTotal *prometheus.CounterVec
	pendingResolvedTotal    *prometheus.CounterVec
	batchPagesTotal         *prometheus.CounterVec
	webhookCommandsTotal    *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medarchive",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "medarchive",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "medarchive",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	documentsSavedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medarchive",
			Subsystem: "intake",
			Name:      "documents_saved_total",
			Help:      "Total documents saved by source path.",
		},
		[]string{"service", "source"},
	)
	duplicatesDetectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medarchive",
			Subsystem: "intake",
			Name:      "duplicates_detected_total",
			Help:      "Total submissions parked as pending duplicate decisions.",
		},
		[]string{"service"},
	)
	pendingResolvedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medarchive",
			Subsystem: "intake",
			Name:      "pending_resolved_total",
			Help:      "Total resolved duplicate decisions by action and outcome.",
		},
		[]string{"service", "action", "outcome"},
	)
	batchPagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medarchive",
			Subsystem: "batch",
			Name:      "pages_total",
			Help:      "Total pages collected into batch sessions.",
		},
		[]string{"service"},
	)
	webhookCommandsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "medarchive",
			Subsystem: "webhook",
			Name:      "commands_total",
			Help:      "Total webhook deliveries by kind.",
		},
		[]string{"service", "kind"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		documentsSavedTotal,
		duplicatesDetectedTotal,
		pendingResolvedTotal,
		batchPagesTotal,
		webhookCommandsTotal,
	)

	return &HTTPServerMetrics{
		registry:                registry,
		requestTotal:            requestTotal,
		requestDuration:         requestDuration,
		requestInFlight:         requestInFlight,
		documentsSavedTotal:     documentsSavedTotal,
		duplicatesDetectedTotal: duplicatesDetectedTotal,
		pendingResolvedTotal:    pendingResolvedTotal,
		batchPagesTotal:         batchPagesTotal,
		webhookCommandsTotal:    webhookCommandsTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
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
	case strings.HasPrefix(path, "/v1/measurements/"):
		return "/v1/measurements/{metric}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordDocumentSaved(service, source string) {
	if source == "" {
		source = "unknown"
	}
	m.documentsSavedTotal.WithLabelValues(service, source).Inc()
}

func (m *HTTPServerMetrics) RecordDuplicateDetected(service string) {
	m.duplicatesDetectedTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordPendingResolved(service, action, outcome string) {
	if action == "" {
		action = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.pendingResolvedTotal.WithLabelValues(service, action, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordBatchPage(service string) {
	m.batchPagesTotal.WithLabelValues(service).Inc()
}

func (m *HTTPServerMetrics) RecordWebhookCommand(service, kind string) {
	if kind == "" {
		kind = "unknown"
	}
	m.webhookCommandsTotal.WithLabelValues(service, kind).Inc()
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

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
