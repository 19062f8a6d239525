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

	chatTurnsTotal      *prometheus.CounterVec
	chatFallbacksTotal  *prometheus.CounterVec
	chatDuration        *prometheus.HistogramVec
	llmTokensTotal      *prometheus.CounterVec
	llmRetriesTotal     *prometheus.CounterVec
	sessionsPrunedTotal prometheus.Counter
	profileReloadsTotal *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcb",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pcb",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pcb",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	chatTurnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcb",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total completed chat turns by channel and outcome.",
		},
		[]string{"service", "channel", "outcome"},
	)
	chatFallbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcb",
			Subsystem: "chat",
			Name:      "fallbacks_total",
			Help:      "Fallback replies served instead of a model answer, by reason.",
		},
		[]string{"service", "reason"},
	)
	chatDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pcb",
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Chat turn duration including the model call.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60},
		},
		[]string{"service", "provider"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcb",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Approximate token usage by direction.",
		},
		[]string{"service", "provider", "direction", "model"},
	)
	llmRetriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcb",
			Subsystem: "llm",
			Name:      "retries_total",
			Help:      "Retried provider calls by operation.",
		},
		[]string{"service", "operation"},
	)
	sessionsPrunedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "pcb",
			Subsystem:   "sessions",
			Name:        "pruned_total",
			Help:        "Idle chat sessions removed by the pruner.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	profileReloadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pcb",
			Subsystem: "profile",
			Name:      "reloads_total",
			Help:      "Profile reload attempts by status.",
		},
		[]string{"service", "status"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		chatTurnsTotal,
		chatFallbacksTotal,
		chatDuration,
		llmTokensTotal,
		llmRetriesTotal,
		sessionsPrunedTotal,
		profileReloadsTotal,
	)

	return &HTTPServerMetrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		chatTurnsTotal:      chatTurnsTotal,
		chatFallbacksTotal:  chatFallbacksTotal,
		chatDuration:        chatDuration,
		llmTokensTotal:      llmTokensTotal,
		llmRetriesTotal:     llmRetriesTotal,
		sessionsPrunedTotal: sessionsPrunedTotal,
		profileReloadsTotal: profileReloadsTotal,
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
	case strings.HasPrefix(path, "/api/v1/sessions/") && strings.HasSuffix(path, "/messages"):
		return "/api/v1/sessions/{id}/messages"
	case strings.HasPrefix(path, "/api/v1/sessions/") && strings.HasSuffix(path, "/export.xlsx"):
		return "/api/v1/sessions/{id}/export.xlsx"
	case strings.HasPrefix(path, "/api/v1/sessions/"):
		return "/api/v1/sessions/{id}"
	case strings.HasPrefix(path, "/mcp"):
		return "/mcp"
	default:
		return path
	}
}

// RecordChatTurn counts a completed turn. channel is the surface that served it (ui, api, mcp, cli).
func (m *HTTPServerMetrics) RecordChatTurn(service, channel, provider string, fallbackReason string, duration time.Duration) {
	outcome := "answered"
	if fallbackReason != "" {
		outcome = "fallback"
		m.chatFallbacksTotal.WithLabelValues(service, fallbackReason).Inc()
	}
	m.chatTurnsTotal.WithLabelValues(service, channel, outcome).Inc()
	m.chatDuration.WithLabelValues(service, provider).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordTokenUsage(service, provider, model string, promptTokens, completionTokens int) {
	if model == "" {
		model = "unknown"
	}
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues(service, provider, "in", model).Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues(service, provider, "out", model).Add(float64(completionTokens))
	}
}

func (m *HTTPServerMetrics) RecordRetry(service, operation string) {
	m.llmRetriesTotal.WithLabelValues(service, operation).Inc()
}

func (m *HTTPServerMetrics) RecordSessionsPruned(n int) {
	if n <= 0 {
		return
	}
	m.sessionsPrunedTotal.Add(float64(n))
}

func (m *HTTPServerMetrics) RecordProfileReload(service string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.profileReloadsTotal.WithLabelValues(service, status).Inc()
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
