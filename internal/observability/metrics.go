package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and the outbox flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	deliveryAttemptsTotal   *prometheus.CounterVec
	deliveryAttemptDuration *prometheus.HistogramVec
	pendingSubmissions      prometheus.Gauge
	sweepsTotal             *prometheus.CounterVec
	storageErrorsTotal      *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "incident_outbox",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "incident_outbox",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "incident_outbox",
				Name:      "delivery_attempts_total",
				Help:      "Total number of collector delivery attempts by form type and outcome.",
			},
			[]string{"form_type", "outcome"},
		),
		deliveryAttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "incident_outbox",
				Name:      "delivery_attempt_duration_seconds",
				Help:      "Collector delivery attempt duration in seconds grouped by form type.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"form_type"},
		),
		pendingSubmissions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "incident_outbox",
				Name:      "pending_submissions",
				Help:      "Number of submissions waiting in the local outbox.",
			},
		),
		sweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "incident_outbox",
				Name:      "sweeps_total",
				Help:      "Total number of resync sweeps by result.",
			},
			[]string{"result"},
		),
		storageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "incident_outbox",
				Name:      "storage_errors_total",
				Help:      "Total number of durable store failures by operation.",
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveryAttemptsTotal,
		m.deliveryAttemptDuration,
		m.pendingSubmissions,
		m.sweepsTotal,
		m.storageErrorsTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) ObserveDeliveryAttempt(formType string, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	formTypeLabel := normalizeLabel(formType)
	m.deliveryAttemptsTotal.WithLabelValues(formTypeLabel, normalizeLabel(outcome)).Inc()

	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.deliveryAttemptDuration.WithLabelValues(formTypeLabel).Observe(seconds)
}

func (m *Metrics) SetPendingSubmissions(count int64) {
	if m == nil {
		return
	}
	m.pendingSubmissions.Set(float64(count))
}

func (m *Metrics) IncSweep(result string) {
	if m == nil {
		return
	}
	m.sweepsTotal.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Metrics) IncStorageError(operation string) {
	if m == nil {
		return
	}
	m.storageErrorsTotal.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
