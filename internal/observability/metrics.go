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

// Metrics stores Prometheus collectors used by API and worker flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	eventsPublishedTotal    *prometheus.CounterVec
	notificationsCreated    *prometheus.CounterVec
	notificationWriteErrors prometheus.Counter
	pushesPublishedTotal    *prometheus.CounterVec
	liveConnections         prometheus.Gauge
	webhookDeliveriesTotal  *prometheus.CounterVec
	webhookSendDuration     prometheus.Histogram
	retryScheduledTotal     prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "classup",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "classup",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		eventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "classup",
				Name:      "events_published_total",
				Help:      "Total number of domain events accepted by the dispatcher.",
			},
			[]string{"event_type", "scope"},
		),
		notificationsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "classup",
				Name:      "notifications_created_total",
				Help:      "Total number of notification records created during fan-out.",
			},
			[]string{"notification_type"},
		),
		notificationWriteErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "classup",
				Name:      "notification_write_errors_total",
				Help:      "Total number of per-recipient notification persistence failures.",
			},
		),
		pushesPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "classup",
				Name:      "realtime_pushes_total",
				Help:      "Total number of realtime frames pushed by frame type.",
			},
			[]string{"frame"},
		),
		liveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "classup",
				Name:      "realtime_connections",
				Help:      "Current number of live realtime connections on this instance.",
			},
		),
		webhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "classup",
				Name:      "webhook_deliveries_total",
				Help:      "Total number of webhook delivery attempts grouped by outcome.",
			},
			[]string{"outcome"},
		),
		webhookSendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "classup",
				Name:      "webhook_send_duration_seconds",
				Help:      "Outbound webhook call duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		retryScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "classup",
				Name:      "webhook_retry_scheduled_total",
				Help:      "Total number of webhook deliveries scheduled for retry.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.eventsPublishedTotal,
		m.notificationsCreated,
		m.notificationWriteErrors,
		m.pushesPublishedTotal,
		m.liveConnections,
		m.webhookDeliveriesTotal,
		m.webhookSendDuration,
		m.retryScheduledTotal,
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

func (m *Metrics) recordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) IncEventPublished(eventType, scope string) {
	if m == nil {
		return
	}
	m.eventsPublishedTotal.WithLabelValues(eventType, strings.ToLower(scope)).Inc()
}

func (m *Metrics) IncNotificationCreated(notificationType string) {
	if m == nil {
		return
	}
	m.notificationsCreated.WithLabelValues(notificationType).Inc()
}

func (m *Metrics) IncNotificationWriteError() {
	if m == nil {
		return
	}
	m.notificationWriteErrors.Inc()
}

func (m *Metrics) IncPushPublished(frame string) {
	if m == nil {
		return
	}
	m.pushesPublishedTotal.WithLabelValues(frame).Inc()
}

func (m *Metrics) IncConnections() {
	if m == nil {
		return
	}
	m.liveConnections.Inc()
}

func (m *Metrics) DecConnections() {
	if m == nil {
		return
	}
	m.liveConnections.Dec()
}

func (m *Metrics) IncWebhookDelivery(outcome string) {
	if m == nil {
		return
	}
	outcomeLabel := strings.TrimSpace(strings.ToLower(outcome))
	if outcomeLabel == "" {
		outcomeLabel = "unknown"
	}
	m.webhookDeliveriesTotal.WithLabelValues(outcomeLabel).Inc()
}

func (m *Metrics) ObserveWebhookSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.webhookSendDuration.Observe(seconds)
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retryScheduledTotal.Inc()
}

func routePath(c *fiber.Ctx) string {
	if route := c.Route(); route != nil && route.Path != "" {
		return route.Path
	}
	return c.Path()
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if e, ok := err.(*fiber.Error); ok {
			return e.Code
		}
		return fiber.StatusInternalServerError
	}
	return c.Response().StatusCode()
}
