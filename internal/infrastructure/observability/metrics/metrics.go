package metrics

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreschagin/monitor-dw/internal/application/port"
	"github.com/dreschagin/monitor-dw/internal/domain/valueobject"
)

// Metrics bundles prometheus collectors of the monitor service.
// It implements port.DispatchObserver and port.CycleMetricsPublisher.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
	DispatchTotal      *prometheus.CounterVec
	AlertsSuspended    prometheus.Gauge
	CyclesTotal        prometheus.Counter
	CycleDurationSec   prometheus.Histogram
	CollectorErrors    prometheus.Counter
	AnomalyActive      *prometheus.GaugeVec
	RunningOver        prometheus.Gauge
	RefreshAgeMinutes  prometheus.Gauge
	OpenTickets        prometheus.Gauge
	LastCycleTimestamp prometheus.Gauge
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "monitor_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "monitor_dispatch_total",
			Help: "Dispatch decisions by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
		AlertsSuspended: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_alerts_suspended",
			Help: "1 while alert delivery is suspended after a revoked webhook.",
		}),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_cycles_total",
			Help: "Total number of completed monitor cycles.",
		}),
		CycleDurationSec: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "monitor_cycle_duration_seconds",
			Help:    "Monitor cycle duration in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		CollectorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "monitor_collector_errors_total",
			Help: "Total number of collector failures replaced by safe defaults.",
		}),
		AnomalyActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "monitor_anomaly_active",
			Help: "1 when the anomaly kind was raised by the last cycle.",
		}, []string{"kind"}),
		RunningOver: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_queries_running_over",
			Help: "Warehouse queries running longer than the threshold.",
		}),
		RefreshAgeMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_refresh_age_minutes",
			Help: "Minutes since the last BI refresh, -1 when unknown.",
		}),
		OpenTickets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_open_tickets",
			Help: "Open tickets in the watched project.",
		}),
		LastCycleTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitor_last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed cycle.",
		}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSec,
		m.DispatchTotal,
		m.AlertsSuspended,
		m.CyclesTotal,
		m.CycleDurationSec,
		m.CollectorErrors,
		m.AnomalyActive,
		m.RunningOver,
		m.RefreshAgeMinutes,
		m.OpenTickets,
		m.LastCycleTimestamp,
	)

	return m
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDispatch(trigger, outcome string) {
	m.DispatchTotal.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) SetAlertsSuspended(suspended bool) {
	if suspended {
		m.AlertsSuspended.Set(1)
		return
	}
	m.AlertsSuspended.Set(0)
}

// PublishCycle updates gauges from the last cycle.
func (m *Metrics) PublishCycle(_ context.Context, c port.CycleMetrics) error {
	m.CyclesTotal.Inc()
	m.CycleDurationSec.Observe(c.Duration.Seconds())
	m.CollectorErrors.Add(float64(c.CollectorErrors))
	m.RunningOver.Set(float64(c.RunningOver))
	m.OpenTickets.Set(float64(c.OpenTickets))
	m.LastCycleTimestamp.Set(float64(c.CollectedAt.Unix()))

	if c.RefreshAgeMinutes != nil {
		m.RefreshAgeMinutes.Set(float64(*c.RefreshAgeMinutes))
	} else {
		m.RefreshAgeMinutes.Set(-1)
	}

	for _, kind := range valueobject.AllAnomalyKinds() {
		active := 0.0
		if c.Flags.Has(kind) {
			active = 1
		}
		m.AnomalyActive.WithLabelValues(string(kind)).Set(active)
	}

	return nil
}

func (m *Metrics) Flush(context.Context) error { return nil }

func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

// normalizeRoute keeps label cardinality bounded.
func normalizeRoute(path string) string {
	switch {
	case path == "/ws" || path == "/metrics" || path == "/healthz" || path == "/readyz":
		return path
	case path == "/" || path == "/dashboard":
		return "/dashboard"
	case strings.HasPrefix(path, "/static/"):
		return "/static/*"
	case strings.HasPrefix(path, "/api/v1/alerts"):
		return "/api/v1/alerts/*"
	case strings.HasPrefix(path, "/api/v1/history"):
		return "/api/v1/history"
	case strings.HasPrefix(path, "/api/v1/kestra"):
		return "/api/v1/kestra/*"
	case strings.HasPrefix(path, "/api/v1/"):
		return "/api/v1/*"
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
