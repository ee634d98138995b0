// Package metrics holds the Prometheus collectors of the bridge photo service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration       *prometheus.HistogramVec
	Uploads               *prometheus.CounterVec
	Moderation            *prometheus.CounterVec
	QuotaRejections       prometheus.Counter
	CatalogBridges        prometheus.Gauge
	CatalogRefreshFailure prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status.",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 10},
		}, []string{"method", "route", "status"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_image_uploads_total",
			Help: "Image uploads by kind (pending, admin) and result.",
		}, []string{"kind", "result"}),
		Moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_image_moderation_total",
			Help: "Pending image moderation actions by action and result.",
		}, []string{"action", "result"}),
		QuotaRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_upload_quota_rejections_total",
			Help: "Uploads refused because the daily quota was reached.",
		}),
		CatalogBridges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_catalog_bridges",
			Help: "Number of bridges currently loaded in the catalog.",
		}),
		CatalogRefreshFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bridge_catalog_refresh_failures_total",
			Help: "Failed catalog refresh attempts.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestDuration,
		m.Uploads,
		m.Moderation,
		m.QuotaRejections,
		m.CatalogBridges,
		m.CatalogRefreshFailure,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware observes request durations using the matched route path.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if status < http.StatusBadRequest {
					status = http.StatusInternalServerError
				}
			}
			m.RequestDuration.WithLabelValues(c.Request().Method, c.Path(), strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveUpload counts an upload of the given kind.
func (m *Metrics) ObserveUpload(kind string, err error) {
	m.Uploads.WithLabelValues(kind, result(err)).Inc()
}

// ObserveModeration counts an approve or reject action.
func (m *Metrics) ObserveModeration(action string, err error) {
	m.Moderation.WithLabelValues(action, result(err)).Inc()
}
