package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request latency on the prometheus registry served at /metrics.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
}

func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	return newHTTPMetrics(prometheus.DefaultRegisterer, cfg)
}

func newHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	constLabels := prometheus.Labels{"service": serviceLabel(cfg)}
	m := &HTTPMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "warrantyhub_http_request_duration_seconds",
			Help:        "HTTP request latency by route and status class.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			ConstLabels: constLabels,
		}, []string{"method", "route", "status_code"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "warrantyhub_http_requests_in_flight",
			Help:        "HTTP requests currently being served.",
			ConstLabels: constLabels,
		}),
	}
	registerOrReuse(registerer, m.duration, func(existing prometheus.Collector) {
		m.duration = existing.(*prometheus.HistogramVec)
	})
	registerOrReuse(registerer, m.inflight, func(existing prometheus.Collector) {
		m.inflight = existing.(prometheus.Gauge)
	})
	return m
}

// GinMiddleware observes every request except the metrics endpoint itself.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		m.inflight.Inc()
		start := time.Now()

		c.Next()

		m.inflight.Dec()
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.duration.WithLabelValues(c.Request.Method, route, statusClass(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

func statusClass(status int) string {
	if status < 100 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}

func serviceLabel(cfg Config) string {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		return "warrantyhub"
	}
	return name
}

func registerOrReuse(registerer prometheus.Registerer, c prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := registerer.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			reuse(already.ExistingCollector)
			return
		}
		panic(err)
	}
}
