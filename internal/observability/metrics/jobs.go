package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics tracks background maintenance jobs.
type JobMetrics struct {
	runs     *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	affected *prometheus.CounterVec
}

func NewJobMetrics(cfg Config) *JobMetrics {
	return newJobMetrics(prometheus.DefaultRegisterer, cfg)
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	constLabels := prometheus.Labels{"service": serviceLabel(cfg)}
	m := &JobMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "warrantyhub_job_runs_total",
			Help:        "Maintenance job runs by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "warrantyhub_job_errors_total",
			Help:        "Maintenance job failures by name.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "warrantyhub_job_duration_seconds",
			Help:        "Maintenance job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			ConstLabels: constLabels,
		}, []string{"job"}),
		affected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "warrantyhub_job_rows_affected_total",
			Help:        "Rows changed by maintenance jobs.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}
	registerOrReuse(registerer, m.runs, func(c prometheus.Collector) { m.runs = c.(*prometheus.CounterVec) })
	registerOrReuse(registerer, m.errors, func(c prometheus.Collector) { m.errors = c.(*prometheus.CounterVec) })
	registerOrReuse(registerer, m.duration, func(c prometheus.Collector) { m.duration = c.(*prometheus.HistogramVec) })
	registerOrReuse(registerer, m.affected, func(c prometheus.Collector) { m.affected = c.(*prometheus.CounterVec) })
	return m
}

// Observe records one job run.
func (m *JobMetrics) Observe(job string, started time.Time, affected int64, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
	m.duration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	if err != nil {
		m.errors.WithLabelValues(job).Inc()
		return
	}
	if affected > 0 {
		m.affected.WithLabelValues(job).Add(float64(affected))
	}
}
