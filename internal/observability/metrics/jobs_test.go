package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestJobMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newJobMetrics(reg, Config{ServiceName: "test"})

	m.Observe("expire_trials", time.Now(), 3, nil)
	m.Observe("expire_trials", time.Now(), 0, errors.New("db down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.runs.WithLabelValues("expire_trials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("expire_trials")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.affected.WithLabelValues("expire_trials")))
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := newHTTPMetrics(reg, Config{})
	second := newHTTPMetrics(reg, Config{})
	assert.Same(t, first.duration, second.duration)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "4xx", statusClass(402))
	assert.Equal(t, "unknown", statusClass(0))
}
