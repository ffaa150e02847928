// Package metrics exports probe outcomes as Prometheus metrics and can push
// them to a Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/wondertwin-ai/apiprobe/internal/harness"
)

// Recorder implements harness.Recorder on a private registry.
type Recorder struct {
	reg      *prometheus.Registry
	checks   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	ratio    prometheus.Gauge

	run, passed int
}

// New creates a Recorder with its metrics registered.
func New() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "apiprobe_checks_total",
			Help: "Checks recorded, by suite and outcome.",
		}, []string{"suite", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "apiprobe_request_duration_seconds",
			Help:    "Latency of probe requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"suite", "method"}),
		ratio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "apiprobe_success_ratio",
			Help: "Passed checks divided by checks run so far.",
		}),
	}
	r.reg.MustRegister(r.checks, r.duration, r.ratio)
	return r
}

// Observe updates the metrics for one result.
func (r *Recorder) Observe(res harness.Result) {
	outcome := "fail"
	if res.Success {
		outcome = "pass"
		r.passed++
	}
	r.run++
	r.checks.WithLabelValues(res.Suite, outcome).Inc()
	if res.Method != "" {
		r.duration.WithLabelValues(res.Suite, res.Method).Observe(res.Duration.Seconds())
	}
	r.ratio.Set(float64(r.passed) / float64(r.run))
}

// Registry returns the registry holding the probe metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// Push sends the registry to the Pushgateway at url under job.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("pushing metrics to %s: %w", url, err)
	}
	return nil
}
