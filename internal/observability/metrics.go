// Package observability exposes Prometheus metrics for the package
// validation pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for snakepit on a custom registry.
// A nil *Collector is valid and records nothing, so callers never need nil
// checks at every site.
type Collector struct {
	Registry *prometheus.Registry

	// Validation pipeline metrics.
	ValidationsTotal   *prometheus.CounterVec
	ValidationScore    prometheus.Histogram
	PhaseDuration      *prometheus.HistogramVec
	SandboxBuildsTotal *prometheus.CounterVec

	// Security scan metrics.
	SecurityFindingsTotal *prometheus.CounterVec

	// System metrics.
	ActivePackages prometheus.Gauge
}

// NewCollector creates a Collector with all metrics registered on a custom
// prometheus.Registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,

		ValidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snakepit",
			Subsystem: "validation",
			Name:      "runs_total",
			Help:      "Total validation runs by backend and outcome.",
		}, []string{"backend", "status"}),

		ValidationScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "snakepit",
			Subsystem: "validation",
			Name:      "score",
			Help:      "Validation score distribution.",
			Buckets:   []float64{0, 0.2, 0.4, 0.6, 0.8, 0.9, 1},
		}),

		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "snakepit",
			Subsystem: "lifecycle",
			Name:      "phase_duration_seconds",
			Help:      "Duration of each lifecycle phase in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"phase"}),

		SandboxBuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snakepit",
			Subsystem: "sandbox",
			Name:      "builds_total",
			Help:      "Total sandbox provisioning attempts by backend and outcome.",
		}, []string{"backend", "status"}),

		SecurityFindingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snakepit",
			Subsystem: "security",
			Name:      "findings_total",
			Help:      "Total static security scan findings by category.",
		}, []string{"category"}),

		ActivePackages: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "snakepit",
			Subsystem: "lifecycle",
			Name:      "active_packages",
			Help:      "Packages currently under validation.",
		}),
	}

	reg.MustRegister(
		c.ValidationsTotal,
		c.ValidationScore,
		c.PhaseDuration,
		c.SandboxBuildsTotal,
		c.SecurityFindingsTotal,
		c.ActivePackages,
	)

	return c
}

// RecordValidation records one validation run outcome.
func (c *Collector) RecordValidation(backend, status string, score float64) {
	if c == nil {
		return
	}
	c.ValidationsTotal.WithLabelValues(backend, status).Inc()
	c.ValidationScore.Observe(score)
}

// RecordPhase records the duration of a lifecycle phase.
func (c *Collector) RecordPhase(phase string, d time.Duration) {
	if c == nil {
		return
	}
	c.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// RecordSandboxBuild records one sandbox provisioning attempt.
func (c *Collector) RecordSandboxBuild(backend, status string) {
	if c == nil {
		return
	}
	c.SandboxBuildsTotal.WithLabelValues(backend, status).Inc()
}

// RecordSecurityFinding records one static scan finding.
func (c *Collector) RecordSecurityFinding(category string) {
	if c == nil {
		return
	}
	c.SecurityFindingsTotal.WithLabelValues(category).Inc()
}

// SetActivePackages updates the active package gauge.
func (c *Collector) SetActivePackages(n int) {
	if c == nil {
		return
	}
	c.ActivePackages.Set(float64(n))
}
