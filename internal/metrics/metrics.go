// Package metrics exposes scan lifecycle metrics for Prometheus scraping.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jimmy443dd/S-675-Scrapper/internal/model"
)

const namespace = "scansuite"

// Outcome labels for finished scans.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Collector holds the scan metrics on a private registry, so tests can build
// as many collectors as they like.
type Collector struct {
	registry *prometheus.Registry

	scansStarted  prometheus.Counter
	scansRejected prometheus.Counter
	scansFinished *prometheus.CounterVec
	findings      *prometheus.CounterVec
	running       prometheus.Gauge
	phaseDuration *prometheus.HistogramVec
}

func New() (*Collector, error) {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.scansStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_started_total",
		Help:      "Total number of accepted scan requests",
	})
	c.scansRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_rejected_total",
		Help:      "Total number of scan requests rejected because a scan was running",
	})
	c.scansFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scans_finished_total",
		Help:      "Total number of finished scans by outcome and failed phase",
	}, []string{"outcome", "phase"})
	c.findings = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "findings_total",
		Help:      "Total number of findings reported by severity",
	}, []string{"severity"})
	c.running = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scan_running",
		Help:      "1 while a scan is in flight",
	})
	c.phaseDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_phase_duration_seconds",
		Help:      "Duration of scan pipeline phases",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"phase"})

	cols := []prometheus.Collector{
		c.scansStarted,
		c.scansRejected,
		c.scansFinished,
		c.findings,
		c.running,
		c.phaseDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, col := range cols {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}

	return c, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ScanStarted() {
	if c == nil {
		return
	}
	c.scansStarted.Inc()
	c.running.Set(1)
}

func (c *Collector) ScanRejected() {
	if c == nil {
		return
	}
	c.scansRejected.Inc()
}

func (c *Collector) PhaseDone(phase model.ScanPhase, took time.Duration) {
	if c == nil {
		return
	}
	c.phaseDuration.WithLabelValues(string(phase)).Observe(took.Seconds())
}

// ScanFinished records a terminal outcome. failedPhase is empty on success.
func (c *Collector) ScanFinished(outcome string, failedPhase model.ScanPhase, result *model.ScanResult) {
	if c == nil {
		return
	}
	c.scansFinished.WithLabelValues(outcome, string(failedPhase)).Inc()
	c.running.Set(0)

	if result == nil {
		return
	}
	for _, f := range result.Findings {
		if !f.Severity.IsValid() {
			continue
		}
		c.findings.WithLabelValues(string(f.Severity)).Inc()
	}
}
