// Package metrics exposes run counters in the Prometheus text format, written
// to a file for node_exporter's textfile collector.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalnine/triage/internal/classify"
	"github.com/signalnine/triage/internal/result"
)

// DefaultFile is the textfile name used when metrics are enabled.
const DefaultFile = "metrics.prom"

// Metrics implements classify.Recorder over a private registry.
type Metrics struct {
	registry *prometheus.Registry

	calls        *prometheus.CounterVec
	callSeconds  *prometheus.HistogramVec
	tokens       *prometheus.CounterVec
	results      *prometheus.CounterVec
	records      *prometheus.GaugeVec
	crashes      *prometheus.GaugeVec
	uniqueFailed *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_judge_calls_total",
			Help: "Judge attempts by configuration and outcome.",
		}, []string{"config", "outcome"}),
		callSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "triage_judge_call_duration_seconds",
			Help:    "Judge attempt latency.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}, []string{"config"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_judge_tokens_total",
			Help: "Judge tokens by direction.",
		}, []string{"config", "direction"}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "triage_results_total",
			Help: "Persisted classifications by status.",
		}, []string{"config", "status"}),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "triage_records",
			Help: "Trial records by partition.",
		}, []string{"config", "partition"}),
		crashes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "triage_crashes",
			Help: "Crashed trials by kind.",
		}, []string{"config", "kind"}),
		uniqueFailed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "triage_unique_failures",
			Help: "Distinct failing task ids before and after sampling.",
		}, []string{"config", "stage"}),
	}
	m.registry.MustRegister(m.calls, m.callSeconds, m.tokens, m.results, m.records, m.crashes, m.uniqueFailed)
	return m
}

func (m *Metrics) RecordCall(_ context.Context, c classify.Call) {
	outcome := "ok"
	if c.Err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(c.Config, outcome).Inc()
	m.callSeconds.WithLabelValues(c.Config).Observe(c.Duration.Seconds())
	m.tokens.WithLabelValues(c.Config, "input").Add(float64(c.Usage.InputTokens))
	m.tokens.WithLabelValues(c.Config, "output").Add(float64(c.Usage.OutputTokens))
}

func (m *Metrics) RecordResult(config string, c result.Classification) {
	m.results.WithLabelValues(config, string(c.Judgment.Status)).Inc()
}

// ObserveStats publishes a configuration's partition and sampling sizes.
func (m *Metrics) ObserveStats(config string, s result.Stats) {
	m.records.WithLabelValues(config, "success").Set(float64(s.Successes))
	m.records.WithLabelValues(config, "crash").Set(float64(s.Crashes))
	m.records.WithLabelValues(config, "failure").Set(float64(s.TotalFailuresInSource))
	for kind, n := range s.CrashesByKind {
		m.crashes.WithLabelValues(config, string(kind)).Set(float64(n))
	}
	m.uniqueFailed.WithLabelValues(config, "source").Set(float64(s.UniqueFailures))
	m.uniqueFailed.WithLabelValues(config, "sampled").Set(float64(s.UniqueFailuresSampled))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteFile atomically replaces path with the current values.
func (m *Metrics) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics %s: %w", path, err)
	}
	return nil
}
