// Package metrics exposes Prometheus collectors for probe runs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the HexProbe collectors on a private registry.
type Collector struct {
	registry *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	patternsLearned prometheus.Counter
	promotions      *prometheus.CounterVec
	approvals       *prometheus.CounterVec
	pruned          *prometheus.CounterVec
}

// New creates a Collector with its own registry.
func New() *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		registry: registry,

		runsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hexprobe_probe_runs_total",
				Help: "Total number of orchestrated probe runs",
			},
			[]string{"probe", "severity"},
		),

		stageDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hexprobe_stage_duration_seconds",
				Help:    "Orchestrator stage duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		patternsLearned: promauto.With(registry).NewCounter(
			prometheus.CounterOpts{
				Name: "hexprobe_patterns_learned_total",
				Help: "Total number of pattern observations recorded locally",
			},
		),

		promotions: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hexprobe_promotions_total",
				Help: "Total number of records promoted to the global store",
			},
			[]string{"kind"},
		),

		approvals: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hexprobe_agent_approvals_total",
				Help: "Agent verdicts by agent and outcome",
			},
			[]string{"agent", "approved"},
		),

		pruned: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "hexprobe_pruned_rows_total",
				Help: "Rows deleted by aging, by store and table",
			},
			[]string{"store", "table"},
		),
	}
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRun counts one finished run.
func (c *Collector) ObserveRun(probeID, severity string) {
	if c == nil {
		return
	}
	c.runsTotal.WithLabelValues(probeID, severity).Inc()
}

// ObserveStage records how long a stage took.
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	if c == nil {
		return
	}
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// PatternLearned counts one local pattern upsert.
func (c *Collector) PatternLearned() {
	if c == nil {
		return
	}
	c.patternsLearned.Inc()
}

// Promoted counts one promotion of kind "pattern" or "lineage".
func (c *Collector) Promoted(kind string) {
	if c == nil {
		return
	}
	c.promotions.WithLabelValues(kind).Inc()
}

// Verdict counts one agent verdict.
func (c *Collector) Verdict(agent string, approved bool) {
	if c == nil {
		return
	}
	c.approvals.WithLabelValues(agent, strconv.FormatBool(approved)).Inc()
}

// Pruned adds n deleted rows for store and table.
func (c *Collector) Pruned(store, table string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.pruned.WithLabelValues(store, table).Add(float64(n))
}
