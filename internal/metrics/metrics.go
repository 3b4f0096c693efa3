package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics for a run. A nil *Registry is
// valid and records nothing.
type Registry struct {
	*prometheus.Registry

	observations  prometheus.Counter
	signals       *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	notComputable *prometheus.CounterVec
	fetchAttempts *prometheus.CounterVec
	missing       prometheus.Counter
	runs          *prometheus.CounterVec
	runDuration   prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		observations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pitval_observations_total",
				Help: "Total number of market observations processed",
			},
		),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitval_signals_total",
				Help: "Total number of buy signals emitted",
			},
			[]string{"strategy"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitval_rejections_total",
				Help: "Observations that produced no signal, by reason",
			},
			[]string{"strategy", "reason"},
		),
		notComputable: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitval_valuations_not_computable_total",
				Help: "Valuations that could not be computed, by reason",
			},
			[]string{"reason"},
		),
		fetchAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitval_price_fetch_attempts_total",
				Help: "Price fetch attempts by source and outcome",
			},
			[]string{"source", "outcome"},
		),
		missing: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pitval_missing_symbols_total",
				Help: "Symbols for which no price series could be fetched",
			},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pitval_runs_total",
				Help: "Completed runs by status",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pitval_run_duration_seconds",
				Help: "Duration of the last run in seconds",
			},
		),
	}

	reg.MustRegister(r.observations)
	reg.MustRegister(r.signals)
	reg.MustRegister(r.rejections)
	reg.MustRegister(r.notComputable)
	reg.MustRegister(r.fetchAttempts)
	reg.MustRegister(r.missing)
	reg.MustRegister(r.runs)
	reg.MustRegister(r.runDuration)

	return r
}

// RecordObservation counts a processed observation.
func (r *Registry) RecordObservation() {
	if r == nil {
		return
	}
	r.observations.Inc()
}

// RecordSignal counts an emitted signal.
func (r *Registry) RecordSignal(strategy string) {
	if r == nil {
		return
	}
	r.signals.WithLabelValues(strategy).Inc()
}

// RecordRejection counts an observation rejected for reason.
func (r *Registry) RecordRejection(strategy, reason string) {
	if r == nil {
		return
	}
	r.rejections.WithLabelValues(strategy, reason).Inc()
}

// RecordNotComputable counts a not-computable valuation.
func (r *Registry) RecordNotComputable(reason string) {
	if r == nil {
		return
	}
	r.notComputable.WithLabelValues(reason).Inc()
}

// RecordFetchAttempt counts one price fetch attempt. Outcome is ok,
// empty or error.
func (r *Registry) RecordFetchAttempt(source, outcome string) {
	if r == nil {
		return
	}
	r.fetchAttempts.WithLabelValues(source, outcome).Inc()
}

// RecordMissingSymbol counts a symbol whose resolution failed.
func (r *Registry) RecordMissingSymbol() {
	if r == nil {
		return
	}
	r.missing.Inc()
}

// RecordRun records a finished run.
func (r *Registry) RecordRun(status string, seconds float64) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(status).Inc()
	r.runDuration.Set(seconds)
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directories: %w", err)
	}
	return prometheus.WriteToTextfile(path, r.Registry)
}
