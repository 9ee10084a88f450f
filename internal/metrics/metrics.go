// Package metrics exposes taskvibe's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vibeflow/taskvibe/internal/model"
)

// Results for TodoUpdates.
const (
	ResultUpdated = "updated"
	ResultFailed  = "failed"
)

// Metrics owns a private registry so tests and multiple engines in one
// process do not collide on the default one. It satisfies
// execution.Observer.
type Metrics struct {
	registry          *prometheus.Registry
	executionsTotal   *prometheus.CounterVec
	todoUpdatesTotal  *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	executionDuration prometheus.Histogram
	analysesTotal     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskvibe_executions_total",
				Help: "Task executions by mode and terminal state.",
			},
			[]string{"mode", "state"},
		),
		todoUpdatesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskvibe_todo_updates_total",
				Help: "Todo completion writes by result.",
			},
			[]string{"result"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskvibe_status_transitions_total",
				Help: "Applied task status transitions.",
			},
			[]string{"from", "to"},
		),
		executionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "taskvibe_execution_duration_seconds",
				Help:    "Wall time of task executions.",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 8),
			},
		),
		analysesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "taskvibe_analyses_total",
				Help: "Todo analyses performed.",
			},
		),
	}
	m.registry.MustRegister(
		m.executionsTotal,
		m.todoUpdatesTotal,
		m.transitionsTotal,
		m.executionDuration,
		m.analysesTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) StepRecorded(_ string, step model.ProgressionStep) {
	if step.Type != model.StepTodo || step.Ref == nil {
		return
	}
	// Manual mode records an open step without writing anything.
	switch {
	case step.Completed:
		m.todoUpdatesTotal.WithLabelValues(ResultUpdated).Inc()
	case step.Error != "":
		m.todoUpdatesTotal.WithLabelValues(ResultFailed).Inc()
	}
}

func (m *Metrics) StatusChanged(_ string, from, to model.Status) {
	m.transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) ExecutionFinished(result *model.ExecutionResult, elapsed time.Duration) {
	m.executionsTotal.WithLabelValues(string(result.Mode), string(result.State)).Inc()
	m.executionDuration.Observe(elapsed.Seconds())
}

// TodoUpdates counts the outcome of a batch todo update.
func (m *Metrics) TodoUpdates(updated, failed int) {
	m.todoUpdatesTotal.WithLabelValues(ResultUpdated).Add(float64(updated))
	m.todoUpdatesTotal.WithLabelValues(ResultFailed).Add(float64(failed))
}

func (m *Metrics) AnalysisPerformed() {
	m.analysesTotal.Inc()
}
