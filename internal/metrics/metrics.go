// Package metrics exposes Prometheus counters for the orchestration loop.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusMetrics struct {
	registry       prometheus.Registerer
	accountsActive prometheus.Gauge
	cyclesTotal    *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	tasksTotal     *prometheus.CounterVec
	goalsTotal     *prometheus.CounterVec
	llmCallsTotal  *prometheus.CounterVec
	pendingTasks   prometheus.Gauge
}

func InitPrometheusMetrics(namespace string, reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &PrometheusMetrics{
		registry: reg,
		accountsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "accounts_active",
				Help:      "Number of accounts under management",
			},
		),
		cyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cycles_total",
				Help:      "Total number of executed agent cycles",
			},
			[]string{"outcome"},
		),
		cycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cycle_duration_seconds",
				Help:      "Duration of agent cycles",
				Buckets:   []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300},
			},
		),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of dispatched tasks",
			},
			[]string{"status"},
		),
		goalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "goals_total",
				Help:      "Total number of goals by lifecycle event",
			},
			[]string{"event"},
		),
		llmCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_calls_total",
				Help:      "Total number of LLM calls",
			},
			[]string{"outcome"},
		),
		pendingTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "tasks_pending",
				Help:      "Number of tasks waiting for dispatch",
			},
		),
	}

	reg.MustRegister(
		m.accountsActive,
		m.cyclesTotal,
		m.cycleDuration,
		m.tasksTotal,
		m.goalsTotal,
		m.llmCallsTotal,
		m.pendingTasks,
	)

	return m
}

func (m *PrometheusMetrics) SetActiveAccounts(count int) {
	m.accountsActive.Set(float64(count))
}

func (m *PrometheusMetrics) RecordCycle(outcome string, duration time.Duration) {
	m.cyclesTotal.WithLabelValues(outcome).Inc()
	m.cycleDuration.Observe(duration.Seconds())
}

func (m *PrometheusMetrics) RecordTask(status string) {
	m.tasksTotal.WithLabelValues(status).Inc()
}

func (m *PrometheusMetrics) RecordGoal(event string) {
	m.goalsTotal.WithLabelValues(event).Inc()
}

func (m *PrometheusMetrics) RecordLLMCall(outcome string) {
	m.llmCallsTotal.WithLabelValues(outcome).Inc()
}

func (m *PrometheusMetrics) SetPendingTasks(count int) {
	m.pendingTasks.Set(float64(count))
}
