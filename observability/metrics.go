// Package observability carries wat's ambient telemetry: the process
// logger, Prometheus metrics served by `wat serve`, and optional OTel
// tracing of scenario runs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every wat metric. The report server exposes it on /metrics.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
}

var (
	metricScenarios = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wat",
		Name:      "scenarios_total",
		Help:      "Scenarios run, by scenario and outcome.",
	}, []string{"scenario", "outcome"})

	metricScenarioDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "wat",
		Name:      "scenario_duration_seconds",
		Help:      "Wall time of a scenario run.",
		Buckets:   []float64{5, 10, 20, 30, 60, 120, 300},
	}, []string{"scenario"})

	metricSteps = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wat",
		Name:      "steps_total",
		Help:      "Scenario steps executed, by action and outcome.",
	}, []string{"action", "outcome"})

	metricWaits = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wat",
		Name:      "wait_duration_seconds",
		Help:      "Time spent waiting for an actor to reach an expected state.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	metricCaptures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "wat",
		Name:      "captures_total",
		Help:      "Screenshots written to the latest namespace.",
	})

	metricDiffs = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wat",
		Name:      "diff_results_total",
		Help:      "Regression comparisons, by classification.",
	}, []string{"status"})
)

func outcome(ok bool) string {
	if ok {
		return "passed"
	}
	return "failed"
}

// RecordScenario counts a finished scenario.
func RecordScenario(name string, ok bool, seconds float64) {
	metricScenarios.WithLabelValues(name, outcome(ok)).Inc()
	metricScenarioDuration.WithLabelValues(name).Observe(seconds)
}

// RecordStep counts an executed step.
func RecordStep(action string, ok bool) {
	metricSteps.WithLabelValues(action, outcome(ok)).Inc()
}

// RecordWait observes a completed wait.
func RecordWait(seconds float64) { metricWaits.Observe(seconds) }

// RecordCapture counts a stored screenshot.
func RecordCapture() { metricCaptures.Inc() }

// RecordDiff counts a regression comparison.
func RecordDiff(status string) { metricDiffs.WithLabelValues(status).Inc() }
