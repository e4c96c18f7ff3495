package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/copyleftdev/sumfunc/internal/objective"
)

const namespace = "sumfunc"

type metrics struct {
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	phaseSeconds  *prometheus.CounterVec
	evaluations   *prometheus.CounterVec
	storedResults prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "runs_total",
			Help:      "Minimization runs by method and outcome.",
		}, []string{"method", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of minimization runs.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"method"}),
		phaseSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "phase_seconds_total",
			Help:      "Time spent by finished runs in each evaluation phase.",
		}, []string{"phase"}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Objective evaluations performed by finished runs.",
		}, []string{"kind"}),
		storedResults: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "stored_results",
			Help:      "Results currently held for lookup.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.runDuration, m.phaseSeconds, m.evaluations, m.storedResults)
	}
	return m
}

// observe folds the engine counters of a finished run into the totals.
func (m *metrics) observe(method, status string, seconds float64, st objective.Stats) {
	m.runs.WithLabelValues(method, status).Inc()
	m.runDuration.WithLabelValues(method).Observe(seconds)

	m.phaseSeconds.WithLabelValues("copy").Add(st.CopyTime.Seconds())
	m.phaseSeconds.WithLabelValues("evaluate").Add(st.EvaluateTime.Seconds())
	m.phaseSeconds.WithLabelValues("evaluate_hessian").Add(st.EvaluateWithHessianTime.Seconds())
	m.phaseSeconds.WithLabelValues("write_gradient_hessian").Add(st.WriteGradientHessianTime.Seconds())

	m.evaluations.WithLabelValues("value").Add(float64(st.Evaluations))
	m.evaluations.WithLabelValues("derivative").Add(float64(st.DerivativeEvaluations))
}
