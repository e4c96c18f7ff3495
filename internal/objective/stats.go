package objective

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is a snapshot of the cumulative wall-clock time a Function has spent
// in each evaluation phase. Counters only grow; they reset when a new
// Function is created.
type Stats struct {
	// CopyTime is spent moving values between the global vector, the
	// variable scratch buffers and the live blocks.
	CopyTime time.Duration
	// EvaluateTime is spent in value-only term evaluation.
	EvaluateTime time.Duration
	// EvaluateWithHessianTime is spent in the value, gradient and Hessian map phase.
	EvaluateWithHessianTime time.Duration
	// WriteGradientHessianTime is spent preparing and scattering into the
	// global gradient and Hessian.
	WriteGradientHessianTime time.Duration

	Evaluations           int64
	DerivativeEvaluations int64
}

type durationCounter struct{ ns atomic.Int64 }

func (c *durationCounter) add(d time.Duration) { c.ns.Add(int64(d)) }
func (c *durationCounter) load() time.Duration { return time.Duration(c.ns.Load()) }

// statsCounters are written by the evaluating goroutine and may be read
// concurrently, for example by a Prometheus scrape.
type statsCounters struct {
	copy       durationCounter
	evaluate   durationCounter
	derivative durationCounter
	write      durationCounter

	evaluations           atomic.Int64
	derivativeEvaluations atomic.Int64
}

func (s *statsCounters) snapshot() Stats {
	return Stats{
		CopyTime:                 s.copy.load(),
		EvaluateTime:             s.evaluate.load(),
		EvaluateWithHessianTime:  s.derivative.load(),
		WriteGradientHessianTime: s.write.load(),
		Evaluations:              s.evaluations.Load(),
		DerivativeEvaluations:    s.derivativeEvaluations.Load(),
	}
}

// StatsCollector exports a Function's Stats as Prometheus counters.
type StatsCollector struct {
	f *Function

	copySeconds       *prometheus.Desc
	evaluateSeconds   *prometheus.Desc
	derivativeSeconds *prometheus.Desc
	writeSeconds      *prometheus.Desc
	evaluations       *prometheus.Desc
	derivatives       *prometheus.Desc
}

// NewStatsCollector returns a collector reading f's counters on every scrape.
// constLabels distinguish several functions registered with one registry.
func NewStatsCollector(namespace string, f *Function, constLabels prometheus.Labels) *StatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "function", name), help, nil, constLabels)
	}
	return &StatsCollector{
		f:                 f,
		copySeconds:       desc("copy_seconds_total", "Time spent copying between global vector and variable blocks."),
		evaluateSeconds:   desc("evaluate_seconds_total", "Time spent in value-only term evaluation."),
		derivativeSeconds: desc("evaluate_hessian_seconds_total", "Time spent evaluating term values, gradients and Hessians."),
		writeSeconds:      desc("write_gradient_hessian_seconds_total", "Time spent writing the global gradient and Hessian."),
		evaluations:       desc("evaluations_total", "Number of value-only evaluations."),
		derivatives:       desc("derivative_evaluations_total", "Number of value, gradient and Hessian evaluations."),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.copySeconds
	ch <- c.evaluateSeconds
	ch <- c.derivativeSeconds
	ch <- c.writeSeconds
	ch <- c.evaluations
	ch <- c.derivatives
}

// Collect implements prometheus.Collector.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.f.Stats()
	ch <- prometheus.MustNewConstMetric(c.copySeconds, prometheus.CounterValue, s.CopyTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.evaluateSeconds, prometheus.CounterValue, s.EvaluateTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.derivativeSeconds, prometheus.CounterValue, s.EvaluateWithHessianTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.writeSeconds, prometheus.CounterValue, s.WriteGradientHessianTime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.evaluations, prometheus.CounterValue, float64(s.Evaluations))
	ch <- prometheus.MustNewConstMetric(c.derivatives, prometheus.CounterValue, float64(s.DerivativeEvaluations))
}
