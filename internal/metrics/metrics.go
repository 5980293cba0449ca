// Package metrics provides Prometheus metrics for survey analysis runs.
//
// A CLI run is short-lived, so metrics are collected into a private registry
// and can be written once at the end in the node_exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "surveyloom"

// Recorder holds the metrics of one process. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	reg *prometheus.Registry

	// RowsLoaded is the number of data rows read from input files.
	RowsLoaded prometheus.Counter
	// ColumnsClassified counts columns by classification kind.
	ColumnsClassified *prometheus.CounterVec
	// Charts counts chart renders by result (written, failed).
	Charts *prometheus.CounterVec
	// Calls counts language-model calls by result (ok, failed).
	Calls *prometheus.CounterVec
	// CallDuration is a histogram of language-model call latency in seconds.
	CallDuration prometheus.Histogram
	// RunDuration is a histogram of whole pipeline runs in seconds.
	RunDuration prometheus.Histogram
}

// New returns a Recorder backed by a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		RowsLoaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_loaded_total",
			Help:      "Total number of survey rows loaded",
		}),
		ColumnsClassified: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "columns_classified_total",
			Help:      "Total number of columns classified, by kind",
		}, []string{"kind"}),
		Charts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "charts_total",
			Help:      "Total number of chart renders, by result",
		}, []string{"result"}),
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Total number of language-model calls, by result",
		}, []string{"result"}),
		CallDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_call_duration_seconds",
			Help:      "Duration of language-model calls in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of pipeline runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 0.1s to ~205s
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObserveRows records n loaded rows.
func (r *Recorder) ObserveRows(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.RowsLoaded.Add(float64(n))
}

// ObserveColumns records n columns of the given kind.
func (r *Recorder) ObserveColumns(kind string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.ColumnsClassified.WithLabelValues(kind).Add(float64(n))
}

// ObserveCharts records chart outcomes.
func (r *Recorder) ObserveCharts(written, failed int) {
	if r == nil {
		return
	}
	r.Charts.WithLabelValues("written").Add(float64(written))
	r.Charts.WithLabelValues("failed").Add(float64(failed))
}

// ObserveCall records one language-model call.
func (r *Recorder) ObserveCall(d time.Duration, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.Calls.WithLabelValues(result).Inc()
	r.CallDuration.Observe(d.Seconds())
}

// ObserveRun records the duration of a pipeline run.
func (r *Recorder) ObserveRun(d time.Duration) {
	if r == nil {
		return
	}
	r.RunDuration.Observe(d.Seconds())
}

// WriteTextfile writes all metrics to path in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
