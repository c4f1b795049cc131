package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const MetricsNamespace = "testhost"

// PrometheusExporter keeps run metrics in a Prometheus registry and can
// write them in the node exporter textfile format
type PrometheusExporter struct {
	registry *prometheus.Registry
	textfile string

	testsTotal    *prometheus.CounterVec
	testDuration  *prometheus.HistogramVec
	durationQuant *prometheus.GaugeVec
	assemblyTests *prometheus.GaugeVec
	assemblyTime  *prometheus.GaugeVec
	errorsTotal   prometheus.Gauge
	cancelled     prometheus.Gauge
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithTextfile writes the registry to path when the run closes
func WithTextfile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.textfile = path
	}
}

// WithRegistry uses an existing registry
func WithRegistry(reg *prometheus.Registry) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.registry = reg
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter
func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = prometheus.NewRegistry()
	}

	factory := promauto.With(p.registry)
	p.testsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of finished tests by result",
	}, []string{"assembly", "result"})
	p.testDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_seconds",
		Help:      "Duration of executed tests",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"assembly"})
	p.durationQuant = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "test_duration_quantile_seconds",
		Help:      "Test duration percentiles of the run",
	}, []string{"quantile"})
	p.assemblyTests = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "assembly_tests",
		Help:      "Tests per assembly by result",
	}, []string{"assembly", "result"})
	p.assemblyTime = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "assembly_elapsed_seconds",
		Help:      "Wall clock time of each assembly",
	}, []string{"assembly"})
	p.errorsTotal = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "errors",
		Help:      "Errors reported outside of tests",
	})
	p.cancelled = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_cancelled",
		Help:      "1 if the run was cancelled",
	})
	return p
}

// Registry returns the registry metrics are recorded in
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}

// ExportSingle records a single test metric
func (p *PrometheusExporter) ExportSingle(m *TestMetrics) error {
	p.testsTotal.WithLabelValues(m.Assembly, m.Result).Inc()
	if m.Result == ResultPassed || m.Result == ResultFailed {
		p.testDuration.WithLabelValues(m.Assembly).Observe(m.Duration.Seconds())
	}
	return nil
}

// Export records the aggregate and writes the textfile, if any
func (p *PrometheusExporter) Export(a *AggregateMetrics) error {
	p.durationQuant.WithLabelValues("0.5").Set(a.P50DurationMs / 1000)
	p.durationQuant.WithLabelValues("0.95").Set(a.P95DurationMs / 1000)
	p.durationQuant.WithLabelValues("0.99").Set(a.P99DurationMs / 1000)

	for name, asm := range a.ByAssembly {
		passed := asm.Total - asm.Failed - asm.Skipped - asm.NotRun
		p.assemblyTests.WithLabelValues(name, ResultPassed).Set(float64(passed))
		p.assemblyTests.WithLabelValues(name, ResultFailed).Set(float64(asm.Failed))
		p.assemblyTests.WithLabelValues(name, ResultSkipped).Set(float64(asm.Skipped))
		p.assemblyTests.WithLabelValues(name, ResultNotRun).Set(float64(asm.NotRun))
		p.assemblyTime.WithLabelValues(name).Set(asm.ElapsedMs / 1000)
	}
	p.errorsTotal.Set(float64(a.ErrorCount))
	if a.Cancelled {
		p.cancelled.Set(1)
	} else {
		p.cancelled.Set(0)
	}

	if p.textfile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p.textfile), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(p.textfile, p.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// Close shuts down the exporter
func (p *PrometheusExporter) Close() error {
	return nil
}
