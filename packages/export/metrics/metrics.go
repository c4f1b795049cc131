// Package metrics exports test run metrics.
package metrics

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// TestMetrics is the data point recorded for one finished test
type TestMetrics struct {
	Assembly   string        `json:"assembly"`
	TestName   string        `json:"test_name"`
	Class      string        `json:"class"`
	Result     string        `json:"result"`
	Cause      string        `json:"cause,omitempty"`
	Duration   time.Duration `json:"-"`
	DurationMs float64       `json:"duration_ms"`
	Timestamp  time.Time     `json:"timestamp"`
}

// executed reports whether the test body ran; only those durations count
func (m *TestMetrics) executed() bool {
	return m.Result == ResultPassed || m.Result == ResultFailed
}

// Result labels
const (
	ResultPassed  = "passed"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
	ResultNotRun  = "notrun"
)

// AggregateMetrics represents aggregated metrics of a whole run
type AggregateMetrics struct {
	TotalTests    int64                         `json:"total_tests"`
	PassedCount   int64                         `json:"passed_count"`
	FailedCount   int64                         `json:"failed_count"`
	SkippedCount  int64                         `json:"skipped_count"`
	NotRunCount   int64                         `json:"not_run_count"`
	ErrorCount    int64                         `json:"error_count"`
	Cancelled     bool                          `json:"cancelled"`
	MinDurationMs float64                       `json:"min_duration_ms"`
	MaxDurationMs float64                       `json:"max_duration_ms"`
	AvgDurationMs float64                       `json:"avg_duration_ms"`
	P50DurationMs float64                       `json:"p50_duration_ms"`
	P95DurationMs float64                       `json:"p95_duration_ms"`
	P99DurationMs float64                       `json:"p99_duration_ms"`
	ByAssembly    map[string]*AssemblyAggregate `json:"by_assembly"`
}

// AssemblyAggregate represents aggregated metrics for a single assembly
type AssemblyAggregate struct {
	Name      string  `json:"name"`
	Total     int     `json:"total"`
	Failed    int     `json:"failed"`
	Skipped   int     `json:"skipped"`
	NotRun    int     `json:"not_run"`
	Errors    int     `json:"errors"`
	ElapsedMs float64 `json:"elapsed_ms"`
	Cancelled bool    `json:"cancelled"`
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export exports metrics to the target destination
	Export(metrics *AggregateMetrics) error

	// ExportSingle exports a single test metric
	ExportSingle(metric *TestMetrics) error

	// Close closes the exporter and flushes any buffered data
	Close() error
}

// Sink turns the event stream into metrics and hands them to exporters
type Sink struct {
	mu         sync.Mutex
	exporters  []Exporter
	aggregate  *AggregateMetrics
	histogram  *hdrhistogram.Histogram
	assemblies map[string]string
	totalMs    float64
	timed      int64
	closed     bool
}

// NewSink creates a metrics sink over exporters
func NewSink(exporters ...Exporter) *Sink {
	return &Sink{
		exporters:  exporters,
		aggregate:  &AggregateMetrics{ByAssembly: make(map[string]*AssemblyAggregate)},
		histogram:  newDurationHistogram(),
		assemblies: make(map[string]string),
	}
}

// ForFile picks the exporter from the extension of path: ".json" writes a
// JSON snapshot, anything else a Prometheus textfile
func ForFile(path string) *Sink {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return NewSink(NewJSONExporter(WithJSONFile(path)))
	}
	return NewSink(NewPrometheusExporter(WithTextfile(path)))
}

func (s *Sink) Name() string { return "metrics" }

// Interested limits delivery to the events metrics are derived from
func (s *Sink) Interested(kind events.Kind) bool {
	switch kind {
	case events.KindAssemblyStarting, events.KindTestPassed, events.KindTestFailed,
		events.KindTestSkipped, events.KindTestNotRun, events.KindError, events.KindExecutionSummary:
		return true
	default:
		return false
	}
}

func (s *Sink) OnEvent(ev events.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var m *TestMetrics
	switch e := ev.(type) {
	case *events.AssemblyStarting:
		s.assemblies[e.AssemblyID] = e.Name
	case *events.TestPassed:
		m = s.metric(&e.TestInfo, e.ExecutionTime, ResultPassed)
	case *events.TestFailed:
		m = s.metric(&e.TestInfo, e.ExecutionTime, ResultFailed)
		m.Cause = string(e.Cause)
	case *events.TestSkipped:
		m = s.metric(&e.TestInfo, e.ExecutionTime, ResultSkipped)
	case *events.TestNotRun:
		m = s.metric(&e.TestInfo, e.ExecutionTime, ResultNotRun)
	case *events.ErrorMessage:
		s.aggregate.ErrorCount++
	case *events.ExecutionSummary:
		s.aggregate.ByAssembly[e.Assembly] = &AssemblyAggregate{
			Name:      e.Assembly,
			Total:     e.Summary.Total,
			Failed:    e.Summary.Failed,
			Skipped:   e.Summary.Skipped,
			NotRun:    e.Summary.NotRun,
			Errors:    e.Summary.Errors,
			ElapsedMs: ms(e.Summary.Elapsed),
			Cancelled: e.Cancelled,
		}
		s.aggregate.Cancelled = s.aggregate.Cancelled || e.Cancelled
	}
	if m == nil {
		return true, nil
	}

	s.record(m)
	var errs []error
	for _, exp := range s.exporters {
		errs = append(errs, exp.ExportSingle(m))
	}
	return true, errors.Join(errs...)
}

func (s *Sink) metric(info *events.TestInfo, d time.Duration, result string) *TestMetrics {
	return &TestMetrics{
		Assembly:   s.assemblies[info.AssemblyID],
		TestName:   info.DisplayName,
		Class:      info.Class,
		Result:     result,
		Duration:   d,
		DurationMs: ms(d),
		Timestamp:  info.StartTime,
	}
}

func (s *Sink) record(m *TestMetrics) {
	a := s.aggregate
	a.TotalTests++
	switch m.Result {
	case ResultPassed:
		a.PassedCount++
	case ResultFailed:
		a.FailedCount++
	case ResultSkipped:
		a.SkippedCount++
	case ResultNotRun:
		a.NotRunCount++
	}

	if !m.executed() {
		return
	}
	s.timed++
	s.totalMs += m.DurationMs
	if s.timed == 1 || m.DurationMs < a.MinDurationMs {
		a.MinDurationMs = m.DurationMs
	}
	if m.DurationMs > a.MaxDurationMs {
		a.MaxDurationMs = m.DurationMs
	}
	a.AvgDurationMs = s.totalMs / float64(s.timed)

	_ = s.histogram.RecordValue(micros(m.Duration))
}

// Aggregate returns the aggregated metrics with percentiles filled in
func (s *Sink) Aggregate() *AggregateMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Sink) snapshot() *AggregateMetrics {
	a := *s.aggregate
	if s.histogram.TotalCount() > 0 {
		a.P50DurationMs = usToMs(s.histogram.ValueAtQuantile(50))
		a.P95DurationMs = usToMs(s.histogram.ValueAtQuantile(95))
		a.P99DurationMs = usToMs(s.histogram.ValueAtQuantile(99))
	}
	return &a
}

// Close exports the aggregate and closes every exporter
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	aggregate := s.snapshot()
	var errs []error
	for _, exp := range s.exporters {
		if err := exp.Export(aggregate); err != nil {
			errs = append(errs, err)
		}
		if err := exp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func usToMs(us int64) float64 {
	return float64(us) / 1000
}

// newDurationHistogram tracks 1us to 1h at 3 significant digits
func newDurationHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(1, int64(time.Hour/time.Microsecond), 3)
}

func micros(d time.Duration) int64 {
	return max(d.Microseconds(), 1)
}
