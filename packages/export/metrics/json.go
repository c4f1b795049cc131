package metrics

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/samber/lo"
)

// slowestCount is how many of the longest tests the report lists
const slowestCount = 5

// Report is the JSON metrics document: run totals, the slowest tests, then
// one section per assembly
type Report struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WallMs      float64          `json:"wall_ms"`
	Cancelled   bool             `json:"cancelled"`
	Counts      Counts           `json:"counts"`
	Durations   Durations        `json:"durations"`
	Slowest     []*TestMetrics   `json:"slowest"`
	Assemblies  []AssemblyReport `json:"assemblies"`
}

// AssemblyReport is the section of one assembly
type AssemblyReport struct {
	Name      string         `json:"name"`
	ElapsedMs float64        `json:"elapsed_ms"`
	Cancelled bool           `json:"cancelled"`
	Counts    Counts         `json:"counts"`
	Durations Durations      `json:"durations"`
	Tests     []*TestMetrics `json:"tests"`
}

// Counts tallies test results
type Counts struct {
	Total   int64 `json:"total"`
	Passed  int64 `json:"passed"`
	Failed  int64 `json:"failed"`
	Skipped int64 `json:"skipped"`
	NotRun  int64 `json:"not_run"`
	Errors  int64 `json:"errors"`
}

// Durations describes the executed tests' durations in milliseconds. Min,
// max and mean are exact; percentiles come from a histogram.
type Durations struct {
	Samples int64   `json:"samples"`
	Min     float64 `json:"min_ms"`
	Mean    float64 `json:"mean_ms"`
	P50     float64 `json:"p50_ms"`
	P90     float64 `json:"p90_ms"`
	P95     float64 `json:"p95_ms"`
	P99     float64 `json:"p99_ms"`
	Max     float64 `json:"max_ms"`
}

// JSONExporter collects test metrics and writes a Report when the run ends
type JSONExporter struct {
	writer  io.Writer
	path    string
	pretty  bool
	now     func() time.Time
	started time.Time
	tests   []*TestMetrics
}

// JSONOption configures a JSONExporter
type JSONOption func(*JSONExporter)

// WithJSONWriter also writes the report to w
func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile writes the report to path, replacing it atomically
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.path = path
	}
}

func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

func WithJSONClock(now func() time.Time) JSONOption {
	return func(j *JSONExporter) {
		j.now = now
	}
}

// NewJSONExporter creates a JSONExporter; reports are indented by default
func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{pretty: true, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	j.started = j.now()
	return j
}

// ExportSingle keeps m for the report
func (j *JSONExporter) ExportSingle(m *TestMetrics) error {
	j.tests = append(j.tests, m)
	return nil
}

// Export writes the report for the run summarized by agg
func (j *JSONExporter) Export(agg *AggregateMetrics) error {
	rep := j.Report(agg)

	var data []byte
	var err error
	if j.pretty {
		data, err = json.MarshalIndent(rep, "", "  ")
	} else {
		data, err = json.Marshal(rep)
	}
	if err != nil {
		return fmt.Errorf("encoding metrics report: %w", err)
	}
	data = append(data, '\n')

	if j.path != "" {
		if err := replaceFile(j.path, data); err != nil {
			return fmt.Errorf("writing metrics report: %w", err)
		}
	}
	if j.writer != nil {
		if _, err := j.writer.Write(data); err != nil {
			return fmt.Errorf("writing metrics report: %w", err)
		}
	}
	return nil
}

func (j *JSONExporter) Close() error { return nil }

// Report builds the document Export writes. Assemblies appear in the order
// their first test finished; assemblies without tests follow by name.
func (j *JSONExporter) Report(agg *AggregateMetrics) *Report {
	now := j.now()
	rep := &Report{
		GeneratedAt: now.UTC(),
		WallMs:      ms(now.Sub(j.started)),
		Cancelled:   agg.Cancelled,
		Counts: Counts{
			Total:   agg.TotalTests,
			Passed:  agg.PassedCount,
			Failed:  agg.FailedCount,
			Skipped: agg.SkippedCount,
			NotRun:  agg.NotRunCount,
			Errors:  agg.ErrorCount,
		},
		Durations:  durations(j.tests),
		Slowest:    slowest(j.tests, slowestCount),
		Assemblies: []AssemblyReport{},
	}

	byAssembly := lo.GroupBy(j.tests, func(m *TestMetrics) string { return m.Assembly })
	names := lo.Uniq(append(
		lo.Map(j.tests, func(m *TestMetrics, _ int) string { return m.Assembly }),
		slices.Sorted(maps.Keys(agg.ByAssembly))...,
	))

	for _, name := range names {
		tests := byAssembly[name]
		if tests == nil {
			tests = []*TestMetrics{}
		}
		section := AssemblyReport{
			Name:      name,
			Counts:    count(tests),
			Durations: durations(tests),
			Tests:     tests,
		}
		if sum, ok := agg.ByAssembly[name]; ok {
			section.ElapsedMs = sum.ElapsedMs
			section.Cancelled = sum.Cancelled
			section.Counts.Errors = int64(sum.Errors)
		}
		rep.Assemblies = append(rep.Assemblies, section)
	}
	return rep
}

func count(tests []*TestMetrics) Counts {
	var c Counts
	for _, m := range tests {
		c.Total++
		switch m.Result {
		case ResultPassed:
			c.Passed++
		case ResultFailed:
			c.Failed++
		case ResultSkipped:
			c.Skipped++
		case ResultNotRun:
			c.NotRun++
		}
	}
	return c
}

func durations(tests []*TestMetrics) Durations {
	timed := lo.Filter(tests, func(m *TestMetrics, _ int) bool { return m.executed() })
	if len(timed) == 0 {
		return Durations{}
	}

	h := newDurationHistogram()
	d := Durations{Min: timed[0].DurationMs, Max: timed[0].DurationMs}
	var total float64
	for _, m := range timed {
		_ = h.RecordValue(micros(m.Duration))
		total += m.DurationMs
		d.Min = min(d.Min, m.DurationMs)
		d.Max = max(d.Max, m.DurationMs)
	}
	d.Samples = int64(len(timed))
	d.Mean = total / float64(len(timed))
	d.P50 = usToMs(h.ValueAtQuantile(50))
	d.P90 = usToMs(h.ValueAtQuantile(90))
	d.P95 = usToMs(h.ValueAtQuantile(95))
	d.P99 = usToMs(h.ValueAtQuantile(99))
	return d
}

// slowest returns up to n executed tests, longest first
func slowest(tests []*TestMetrics, n int) []*TestMetrics {
	timed := lo.Filter(tests, func(m *TestMetrics, _ int) bool { return m.executed() })
	slices.SortStableFunc(timed, func(a, b *TestMetrics) int {
		return cmp.Compare(b.Duration, a.Duration)
	})
	if len(timed) > n {
		timed = timed[:n]
	}
	return timed
}

// replaceFile writes data next to path and renames it into place, so a
// reader never sees a half-written report
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
