package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/sink"
)

var _ sink.Sink = (*Sink)(nil)

func info(name string) events.TestInfo {
	return events.TestInfo{
		Ref:         events.Ref{AssemblyID: "asm", TestID: name},
		DisplayName: name,
		Class:       "Acme.Math",
	}
}

func run(t *testing.T, s *Sink) {
	t.Helper()
	evs := []events.Event{
		&events.AssemblyStarting{Ref: events.Ref{AssemblyID: "asm"}, Name: "math"},
		&events.TestPassed{TestInfo: info("a"), Outcome: events.Outcome{ExecutionTime: 10 * time.Millisecond}},
		&events.TestPassed{TestInfo: info("b"), Outcome: events.Outcome{ExecutionTime: 20 * time.Millisecond}},
		&events.TestFailed{TestInfo: info("c"), Outcome: events.Outcome{ExecutionTime: 30 * time.Millisecond}, Cause: events.CauseTimeout},
		&events.TestSkipped{TestInfo: info("d"), Reason: "later"},
		&events.TestNotRun{TestInfo: info("e")},
		&events.ErrorMessage{AssemblyID: "asm", ExceptionType: "*errors.errorString", Message: "boom"},
		&events.ExecutionSummary{
			AssemblyID: "asm", Assembly: "math", Cancelled: true,
			Summary: events.Summary{Totals: events.Totals{Total: 5, Failed: 1, Skipped: 1, NotRun: 1}, Errors: 1, Elapsed: 2 * time.Second},
		},
	}
	for _, ev := range evs {
		if !s.Interested(ev.Kind()) {
			continue
		}
		ok, err := s.OnEvent(ev)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func gather(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func TestSink_Aggregate(t *testing.T) {
	s := NewSink()
	run(t, s)

	a := s.Aggregate()
	assert.Equal(t, int64(5), a.TotalTests)
	assert.Equal(t, int64(2), a.PassedCount)
	assert.Equal(t, int64(1), a.FailedCount)
	assert.Equal(t, int64(1), a.SkippedCount)
	assert.Equal(t, int64(1), a.NotRunCount)
	assert.Equal(t, int64(1), a.ErrorCount)
	assert.True(t, a.Cancelled)
	assert.Equal(t, 10.0, a.MinDurationMs)
	assert.Equal(t, 30.0, a.MaxDurationMs)
	assert.Equal(t, 20.0, a.AvgDurationMs)
	assert.InDelta(t, 20.0, a.P50DurationMs, 0.1)
	assert.InDelta(t, 30.0, a.P99DurationMs, 0.1)

	require.Contains(t, a.ByAssembly, "math")
	assert.Equal(t, 2000.0, a.ByAssembly["math"].ElapsedMs)
}

func TestSink_Interested(t *testing.T) {
	s := NewSink()
	assert.True(t, s.Interested(events.KindTestFailed))
	assert.False(t, s.Interested(events.KindTestOutput))
	assert.False(t, s.Interested(events.KindTestStarting))
}

func TestPrometheusExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "testhost.prom")
	exp := NewPrometheusExporter(WithTextfile(path))
	s := NewSink(exp)
	run(t, s)
	require.NoError(t, s.Close())

	reg := exp.Registry()
	assert.Equal(t, 2.0, gather(t, reg, "testhost_tests_total", map[string]string{"assembly": "math", "result": "passed"}))
	assert.Equal(t, 1.0, gather(t, reg, "testhost_tests_total", map[string]string{"assembly": "math", "result": "notrun"}))
	assert.Equal(t, 3.0, gather(t, reg, "testhost_test_duration_seconds", map[string]string{"assembly": "math"}))
	assert.Equal(t, 1.0, gather(t, reg, "testhost_assembly_tests", map[string]string{"assembly": "math", "result": "failed"}))
	assert.Equal(t, 2.0, gather(t, reg, "testhost_assembly_elapsed_seconds", map[string]string{"assembly": "math"}))
	assert.Equal(t, 1.0, gather(t, reg, "testhost_run_cancelled", nil))
	assert.Equal(t, 1.0, gather(t, reg, "testhost_errors", nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `testhost_tests_total{assembly="math",result="failed"} 1`)
	assert.Contains(t, string(data), "# TYPE testhost_test_duration_seconds histogram")
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSink(NewJSONExporter(WithJSONWriter(&buf), WithJSONPretty(false), WithJSONClock(func() time.Time { return clock })))
	run(t, s)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	doc := buf.String()
	require.True(t, gjson.Valid(doc))
	assert.Equal(t, "2026-01-02T03:04:05Z", gjson.Get(doc, "generated_at").String())
	assert.Equal(t, 0.0, gjson.Get(doc, "wall_ms").Float())
	assert.True(t, gjson.Get(doc, "cancelled").Bool())
	assert.Equal(t, int64(5), gjson.Get(doc, "counts.total").Int())
	assert.Equal(t, int64(1), gjson.Get(doc, "counts.errors").Int())
	assert.Equal(t, int64(3), gjson.Get(doc, "durations.samples").Int())
	assert.InDelta(t, 20.0, gjson.Get(doc, "durations.p50_ms").Float(), 0.1)
	assert.Equal(t, []string{"c", "b", "a"}, names(gjson.Get(doc, "slowest.#.test_name")))

	require.Equal(t, int64(1), gjson.Get(doc, "assemblies.#").Int())
	asm := gjson.Get(doc, "assemblies.0")
	assert.Equal(t, "math", asm.Get("name").String())
	assert.Equal(t, 2000.0, asm.Get("elapsed_ms").Float())
	assert.True(t, asm.Get("cancelled").Bool())
	assert.Equal(t, int64(2), asm.Get("counts.passed").Int())
	assert.Equal(t, int64(1), asm.Get("counts.not_run").Int())
	assert.Equal(t, int64(1), asm.Get("counts.errors").Int())
	assert.Equal(t, 10.0, asm.Get("durations.min_ms").Float())
	assert.Equal(t, 20.0, asm.Get("durations.mean_ms").Float())
	assert.Equal(t, 30.0, asm.Get("durations.max_ms").Float())
	assert.Equal(t, int64(5), asm.Get("tests.#").Int())
	assert.Equal(t, "timeout", asm.Get("tests.2.cause").String())
}

func names(r gjson.Result) []string {
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}

func TestJSONExporter_SectionPerAssembly(t *testing.T) {
	exp := NewJSONExporter()
	for _, m := range []*TestMetrics{
		{Assembly: "text", TestName: "Joins", Result: ResultPassed, Duration: 4 * time.Millisecond, DurationMs: 4},
		{Assembly: "math", TestName: "Adds", Result: ResultPassed, Duration: 2 * time.Millisecond, DurationMs: 2},
		{Assembly: "text", TestName: "Splits", Result: ResultFailed, Duration: 8 * time.Millisecond, DurationMs: 8},
		{Assembly: "text", TestName: "Later", Result: ResultSkipped},
	} {
		require.NoError(t, exp.ExportSingle(m))
	}

	rep := exp.Report(&AggregateMetrics{
		TotalTests: 4,
		ByAssembly: map[string]*AssemblyAggregate{
			"text":  {Name: "text", Total: 3, Failed: 1, Skipped: 1, ElapsedMs: 12},
			"empty": {Name: "empty", Cancelled: true},
		},
	})

	require.Len(t, rep.Assemblies, 3)
	assert.Equal(t, "text", rep.Assemblies[0].Name, "first finished test decides the order")
	assert.Equal(t, "math", rep.Assemblies[1].Name)
	assert.Equal(t, "empty", rep.Assemblies[2].Name)

	text := rep.Assemblies[0]
	assert.Equal(t, Counts{Total: 3, Passed: 1, Failed: 1, Skipped: 1}, text.Counts)
	assert.Equal(t, int64(2), text.Durations.Samples, "skipped tests carry no duration")
	assert.Equal(t, 6.0, text.Durations.Mean)
	assert.Equal(t, 12.0, text.ElapsedMs)

	empty := rep.Assemblies[2]
	assert.True(t, empty.Cancelled)
	assert.Empty(t, empty.Tests)
	assert.NotNil(t, empty.Tests)
	assert.Equal(t, Durations{}, empty.Durations)

	require.Len(t, rep.Slowest, 3)
	assert.Equal(t, "Splits", rep.Slowest[0].TestName)
	assert.Equal(t, "Adds", rep.Slowest[2].TestName)
}

func TestJSONExporter_ReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "metrics.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	exp := NewJSONExporter(WithJSONFile(path))
	require.NoError(t, exp.Export(&AggregateMetrics{TotalTests: 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gjson.GetBytes(data, "counts.total").Int())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestForFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "metrics.json")
	s := ForFile(jsonPath)
	run(t, s)
	require.NoError(t, s.Close())
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, int64(5), gjson.GetBytes(data, "counts.total").Int())

	promPath := filepath.Join(dir, "metrics.prom")
	s = ForFile(promPath)
	run(t, s)
	require.NoError(t, s.Close())
	data, err = os.ReadFile(promPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "testhost_run_cancelled 1")
}
