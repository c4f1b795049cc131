package output

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/acarl005/stripansi"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// Status is the final state of a single test
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
	StatusNotRun  Status = "notrun"
)

// TestResult is one test as seen by the report writers
type TestResult struct {
	TestID         string
	DisplayName    string
	Namespace      string
	Class          string
	Method         string
	Traits         map[string][]string
	SourceFile     string
	SourceLine     int
	Status         Status
	Cause          events.FailureCause
	ExceptionTypes []string
	Messages       []string
	StackTraces    []string
	Reason         string
	Output         string
	Warnings       []string
	Duration       time.Duration
	StartTime      time.Time
}

// Message returns the first failure message, or the skip reason
func (r *TestResult) Message() string {
	if len(r.Messages) > 0 {
		return r.Messages[0]
	}
	return r.Reason
}

// ExceptionType returns the outermost failure type
func (r *TestResult) ExceptionType() string {
	if len(r.ExceptionTypes) > 0 {
		return r.ExceptionTypes[0]
	}
	return ""
}

// StackTrace returns the outermost stack trace
func (r *TestResult) StackTrace() string {
	if len(r.StackTraces) > 0 {
		return r.StackTraces[0]
	}
	return ""
}

// CollectionResult groups the tests of one collection
type CollectionResult struct {
	ID    string
	Name  string
	Tests []*TestResult
	events.Totals
}

// Passed counts the passing tests
func (c *CollectionResult) Passed() int {
	return c.Total - c.Failed - c.Skipped - c.NotRun
}

// Percentiles are test duration percentiles
type Percentiles struct {
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration
}

// AssemblyResult is everything known about one assembly at the end of a run
type AssemblyResult struct {
	ID          string
	Name        string
	Path        string
	Seed        int
	Culture     string
	StartTime   time.Time
	FinishTime  time.Time
	Collections []*CollectionResult
	Errors      []*events.ErrorMessage
	Summary     events.Summary
	Cancelled   bool
	Durations   Percentiles

	histogram *hdrhistogram.Histogram
}

// Passed counts the passing tests
func (a *AssemblyResult) Passed() int {
	return a.Summary.Total - a.Summary.Failed - a.Summary.Skipped - a.Summary.NotRun
}

// Tests returns every test of the assembly in collection order
func (a *AssemblyResult) Tests() []*TestResult {
	var out []*TestResult
	for _, c := range a.Collections {
		out = append(out, c.Tests...)
	}
	return out
}

// Collector folds the event stream into per-assembly results. Test output is
// kept without ANSI escapes.
type Collector struct {
	mu          sync.Mutex
	assemblies  []*AssemblyResult
	byID        map[string]*AssemblyResult
	collections map[string]*CollectionResult
}

// NewCollector creates an empty Collector
func NewCollector() *Collector {
	return &Collector{
		byID:        make(map[string]*AssemblyResult),
		collections: make(map[string]*CollectionResult),
	}
}

// Observe folds ev into the results
func (c *Collector) Observe(ev events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case *events.AssemblyStarting:
		asm := c.assembly(e.AssemblyID)
		asm.Name = e.Name
		asm.Path = e.Path
		asm.Seed = e.Seed
		asm.Culture = e.Culture
		asm.StartTime = e.StartTime
	case *events.AssemblyFinished:
		c.assembly(e.AssemblyID).FinishTime = e.FinishTime
	case *events.CollectionStarting:
		c.collection(e.AssemblyID, e.CollectionID).Name = e.Name
	case *events.CollectionFinished:
		c.collection(e.AssemblyID, e.CollectionID).Totals = e.Totals
	case *events.TestPassed:
		c.add(&e.TestInfo, &e.Outcome, StatusPassed)
	case *events.TestFailed:
		r := c.add(&e.TestInfo, &e.Outcome, StatusFailed)
		r.Cause = e.Cause
		r.ExceptionTypes = e.ExceptionTypes
		r.Messages = e.Messages
		r.StackTraces = e.StackTraces
	case *events.TestSkipped:
		c.add(&e.TestInfo, &e.Outcome, StatusSkipped).Reason = e.Reason
	case *events.TestNotRun:
		c.add(&e.TestInfo, &e.Outcome, StatusNotRun)
	case *events.ErrorMessage:
		if e.AssemblyID != "" {
			asm := c.assembly(e.AssemblyID)
			asm.Errors = append(asm.Errors, e)
		}
	case *events.ExecutionSummary:
		asm := c.assembly(e.AssemblyID)
		if asm.Name == "" {
			asm.Name = e.Assembly
		}
		asm.Summary = e.Summary
		asm.Cancelled = e.Cancelled
		if asm.histogram != nil && asm.histogram.TotalCount() > 0 {
			asm.Durations = Percentiles{
				P50: time.Duration(asm.histogram.ValueAtQuantile(50)) * time.Microsecond,
				P95: time.Duration(asm.histogram.ValueAtQuantile(95)) * time.Microsecond,
				P99: time.Duration(asm.histogram.ValueAtQuantile(99)) * time.Microsecond,
				Max: time.Duration(asm.histogram.Max()) * time.Microsecond,
			}
		}
	}
}

// Assemblies returns the results in the order assemblies started
func (c *Collector) Assemblies() []*AssemblyResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*AssemblyResult(nil), c.assemblies...)
}

// Total sums the summaries of every assembly
func (c *Collector) Total() events.Summary {
	var total events.Summary
	for _, asm := range c.Assemblies() {
		total.Add(asm.Summary)
	}
	return total
}

func (c *Collector) assembly(id string) *AssemblyResult {
	if asm, ok := c.byID[id]; ok {
		return asm
	}
	asm := &AssemblyResult{
		ID: id,
		// 1us to 1h, 3 significant digits
		histogram: hdrhistogram.New(1, int64(time.Hour/time.Microsecond), 3),
	}
	c.byID[id] = asm
	c.assemblies = append(c.assemblies, asm)
	return asm
}

func (c *Collector) collection(assemblyID, id string) *CollectionResult {
	if col, ok := c.collections[id]; ok {
		return col
	}
	col := &CollectionResult{ID: id}
	c.collections[id] = col
	asm := c.assembly(assemblyID)
	asm.Collections = append(asm.Collections, col)
	return col
}

func (c *Collector) add(info *events.TestInfo, outcome *events.Outcome, status Status) *TestResult {
	r := &TestResult{
		TestID:      info.TestID,
		DisplayName: info.DisplayName,
		Namespace:   info.Namespace,
		Class:       info.Class,
		Method:      info.Method,
		Traits:      info.Traits,
		SourceFile:  info.SourceFile,
		SourceLine:  info.SourceLine,
		StartTime:   info.StartTime,
		Status:      status,
		Output:      stripansi.Strip(outcome.Output),
		Warnings:    outcome.Warnings,
		Duration:    outcome.ExecutionTime,
	}

	col := c.collection(info.AssemblyID, info.CollectionID)
	col.Tests = append(col.Tests, r)

	if status == StatusPassed || status == StatusFailed {
		us := outcome.ExecutionTime.Microseconds()
		if us < 1 {
			us = 1
		}
		_ = c.assembly(info.AssemblyID).histogram.RecordValue(us)
	}
	return r
}
