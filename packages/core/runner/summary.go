package runner

import (
	"sync"
	"time"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// AssemblySummary is the finalized summary of one assembly
type AssemblySummary struct {
	AssemblyID string
	Name       string
	Summary    events.Summary
}

// aggregator collects one assembly's counters from terminal events
type aggregator struct {
	mu      sync.Mutex
	summary events.Summary
	start   time.Time
}

func newAggregator(start time.Time) *aggregator {
	return &aggregator{start: start}
}

func (a *aggregator) observe(ev events.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e := ev.(type) {
	case *events.TestPassed:
		a.summary.Total++
	case *events.TestFailed:
		a.summary.Total++
		a.summary.Failed++
	case *events.TestSkipped:
		a.summary.Total++
		a.summary.Skipped++
	case *events.TestNotRun:
		a.summary.Total++
		a.summary.NotRun++
	case *events.TestFinished:
		a.summary.ExecutionTime += e.ExecutionTime
	case *events.ErrorMessage:
		a.summary.Errors++
	}
}

func (a *aggregator) finalize(now time.Time) events.Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Elapsed = now.Sub(a.start)
	return a.summary
}

// totals tracks the counters of one collection or case
type totals struct {
	events.Totals
}

func (t *totals) add(ev events.Event) {
	switch e := ev.(type) {
	case *events.TestPassed:
		t.Total++
	case *events.TestFailed:
		t.Total++
		t.Failed++
	case *events.TestSkipped:
		t.Total++
		t.Skipped++
	case *events.TestNotRun:
		t.Total++
		t.NotRun++
	case *events.TestFinished:
		t.ExecutionTime += e.ExecutionTime
	}
}

func (t *totals) merge(o events.Totals) {
	t.Total += o.Total
	t.Failed += o.Failed
	t.Skipped += o.Skipped
	t.NotRun += o.NotRun
	t.ExecutionTime += o.ExecutionTime
}
