package history

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/google/uuid"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// Sink writes every result of a run to a Store. It owns the store and
// closes it with the run.
type Sink struct {
	store *Store
	runID string
	now   func() time.Time

	mu         sync.Mutex
	begun      bool
	assemblies map[string]string
	seeds      map[string]int
	total      events.Summary
	cancelled  bool
	closed     bool
}

type SinkOption func(*Sink)

func WithRunID(id string) SinkOption {
	return func(s *Sink) {
		s.runID = id
	}
}

func WithClock(now func() time.Time) SinkOption {
	return func(s *Sink) {
		s.now = now
	}
}

// NewSink creates a Sink writing to store
func NewSink(store *Store, opts ...SinkOption) *Sink {
	s := &Sink{
		store:      store,
		runID:      uuid.NewString(),
		now:        time.Now,
		assemblies: make(map[string]string),
		seeds:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunID identifies the run in the store
func (s *Sink) RunID() string { return s.runID }

func (s *Sink) Name() string { return "history" }

func (s *Sink) Interested(kind events.Kind) bool {
	switch kind {
	case events.KindAssemblyStarting, events.KindTestPassed, events.KindTestFailed,
		events.KindTestSkipped, events.KindTestNotRun, events.KindExecutionSummary:
		return true
	default:
		return false
	}
}

func (s *Sink) OnEvent(ev events.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.begin(); err != nil {
		return false, err
	}

	switch e := ev.(type) {
	case *events.AssemblyStarting:
		s.assemblies[e.AssemblyID] = e.Name
		s.seeds[e.AssemblyID] = e.Seed
		return true, nil
	case *events.TestPassed:
		return true, s.store.RecordTest(s.row(&e.TestInfo, &e.Outcome, "passed", "", ""))
	case *events.TestFailed:
		msg := ""
		if len(e.Messages) > 0 {
			msg = e.Messages[0]
		}
		return true, s.store.RecordTest(s.row(&e.TestInfo, &e.Outcome, "failed", string(e.Cause), msg))
	case *events.TestSkipped:
		return true, s.store.RecordTest(s.row(&e.TestInfo, &e.Outcome, "skipped", "", e.Reason))
	case *events.TestNotRun:
		return true, s.store.RecordTest(s.row(&e.TestInfo, &e.Outcome, "notrun", "", ""))
	case *events.ExecutionSummary:
		s.total.Add(e.Summary)
		s.cancelled = s.cancelled || e.Cancelled
		return true, s.store.RecordAssembly(AssemblyRow{
			RunID:     s.runID,
			Name:      e.Assembly,
			Seed:      s.seeds[e.AssemblyID],
			Total:     e.Summary.Total,
			Failed:    e.Summary.Failed,
			Skipped:   e.Summary.Skipped,
			NotRun:    e.Summary.NotRun,
			Errors:    e.Summary.Errors,
			ElapsedMs: float64(e.Summary.Elapsed) / float64(time.Millisecond),
			Cancelled: e.Cancelled,
		})
	}
	return true, nil
}

func (s *Sink) begin() error {
	if s.begun {
		return nil
	}
	s.begun = true
	return s.store.BeginRun(s.runID, s.now())
}

func (s *Sink) row(info *events.TestInfo, outcome *events.Outcome, result, cause, message string) TestRow {
	return TestRow{
		RunID:       s.runID,
		Assembly:    s.assemblies[info.AssemblyID],
		TestID:      info.TestID,
		DisplayName: info.DisplayName,
		Class:       info.Class,
		Method:      info.Method,
		Result:      result,
		Cause:       cause,
		Message:     stripansi.Strip(message),
		DurationMs:  float64(outcome.ExecutionTime) / float64(time.Millisecond),
		Output:      strings.TrimRight(stripansi.Strip(outcome.Output), "\n"),
	}
}

// Close stores the run totals and closes the store
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.begin(); err != nil {
		errs = append(errs, err)
	} else {
		errs = append(errs, s.store.FinishRun(Run{
			ID:         s.runID,
			FinishedAt: s.now(),
			Total:      s.total.Total,
			Failed:     s.total.Failed,
			Skipped:    s.total.Skipped,
			NotRun:     s.total.NotRun,
			Errors:     s.total.Errors,
			Cancelled:  s.cancelled,
		}))
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}
