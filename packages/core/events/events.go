// Package events defines the closed set of lifecycle events produced while
// discovering and running tests.
//
// Every event belongs to exactly one of the types in this package; consumers
// handle them with a type switch. Per test the order is always
// TestStarting, any TestOutput, one result (TestPassed, TestFailed,
// TestSkipped or TestNotRun), then TestFinished.
package events

import (
	"errors"
	"time"
)

// Kind is the stable wire name of an event type
type Kind string

const (
	KindAssemblyStarting   Kind = "assembly-starting"
	KindAssemblyFinished   Kind = "assembly-finished"
	KindCollectionStarting Kind = "collection-starting"
	KindCollectionFinished Kind = "collection-finished"
	KindCaseStarting       Kind = "case-starting"
	KindCaseFinished       Kind = "case-finished"
	KindCaseDiscovered     Kind = "case-discovered"
	KindTestStarting       Kind = "test-starting"
	KindTestPassed         Kind = "test-passed"
	KindTestFailed         Kind = "test-failed"
	KindTestSkipped        Kind = "test-skipped"
	KindTestNotRun         Kind = "test-not-run"
	KindTestFinished       Kind = "test-finished"
	KindTestOutput         Kind = "test-output"
	KindDiagnostic         Kind = "diagnostic"
	KindInternalDiagnostic Kind = "internal-diagnostic"
	KindError              Kind = "error"
	KindExecutionSummary   Kind = "execution-summary"
	KindDiscoveryComplete  Kind = "discovery-complete"
)

// ErrNotSerializable is returned when an event has no machine-readable form
var ErrNotSerializable = errors.New("event is not serializable")

// Event is implemented only by the types in this package
type Event interface {
	Kind() Kind
	isEvent()
}

// KeyKind identifies which logical entity a correlation key refers to
type KeyKind uint8

const (
	KeyAssembly KeyKind = iota + 1
	KeyCollection
	KeyCase
	KeyTest
)

func (k KeyKind) String() string {
	switch k {
	case KeyAssembly:
		return "assembly"
	case KeyCollection:
		return "collection"
	case KeyCase:
		return "case"
	case KeyTest:
		return "test"
	default:
		return "unknown"
	}
}

// Key is a correlation key
type Key struct {
	Kind KeyKind
	ID   string
}

// Ref carries the correlation ids of an event's ancestors
type Ref struct {
	AssemblyID   string `json:"assemblyId"`
	CollectionID string `json:"collectionId,omitempty"`
	CaseID       string `json:"caseId,omitempty"`
	TestID       string `json:"testId,omitempty"`
}

func (r Ref) AssemblyKey() Key   { return Key{Kind: KeyAssembly, ID: r.AssemblyID} }
func (r Ref) CollectionKey() Key { return Key{Kind: KeyCollection, ID: r.CollectionID} }
func (r Ref) CaseKey() Key       { return Key{Kind: KeyCase, ID: r.CaseID} }
func (r Ref) TestKey() Key       { return Key{Kind: KeyTest, ID: r.TestID} }

// TestInfo is the per-test metadata shared by every test level event.
// Only TestStarting is produced with it filled in; the correlator copies it
// onto later events for the same test.
type TestInfo struct {
	Ref
	DisplayName string              `json:"displayName,omitempty"`
	Namespace   string              `json:"namespace,omitempty"`
	Class       string              `json:"class,omitempty"`
	Method      string              `json:"method,omitempty"`
	Traits      map[string][]string `json:"traits,omitempty"`
	SourceFile  string              `json:"sourceFile,omitempty"`
	SourceLine  int                 `json:"sourceLine,omitempty"`
	StartTime   time.Time           `json:"startTime,omitzero"`
	// Correlated is false when no starting metadata was found
	Correlated bool `json:"-"`
}

// Info returns the metadata holder; promoted onto every test event
func (t *TestInfo) Info() *TestInfo { return t }

// TestEvent is any event addressed to a single test
type TestEvent interface {
	Event
	Info() *TestInfo
}

// Outcome holds what every test result carries
type Outcome struct {
	ExecutionTime time.Duration `json:"executionTime"`
	Output        string        `json:"output,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// FailureCause classifies a test failure
type FailureCause string

const (
	CauseAssertion FailureCause = "assertion"
	CauseException FailureCause = "exception"
	CauseTimeout   FailureCause = "timeout"
)

// Totals are the counters reported when a collection, case or assembly finishes
type Totals struct {
	Total         int           `json:"total"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	NotRun        int           `json:"notRun"`
	ExecutionTime time.Duration `json:"executionTime"`
}

// Summary is the aggregate for one assembly
type Summary struct {
	Totals
	Errors  int           `json:"errors"`
	Elapsed time.Duration `json:"elapsed"`
}

// Add folds o into s
func (s *Summary) Add(o Summary) {
	s.Total += o.Total
	s.Failed += o.Failed
	s.Skipped += o.Skipped
	s.NotRun += o.NotRun
	s.Errors += o.Errors
	s.ExecutionTime += o.ExecutionTime
	if o.Elapsed > s.Elapsed {
		s.Elapsed = o.Elapsed
	}
}

// AssemblyStarting opens an assembly
type AssemblyStarting struct {
	Ref
	Name      string    `json:"name"`
	Path      string    `json:"path,omitempty"`
	Seed      int       `json:"seed"`
	Culture   string    `json:"culture,omitempty"`
	Parallel  string    `json:"parallel,omitempty"`
	Threads   int       `json:"maxThreads"`
	StartTime time.Time `json:"startTime"`
}

// AssemblyFinished closes an assembly
type AssemblyFinished struct {
	Ref
	Totals
	FinishTime time.Time `json:"finishTime"`
}

// CollectionStarting opens a test collection
type CollectionStarting struct {
	Ref
	Name string `json:"name"`
}

// CollectionFinished closes a test collection
type CollectionFinished struct {
	Ref
	Totals
}

// CaseStarting opens a test case
type CaseStarting struct {
	Ref
	DisplayName string              `json:"displayName"`
	Namespace   string              `json:"namespace,omitempty"`
	Class       string              `json:"class,omitempty"`
	Method      string              `json:"method,omitempty"`
	Traits      map[string][]string `json:"traits,omitempty"`
	SourceFile  string              `json:"sourceFile,omitempty"`
	SourceLine  int                 `json:"sourceLine,omitempty"`
	Explicit    bool                `json:"explicit,omitempty"`
	SkipReason  string              `json:"skipReason,omitempty"`
}

// CaseFinished closes a test case
type CaseFinished struct {
	Ref
	Totals
}

// CaseDiscovered reports a case found during discovery
type CaseDiscovered struct {
	Ref
	DisplayName string              `json:"displayName"`
	Namespace   string              `json:"namespace,omitempty"`
	Class       string              `json:"class,omitempty"`
	Method      string              `json:"method,omitempty"`
	Traits      map[string][]string `json:"traits,omitempty"`
	SourceFile  string              `json:"sourceFile,omitempty"`
	SourceLine  int                 `json:"sourceLine,omitempty"`
	Explicit    bool                `json:"explicit,omitempty"`
	SkipReason  string              `json:"skipReason,omitempty"`
}

// DiscoveryComplete closes discovery for an assembly
type DiscoveryComplete struct {
	Ref
	TestCasesToRun int `json:"testCasesToRun"`
}

// TestStarting opens a single test
type TestStarting struct {
	TestInfo
	Explicit bool          `json:"explicit,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// TestPassed is a passing result
type TestPassed struct {
	TestInfo
	Outcome
}

// TestFailed is a failing result
type TestFailed struct {
	TestInfo
	Outcome
	Cause          FailureCause `json:"cause"`
	ExceptionTypes []string     `json:"exceptionTypes,omitempty"`
	Messages       []string     `json:"messages"`
	StackTraces    []string     `json:"stackTraces,omitempty"`
}

// TestSkipped is a skipped result
type TestSkipped struct {
	TestInfo
	Outcome
	Reason string `json:"reason"`
}

// TestNotRun is the result for a test that was selected but not executed
type TestNotRun struct {
	TestInfo
	Outcome
}

// TestFinished closes a single test
type TestFinished struct {
	TestInfo
	Outcome
	FinishTime time.Time `json:"finishTime"`
}

// TestOutput is live output written by a running test
type TestOutput struct {
	TestInfo
	Output string `json:"output"`
}

// Diagnostic is a user facing diagnostic message
type Diagnostic struct {
	AssemblyID string `json:"assemblyId,omitempty"`
	Message    string `json:"message"`
}

// InternalDiagnostic is a message about the runner itself
type InternalDiagnostic struct {
	Message string `json:"message"`
}

// ErrorMessage reports an error that escaped test execution
type ErrorMessage struct {
	AssemblyID    string `json:"assemblyId,omitempty"`
	ExceptionType string `json:"exceptionType"`
	Message       string `json:"message"`
	StackTrace    string `json:"stackTrace,omitempty"`
}

// ExecutionSummary is published once per assembly after its stream closes
type ExecutionSummary struct {
	AssemblyID string  `json:"assemblyId"`
	Assembly   string  `json:"assembly"`
	Summary    Summary `json:"summary"`
	Cancelled  bool    `json:"cancelled,omitempty"`
}

func (*AssemblyStarting) Kind() Kind   { return KindAssemblyStarting }
func (*AssemblyFinished) Kind() Kind   { return KindAssemblyFinished }
func (*CollectionStarting) Kind() Kind { return KindCollectionStarting }
func (*CollectionFinished) Kind() Kind { return KindCollectionFinished }
func (*CaseStarting) Kind() Kind       { return KindCaseStarting }
func (*CaseFinished) Kind() Kind       { return KindCaseFinished }
func (*CaseDiscovered) Kind() Kind     { return KindCaseDiscovered }
func (*DiscoveryComplete) Kind() Kind  { return KindDiscoveryComplete }
func (*TestStarting) Kind() Kind       { return KindTestStarting }
func (*TestPassed) Kind() Kind         { return KindTestPassed }
func (*TestFailed) Kind() Kind         { return KindTestFailed }
func (*TestSkipped) Kind() Kind        { return KindTestSkipped }
func (*TestNotRun) Kind() Kind         { return KindTestNotRun }
func (*TestFinished) Kind() Kind       { return KindTestFinished }
func (*TestOutput) Kind() Kind         { return KindTestOutput }
func (*Diagnostic) Kind() Kind         { return KindDiagnostic }
func (*InternalDiagnostic) Kind() Kind { return KindInternalDiagnostic }
func (*ErrorMessage) Kind() Kind       { return KindError }
func (*ExecutionSummary) Kind() Kind   { return KindExecutionSummary }

func (*AssemblyStarting) isEvent()   {}
func (*AssemblyFinished) isEvent()   {}
func (*CollectionStarting) isEvent() {}
func (*CollectionFinished) isEvent() {}
func (*CaseStarting) isEvent()       {}
func (*CaseFinished) isEvent()       {}
func (*CaseDiscovered) isEvent()     {}
func (*DiscoveryComplete) isEvent()  {}
func (*TestStarting) isEvent()       {}
func (*TestPassed) isEvent()         {}
func (*TestFailed) isEvent()         {}
func (*TestSkipped) isEvent()        {}
func (*TestNotRun) isEvent()         {}
func (*TestFinished) isEvent()       {}
func (*TestOutput) isEvent()         {}
func (*Diagnostic) isEvent()         {}
func (*InternalDiagnostic) isEvent() {}
func (*ErrorMessage) isEvent()       {}
func (*ExecutionSummary) isEvent()   {}

// IsResult reports whether ev is a terminal test result
func IsResult(ev Event) bool {
	switch ev.(type) {
	case *TestPassed, *TestFailed, *TestSkipped, *TestNotRun:
		return true
	default:
		return false
	}
}
