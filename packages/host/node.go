package host

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// NodeState is the state a test node is reported in
type NodeState string

const (
	StateDiscovered NodeState = "discovered"
	StateInProgress NodeState = "in-progress"
	StatePassed     NodeState = "passed"
	StateFailed     NodeState = "failed"
	StateError      NodeState = "error"
	StateTimeout    NodeState = "timeout"
	StateSkipped    NodeState = "skipped"
)

// NotRunExplanation is the skip explanation of a test that was selected but not run
const NotRunExplanation = "Test was not run"

// NodeUpdate is the state change of one test node
type NodeUpdate struct {
	SessionID     string              `json:"sessionUid"`
	UID           string              `json:"uid"`
	DisplayName   string              `json:"displayName"`
	State         NodeState           `json:"state"`
	Explanation   string              `json:"explanation,omitempty"`
	ExceptionType string              `json:"exceptionType,omitempty"`
	Message       string              `json:"message,omitempty"`
	StackTrace    string              `json:"stackTrace,omitempty"`
	DurationMs    float64             `json:"durationMs,omitempty"`
	Output        string              `json:"standardOutput,omitempty"`
	Class         string              `json:"class,omitempty"`
	Method        string              `json:"method,omitempty"`
	Traits        map[string][]string `json:"traits,omitempty"`
	SourceFile    string              `json:"sourceFile,omitempty"`
	SourceLine    int                 `json:"sourceLine,omitempty"`
}

// Artifact is a file produced by a session
type Artifact struct {
	SessionID   string `json:"sessionUid"`
	Path        string `json:"path"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
}

// Publisher receives what a session produces
type Publisher interface {
	PublishNode(update NodeUpdate) error
	PublishArtifact(artifact Artifact) error
}

// JSONLines writes every update and artifact as one JSON object per line
type JSONLines struct {
	mu sync.Mutex
	w  io.Writer
}

// NewJSONLines creates a JSONLines publisher writing to w
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w}
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (j *JSONLines) PublishNode(update NodeUpdate) error {
	return j.write(envelope{Type: "node", Data: update})
}

func (j *JSONLines) PublishArtifact(artifact Artifact) error {
	return j.write(envelope{Type: "artifact", Data: artifact})
}

func (j *JSONLines) write(v envelope) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", v.Type, err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err = j.w.Write(append(data, '\n'))
	return err
}

// nodeSink turns test events into node updates
type nodeSink struct {
	sessionID string
	publisher Publisher
}

func (s *nodeSink) Name() string { return "host" }

func (s *nodeSink) Interested(kind events.Kind) bool {
	switch kind {
	case events.KindCaseDiscovered, events.KindTestStarting, events.KindTestPassed,
		events.KindTestFailed, events.KindTestSkipped, events.KindTestNotRun:
		return true
	default:
		return false
	}
}

func (s *nodeSink) OnEvent(ev events.Event) (bool, error) {
	update, ok := s.translate(ev)
	if !ok {
		return true, nil
	}
	if err := s.publisher.PublishNode(update); err != nil {
		return false, err
	}
	return true, nil
}

func (s *nodeSink) Close() error { return nil }

func (s *nodeSink) translate(ev events.Event) (NodeUpdate, bool) {
	switch e := ev.(type) {
	case *events.CaseDiscovered:
		return NodeUpdate{
			SessionID:   s.sessionID,
			UID:         e.CaseID,
			DisplayName: e.DisplayName,
			State:       StateDiscovered,
			Explanation: e.SkipReason,
			Class:       e.Class,
			Method:      e.Method,
			Traits:      e.Traits,
			SourceFile:  e.SourceFile,
			SourceLine:  e.SourceLine,
		}, true
	case *events.TestStarting:
		return s.update(&e.TestInfo, nil, StateInProgress), true
	case *events.TestPassed:
		return s.update(&e.TestInfo, &e.Outcome, StatePassed), true
	case *events.TestFailed:
		u := s.update(&e.TestInfo, &e.Outcome, failedState(e.Cause))
		if len(e.ExceptionTypes) > 0 {
			u.ExceptionType = e.ExceptionTypes[0]
		}
		if len(e.Messages) > 0 {
			u.Message = e.Messages[0]
		}
		if len(e.StackTraces) > 0 {
			u.StackTrace = e.StackTraces[0]
		}
		return u, true
	case *events.TestSkipped:
		u := s.update(&e.TestInfo, &e.Outcome, StateSkipped)
		u.Explanation = e.Reason
		return u, true
	case *events.TestNotRun:
		u := s.update(&e.TestInfo, &e.Outcome, StateSkipped)
		u.Explanation = NotRunExplanation
		return u, true
	}
	return NodeUpdate{}, false
}

func (s *nodeSink) update(info *events.TestInfo, outcome *events.Outcome, state NodeState) NodeUpdate {
	u := NodeUpdate{
		SessionID:   s.sessionID,
		UID:         info.CaseID,
		DisplayName: info.DisplayName,
		State:       state,
		Class:       info.Class,
		Method:      info.Method,
		Traits:      info.Traits,
		SourceFile:  info.SourceFile,
		SourceLine:  info.SourceLine,
	}
	if outcome != nil {
		u.DurationMs = float64(outcome.ExecutionTime) / float64(time.Millisecond)
		u.Output = outcome.Output
	}
	return u
}

func failedState(cause events.FailureCause) NodeState {
	switch cause {
	case events.CauseAssertion:
		return StateFailed
	case events.CauseTimeout:
		return StateTimeout
	default:
		return StateError
	}
}
