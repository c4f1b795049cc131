// Package notify posts a run summary to chat webhooks once a run ends.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
)

// DefaultTimeout bounds each webhook call
const DefaultTimeout = 10 * time.Second

// maxFailures caps the failures listed in one message
const maxFailures = 10

// Summary is what a Notifier receives at the end of a run
type Summary struct {
	Assemblies []string
	Total      int
	Passed     int
	Failed     int
	Skipped    int
	NotRun     int
	Errors     int
	Elapsed    time.Duration
	Cancelled  bool
	Failures   []Failure
	// Truncated counts failures left out of Failures
	Truncated int
}

// Failure is one failed test
type Failure struct {
	Name     string
	Location string
	Message  string
}

// Success reports whether the run had no failures and no errors
func (s *Summary) Success() bool {
	return s.Failed == 0 && s.Errors == 0
}

// Title is the one-line headline shared by every notifier
func (s *Summary) Title() string {
	switch {
	case s.Cancelled:
		return fmt.Sprintf("Run cancelled after %d test(s)", s.Total)
	case s.Failed > 0:
		return fmt.Sprintf("%d test(s) failed", s.Failed)
	case s.Errors > 0:
		return fmt.Sprintf("%d error(s) during the run", s.Errors)
	}
	return "All tests passed!"
}

// Notifier delivers a Summary to one service
type Notifier interface {
	Name() string
	Notify(ctx context.Context, summary *Summary) error
}

// ShouldNotify applies a notification policy to a summary
func ShouldNotify(on string, s *Summary) bool {
	switch on {
	case config.NotifyAlways:
		return true
	case config.NotifySuccess:
		return s.Success() && !s.Cancelled
	default:
		return !s.Success()
	}
}

// FromConfig returns the notifiers a config enables
func FromConfig(cfg *config.NotifyConfig) []Notifier {
	if cfg == nil {
		return nil
	}
	var out []Notifier
	if cfg.Slack != "" {
		var opts []SlackOption
		if cfg.SlackChannel != "" {
			opts = append(opts, WithSlackChannel(cfg.SlackChannel))
		}
		out = append(out, NewSlackNotifier(cfg.Slack, opts...))
	}
	if cfg.Teams != "" {
		out = append(out, NewTeamsNotifier(cfg.Teams))
	}
	return out
}

// Sink builds a Summary from the event stream and hands it to its notifiers
// when the run is closed. Delivery failures are logged, they never fail
// the run.
type Sink struct {
	notifiers []Notifier
	on        string
	lggr      logger.Logger
	timeout   time.Duration

	mu       sync.Mutex
	summary  Summary
	failures []Failure
	closed   bool
}

type SinkOption func(*Sink)

func WithLogger(l logger.Logger) SinkOption {
	return func(s *Sink) {
		s.lggr = l
	}
}

func WithTimeout(d time.Duration) SinkOption {
	return func(s *Sink) {
		s.timeout = d
	}
}

// NewSink creates a Sink notifying according to policy on
func NewSink(on string, notifiers []Notifier, opts ...SinkOption) *Sink {
	s := &Sink{
		notifiers: notifiers,
		on:        on,
		lggr:      logger.Nop(),
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Name() string { return "notify" }

func (s *Sink) Interested(kind events.Kind) bool {
	return kind == events.KindTestFailed || kind == events.KindExecutionSummary
}

func (s *Sink) OnEvent(ev events.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case *events.TestFailed:
		f := Failure{Name: e.DisplayName}
		if e.SourceFile != "" {
			f.Location = fmt.Sprintf("%s:%d", e.SourceFile, e.SourceLine)
		}
		if len(e.Messages) > 0 {
			f.Message = firstLine(stripansi.Strip(e.Messages[0]))
		}
		s.failures = append(s.failures, f)
	case *events.ExecutionSummary:
		sum := e.Summary
		s.summary.Assemblies = append(s.summary.Assemblies, e.Assembly)
		s.summary.Total += sum.Total
		s.summary.Failed += sum.Failed
		s.summary.Skipped += sum.Skipped
		s.summary.NotRun += sum.NotRun
		s.summary.Errors += sum.Errors
		s.summary.Elapsed = max(s.summary.Elapsed, sum.Elapsed)
		s.summary.Cancelled = s.summary.Cancelled || e.Cancelled
	}
	return true, nil
}

// Summary returns the summary collected so far
func (s *Sink) Summary() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

func (s *Sink) snapshot() *Summary {
	out := s.summary
	out.Passed = out.Total - out.Failed - out.Skipped - out.NotRun

	failures := append([]Failure(nil), s.failures...)
	sort.Slice(failures, func(i, j int) bool { return failures[i].Name < failures[j].Name })
	if len(failures) > maxFailures {
		out.Truncated = len(failures) - maxFailures
		failures = failures[:maxFailures]
	}
	out.Failures = failures
	return &out
}

// Close sends the summary when the policy asks for it
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	summary := s.snapshot()
	s.mu.Unlock()

	if len(summary.Assemblies) == 0 || !ShouldNotify(s.on, summary) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var errs []error
	for _, n := range s.notifiers {
		if err := n.Notify(ctx, summary); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n.Name(), err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.lggr.Warnw("failed to send notification", "err", err)
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
