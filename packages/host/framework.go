// Package host bridges a test platform to the runner. The platform opens a
// session, sends discovery and run requests against it, and closes it; node
// updates and report artifacts flow back through a Publisher.
package host

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/framework"
	"github.com/abdul-hamid-achik/testhost/packages/core/options"
	"github.com/abdul-hamid-achik/testhost/packages/core/runner"
	"github.com/abdul-hamid-achik/testhost/packages/core/session"
	"github.com/abdul-hamid-achik/testhost/packages/export/metrics"
	"github.com/abdul-hamid-achik/testhost/packages/history"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
	"github.com/abdul-hamid-achik/testhost/packages/output"
	"github.com/abdul-hamid-achik/testhost/packages/sink"
)

// RequestKind selects what a request does
type RequestKind string

const (
	RequestDiscover RequestKind = "discover"
	RequestRun      RequestKind = "run"
)

// Request is one discovery or run request against a session
type Request struct {
	Kind RequestKind
	// Options are the command line options the platform parsed
	Options options.Structured
	// TestCaseIDs restricts the request to these cases when not empty
	TestCaseIDs []string
}

// Response is what a completed request produced
type Response struct {
	Result    *runner.Result
	Artifacts []Artifact
}

// Framework executes requests from a test platform
type Framework struct {
	source    framework.Source
	publisher Publisher
	sessions  *session.Manager
	lggr      logger.Logger
	version   string
	base      *config.Config
	resolve   []options.ResolveOption
	runOpts   []runner.Option
}

// Option configures a Framework
type Option func(*Framework)

// WithLogger sets the logger
func WithLogger(lggr logger.Logger) Option {
	return func(f *Framework) {
		f.lggr = lggr
	}
}

// WithVersion sets the version written into reports
func WithVersion(version string) Option {
	return func(f *Framework) {
		f.version = version
	}
}

// WithBaseConfig sets the configuration request options are applied on top of
func WithBaseConfig(cfg *config.Config) Option {
	return func(f *Framework) {
		f.base = cfg
	}
}

// WithResolveOptions passes extra options to option resolution
func WithResolveOptions(opts ...options.ResolveOption) Option {
	return func(f *Framework) {
		f.resolve = append(f.resolve, opts...)
	}
}

// WithRunnerOptions passes extra options to every runner
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(f *Framework) {
		f.runOpts = append(f.runOpts, opts...)
	}
}

// New creates a Framework discovering tests from source
func New(source framework.Source, publisher Publisher, opts ...Option) *Framework {
	f := &Framework{
		source:    source,
		publisher: publisher,
		sessions:  session.NewManager(),
		version:   "dev",
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.lggr == nil {
		f.lggr = logger.Nop()
	}
	if f.base == nil {
		f.base = config.DefaultConfig()
	}
	// theories are split into one node per row unless the request says otherwise
	if f.base.PreEnumerateTheories == nil {
		f.base = f.base.Clone()
		f.base.PreEnumerateTheories = config.BoolPtr(true)
	}
	return f
}

// CreateSession opens a session
func (f *Framework) CreateSession(id string) error {
	if err := f.sessions.Create(id); err != nil {
		return err
	}
	f.lggr.Debugw("session created", "session", id)
	return nil
}

// CloseSession closes a session, blocking until its in-flight requests finish
func (f *Framework) CloseSession(ctx context.Context, id string) error {
	if err := f.sessions.Close(ctx, id); err != nil {
		return err
	}
	f.lggr.Debugw("session closed", "session", id)
	return nil
}

// ValidateOption validates one platform option in isolation
func (f *Framework) ValidateOption(name string, args []string) error {
	return options.ValidateArguments(name, args)
}

// ExecuteRequest runs req against an open session. ctx is the platform's
// cancellation token: once it is done no new test starts, and tests already
// running finish with their own result.
func (f *Framework) ExecuteRequest(ctx context.Context, sessionID string, req Request) (*Response, error) {
	done, err := f.sessions.Begin(sessionID)
	if err != nil {
		return nil, err
	}
	defer done()

	if req.Kind != RequestDiscover && req.Kind != RequestRun {
		return nil, fmt.Errorf("unknown request kind %q", req.Kind)
	}

	src := req.Options
	if src == nil {
		src = options.Map{}
	}
	resolveOpts := append([]options.ResolveOption{options.WithBase(f.base)}, f.resolve...)
	cfg, err := options.ResolveStructured(src, resolveOpts...)
	if err != nil {
		return nil, err
	}

	lggr := f.lggr.With("session", sessionID, "request", string(req.Kind))
	sinks := []sink.Sink{&nodeSink{sessionID: sessionID, publisher: f.publisher}}

	var reports *output.ReportSink
	if req.Kind == RequestRun {
		extra, rs, err := FileSinks(cfg, f.version)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, extra...)
		reports = rs
	}

	bus := sink.New(sinks, sink.WithLogger(lggr))
	runOpts := append([]runner.Option{
		runner.WithLogger(lggr),
		runner.WithTestCaseIDs(req.TestCaseIDs),
		runner.WithCPUs(runtime.NumCPU()),
	}, f.runOpts...)
	r := runner.NewRunner(cfg, f.source, bus, runOpts...)

	var result *runner.Result
	var runErr error
	switch req.Kind {
	case RequestDiscover:
		result, runErr = r.Discover(ctx)
	case RequestRun:
		result, runErr = r.Run(ctx)
	}
	closeErr := bus.Close()

	resp := &Response{Result: result}
	if reports != nil {
		for _, out := range reports.Written() {
			artifact := Artifact{
				SessionID:   sessionID,
				Path:        out.Path,
				DisplayName: filepath.Base(out.Path),
				Description: strings.ToUpper(out.Kind) + " report",
			}
			if err := f.publisher.PublishArtifact(artifact); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("publishing artifact %s: %w", out.Path, err))
				continue
			}
			resp.Artifacts = append(resp.Artifacts, artifact)
		}
	}

	return resp, errors.Join(runErr, closeErr)
}

// FileSinks builds the sinks that write files at the end of a run: reports,
// the metrics file and the history database. The report sink is nil when no
// report is enabled.
func FileSinks(cfg *config.Config, version string) ([]sink.Sink, *output.ReportSink, error) {
	var sinks []sink.Sink
	var reports *output.ReportSink

	if outputs := cfg.SortedOutputs(); len(outputs) > 0 {
		rs, err := output.NewReportSink(outputs, output.WithVersion(version))
		if err != nil {
			return nil, nil, err
		}
		reports = rs
		sinks = append(sinks, rs)
	}
	if cfg.MetricsFile != "" {
		sinks = append(sinks, metrics.ForFile(cfg.MetricsFile))
	}
	if cfg.History != "" {
		store, err := history.Open(cfg.History)
		if err != nil {
			return nil, nil, fmt.Errorf("opening history: %w", err)
		}
		sinks = append(sinks, history.NewSink(store))
	}
	return sinks, reports, nil
}
