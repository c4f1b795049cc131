package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/correlation"
	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/core/framework"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
	"github.com/abdul-hamid-achik/testhost/packages/sink"
)

// Runner drives discovery and execution of the cases produced by a Source
// and streams correlated events to a FanOut. A Runner is good for one call
// to Run or Discover.
type Runner struct {
	cfg        *config.Config
	source     framework.Source
	bus        *sink.FanOut
	lggr       logger.Logger
	cpus       int
	caseIDs    map[string]struct{}
	now        func() time.Time
	correlator *correlation.Correlator
	kill       context.Context
	longRun    time.Duration
	internal   bool

	state *stateMachine

	mu    sync.Mutex
	fault error
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger
func WithLogger(lggr logger.Logger) Option {
	return func(r *Runner) {
		r.lggr = lggr
	}
}

// WithCPUs overrides the number of hardware execution units
func WithCPUs(n int) Option {
	return func(r *Runner) {
		r.cpus = n
	}
}

// WithTestCaseIDs restricts execution to the given case ids, in addition to
// the configured filters
func WithTestCaseIDs(ids []string) Option {
	return func(r *Runner) {
		if len(ids) == 0 {
			return
		}
		r.caseIDs = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			r.caseIDs[id] = struct{}{}
		}
	}
}

// WithClock overrides the clock
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// WithKillContext sets a context whose cancellation aborts test bodies that
// are still running. Cancelling the context passed to Run only stops new
// tests from starting.
func WithKillContext(ctx context.Context) Option {
	return func(r *Runner) {
		r.kill = ctx
	}
}

// WithLongRunningThreshold enables long running test notices. It overrides
// the configured long-running seconds.
func WithLongRunningThreshold(d time.Duration) Option {
	return func(r *Runner) {
		r.longRun = d
	}
}

// NewRunner creates a Runner. cfg must be fully resolved; it is not modified.
func NewRunner(cfg *config.Config, source framework.Source, bus *sink.FanOut, opts ...Option) *Runner {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	r := &Runner{
		cfg:    cfg,
		source: source,
		bus:    bus,
		cpus:   runtime.NumCPU(),
		now:    time.Now,
	}
	if cfg.LongRunningSeconds > 0 {
		r.longRun = time.Duration(cfg.LongRunningSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.lggr == nil {
		r.lggr = logger.Nop()
	}
	r.correlator = correlation.New(
		correlation.WithDisplayFormatter(correlation.NewDisplayFormatter(cfg)),
		correlation.WithClock(r.now),
	)
	r.internal = cfg.GetInternalDiagnostics()
	r.state = &stateMachine{current: Idle, lggr: r.lggr}
	if r.internal {
		r.state.observe = func(from, to State) {
			r.internalDiagnostic("Runner state: %s -> %s", from, to)
		}
	}
	return r
}

// Result is the outcome of Run or Discover
type Result struct {
	Assemblies []AssemblySummary
	Total      events.Summary
	Seed       int
	Discovered int
	Cancelled  bool
	// Faulted is set when an error escaped discovery or execution
	Faulted bool
}

// FailureCount is what the caller maps to an exit status. A faulted run
// counts as exactly one failure.
func (r *Result) FailureCount() int {
	if r.Faulted {
		return 1
	}
	return r.Total.Failed + r.Total.Errors
}

// State returns the current lifecycle state
func (r *Runner) State() State {
	return r.state.get()
}

// States returns every state entered so far, in order
func (r *Runner) States() []State {
	return r.state.trail()
}

// Run discovers, filters and executes. The returned error is non-nil only
// when a sink faulted; the result is populated either way.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if err := r.state.to(Discovering); err != nil {
		return nil, err
	}
	defer r.watch(ctx)()

	result := &Result{Seed: r.seed()}

	assemblies, err := r.source.Discover(ctx)
	if err != nil {
		r.lggr.Errorw("discovery failed", "err", err)
		r.reportFault("", fmt.Errorf("discovering tests: %w", err), nil)
		result.Faulted = true
		return r.finish(result)
	}

	if r.cancelled() || r.state.to(Filtering) != nil {
		return r.finish(result)
	}
	plans := make([]*assemblyPlan, 0, len(assemblies))
	for _, asm := range assemblies {
		plans = append(plans, r.plan(asm, result.Seed))
	}

	par := r.parallelism()
	r.lggr.Debugw("resolved parallelism",
		"parallel", r.cfg.GetParallel(),
		"algorithm", r.cfg.GetParallelAlgorithm(),
		"threads", par.threads,
		"seed", result.Seed,
	)
	r.internalDiagnostic("Scheduling: parallel=%s, algorithm=%s, threads=%s, seed=%d",
		r.cfg.GetParallel(), r.cfg.GetParallelAlgorithm(), par.describe(), result.Seed)
	for _, p := range plans {
		r.internalDiagnostic("Planned '%s': %d collection(s), %d test case(s)",
			p.asm.Name, len(p.collections), p.caseCount())
	}

	// a failed transition means cancellation won the race
	if r.cancelled() || r.state.to(Executing) != nil {
		return r.finish(result)
	}

	var monitor *longRunningMonitor
	if r.longRun > 0 {
		monitor = newLongRunningMonitor(r.longRun, r.now, r.emitDiagnostic)
		go monitor.run(ctx)
		defer monitor.stop()
	}

	for _, p := range plans {
		summary, faulted := r.runAssembly(ctx, p, par, result.Seed, monitor)
		result.Assemblies = append(result.Assemblies, summary)
		result.Total.Add(summary.Summary)
		if faulted {
			result.Faulted = true
		}
	}

	return r.finish(result)
}

// Discover reports the cases a run would execute without running them
func (r *Runner) Discover(ctx context.Context) (*Result, error) {
	if err := r.state.to(Discovering); err != nil {
		return nil, err
	}
	defer r.watch(ctx)()

	result := &Result{Seed: r.seed()}

	assemblies, err := r.source.Discover(ctx)
	if err != nil {
		r.reportFault("", fmt.Errorf("discovering tests: %w", err), nil)
		result.Faulted = true
		return r.finish(result)
	}
	if r.cancelled() || r.state.to(Filtering) != nil {
		return r.finish(result)
	}

	for _, asm := range assemblies {
		p := r.plan(asm, result.Seed)
		n := 0
		for _, coll := range p.collections {
			for _, pc := range coll.cases {
				if r.cancelled() {
					break
				}
				tc := pc.tc
				r.emit(&events.CaseDiscovered{
					Ref:         events.Ref{AssemblyID: asm.ID, CollectionID: coll.id, CaseID: tc.ID},
					DisplayName: tc.DisplayName,
					Namespace:   tc.Namespace,
					Class:       tc.Class,
					Method:      tc.Method,
					Traits:      tc.Traits,
					SourceFile:  tc.SourceFile,
					SourceLine:  tc.SourceLine,
					Explicit:    tc.Explicit,
					SkipReason:  tc.SkipReason,
				}, nil)
				n++
			}
		}
		r.emit(&events.DiscoveryComplete{
			Ref:            events.Ref{AssemblyID: asm.ID},
			TestCasesToRun: n,
		}, nil)
		result.Discovered += n
	}

	return r.finish(result)
}

func (r *Runner) finish(result *Result) (*Result, error) {
	if err := r.state.to(Draining); err != nil {
		return nil, err
	}
	result.Cancelled = r.cancelled()
	if err := r.state.to(Completed); err != nil {
		return nil, err
	}

	r.mu.Lock()
	fault := r.fault
	r.mu.Unlock()
	return result, fault
}

// watch cancels the run when ctx is done. A context that is already done
// cancels before any work starts.
func (r *Runner) watch(ctx context.Context) func() bool {
	if ctx.Err() != nil {
		r.cancel("cancellation requested")
	}
	return context.AfterFunc(ctx, func() { r.cancel("cancellation requested") })
}

func (r *Runner) seed() int {
	if r.cfg.Seed != nil {
		return *r.cfg.Seed
	}
	return rand.IntN(config.MaxSeed)
}

// cancel sets the shared flag and moves to Cancelling. Work already running
// is left to finish.
func (r *Runner) cancel(reason string) {
	first := r.bus.Flag().Cancel()
	if r.state.tryCancel() || first {
		r.lggr.Infow("cancelling run", "reason", reason)
	}
}

func (r *Runner) cancelled() bool {
	return r.bus.Flag().Cancelled()
}

// emit correlates ev, folds it into agg and dispatches it. It reports
// whether the run should continue.
func (r *Runner) emit(ev events.Event, agg *aggregator) bool {
	ev = r.correlator.Correlate(ev)
	if agg != nil {
		agg.observe(ev)
	}

	ok, err := r.bus.Dispatch(ev)
	if err != nil {
		r.recordFault(err)
		r.cancel("sink fault")
		return false
	}
	if _, failed := ev.(*events.TestFailed); failed && r.cfg.GetStopOnFail() {
		if r.bus.Flag().Cancel() {
			r.lggr.Infow("Cancelling due to test failure...")
		}
		r.state.tryCancel()
		return false
	}
	if !ok {
		r.cancel("sink requested stop")
	}
	return ok
}

func (r *Runner) emitDiagnostic(assemblyID, msg string) {
	r.emit(&events.Diagnostic{AssemblyID: assemblyID, Message: msg}, nil)
}

// internalDiagnostic reports runner internals when internal diagnostics are on
func (r *Runner) internalDiagnostic(format string, args ...any) {
	if !r.internal {
		return
	}
	r.emit(&events.InternalDiagnostic{Message: fmt.Sprintf(format, args...)}, nil)
}

// recordFault keeps the first sink fault; it becomes Run's error
func (r *Runner) recordFault(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var cf *sink.ConsumerFaultError
	if !errors.As(err, &cf) {
		err = &sink.ConsumerFaultError{Sink: "fan-out", Err: err}
	}
	if r.fault == nil {
		r.fault = err
		r.lggr.Errorw("sink fault", "err", err)
	}
}
