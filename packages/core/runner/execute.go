package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abdul-hamid-achik/testhost/packages/core/config"
	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/core/framework"
)

const (
	failSkipType = "FAIL_SKIP"
	failWarnType = "FAIL_WARN"
	failWarnMsg  = "This test failed due to one or more warnings"
)

// runAssembly executes one planned assembly. AssemblyFinished and the
// ExecutionSummary are published even when the run was cancelled.
func (r *Runner) runAssembly(ctx context.Context, p *assemblyPlan, par parallelism, seed int, monitor *longRunningMonitor) (AssemblySummary, bool) {
	asm := p.asm
	start := r.now()
	agg := newAggregator(start)

	culture := ""
	if r.cfg.Culture != nil {
		culture = *r.cfg.Culture
		ctx = framework.WithCulture(ctx, culture)
	}

	r.emit(&events.AssemblyStarting{
		Ref:       events.Ref{AssemblyID: asm.ID},
		Name:      asm.Name,
		Path:      asm.Path,
		Seed:      seed,
		Culture:   culture,
		Parallel:  r.cfg.GetParallel(),
		Threads:   par.threads,
		StartTime: start,
	}, agg)

	var asmTotals totals
	results := make([]events.Totals, len(p.collections))

	var g errgroup.Group
	var slots chan struct{}
	switch {
	case par.aggressive && par.threads > 0:
		slots = make(chan struct{}, par.threads)
	case !par.aggressive && par.threads > 0:
		g.SetLimit(par.threads)
	}

	for i, coll := range p.collections {
		if r.cancelled() {
			break
		}
		g.Go(func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = &framework.PanicError{Value: rec, Stack: string(debug.Stack())}
				}
			}()
			results[i] = r.runCollection(ctx, asm, coll, agg, slots, monitor)
			return nil
		})
	}

	faulted := false
	if err := g.Wait(); err != nil {
		r.lggr.Errorw("execution failed", "assembly", asm.Name, "err", err)
		r.reportFault(asm.ID, err, agg)
		faulted = true
	}

	for _, t := range results {
		asmTotals.merge(t)
	}
	r.emit(&events.AssemblyFinished{
		Ref:        events.Ref{AssemblyID: asm.ID},
		Totals:     asmTotals.Totals,
		FinishTime: r.now(),
	}, agg)

	summary := agg.finalize(r.now())
	r.emit(&events.ExecutionSummary{
		AssemblyID: asm.ID,
		Assembly:   asm.Name,
		Summary:    summary,
		Cancelled:  r.cancelled(),
	}, nil)

	return AssemblySummary{AssemblyID: asm.ID, Name: asm.Name, Summary: summary}, faulted
}

// scope emits its starting event the first time one of its tests proceeds,
// so a collection or case reached only after cancellation stays silent
type scope struct {
	started bool
	start   func()
}

func (s *scope) open() {
	if !s.started {
		s.started = true
		s.start()
	}
}

func (r *Runner) runCollection(ctx context.Context, asm *framework.Assembly, coll *collectionPlan, agg *aggregator, slots chan struct{}, monitor *longRunningMonitor) events.Totals {
	ref := events.Ref{AssemblyID: asm.ID, CollectionID: coll.id}
	collScope := &scope{start: func() {
		r.emit(&events.CollectionStarting{Ref: ref, Name: coll.name}, agg)
	}}

	var t totals
	for _, pc := range coll.cases {
		if r.cancelled() {
			break
		}
		t.merge(r.runCase(ctx, ref, pc, agg, slots, monitor, collScope))
	}

	if collScope.started {
		r.emit(&events.CollectionFinished{Ref: ref, Totals: t.Totals}, agg)
	}
	return t.Totals
}

func (r *Runner) runCase(ctx context.Context, parent events.Ref, pc plannedCase, agg *aggregator, slots chan struct{}, monitor *longRunningMonitor, coll *scope) events.Totals {
	tc := pc.tc
	ref := parent
	ref.CaseID = tc.ID

	caseScope := &scope{start: func() {
		coll.open()
		r.emit(&events.CaseStarting{
			Ref:         ref,
			DisplayName: tc.DisplayName,
			Namespace:   tc.Namespace,
			Class:       tc.Class,
			Method:      tc.Method,
			Traits:      tc.Traits,
			SourceFile:  tc.SourceFile,
			SourceLine:  tc.SourceLine,
			Explicit:    tc.Explicit,
			SkipReason:  tc.SkipReason,
		}, agg)
	}}

	runsBody := r.explicitAllowed(tc) && tc.SkipReason == ""

	var t totals
	for n, row := range pc.rows() {
		if r.cancelled() {
			break
		}
		release, ok := r.acquire(slots, runsBody)
		if !ok {
			r.internalDiagnostic("Not starting '%s': run cancelled while waiting for a worker", pc.displayName(row))
			break
		}
		caseScope.open()
		testRef := ref
		testRef.TestID = framework.TestID(tc.ID, n)
		func() {
			defer release()
			r.runTest(ctx, testRef, pc, row, agg, &t, runsBody, monitor)
		}()
	}

	if caseScope.started {
		r.emit(&events.CaseFinished{Ref: ref, Totals: t.Totals}, agg)
	}
	return t.Totals
}

// acquire takes an aggressive-mode worker slot for a test that runs its
// body. ok is false when the run was cancelled while waiting, in which case
// no slot is held and the test must not start.
func (r *Runner) acquire(slots chan struct{}, runsBody bool) (release func(), ok bool) {
	if slots == nil || !runsBody {
		return func() {}, true
	}
	slots <- struct{}{}
	if r.cancelled() {
		<-slots
		return nil, false
	}
	return func() { <-slots }, true
}

func (r *Runner) runTest(ctx context.Context, ref events.Ref, pc plannedCase, row framework.Row, agg *aggregator, t *totals, runsBody bool, monitor *longRunningMonitor) {
	tc := pc.tc
	name := pc.displayName(row)

	send := func(ev events.Event) {
		r.emit(ev, agg)
		t.add(ev)
	}

	send(&events.TestStarting{
		TestInfo: events.TestInfo{
			Ref:         ref,
			DisplayName: name,
			Namespace:   tc.Namespace,
			Class:       tc.Class,
			Method:      tc.Method,
			Traits:      tc.Traits,
			SourceFile:  tc.SourceFile,
			SourceLine:  tc.SourceLine,
		},
		Explicit: tc.Explicit,
		Timeout:  tc.Timeout,
	})

	info := events.TestInfo{Ref: ref}
	var outcome events.Outcome

	switch {
	case !r.explicitAllowed(tc):
		send(&events.TestNotRun{TestInfo: info})
	case !runsBody:
		send(r.skipped(info, outcome, tc.SkipReason))
	default:
		if monitor != nil {
			monitor.track(ref.TestID, ref.AssemblyID, name)
		}
		outcome = r.invoke(ctx, ref, tc, row, info, send)
		if monitor != nil {
			monitor.untrack(ref.TestID)
		}
	}

	send(&events.TestFinished{
		TestInfo:   info,
		Outcome:    outcome,
		FinishTime: r.now(),
	})
}

func (r *Runner) explicitAllowed(tc *framework.TestCase) bool {
	switch r.cfg.GetExplicit() {
	case config.ExplicitOff:
		return !tc.Explicit
	case config.ExplicitOnly:
		return tc.Explicit
	default:
		return true
	}
}

func (r *Runner) skipped(info events.TestInfo, outcome events.Outcome, reason string) events.Event {
	if r.cfg.GetFailSkips() {
		return &events.TestFailed{
			TestInfo:       info,
			Outcome:        outcome,
			Cause:          events.CauseAssertion,
			ExceptionTypes: []string{failSkipType},
			Messages:       []string{reason},
		}
	}
	return &events.TestSkipped{TestInfo: info, Outcome: outcome, Reason: reason}
}

// invoke runs the body and sends its result. The returned outcome is what
// TestFinished carries. Bodies never see the run being cancelled: they keep
// the run's values and end on their own timeout or on the kill context.
func (r *Runner) invoke(ctx context.Context, ref events.Ref, tc *framework.TestCase, row framework.Row, info events.TestInfo, send func(events.Event)) events.Outcome {
	bodyCtx, cancel := r.bodyContext(ctx)
	defer cancel()
	if tc.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		bodyCtx, cancelTimeout = context.WithTimeout(bodyCtx, tc.Timeout)
		defer cancelTimeout()
	}

	t := framework.NewT(row, func(line string) {
		send(&events.TestOutput{TestInfo: events.TestInfo{Ref: ref}, Output: line})
	})

	start := r.now()
	err := framework.Invoke(bodyCtx, tc.Body, t)
	outcome := events.Outcome{
		ExecutionTime: r.now().Sub(start),
		Output:        t.Output(),
		Warnings:      t.Warnings(),
	}

	var skip *framework.SkipError
	switch {
	case err == nil && r.cfg.GetFailWarns() && len(outcome.Warnings) > 0:
		send(&events.TestFailed{
			TestInfo:       info,
			Outcome:        outcome,
			Cause:          events.CauseAssertion,
			ExceptionTypes: []string{failWarnType},
			Messages:       []string{failWarnMsg},
		})
	case err == nil:
		send(&events.TestPassed{TestInfo: info, Outcome: outcome})
	case errors.As(err, &skip):
		send(r.skipped(info, outcome, skip.Reason))
	case tc.Timeout > 0 && errors.Is(context.Cause(bodyCtx), context.DeadlineExceeded):
		send(&events.TestFailed{
			TestInfo: info,
			Outcome:  outcome,
			Cause:    events.CauseTimeout,
			Messages: []string{fmt.Sprintf("Test execution timed out after %d milliseconds", tc.Timeout.Milliseconds())},
		})
	default:
		send(failure(info, outcome, err))
	}
	return outcome
}

// bodyContext detaches ctx from run cancellation. The body still ends when
// the kill context set by WithKillContext is done.
func (r *Runner) bodyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	bodyCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if r.kill == nil {
		return bodyCtx, cancel
	}
	stop := context.AfterFunc(r.kill, cancel)
	return bodyCtx, func() {
		stop()
		cancel()
	}
}

// failure describes err and every cause beneath it
func failure(info events.TestInfo, outcome events.Outcome, err error) *events.TestFailed {
	ev := &events.TestFailed{
		TestInfo: info,
		Outcome:  outcome,
		Cause:    events.CauseException,
	}
	var assertion *framework.AssertionError
	if errors.As(err, &assertion) {
		ev.Cause = events.CauseAssertion
	}
	for _, cause := range unwind(err) {
		ev.ExceptionTypes = append(ev.ExceptionTypes, typeName(cause))
		ev.Messages = append(ev.Messages, cause.Error())
		ev.StackTraces = append(ev.StackTraces, stackOf(cause))
	}
	return ev
}

// elapsed formats d as hh:mm:ss
func elapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
