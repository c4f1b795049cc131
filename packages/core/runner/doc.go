// Package runner is the execution orchestrator.
//
// A Runner discovers the cases of a framework.Source, applies filters, and
// schedules collections onto a bounded worker pool. Every lifecycle event
// passes through a correlation.Correlator and is then dispatched to a
// sink.FanOut; the shared sink.Flag is checked before each new test starts.
//
// The lifecycle of one run is
//
//	Idle -> Discovering -> Filtering -> Executing -> Draining -> Completed
//
// with Cancelling reachable from Discovering, Filtering and Executing on a
// cancelled context, a stop-on-fail trigger or a sink asking to stop.
// Per-assembly summaries are published even for cancelled runs.
package runner
