// Package sink fans correlated lifecycle events out to consumers.
//
// Consumers are invoked in registration order, one event at a time. The
// aggregated result of a dispatch is true only when every consumer asked to
// continue and the shared cancellation flag is not set.
package sink

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/logger"
)

// ErrNotSerializable marks an event a consumer cannot represent; it is
// swallowed by the fan-out for that consumer only
var ErrNotSerializable = events.ErrNotSerializable

// Sink consumes the event stream. Close is called exactly once, after the
// last event has been delivered.
type Sink interface {
	Name() string
	OnEvent(ev events.Event) (bool, error)
	Close() error
}

// Interested is implemented by sinks that only want some event kinds
type Interested interface {
	Interested(kind events.Kind) bool
}

// ConsumerFaultError wraps an unexpected consumer failure; it aborts the run
type ConsumerFaultError struct {
	Sink string
	Err  error
}

func (e *ConsumerFaultError) Error() string {
	return fmt.Sprintf("sink %s failed: %v", e.Sink, e.Err)
}

func (e *ConsumerFaultError) Unwrap() error {
	return e.Err
}

// Flag is the run-wide cancellation flag
type Flag struct {
	cancelled atomic.Bool
}

// Cancel sets the flag; it reports whether this call was the one that set it
func (f *Flag) Cancel() bool {
	return f.cancelled.CompareAndSwap(false, true)
}

// Cancelled reports whether the flag is set
func (f *Flag) Cancelled() bool {
	return f.cancelled.Load()
}

// FanOut delivers every event to every interested sink
type FanOut struct {
	mu     sync.Mutex
	sinks  []Sink
	flag   *Flag
	lggr   logger.Logger
	closed bool
}

// Option configures a FanOut
type Option func(*FanOut)

// WithFlag shares an existing cancellation flag
func WithFlag(flag *Flag) Option {
	return func(f *FanOut) {
		f.flag = flag
	}
}

// WithLogger sets the logger used for swallowed events
func WithLogger(lggr logger.Logger) Option {
	return func(f *FanOut) {
		f.lggr = lggr
	}
}

// New creates a FanOut over sinks
func New(sinks []Sink, opts ...Option) *FanOut {
	f := &FanOut{sinks: append([]Sink(nil), sinks...)}
	for _, opt := range opts {
		opt(f)
	}
	if f.flag == nil {
		f.flag = &Flag{}
	}
	if f.lggr == nil {
		f.lggr = logger.Nop()
	}
	return f
}

// Add registers another sink at the end of the chain
func (f *FanOut) Add(s Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, s)
}

// Flag returns the cancellation flag
func (f *FanOut) Flag() *Flag {
	return f.flag
}

// Dispatch delivers ev. It is safe to call from many goroutines.
//
// The lock is held across every sink, so each sink sees events one at a
// time and all sinks see them in the same order. A sink that blocks, like
// the sync automated sink waiting for an acknowledgement, stalls every
// worker until it returns; sync mode relies on that back-pressure.
func (f *FanOut) Dispatch(ev events.Event) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false, errors.New("dispatch after close")
	}

	cont := true
	for _, s := range f.sinks {
		if in, ok := s.(Interested); ok && !in.Interested(ev.Kind()) {
			continue
		}
		ok, err := s.OnEvent(ev)
		if err != nil {
			if errors.Is(err, ErrNotSerializable) {
				f.lggr.Debugw("event not serializable", "sink", s.Name(), "kind", ev.Kind())
				continue
			}
			return false, &ConsumerFaultError{Sink: s.Name(), Err: err}
		}
		if !ok {
			cont = false
		}
	}

	return cont && !f.flag.Cancelled(), nil
}

// Close closes every sink in order and joins their errors
func (f *FanOut) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
