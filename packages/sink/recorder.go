package sink

import (
	"sync"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
)

// Recorder keeps every event it receives; used by list mode and tests
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	closed bool
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Name() string { return "recorder" }

func (r *Recorder) OnEvent(ev events.Event) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return true, nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Events returns a snapshot of the recorded events
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Closed reports whether Close has been called
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Func adapts a function into a Sink
type Func struct {
	SinkName string
	Fn       func(events.Event) (bool, error)
	Kinds    []events.Kind
}

func (f *Func) Name() string { return f.SinkName }

func (f *Func) OnEvent(ev events.Event) (bool, error) { return f.Fn(ev) }

func (f *Func) Close() error { return nil }

// Interested restricts delivery to Kinds when set
func (f *Func) Interested(kind events.Kind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}
