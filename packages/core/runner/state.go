package runner

import (
	"fmt"
	"sync"

	"github.com/abdul-hamid-achik/testhost/packages/logger"
)

// State is the orchestrator lifecycle state
type State int

const (
	Idle State = iota
	Discovering
	Filtering
	Executing
	Cancelling
	Draining
	Completed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Discovering:
		return "Discovering"
	case Filtering:
		return "Filtering"
	case Executing:
		return "Executing"
	case Cancelling:
		return "Cancelling"
	case Draining:
		return "Draining"
	case Completed:
		return "Completed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var transitions = map[State][]State{
	Idle:        {Discovering},
	Discovering: {Filtering, Cancelling, Draining},
	Filtering:   {Executing, Cancelling, Draining},
	Executing:   {Cancelling, Draining},
	Cancelling:  {Draining},
	Draining:    {Completed},
}

type stateMachine struct {
	mu      sync.Mutex
	current State
	history []State
	lggr    logger.Logger
	observe func(from, to State)
}

func (m *stateMachine) get() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// to moves to next; an illegal transition is a programming error
func (m *stateMachine) to(next State) error {
	m.mu.Lock()
	from := m.current
	allowed := false
	for _, s := range transitions[from] {
		if s == next {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return fmt.Errorf("illegal state transition %s -> %s", from, next)
	}
	m.current = next
	m.history = append(m.history, next)
	observe := m.observe
	m.mu.Unlock()

	m.lggr.Debugw("state change", "from", from.String(), "to", next.String())
	if observe != nil {
		observe(from, next)
	}
	return nil
}

// tryCancel moves to Cancelling when the current state allows it
func (m *stateMachine) tryCancel() bool {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()
	if cur != Discovering && cur != Filtering && cur != Executing {
		return false
	}
	return m.to(Cancelling) == nil
}

func (m *stateMachine) trail() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]State(nil), m.history...)
}
