package build

import (
	"fmt"
	"sync"
)

// State is a step of the build state machine.
type State string

const (
	StateIdle           State = "idle"
	StateEnumerating    State = "enumerating"
	StateRendering      State = "rendering"
	StateValidating     State = "validating"
	StateFeedGenerating State = "feed-generating"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

var transitions = map[State]State{
	StateIdle:           StateEnumerating,
	StateEnumerating:    StateRendering,
	StateRendering:      StateValidating,
	StateValidating:     StateFeedGenerating,
	StateFeedGenerating: StateDone,
}

// IsTerminal returns true if no transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// CanTransition reports whether the machine may move from s to next.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	return transitions[s] == next
}

// machine tracks the state of one build.
type machine struct {
	mu      sync.Mutex
	state   State
	history []State
	notify  func(State)
}

func newMachine(notify func(State)) *machine {
	return &machine{state: StateIdle, history: []State{StateIdle}, notify: notify}
}

func (m *machine) to(next State) error {
	m.mu.Lock()
	if !m.state.CanTransition(next) {
		cur := m.state
		m.mu.Unlock()
		return fmt.Errorf("invalid build state transition %s -> %s", cur, next)
	}
	m.state = next
	m.history = append(m.history, next)
	m.mu.Unlock()

	if m.notify != nil {
		m.notify(next)
	}
	return nil
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) trace() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}
