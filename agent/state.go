package agent

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// State is the phase of a run.
type State string

const (
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

var transitions = map[State][]State{
	StateAwaitingModel:  {StateExecutingTools, StateDone, StateFailed},
	StateExecutingTools: {StateAwaitingModel, StateFailed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// stateMachine tracks the phase of one run.
type stateMachine struct {
	current State
	logger  zerolog.Logger
}

func newStateMachine(logger zerolog.Logger) *stateMachine {
	return &stateMachine{current: StateAwaitingModel, logger: logger}
}

func (m *stateMachine) State() State {
	return m.current
}

// transition moves to next, rejecting moves the state graph does not allow.
func (m *stateMachine) transition(next State) error {
	if !lo.Contains(transitions[m.current], next) {
		return fmt.Errorf("invalid state transition %s -> %s", m.current, next)
	}
	m.logger.Debug().Str("from", string(m.current)).Str("to", string(next)).Msg("State transition")
	m.current = next
	return nil
}

// fail moves to StateFailed from any non-terminal state.
func (m *stateMachine) fail() {
	if m.current.Terminal() {
		return
	}
	_ = m.transition(StateFailed)
}
