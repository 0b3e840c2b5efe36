package richlist

import (
	"github.com/looplab/fsm"
)

type State string

const (
	StateStopped  State = "STOPPED"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
)

const (
	EventRun  = "RUN"
	EventStop = "STOP"
	EventHalt = "HALT"
)

// NewFiniteStateMachine creates the scanner's state machine:
// STOPPED -RUN-> RUNNING -STOP-> STOPPING -HALT-> STOPPED
func NewFiniteStateMachine(opts ...func(*fsm.FSM)) *fsm.FSM {
	finiteStateMachine := fsm.NewFSM(
		string(StateStopped),
		fsm.Events{
			{
				Name: EventRun,
				Src:  []string{string(StateStopped)},
				Dst:  string(StateRunning),
			},
			{
				Name: EventStop,
				Src:  []string{string(StateRunning)},
				Dst:  string(StateStopping),
			},
			{
				Name: EventHalt,
				Src:  []string{string(StateStopping)},
				Dst:  string(StateStopped),
			},
		},
		fsm.Callbacks{},
	)

	for _, opt := range opts {
		opt(finiteStateMachine)
	}

	return finiteStateMachine
}
