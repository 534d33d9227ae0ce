package call

import (
	"github.com/pkg/errors"

	callmodel "github.com/zhouzirui/tara-call/backend/internal/model/call"
)

// Transition names an edge of the session state machine.
type Transition string

const (
	TransitionConnect    Transition = "connect"
	TransitionJoined     Transition = "joined"
	TransitionFail       Transition = "fail"
	TransitionDisconnect Transition = "disconnect"
	TransitionExpire     Transition = "expire"
	TransitionSubmit     Transition = "submit"
	TransitionSkip       Transition = "skip"
	// TransitionReset is the terminal edge back to Idle once the post-feedback delay elapses.
	TransitionReset Transition = "reset"
)

var ErrInvalidTransition = errors.New("invalid transition")

var transitions = map[callmodel.State]map[Transition]callmodel.State{
	callmodel.StateIdle: {
		TransitionConnect: callmodel.StateConnecting,
	},
	callmodel.StateError: {
		TransitionConnect: callmodel.StateConnecting,
	},
	callmodel.StateConnecting: {
		TransitionJoined: callmodel.StateInCall,
		TransitionFail:   callmodel.StateError,
	},
	callmodel.StateInCall: {
		TransitionDisconnect: callmodel.StateFeedbackCapture,
		TransitionExpire:     callmodel.StateFeedbackCapture,
	},
	callmodel.StateFeedbackCapture: {
		TransitionSubmit: callmodel.StateDone,
		TransitionSkip:   callmodel.StateIdle,
	},
	callmodel.StateDone: {
		TransitionReset: callmodel.StateIdle,
	},
}

// Next returns the state reached by applying t in from.
func Next(from callmodel.State, t Transition) (callmodel.State, error) {
	to, ok := transitions[from][t]
	if !ok {
		return from, errors.Wrapf(ErrInvalidTransition, "%s from %s", t, from)
	}
	return to, nil
}
