// Package state defines the acquisition lifecycle state machine and the
// process-wide operating mode.
package state

import "fmt"

// AcquisitionState represents the lifecycle state of an acquisition run.
type AcquisitionState int

const (
	// StateIdle is the resting state; a new run may be started.
	StateIdle AcquisitionState = iota
	// StateRunning indicates the background worker is imaging.
	StateRunning
	// StatePaused indicates the worker is parked between FOVs.
	StatePaused
	// StateAborting indicates a stop was requested and the worker is unwinding.
	StateAborting
	// StateCompleted indicates the run visited every FOV of the plan.
	StateCompleted
	// StateAborted indicates the run was stopped on request.
	StateAborted
	// StateFailed indicates the run ended on a fatal error.
	StateFailed
)

// String returns the string representation of the state.
func (s AcquisitionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StatePaused:
		return "Paused"
	case StateAborting:
		return "Aborting"
	case StateCompleted:
		return "Completed"
	case StateAborted:
		return "Aborted"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines the allowed state transitions.
// Key is the current state, value is a list of valid target states.
var validTransitions = map[AcquisitionState][]AcquisitionState{
	StateIdle:      {StateRunning},
	StateRunning:   {StatePaused, StateAborting, StateCompleted, StateFailed},
	StatePaused:    {StateRunning, StateAborting, StateFailed},
	StateAborting:  {StateAborted, StateFailed},
	StateCompleted: {StateIdle},
	StateAborted:   {StateIdle},
	StateFailed:    {StateIdle},
}

// CanTransitionTo checks if transitioning from the current state to the target state is valid.
func (s AcquisitionState) CanTransitionTo(target AcquisitionState) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// ValidTransitions returns the list of valid target states from the current state.
func (s AcquisitionState) ValidTransitions() []AcquisitionState {
	return validTransitions[s]
}

// IsTerminal returns true for the end-of-run states that fall back to Idle.
func (s AcquisitionState) IsTerminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// IsActive returns true while a worker owns the run.
func (s AcquisitionState) IsActive() bool {
	return s == StateRunning || s == StatePaused || s == StateAborting
}

// CanStart returns true if a new run may begin.
func (s AcquisitionState) CanStart() bool {
	return s == StateIdle
}

// CanPause returns true if the run can be paused.
func (s AcquisitionState) CanPause() bool {
	return s == StateRunning
}

// CanResume returns true if the run can be resumed.
func (s AcquisitionState) CanResume() bool {
	return s == StatePaused
}

// CanAbort returns true if a stop request is meaningful.
func (s AcquisitionState) CanAbort() bool {
	return s == StateRunning || s == StatePaused
}

// TransitionError represents an invalid state transition attempt.
type TransitionError struct {
	From   AcquisitionState
	To     AcquisitionState
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid state transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to AcquisitionState, reason string) *TransitionError {
	return &TransitionError{From: from, To: to, Reason: reason}
}
