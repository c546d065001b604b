package engine

import (
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
)

// EventKind classifies machine events.
type EventKind int

const (
	// EventTransition reports a state change.
	EventTransition EventKind = iota

	// EventPhase reports a change of timed sub-step.
	EventPhase

	// EventFaultsChanged reports a change of the evaluated fault set.
	EventFaultsChanged

	// EventRequestAccepted reports an operator request that was honoured.
	EventRequestAccepted

	// EventRequestRejected reports an operator request that was refused.
	EventRequestRejected

	// EventCrankFailed reports a crank window that expired without the engine catching.
	EventCrankFailed

	// EventFaultLatched reports a fault added while already in StateFault.
	EventFaultLatched
)

// String returns a human-readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventTransition:
		return "transition"
	case EventPhase:
		return "phase"
	case EventFaultsChanged:
		return "faults_changed"
	case EventRequestAccepted:
		return "request_accepted"
	case EventRequestRejected:
		return "request_rejected"
	case EventCrankFailed:
		return "crank_failed"
	case EventFaultLatched:
		return "fault_latched"
	default:
		return "unknown"
	}
}

// Event is one entry of the telemetry stream. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind  EventKind
	At    time.Time
	RunID string

	// State is the state after the event. From is set for transitions.
	State State
	From  State

	Phase     Phase
	FromPhase Phase

	// Faults is the active set for EventFaultsChanged, the latched set for a
	// transition into fault and the surfaced set for a rejection.
	Faults fault.Set

	Request Request
	Err     error

	// Attempt is the failed crank count for EventCrankFailed.
	Attempt int
	Rest    time.Duration
}

// Output is everything one Step produced: actuator commands, to be applied in
// order, and the events describing what happened.
type Output struct {
	Commands []actuator.Command
	Events   []Event
}

// Empty reports whether the step produced nothing.
func (o Output) Empty() bool {
	return len(o.Commands) == 0 && len(o.Events) == 0
}

// Transitions returns only the transition events.
func (o Output) Transitions() []Event {
	var out []Event
	for _, e := range o.Events {
		if e.Kind == EventTransition {
			out = append(out, e)
		}
	}
	return out
}
