// Package engine implements the generator engine state machine.
//
// The machine is tick driven and never blocks. Every bounded wait of the start
// and stop sequences (glow pre-heat, crank window, crank rest, unloaded idle,
// spin-down) is an explicit Phase checked against the time passed to Step.
package engine

// State is the engine state. Exactly one state is active at any time.
type State int

const (
	// StateStopped means every actuator is off and a start may be requested.
	StateStopped State = iota

	// StateStarting covers glow pre-heat, cranking and the rest between cranks.
	StateStarting

	// StateWarmup means the engine runs unloaded until it reaches temperature.
	StateWarmup

	// StateRunning is normal operation with load and coolant pump enabled.
	StateRunning

	// StateFault is latched until an operator reset.
	StateFault
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateWarmup:
		return "warmup"
	case StateRunning:
		return "running"
	case StateFault:
		return "fault"
	default:
		return "unknown"
	}
}

// IsActive returns true if the engine is, or is about to be, turning under fuel.
func (s State) IsActive() bool {
	return s == StateStarting || s == StateWarmup || s == StateRunning
}

// States lists every state in declaration order.
func States() []State {
	return []State{StateStopped, StateStarting, StateWarmup, StateRunning, StateFault}
}

// Phase is the bounded sub-step the machine is currently timing.
type Phase int

const (
	// PhaseNone means no timed sub-step is in progress.
	PhaseNone Phase = iota

	// PhaseGlow heats the glow plugs before the first crank.
	PhaseGlow

	// PhaseCrank energizes the starter for at most the crank window.
	PhaseCrank

	// PhaseCrankRest is the pause between two crank attempts.
	PhaseCrankRest

	// PhaseUnload lets the engine idle without load before fuel is cut.
	PhaseUnload

	// PhaseSpinDown waits for rpm to fall below idle after fuel is cut.
	PhaseSpinDown

	// PhaseStopUnresolved holds fuel cut and the alarm on until acknowledged.
	PhaseStopUnresolved
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseNone:
		return "none"
	case PhaseGlow:
		return "glow"
	case PhaseCrank:
		return "crank"
	case PhaseCrankRest:
		return "crank_rest"
	case PhaseUnload:
		return "unload"
	case PhaseSpinDown:
		return "spin_down"
	case PhaseStopUnresolved:
		return "stop_unresolved"
	default:
		return "unknown"
	}
}

// IsStopping returns true while a stop sequence is in progress or unresolved.
func (p Phase) IsStopping() bool {
	return p == PhaseUnload || p == PhaseSpinDown || p == PhaseStopUnresolved
}

// Phases lists every phase in declaration order.
func Phases() []Phase {
	return []Phase{PhaseNone, PhaseGlow, PhaseCrank, PhaseCrankRest, PhaseUnload, PhaseSpinDown, PhaseStopUnresolved}
}
