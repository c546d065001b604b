package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
)

// Input is what the supervisor feeds the machine on one tick.
type Input struct {
	Now      time.Time
	Snapshot sensor.Snapshot

	// Faults is the evaluated health set for Snapshot.
	Faults fault.Set

	Request Request
}

// Machine is the engine state machine. It is not safe for concurrent use:
// one goroutine owns it and calls Step once per tick.
type Machine struct {
	cfg Config

	state        State
	phase        Phase
	phaseStarted time.Time
	restFor      time.Duration

	attempts   int
	runStarted time.Time
	runID      string

	active  fault.Set
	latched fault.Set

	outputs    actuator.Outputs
	alarmAcked bool

	rest     *RestSchedule
	newRunID func() string

	// out collects the result of the Step in progress.
	out *Output
	now time.Time
}

// NewMachine creates a machine in StateStopped with every output off.
func NewMachine(cfg Config) *Machine {
	return &Machine{
		cfg:      cfg,
		state:    StateStopped,
		phase:    PhaseNone,
		rest:     NewRestSchedule(cfg.Rest, 1),
		newRunID: uuid.NewString,
	}
}

// Config returns the machine configuration.
func (m *Machine) Config() Config {
	return m.cfg
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Phase returns the current timed sub-step.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Outputs returns the intended actuator levels.
func (m *Machine) Outputs() actuator.Outputs {
	return m.outputs
}

// SinceRun returns the time elapsed since the run timer was set. ok is false
// when the engine has not confirmed running in the current run.
func (m *Machine) SinceRun(now time.Time) (d time.Duration, ok bool) {
	if m.runStarted.IsZero() {
		return 0, false
	}
	return now.Sub(m.runStarted), true
}

// Evaluate runs the fault evaluator on s with the machine's thresholds and run
// timer. Oil pressure is only supervised while the engine is fuelled; it falls
// as expected once a stop sequence has cut the fuel.
func (m *Machine) Evaluate(now time.Time, s sensor.Snapshot) fault.Set {
	since, running := m.SinceRun(now)
	running = running && m.outputs.On(actuator.Fuel)
	return fault.Evaluate(m.cfg.Thresholds, s, since, running)
}

// Step advances the machine by one tick and returns the commands to apply and
// the events to report.
func (m *Machine) Step(in Input) Output {
	m.out = &Output{}
	m.now = in.Now
	defer func() { m.out = nil }()

	if !in.Faults.Equal(m.active) {
		m.active = in.Faults
		m.emit(Event{Kind: EventFaultsChanged, Faults: in.Faults})
	}

	m.escalate(in)

	if in.Request != RequestNone {
		m.handle(in)
	}

	m.advance(in.Snapshot)
	m.settle(in.Snapshot)

	return *m.out
}

// escalate moves an active engine into fault when the health set is not empty.
// A fault while starting aborts at once; later it unloads first. Kinds that
// appear while already faulted are latched and sound the alarm again.
func (m *Machine) escalate(in Input) {
	if in.Faults.Empty() {
		return
	}
	if m.state == StateFault {
		if !m.latched.Union(in.Faults).Equal(m.latched) {
			m.latch(in.Faults)
			m.alarmAcked = false
			m.setOutput(actuator.Alarm, true)
		}
		return
	}
	if !m.state.IsActive() {
		return
	}
	m.enterFault(in.Faults, m.state == StateStarting)
}

func (m *Machine) handle(in Input) {
	var err error
	var surfaced fault.Set

	switch in.Request {
	case RequestStart:
		surfaced, err = m.start(in)
	case RequestStop:
		err = m.stop()
	case RequestAck:
		err = m.ack()
	case RequestReset:
		err = m.reset()
	default:
		err = fmt.Errorf("unsupported request %d", int(in.Request))
	}

	if err != nil {
		m.emit(Event{Kind: EventRequestRejected, Request: in.Request, Err: err, Faults: surfaced})
		return
	}
	m.emit(Event{Kind: EventRequestAccepted, Request: in.Request})
}

// start applies the pre-start gate and begins glow pre-heat. A rejected start
// touches no actuator.
func (m *Machine) start(in Input) (fault.Set, error) {
	gate := fault.PreStart(m.cfg.Thresholds, in.Snapshot, m.state == StateRunning).Union(in.Faults)

	if m.state != StateStopped {
		return gate, fmt.Errorf("%w: state %s", ErrNotStopped, m.state)
	}
	if !gate.Empty() {
		return gate, fmt.Errorf("%w: %s", ErrPreStartFault, gate)
	}

	m.attempts = 0
	m.rest.Reset()
	m.runStarted = time.Time{}
	m.runID = m.newRunID()

	m.setState(StateStarting, fault.Set{})
	m.setOutput(actuator.Fuel, true)
	m.setOutput(actuator.GlowPlugs, true)
	m.setPhase(PhaseGlow)
	return fault.Set{}, nil
}

func (m *Machine) stop() error {
	if m.phase.IsStopping() {
		return ErrStopInProgress
	}
	switch m.state {
	case StateStarting:
		m.immediateStop()
	case StateWarmup, StateRunning:
		m.gracefulStop()
	default:
		return fmt.Errorf("%w: state %s", ErrNotRunning, m.state)
	}
	return nil
}

// ack silences the alarm. It also releases an unresolved stop so that a reset
// becomes possible; fuel stays cut.
func (m *Machine) ack() error {
	if m.state != StateFault {
		return fmt.Errorf("%w: state %s", ErrNotFaulted, m.state)
	}
	m.alarmAcked = true
	m.setOutput(actuator.Alarm, false)
	if m.phase == PhaseStopUnresolved {
		m.setPhase(PhaseNone)
	}
	return nil
}

// reset returns a finished fault to Stopped. It implies acknowledgment.
func (m *Machine) reset() error {
	if m.state != StateFault {
		return fmt.Errorf("%w: state %s", ErrNotFaulted, m.state)
	}
	if m.phase != PhaseNone {
		return fmt.Errorf("%w: phase %s", ErrStopInProgress, m.phase)
	}

	m.alarmAcked = false
	m.latched = fault.Set{}
	m.attempts = 0
	m.runStarted = time.Time{}
	m.allOff(false)
	m.setState(StateStopped, fault.Set{})
	return nil
}

// advance runs the timers of the current phase.
func (m *Machine) advance(s sensor.Snapshot) {
	elapsed := m.now.Sub(m.phaseStarted)
	idle := m.cfg.Thresholds.IdleRPM

	switch m.phase {
	case PhaseGlow:
		if elapsed >= m.cfg.GlowPeriod {
			m.setOutput(actuator.GlowPlugs, false)
			m.setOutput(actuator.Starter, true)
			m.setPhase(PhaseCrank)
		}

	case PhaseCrank:
		if s.RPM >= idle {
			m.setOutput(actuator.Starter, false)
			m.runStarted = m.now
			m.setPhase(PhaseNone)
			m.setState(StateWarmup, fault.Set{})
			return
		}
		if elapsed >= m.cfg.CrankTime {
			m.crankFailed()
		}

	case PhaseCrankRest:
		if elapsed >= m.restFor {
			m.setOutput(actuator.Starter, true)
			m.setPhase(PhaseCrank)
		}

	case PhaseUnload:
		if elapsed >= m.cfg.ShutdownDelay {
			m.setOutput(actuator.Fuel, false)
			m.setPhase(PhaseSpinDown)
		}

	case PhaseSpinDown:
		if s.RPM < idle {
			m.stopConfirmed()
			return
		}
		if elapsed >= m.cfg.ShutdownWait {
			m.stopUnresolved()
		}

	case PhaseNone:
		if m.state == StateWarmup && m.warmedUp(s) {
			m.setOutput(actuator.AltLoad, true)
			m.setOutput(actuator.CoolantPump, true)
			m.setState(StateRunning, fault.Set{})
		}
	}
}

// settle confirms a spin-down entered during this step when the engine is
// already below idle, so the next request sees the finished sequence.
func (m *Machine) settle(s sensor.Snapshot) {
	if m.phase == PhaseSpinDown && m.phaseStarted.Equal(m.now) && s.RPM < m.cfg.Thresholds.IdleRPM {
		m.stopConfirmed()
	}
}

func (m *Machine) warmedUp(s sensor.Snapshot) bool {
	since, _ := m.SinceRun(m.now)
	return s.CoolantTempC > m.cfg.MinCoolantTempC || since > m.cfg.WarmupPeriod
}

func (m *Machine) crankFailed() {
	m.setOutput(actuator.Starter, false)
	m.attempts++

	if m.attempts >= m.cfg.MaxRetries {
		m.emit(Event{Kind: EventCrankFailed, Attempt: m.attempts})
		m.enterFault(fault.NewSet(fault.StartFailed), true)
		return
	}

	m.restFor = m.rest.Next()
	m.emit(Event{Kind: EventCrankFailed, Attempt: m.attempts, Rest: m.restFor})
	m.setPhase(PhaseCrankRest)
}

// enterFault latches kinds, sounds the alarm and starts a stop sequence unless
// one is already running.
func (m *Machine) enterFault(kinds fault.Set, immediate bool) {
	m.latch(kinds)
	m.alarmAcked = false

	if m.state != StateFault {
		m.setState(StateFault, m.latched)
	}
	m.setOutput(actuator.Alarm, true)

	if m.phase.IsStopping() {
		return
	}
	if immediate {
		m.immediateStop()
	} else {
		m.gracefulStop()
	}
}

// Status returns a copy of the machine state for display.
func (m *Machine) Status() Status {
	return Status{
		State:        m.state,
		Phase:        m.phase,
		PhaseStarted: m.phaseStarted,
		ActiveFaults: m.active,
		Latched:      m.latched,
		Attempts:     m.attempts,
		MaxRetries:   m.cfg.MaxRetries,
		RunStarted:   m.runStarted,
		RunID:        m.runID,
		Outputs:      m.outputs,
		AlarmAcked:   m.alarmAcked,
	}
}

func (m *Machine) setState(to State, faults fault.Set) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.emit(Event{Kind: EventTransition, From: from, Faults: faults})
}

func (m *Machine) setPhase(p Phase) {
	from := m.phase
	m.phase = p
	m.phaseStarted = m.now
	if from != p {
		m.emit(Event{Kind: EventPhase, FromPhase: from})
	}
}

// setOutput records the intended level and emits a command only on change.
func (m *Machine) setOutput(n actuator.Name, on bool) {
	if m.outputs.On(n) == on {
		return
	}
	m.outputs = m.outputs.Apply(actuator.Command{Name: n, On: on})
	if m.out != nil {
		m.out.Commands = append(m.out.Commands, actuator.Command{Name: n, On: on})
	}
}

func (m *Machine) emit(e Event) {
	if m.out == nil {
		return
	}
	e.At = m.now
	e.RunID = m.runID
	e.State = m.state
	e.Phase = m.phase
	m.out.Events = append(m.out.Events, e)
}
