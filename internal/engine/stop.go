package engine

import (
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
)

// gracefulStop removes the load and lets the engine idle unloaded; advance
// cuts the fuel once the shutdown delay has passed.
func (m *Machine) gracefulStop() {
	m.setOutput(actuator.AltLoad, false)
	m.setOutput(actuator.Starter, false)
	m.setOutput(actuator.GlowPlugs, false)
	m.setPhase(PhaseUnload)
}

// immediateStop cuts fuel and load together and goes straight to spin-down.
func (m *Machine) immediateStop() {
	m.setOutput(actuator.Fuel, false)
	m.setOutput(actuator.AltLoad, false)
	m.setOutput(actuator.Starter, false)
	m.setOutput(actuator.GlowPlugs, false)
	m.setPhase(PhaseSpinDown)
}

// stopConfirmed finishes a stop sequence once rpm is below idle. A fault stays
// latched; an operator stop returns to Stopped and clears the run timer.
func (m *Machine) stopConfirmed() {
	m.allOff(m.state == StateFault && !m.alarmAcked)
	m.setPhase(PhaseNone)

	if m.state == StateFault {
		return
	}
	m.runStarted = time.Time{}
	m.setState(StateStopped, fault.Set{})
}

// stopUnresolved latches StopUnresolved when the engine keeps turning after
// the shutdown wait. Fuel stays cut and the alarm sounds until acknowledged;
// nothing else resumes.
func (m *Machine) stopUnresolved() {
	m.latch(fault.NewSet(fault.StopUnresolved))
	m.alarmAcked = false

	if m.state != StateFault {
		m.setState(StateFault, m.latched)
	}
	m.allOff(true)
	m.setPhase(PhaseStopUnresolved)
}

// allOff de-energizes every output. The alarm is kept on when keepAlarm is set.
func (m *Machine) allOff(keepAlarm bool) {
	for _, n := range actuator.All() {
		if n == actuator.Alarm {
			m.setOutput(n, keepAlarm)
			continue
		}
		m.setOutput(n, false)
	}
}

// latch adds kinds to the latched set and reports growth while in fault.
func (m *Machine) latch(kinds fault.Set) {
	next := m.latched.Union(kinds)
	if next.Equal(m.latched) {
		return
	}
	m.latched = next
	if m.state == StateFault {
		m.emit(Event{Kind: EventFaultLatched, Faults: m.latched})
	}
}
