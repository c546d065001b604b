package engine

import (
	"testing"
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
)

const tick = 500 * time.Millisecond

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Snapshots used across the machine tests.
var (
	atRest = sensor.Snapshot{
		OilTempC:     20,
		CoolantTempC: 20,
		StarterBattV: 12.6,
	}
	cranking = sensor.Snapshot{
		RPM:           200,
		OilPressurePa: 20_000,
		OilTempC:      20,
		CoolantTempC:  20,
		StarterBattV:  11.4,
	}
	runningCold = sensor.Snapshot{
		RPM:            1500,
		OilPressurePa:  300_000,
		OilTempC:       30,
		CoolantTempC:   30,
		CoolantFlowLpm: 0,
		StarterBattV:   13.8,
	}
)

// harness drives a Machine the way the supervisor does, on a virtual clock.
type harness struct {
	t    *testing.T
	m    *Machine
	bank *actuator.Recorder

	now    time.Time
	snap   sensor.Snapshot
	extra  fault.Set
	events []Event
	steps  []Output
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	m := NewMachine(cfg)
	m.newRunID = func() string { return "run-test" }
	return &harness{
		t:    t,
		m:    m,
		bank: actuator.NewRecorder(),
		now:  epoch,
		snap: atRest,
	}
}

// stepAt runs one tick at epoch+d.
func (h *harness) stepAt(d time.Duration, req Request) Output {
	h.t.Helper()
	h.now = epoch.Add(d)

	faults := h.m.Evaluate(h.now, h.snap).Union(h.extra)
	out := h.m.Step(Input{Now: h.now, Snapshot: h.snap, Faults: faults, Request: req})

	if err := actuator.Apply(h.bank, out.Commands); err != nil {
		h.t.Fatalf("apply commands: %v", err)
	}
	h.events = append(h.events, out.Events...)
	h.steps = append(h.steps, out)
	return out
}

// runTo ticks from the current time up to and including epoch+d.
func (h *harness) runTo(d time.Duration) {
	h.t.Helper()
	for t := h.now.Sub(epoch) + tick; t <= d; t += tick {
		h.stepAt(t, RequestNone)
	}
}

// toWarmup starts the engine and catches on the first crank at 10s.
func (h *harness) toWarmup(running sensor.Snapshot) {
	h.t.Helper()
	h.snap = atRest
	h.stepAt(0, RequestStart)
	h.snap = cranking
	h.runTo(8 * time.Second)
	h.runTo(9500 * time.Millisecond)
	h.snap = running
	h.stepAt(10*time.Second, RequestNone)
	h.expectState(StateWarmup)
}

// toRunning continues from warm-up once coolant is warm.
func (h *harness) toRunning() {
	h.t.Helper()
	h.toWarmup(runningCold)
	warm := runningCold
	warm.CoolantTempC = 60
	h.snap = warm
	h.stepAt(10*time.Second+tick, RequestNone)
	h.expectState(StateRunning)
}

func (h *harness) expectState(want State) {
	h.t.Helper()
	if got := h.m.State(); got != want {
		h.t.Fatalf("state = %v, want %v (phase %v)", got, want, h.m.Phase())
	}
}

func (h *harness) expectPhase(want Phase) {
	h.t.Helper()
	if got := h.m.Phase(); got != want {
		h.t.Fatalf("phase = %v, want %v (state %v)", got, want, h.m.State())
	}
}

func (h *harness) expectOn(n actuator.Name, want bool) {
	h.t.Helper()
	if got := h.bank.Outputs().On(n); got != want {
		h.t.Errorf("%s on = %v, want %v", n, got, want)
	}
}

// eventsOf returns the recorded events of one kind.
func (h *harness) eventsOf(kind EventKind) []Event {
	var out []Event
	for _, e := range h.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// indexOf returns the position of c in the bank history, or -1.
func (h *harness) indexOf(c actuator.Command) int {
	for i, got := range h.bank.Commands() {
		if got == c {
			return i
		}
	}
	return -1
}

func hasCommand(out Output, n actuator.Name, on bool) bool {
	for _, c := range out.Commands {
		if c.Name == n && c.On == on {
			return true
		}
	}
	return false
}

func countCommands(cmds []actuator.Command, c actuator.Command) int {
	n := 0
	for _, got := range cmds {
		if got == c {
			n++
		}
	}
	return n
}
