package stats

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
	"github.com/randomizedcoder/go-genset-supervisor/internal/supervisor"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func view(state engine.State, at time.Duration, rpm int) supervisor.View {
	var out actuator.Outputs
	if state == engine.StateWarmup || state == engine.StateRunning {
		out = out.Apply(actuator.Command{Name: actuator.Fuel, On: true})
	}
	return supervisor.View{
		Status: engine.Status{State: state, Outputs: out},
		Snapshot: sensor.Snapshot{
			RPM:           rpm,
			OilPressurePa: 300000,
			OilTempC:      85,
			CoolantTempC:  80,
			StarterBattV:  13.8,
		},
		SensorOK:  true,
		UpdatedAt: t0.Add(at),
	}
}

// =============================================================================
// Tests: Channel
// =============================================================================

func TestChannel_String(t *testing.T) {
	tests := []struct {
		c    Channel
		want string
		unit string
	}{
		{ChannelRPM, "rpm", "rpm"},
		{ChannelOilPressure, "oil_pressure", "kPa"},
		{ChannelOilTemp, "oil_temp", "°C"},
		{ChannelCoolantTemp, "coolant_temp", "°C"},
		{ChannelCoolantFlow, "coolant_flow", "L/min"},
		{ChannelBattery, "battery", "V"},
		{Channel(99), "unknown", ""},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.c.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if got := tt.c.Unit(); got != tt.unit {
				t.Errorf("Unit() = %q, want %q", got, tt.unit)
			}
		})
	}
}

func TestChannels_Order(t *testing.T) {
	chs := Channels()
	if len(chs) != int(numChannels) {
		t.Fatalf("len(Channels()) = %d, want %d", len(chs), numChannels)
	}
	if chs[0] != ChannelRPM || chs[len(chs)-1] != ChannelBattery {
		t.Errorf("Channels() = %v", chs)
	}
}

// =============================================================================
// Tests: RecordTick
// =============================================================================

func TestRecordTick_SamplesOnlyWhileRunning(t *testing.T) {
	r := NewRunStats(t0)

	r.RecordTick(view(engine.StateStopped, 0, 0), time.Millisecond)
	r.RecordTick(view(engine.StateStarting, time.Second, 200), time.Millisecond)
	for i := 0; i < 100; i++ {
		r.RecordTick(view(engine.StateRunning, time.Duration(2+i)*time.Second, 1400+i*2), time.Millisecond)
	}

	rpm := r.Channel(ChannelRPM)
	if rpm.Count != 100 {
		t.Fatalf("rpm count = %d, want 100", rpm.Count)
	}
	if rpm.Min != 1400 || rpm.Max != 1598 {
		t.Errorf("rpm min/max = %v/%v, want 1400/1598", rpm.Min, rpm.Max)
	}
	if math.Abs(rpm.Mean-1499) > 0.001 {
		t.Errorf("rpm mean = %v, want 1499", rpm.Mean)
	}
	if rpm.P50 < 1480 || rpm.P50 > 1520 {
		t.Errorf("rpm p50 = %v, want ~1500", rpm.P50)
	}
	if rpm.P99 < rpm.P95 || rpm.P95 < rpm.P50 {
		t.Errorf("percentiles not monotonic: p50=%v p95=%v p99=%v", rpm.P50, rpm.P95, rpm.P99)
	}

	if got := r.Channel(ChannelOilPressure).Max; got != 300 {
		t.Errorf("oil pressure max = %v kPa, want 300", got)
	}
	if got := r.Channel(Channel(-1)); got.Count != 0 {
		t.Errorf("out of range channel = %+v, want zero", got)
	}
}

func TestRecordTick_SkipsStaleReadings(t *testing.T) {
	r := NewRunStats(t0)

	v := view(engine.StateRunning, 0, 1500)
	v.SensorOK = false
	r.RecordTick(v, time.Millisecond)

	if got := r.Channel(ChannelRPM).Count; got != 0 {
		t.Errorf("rpm count = %d, want 0 for stale readings", got)
	}
}

func TestRecordTick_RunTime(t *testing.T) {
	r := NewRunStats(t0)

	r.RecordTick(view(engine.StateStarting, 0, 200), 0)
	r.RecordTick(view(engine.StateWarmup, 10*time.Second, 800), 0)
	r.RecordTick(view(engine.StateRunning, 70*time.Second, 1500), 0)
	r.RecordTick(view(engine.StateRunning, 100*time.Second, 1500), 0)
	r.RecordTick(view(engine.StateStopped, 110*time.Second, 0), 0)
	r.RecordTick(view(engine.StateStopped, 200*time.Second, 0), 0)

	agg := r.Aggregate(t0.Add(200 * time.Second))
	if agg.RunTime != 90*time.Second {
		t.Errorf("RunTime = %v, want 1m30s", agg.RunTime)
	}
	if agg.Elapsed != 200*time.Second {
		t.Errorf("Elapsed = %v, want 3m20s", agg.Elapsed)
	}
	if agg.Ticks != 6 {
		t.Errorf("Ticks = %d, want 6", agg.Ticks)
	}
}

func TestRecordTick_CountsNewlyLatchedFaults(t *testing.T) {
	r := NewRunStats(t0)

	v := view(engine.StateFault, 0, 1500)
	v.Status.Latched = fault.NewSet(fault.OilOverTemp)
	r.RecordTick(v, 0)
	r.RecordTick(v, 0)

	v.Status.Latched = fault.NewSet(fault.OilOverTemp, fault.StopUnresolved)
	r.RecordTick(v, 0)

	v.Status.Latched = fault.Set{}
	r.RecordTick(v, 0)
	v.Status.Latched = fault.NewSet(fault.OilOverTemp)
	r.RecordTick(v, 0)

	agg := r.Aggregate(t0)
	if got := agg.Faults[fault.OilOverTemp]; got != 2 {
		t.Errorf("faults[OilOverTemp] = %d, want 2", got)
	}
	if got := agg.Faults[fault.StopUnresolved]; got != 1 {
		t.Errorf("faults[StopUnresolved] = %d, want 1", got)
	}
	if !agg.FinalFaults.Has(fault.OilOverTemp) || agg.FinalState != engine.StateFault {
		t.Errorf("final = %v %v", agg.FinalState, agg.FinalFaults)
	}
}

func TestRecordTick_TickDurations(t *testing.T) {
	r := NewRunStats(t0)
	for i := 1; i <= 100; i++ {
		r.RecordTick(view(engine.StateStopped, 0, 0), time.Duration(i)*time.Microsecond)
	}

	agg := r.Aggregate(t0)
	if agg.TickMax != 100*time.Microsecond {
		t.Errorf("TickMax = %v, want 100µs", agg.TickMax)
	}
	if agg.TickP50 < 40*time.Microsecond || agg.TickP50 > 60*time.Microsecond {
		t.Errorf("TickP50 = %v, want ~50µs", agg.TickP50)
	}
	if agg.TickP99 < agg.TickP50 {
		t.Errorf("TickP99 %v < TickP50 %v", agg.TickP99, agg.TickP50)
	}
}

// =============================================================================
// Tests: RecordEvent / errors
// =============================================================================

func TestRecordEvent(t *testing.T) {
	r := NewRunStats(t0)

	events := []engine.Event{
		{Kind: engine.EventRequestAccepted, Request: engine.RequestStart},
		{Kind: engine.EventRequestAccepted, Request: engine.RequestStop},
		{Kind: engine.EventRequestRejected, Request: engine.RequestStart, Err: engine.ErrNotStopped},
		{Kind: engine.EventTransition, From: engine.StateStopped, State: engine.StateStarting},
		{Kind: engine.EventCrankFailed, Attempt: 1},
		{Kind: engine.EventTransition, From: engine.StateStarting, State: engine.StateWarmup},
		{Kind: engine.EventTransition, From: engine.StateWarmup, State: engine.StateRunning},
		{Kind: engine.EventTransition, From: engine.StateRunning, State: engine.StateStopped},
		{Kind: engine.EventTransition, From: engine.StateFault, State: engine.StateStopped},
		{Kind: engine.EventPhase, Phase: engine.PhaseUnload},
	}
	for _, e := range events {
		r.RecordEvent(e)
	}

	agg := r.Aggregate(t0)
	checks := []struct {
		name string
		got  int64
		want int64
	}{
		{"start requests", agg.StartRequests, 1},
		{"rejected", agg.Rejected, 1},
		{"crank failures", agg.CrankFailures, 1},
		{"successful starts", agg.SuccessfulStarts, 1},
		{"stops", agg.Stops, 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %d, want %d", c.name, c.got, c.want)
		}
	}
}

func TestRecordErrors(t *testing.T) {
	r := NewRunStats(t0)
	r.RecordSensorError(errors.New("timeout"), 1)
	r.RecordSensorError(errors.New("timeout"), 2)
	r.RecordActuatorError(actuator.Command{Name: actuator.Starter, On: true}, errors.New("relay"))

	agg := r.Aggregate(t0)
	if agg.SensorErrors != 2 || agg.ActuatorErrors != 1 {
		t.Errorf("errors = %d/%d, want 2/1", agg.SensorErrors, agg.ActuatorErrors)
	}
}

func TestAggregate_IsACopy(t *testing.T) {
	r := NewRunStats(t0)
	v := view(engine.StateFault, 0, 0)
	v.Status.Latched = fault.NewSet(fault.BatteryLow)
	r.RecordTick(v, 0)

	agg := r.Aggregate(t0)
	agg.Faults[fault.BatteryLow] = 99

	if got := r.Aggregate(t0).Faults[fault.BatteryLow]; got != 1 {
		t.Errorf("faults[BatteryLow] = %d after mutating a copy, want 1", got)
	}
}

func TestRunStats_Concurrent(t *testing.T) {
	r := NewRunStats(t0)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				r.RecordTick(view(engine.StateRunning, time.Duration(i)*time.Millisecond, 1500), time.Microsecond)
				r.RecordEvent(engine.Event{Kind: engine.EventCrankFailed})
				_ = r.Aggregate(t0)
			}
		}()
	}
	wg.Wait()

	agg := r.Aggregate(t0)
	if agg.Ticks != 1000 || agg.CrankFailures != 1000 {
		t.Errorf("ticks/crank failures = %d/%d, want 1000/1000", agg.Ticks, agg.CrankFailures)
	}
}
