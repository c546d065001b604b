// Package stats accumulates run statistics for the operator panel and the
// exit summary.
//
// Sensor channels are sampled only while the engine is turning under fuel
// (warm-up and running) so that readings of a cold, stopped engine do not
// drag the percentiles. Percentiles come from a t-digest per channel.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
	"github.com/randomizedcoder/go-genset-supervisor/internal/supervisor"
)

// Channel is one sensor channel.
type Channel int

const (
	ChannelRPM Channel = iota
	ChannelOilPressure
	ChannelOilTemp
	ChannelCoolantTemp
	ChannelCoolantFlow
	ChannelBattery
	numChannels
)

// Channels lists every channel in display order.
func Channels() []Channel {
	out := make([]Channel, numChannels)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// String returns a human-readable name for the channel.
func (c Channel) String() string {
	switch c {
	case ChannelRPM:
		return "rpm"
	case ChannelOilPressure:
		return "oil_pressure"
	case ChannelOilTemp:
		return "oil_temp"
	case ChannelCoolantTemp:
		return "coolant_temp"
	case ChannelCoolantFlow:
		return "coolant_flow"
	case ChannelBattery:
		return "battery"
	default:
		return "unknown"
	}
}

// Unit returns the display unit of the channel.
func (c Channel) Unit() string {
	switch c {
	case ChannelRPM:
		return "rpm"
	case ChannelOilPressure:
		return "kPa"
	case ChannelOilTemp, ChannelCoolantTemp:
		return "°C"
	case ChannelCoolantFlow:
		return "L/min"
	case ChannelBattery:
		return "V"
	default:
		return ""
	}
}

// value extracts the channel from a snapshot in display units.
func (c Channel) value(s sensor.Snapshot) float64 {
	switch c {
	case ChannelRPM:
		return float64(s.RPM)
	case ChannelOilPressure:
		return float64(s.OilPressurePa) / 1000
	case ChannelOilTemp:
		return float64(s.OilTempC)
	case ChannelCoolantTemp:
		return float64(s.CoolantTempC)
	case ChannelCoolantFlow:
		return float64(s.CoolantFlowLpm)
	case ChannelBattery:
		return s.StarterBattV
	default:
		return 0
	}
}

// ChannelStats summarises one channel.
type ChannelStats struct {
	Count int64
	Min   float64
	Max   float64
	Mean  float64
	P50   float64
	P95   float64
	P99   float64
}

type channelAcc struct {
	digest *tdigest.TDigest
	count  int64
	sum    float64
	min    float64
	max    float64
}

func newChannelAcc() *channelAcc {
	return &channelAcc{digest: tdigest.NewWithCompression(100)}
}

func (a *channelAcc) add(v float64) {
	if a.count == 0 || v < a.min {
		a.min = v
	}
	if a.count == 0 || v > a.max {
		a.max = v
	}
	a.count++
	a.sum += v
	a.digest.Add(v, 1)
}

func (a *channelAcc) stats() ChannelStats {
	if a.count == 0 {
		return ChannelStats{}
	}
	return ChannelStats{
		Count: a.count,
		Min:   a.min,
		Max:   a.max,
		Mean:  a.sum / float64(a.count),
		P50:   a.digest.Quantile(0.50),
		P95:   a.digest.Quantile(0.95),
		P99:   a.digest.Quantile(0.99),
	}
}

// RunStats accumulates statistics over the lifetime of the supervisor.
// It is safe for concurrent use: the supervisor records while the panel reads.
type RunStats struct {
	mu    sync.Mutex
	start time.Time

	channels [numChannels]*channelAcc

	// Tick duration percentiles (nanoseconds)
	tickDigest *tdigest.TDigest
	tickMax    time.Duration
	ticks      int64

	// Sequencing counters
	startRequests    int64
	rejected         int64
	successfulStarts int64
	crankFailures    int64
	stops            int64
	faults           map[fault.Kind]int64
	sensorErrors     int64
	actuatorErrors   int64

	// Run time
	runTime     time.Duration
	lastAt      time.Time
	lastActive  bool
	prevLatched fault.Set
	last        engine.Status
}

// NewRunStats creates an empty accumulator. start is the supervisor start time.
func NewRunStats(start time.Time) *RunStats {
	r := &RunStats{
		start:      start,
		tickDigest: tdigest.NewWithCompression(100),
		faults:     make(map[fault.Kind]int64),
	}
	for i := range r.channels {
		r.channels[i] = newChannelAcc()
	}
	return r
}

// RecordEvent counts sequencing events. It has the signature of
// supervisor.Callbacks.OnEvent.
func (r *RunStats) RecordEvent(e engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Kind {
	case engine.EventRequestAccepted:
		if e.Request == engine.RequestStart {
			r.startRequests++
		}
	case engine.EventRequestRejected:
		r.rejected++
	case engine.EventCrankFailed:
		r.crankFailures++
	case engine.EventTransition:
		switch {
		case e.From == engine.StateStarting && e.State == engine.StateWarmup:
			r.successfulStarts++
		case e.State == engine.StateStopped && e.From.IsActive():
			r.stops++
		}
	}
}

// RecordTick samples the view of one tick. It has the signature of
// supervisor.Callbacks.OnTick.
func (r *RunStats) RecordTick(v supervisor.View, took time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ticks++
	r.tickDigest.Add(float64(took.Nanoseconds()), 1)
	if took > r.tickMax {
		r.tickMax = took
	}

	st := v.Status
	active := st.State == engine.StateWarmup || st.State == engine.StateRunning ||
		(st.State == engine.StateFault && st.Outputs.On(actuator.Fuel))
	if active && r.lastActive && !r.lastAt.IsZero() {
		r.runTime += v.UpdatedAt.Sub(r.lastAt)
	}
	r.lastActive = active
	r.lastAt = v.UpdatedAt

	if active && v.SensorOK {
		for _, c := range Channels() {
			r.channels[c].add(c.value(v.Snapshot))
		}
	}

	for _, k := range st.Latched.Kinds() {
		if !r.prevLatched.Has(k) {
			r.faults[k]++
		}
	}
	r.prevLatched = st.Latched
	r.last = st
}

// RecordSensorError counts a failed acquisition.
func (r *RunStats) RecordSensorError(err error, consecutive int) {
	r.mu.Lock()
	r.sensorErrors++
	r.mu.Unlock()
}

// RecordActuatorError counts a failed command.
func (r *RunStats) RecordActuatorError(cmd actuator.Command, err error) {
	r.mu.Lock()
	r.actuatorErrors++
	r.mu.Unlock()
}

// Channel returns the statistics of one channel.
func (r *RunStats) Channel(c Channel) ChannelStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c < 0 || c >= numChannels {
		return ChannelStats{}
	}
	return r.channels[c].stats()
}

// Aggregate is a point-in-time copy of everything RunStats accumulated.
type Aggregate struct {
	Elapsed time.Duration
	Ticks   int64

	StartRequests    int64
	Rejected         int64
	SuccessfulStarts int64
	CrankFailures    int64
	Stops            int64
	RunTime          time.Duration

	Faults         map[fault.Kind]int64
	SensorErrors   int64
	ActuatorErrors int64

	Channels [numChannels]ChannelStats

	TickP50 time.Duration
	TickP99 time.Duration
	TickMax time.Duration

	FinalState  engine.State
	FinalPhase  engine.Phase
	FinalFaults fault.Set
}

// Aggregate returns a snapshot of the statistics. now bounds Elapsed.
func (r *RunStats) Aggregate(now time.Time) *Aggregate {
	r.mu.Lock()
	defer r.mu.Unlock()

	a := &Aggregate{
		Elapsed:          now.Sub(r.start),
		Ticks:            r.ticks,
		StartRequests:    r.startRequests,
		Rejected:         r.rejected,
		SuccessfulStarts: r.successfulStarts,
		CrankFailures:    r.crankFailures,
		Stops:            r.stops,
		RunTime:          r.runTime,
		Faults:           make(map[fault.Kind]int64, len(r.faults)),
		SensorErrors:     r.sensorErrors,
		ActuatorErrors:   r.actuatorErrors,
		TickMax:          r.tickMax,
		FinalState:       r.last.State,
		FinalPhase:       r.last.Phase,
		FinalFaults:      r.last.Latched,
	}
	for k, n := range r.faults {
		a.Faults[k] = n
	}
	for i, acc := range r.channels {
		a.Channels[i] = acc.stats()
	}
	if r.ticks > 0 {
		a.TickP50 = time.Duration(r.tickDigest.Quantile(0.50))
		a.TickP99 = time.Duration(r.tickDigest.Quantile(0.99))
	}
	return a
}
