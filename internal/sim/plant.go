// Package sim models a diesel generator well enough to exercise the supervisor
// without hardware. A Plant is both the actuator bank and the sensor source.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
)

// Failure is an injected plant defect.
type Failure int

const (
	FailNone Failure = iota

	// FailNoStart keeps the engine from catching however long it cranks.
	FailNoStart

	// FailOverheat drives coolant and oil temperatures past every limit.
	FailOverheat

	// FailStuckRunning keeps the engine turning after the fuel is cut.
	FailStuckRunning

	// FailLowOil makes oil pressure collapse while running.
	FailLowOil

	// FailSensor makes every acquisition fail.
	FailSensor
)

// String returns a human-readable name for the failure.
func (f Failure) String() string {
	switch f {
	case FailNone:
		return "none"
	case FailNoStart:
		return "no-start"
	case FailOverheat:
		return "overheat"
	case FailStuckRunning:
		return "stuck-running"
	case FailLowOil:
		return "low-oil"
	case FailSensor:
		return "sensor"
	default:
		return "unknown"
	}
}

// ParseFailure converts a name as returned by String back into a Failure.
func ParseFailure(s string) (Failure, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FailNone, nil
	}
	for f := FailNone; f <= FailSensor; f++ {
		if f.String() == s {
			return f, nil
		}
	}
	return FailNone, fmt.Errorf("unknown failure %q", s)
}

// ErrSensorDown is returned by Acquire while FailSensor is injected.
var ErrSensorDown = errors.New("simulated sensor failure")

// Config describes the simulated engine.
type Config struct {
	AmbientC   float64       `json:"ambient_c" yaml:"ambient_c"`
	CatchAfter time.Duration `json:"catch_after" yaml:"catch_after"` // Cranking time before the engine fires
	CrankRPM   float64       `json:"crank_rpm" yaml:"crank_rpm"`
	RatedRPM   float64       `json:"rated_rpm" yaml:"rated_rpm"`
	BatteryV   float64       `json:"battery_v" yaml:"battery_v"`
	CrankSagV  float64       `json:"crank_sag_v" yaml:"crank_sag_v"`
	ChargeV    float64       `json:"charge_v" yaml:"charge_v"`
	WarmRate   float64       `json:"warm_rate" yaml:"warm_rate"` // Fraction of the gap to target temperature closed per second
	Failure    Failure       `json:"-" yaml:"-"`
}

// DefaultConfig returns a healthy engine that catches after 2s of cranking and
// warms past 50°C in about half a minute.
func DefaultConfig() Config {
	return Config{
		AmbientC:   20,
		CatchAfter: 2 * time.Second,
		CrankRPM:   220,
		RatedRPM:   1500,
		BatteryV:   12.7,
		CrankSagV:  1.4,
		ChargeV:    13.8,
		WarmRate:   0.02,
	}
}

// Plant is a simulated engine. It is safe for concurrent use.
type Plant struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	last     time.Time
	outputs  actuator.Outputs
	firing   bool
	crankFor time.Duration

	rpm      float64
	coolantC float64
	oilC     float64
}

// NewPlant creates a cold engine at rest. now is the time source; nil means time.Now.
func NewPlant(cfg Config, now func() time.Time) *Plant {
	if now == nil {
		now = time.Now
	}
	return &Plant{
		cfg:      cfg,
		now:      now,
		last:     now(),
		coolantC: cfg.AmbientC,
		oilC:     cfg.AmbientC,
	}
}

// Set implements actuator.Bank.
func (p *Plant) Set(n actuator.Name, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.integrate()
	p.outputs = p.outputs.Apply(actuator.Command{Name: n, On: on})
	return nil
}

// Acquire implements sensor.Source.
func (p *Plant) Acquire(ctx context.Context) (sensor.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return sensor.Snapshot{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.integrate()
	if p.cfg.Failure == FailSensor {
		return sensor.Snapshot{}, ErrSensorDown
	}
	return p.snapshot(), nil
}

// Inject switches the active failure.
func (p *Plant) Inject(f Failure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integrate()
	p.cfg.Failure = f
}

// Failure returns the active failure.
func (p *Plant) Failure() Failure {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.Failure
}

// Outputs returns the actuator levels the plant has been given.
func (p *Plant) Outputs() actuator.Outputs {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outputs
}

// integrate advances the model to the current time. Callers hold mu.
func (p *Plant) integrate() {
	now := p.now()
	dt := now.Sub(p.last)
	p.last = now
	if dt <= 0 {
		return
	}
	sec := dt.Seconds()

	fuel := p.outputs.On(actuator.Fuel)
	starter := p.outputs.On(actuator.Starter)

	switch {
	case p.firing && (fuel || p.cfg.Failure == FailStuckRunning):
		p.rpm = approach(p.rpm, p.cfg.RatedRPM, 2, sec)
	case p.firing:
		p.firing = false
		p.rpm = approach(p.rpm, 0, 1.5, sec)
	case starter:
		p.crankFor += dt
		p.rpm = approach(p.rpm, p.cfg.CrankRPM, 4, sec)
		if fuel && p.crankFor >= p.cfg.CatchAfter && p.cfg.Failure != FailNoStart {
			p.firing = true
		}
	default:
		p.crankFor = 0
		p.rpm = approach(p.rpm, 0, 1.5, sec)
	}
	if p.rpm < 1 {
		p.rpm = 0
	}

	target := p.cfg.AmbientC
	rate := p.cfg.WarmRate / 4
	if p.firing {
		rate = p.cfg.WarmRate
		switch {
		case p.cfg.Failure == FailOverheat:
			target = 125
		case p.outputs.On(actuator.CoolantPump):
			target = 82
		default:
			target = 95
		}
	}
	p.coolantC = approach(p.coolantC, target, rate, sec)
	p.oilC = approach(p.oilC, p.coolantC+8, rate, sec)
}

func (p *Plant) snapshot() sensor.Snapshot {
	s := sensor.Snapshot{
		RPM:          int(math.Round(p.rpm)),
		OilTempC:     int(math.Round(p.oilC)),
		CoolantTempC: int(math.Round(p.coolantC)),
		StarterBattV: p.cfg.BatteryV,
		At:           p.last,
	}

	pressure := p.rpm / p.cfg.RatedRPM * 350_000
	if p.cfg.Failure == FailLowOil && p.firing {
		pressure *= 0.15
	}
	s.OilPressurePa = int(math.Round(pressure))

	if p.firing && p.outputs.On(actuator.CoolantPump) {
		s.CoolantFlowLpm = 40
	}

	switch {
	case p.outputs.On(actuator.Starter):
		s.StarterBattV = p.cfg.BatteryV - p.cfg.CrankSagV
	case p.firing:
		s.StarterBattV = p.cfg.ChargeV
	}
	return s
}

// approach moves v toward target, closing rate of the gap per second.
func approach(v, target, rate, sec float64) float64 {
	k := 1 - math.Exp(-rate*sec)
	return v + (target-v)*k
}
