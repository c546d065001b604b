package fault

import (
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
)

// Thresholds are the safety limits checked on every snapshot. Units are part
// of each field name.
type Thresholds struct {
	MaxCoolantTempC        int           `json:"max_coolant_temp_c" yaml:"max_coolant_temp_c"`
	MaxOilTempC            int           `json:"max_oil_temp_c" yaml:"max_oil_temp_c"`
	MinBattV               float64       `json:"min_batt_v" yaml:"min_batt_v"`
	MinOilPressurePa       int           `json:"min_oil_pressure_pa" yaml:"min_oil_pressure_pa"`
	OilPressureGracePeriod time.Duration `json:"oil_pressure_grace_period" yaml:"oil_pressure_grace_period"`
	IdleRPM                int           `json:"idle_rpm" yaml:"idle_rpm"`
}

// DefaultThresholds returns the limits for the reference engine.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxCoolantTempC:        105,
		MaxOilTempC:            130,
		MinBattV:               10.5,
		MinOilPressurePa:       100_000,
		OilPressureGracePeriod: 10 * time.Second,
		IdleRPM:                600,
	}
}

// Evaluate returns the health faults present in s.
//
// sinceRun is the time elapsed since the run timer was set and running reports
// whether it is set at all. The oil pressure check is suppressed until the
// grace period has elapsed, since pressure has not built after a cold crank.
// Every rule is checked independently; the result is their union.
func Evaluate(th Thresholds, s sensor.Snapshot, sinceRun time.Duration, running bool) Set {
	var set Set

	if s.CoolantTempC >= th.MaxCoolantTempC {
		set = set.With(CoolantOverTemp)
	}
	if s.OilTempC >= th.MaxOilTempC {
		set = set.With(OilOverTemp)
	}
	if s.StarterBattV <= th.MinBattV {
		set = set.With(BatteryLow)
	}
	if running && sinceRun >= th.OilPressureGracePeriod && s.OilPressurePa < th.MinOilPressurePa {
		set = set.With(LowOilPressure)
	}

	return set
}

// PreStart evaluates s before honouring a start request. On top of the health
// rules it reports AlreadyRunning when the engine is known to run or turns at
// idle speed or faster.
func PreStart(th Thresholds, s sensor.Snapshot, engineRunning bool) Set {
	set := Evaluate(th, s, 0, false)
	if engineRunning || s.RPM >= th.IdleRPM {
		set = set.With(AlreadyRunning)
	}
	return set
}
