// Package sensor defines the per-tick view of the engine's physical measurements
// and the sources that produce it.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Snapshot is the latest known set of engine measurements.
// A Snapshot is built once per supervisor tick and is never mutated afterwards;
// the next tick replaces it.
type Snapshot struct {
	RPM            int       `json:"rpm"`
	OilPressurePa  int       `json:"oil_pressure_pa"`
	OilTempC       int       `json:"oil_temp_c"`
	CoolantTempC   int       `json:"coolant_temp_c"`
	CoolantFlowLpm int       `json:"coolant_flow_lpm"`
	StarterBattV   float64   `json:"starter_batt_v"`
	At             time.Time `json:"at"`
}

// Source produces a Snapshot sampled at the tick boundary.
type Source interface {
	Acquire(ctx context.Context) (Snapshot, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (Snapshot, error)

// Acquire calls f(ctx).
func (f SourceFunc) Acquire(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// Static is a Source that always returns the same readings, stamped with the
// time of acquisition.
type Static struct {
	Snapshot Snapshot
}

// Acquire returns the static snapshot.
func (s Static) Acquire(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	snap := s.Snapshot
	snap.At = time.Now()
	return snap, nil
}

// Check reports readings that cannot come from a working acquisition chain.
// Temperatures are only bounded loosely since a cold engine in winter is valid.
func Check(s Snapshot) error {
	var errs []error
	if s.RPM < 0 {
		errs = append(errs, fmt.Errorf("rpm %d is negative", s.RPM))
	}
	if s.OilPressurePa < 0 {
		errs = append(errs, fmt.Errorf("oil pressure %d Pa is negative", s.OilPressurePa))
	}
	if s.CoolantFlowLpm < 0 {
		errs = append(errs, fmt.Errorf("coolant flow %d L/min is negative", s.CoolantFlowLpm))
	}
	if s.StarterBattV < 0 {
		errs = append(errs, fmt.Errorf("starter battery %.2f V is negative", s.StarterBattV))
	}
	if s.OilTempC < -60 || s.CoolantTempC < -60 {
		errs = append(errs, errors.New("temperature below -60 C, sensor likely disconnected"))
	}
	return errors.Join(errs...)
}
