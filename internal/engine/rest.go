package engine

import (
	"math"
	"math/rand"
	"time"
)

// RestConfig holds the schedule of pauses between crank attempts.
type RestConfig struct {
	Initial    time.Duration `json:"initial" yaml:"initial"`       // Rest after the first failed crank (default: 15s)
	Max        time.Duration `json:"max" yaml:"max"`               // Longest rest (default: 60s)
	Multiplier float64       `json:"multiplier" yaml:"multiplier"` // Growth per failed crank (default: 1.0, fixed rest)
	JitterPct  float64       `json:"jitter_pct" yaml:"jitter_pct"` // Jitter as a fraction of the rest (default: 0)
}

// DefaultRestConfig returns a fixed 15s rest between cranks.
func DefaultRestConfig() RestConfig {
	return RestConfig{
		Initial:    15 * time.Second,
		Max:        60 * time.Second,
		Multiplier: 1.0,
		JitterPct:  0,
	}
}

// RestSchedule computes the pause before each crank retry. Starter motors need
// time to cool between attempts, so the rest may grow with each failure.
type RestSchedule struct {
	config   RestConfig
	attempts int
	rng      *rand.Rand
}

// NewRestSchedule creates a schedule. The seed makes jitter reproducible.
func NewRestSchedule(cfg RestConfig, seed int64) *RestSchedule {
	return &RestSchedule{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next rest and increments the attempt counter.
func (r *RestSchedule) Next() time.Duration {
	d := r.Calculate()
	r.attempts++
	return d
}

// Calculate returns the current rest without incrementing attempts.
func (r *RestSchedule) Calculate() time.Duration {
	mult := r.config.Multiplier
	if mult <= 0 {
		mult = 1
	}
	d := float64(r.config.Initial) * math.Pow(mult, float64(r.attempts))

	if r.config.Max > 0 && d > float64(r.config.Max) {
		d = float64(r.config.Max)
	}

	// ±(JitterPct/2) of the rest
	if r.config.JitterPct > 0 {
		span := d * r.config.JitterPct
		d += span*r.rng.Float64() - span/2
	}

	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Reset starts the schedule over.
func (r *RestSchedule) Reset() {
	r.attempts = 0
}

// Attempts returns how many rests have been handed out.
func (r *RestSchedule) Attempts() int {
	return r.attempts
}
