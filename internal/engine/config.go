package engine

import (
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
)

// Config holds the thresholds and sequence timings of one engine.
type Config struct {
	Thresholds fault.Thresholds `json:"thresholds" yaml:"thresholds"`

	// MinCoolantTempC ends warm-up once exceeded.
	MinCoolantTempC int           `json:"min_coolant_temp_c" yaml:"min_coolant_temp_c"`
	WarmupPeriod    time.Duration `json:"warmup_period" yaml:"warmup_period"`

	GlowPeriod time.Duration `json:"glow_period" yaml:"glow_period"`
	CrankTime  time.Duration `json:"crank_time" yaml:"crank_time"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	Rest       RestConfig    `json:"rest" yaml:"rest"`

	ShutdownDelay time.Duration `json:"shutdown_delay" yaml:"shutdown_delay"`
	ShutdownWait  time.Duration `json:"shutdown_wait" yaml:"shutdown_wait"`
}

// DefaultConfig returns the timings of the reference engine.
func DefaultConfig() Config {
	return Config{
		Thresholds:      fault.DefaultThresholds(),
		MinCoolantTempC: 50,
		WarmupPeriod:    5 * time.Minute,
		GlowPeriod:      8 * time.Second,
		CrankTime:       10 * time.Second,
		MaxRetries:      3,
		Rest:            DefaultRestConfig(),
		ShutdownDelay:   30 * time.Second,
		ShutdownWait:    20 * time.Second,
	}
}
