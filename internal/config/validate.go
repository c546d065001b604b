package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/sim"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	eng := cfg.Engine
	th := eng.Thresholds

	// Thresholds
	if th.IdleRPM < 1 {
		add("engine.thresholds.idle_rpm", "must be at least 1")
	}
	if th.MinBattV <= 0 {
		add("engine.thresholds.min_batt_v", "must be positive")
	}
	if th.MinOilPressurePa <= 0 {
		add("engine.thresholds.min_oil_pressure_pa", "must be positive")
	}
	if th.OilPressureGracePeriod < 0 {
		add("engine.thresholds.oil_pressure_grace_period", "must not be negative")
	}
	if eng.MinCoolantTempC >= th.MaxCoolantTempC {
		add("engine.min_coolant_temp_c", "must be below max_coolant_temp_c (%d >= %d)", eng.MinCoolantTempC, th.MaxCoolantTempC)
	}

	// Sequence timings
	phases := []struct {
		field string
		d     time.Duration
	}{
		{"engine.glow_period", eng.GlowPeriod},
		{"engine.crank_time", eng.CrankTime},
		{"engine.rest.initial", eng.Rest.Initial},
		{"engine.shutdown_delay", eng.ShutdownDelay},
		{"engine.shutdown_wait", eng.ShutdownWait},
		{"engine.warmup_period", eng.WarmupPeriod},
	}
	for _, p := range phases {
		switch {
		case p.d <= 0:
			add(p.field, "must be positive")
		case cfg.TickInterval > 0 && p.d < cfg.TickInterval:
			add(p.field, "must not be shorter than the tick interval (%v < %v)", p.d, cfg.TickInterval)
		}
	}
	if eng.MaxRetries < 1 {
		add("engine.max_retries", "must be at least 1")
	}
	if eng.Rest.Multiplier < 1.0 {
		add("engine.rest.multiplier", "must be >= 1.0")
	}
	if eng.Rest.Max > 0 && eng.Rest.Max < eng.Rest.Initial {
		add("engine.rest.max", "must be >= rest.initial")
	}
	if eng.Rest.JitterPct < 0 || eng.Rest.JitterPct > 1 {
		add("engine.rest.jitter_pct", "must be between 0 and 1")
	}

	// Supervisor
	if cfg.TickInterval <= 0 {
		add("tick_interval", "must be positive")
	}
	if cfg.SensorLossTolerance < 1 {
		add("sensor_loss_tolerance", "must be at least 1")
	}
	if cfg.QueueSize < 1 {
		add("queue_size", "must be at least 1")
	}
	if stop := eng.ShutdownDelay + eng.ShutdownWait; cfg.ShutdownTimeout <= stop {
		add("shutdown_timeout", "must exceed shutdown_delay + shutdown_wait (%v)", stop)
	}

	// Backends
	switch cfg.Backend {
	case BackendSim:
		if _, err := sim.ParseFailure(cfg.SimFailure); err != nil {
			add("sim_failure", "%v", err)
		}
		if cfg.Sim.CatchAfter <= 0 {
			add("sim.catch_after", "must be positive")
		}
	case BackendGPIO, BackendDryRun:
		if cfg.SensorURL == "" {
			add("sensor_url", "required for the %s backend", cfg.Backend)
		} else if err := validateURL(cfg.SensorURL); err != nil {
			add("sensor_url", "%v", err)
		}
		if cfg.SensorTimeout <= 0 {
			add("sensor_timeout", "must be positive")
		} else if cfg.SensorTimeout >= cfg.TickInterval {
			add("sensor_timeout", "must be shorter than the tick interval (%v >= %v)", cfg.SensorTimeout, cfg.TickInterval)
		}
	default:
		add("backend", "must be one of: sim, gpio, dry-run (got %q)", cfg.Backend)
	}

	// Log format must be valid
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[cfg.LogLevel] {
		add("log_level", "must be one of: debug, info, warn, error (got %q)", cfg.LogLevel)
	}

	// Return combined errors
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}
