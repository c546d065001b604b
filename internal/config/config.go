// Package config provides configuration management for go-genset-supervisor.
package config

import (
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sim"
)

// Backends select where readings come from and where commands go.
const (
	BackendSim    = "sim"     // simulated plant is both sensor source and actuator bank
	BackendGPIO   = "gpio"    // HTTP sensor source, GPIO relay bank
	BackendDryRun = "dry-run" // HTTP sensor source, commands are only recorded and logged
)

// Config holds all configuration options for the supervisor.
type Config struct {
	// Engine sequencing and fault thresholds
	Engine engine.Config `json:"engine" yaml:"engine"`

	// Supervisor loop
	TickInterval        time.Duration `json:"tick_interval" yaml:"tick_interval"`
	SensorLossTolerance int           `json:"sensor_loss_tolerance" yaml:"sensor_loss_tolerance"`
	QueueSize           int           `json:"queue_size" yaml:"queue_size"`

	// Backends
	Backend       string          `json:"backend" yaml:"backend"` // sim, gpio, dry-run
	SensorURL     string          `json:"sensor_url" yaml:"sensor_url"`
	SensorTimeout time.Duration   `json:"sensor_timeout" yaml:"sensor_timeout"`
	Pins          actuator.PinMap `json:"pins" yaml:"pins"`
	Sim           sim.Config      `json:"sim" yaml:"sim"`
	SimFailure    string          `json:"sim_failure" yaml:"sim_failure"`

	// Operator
	AutoStart       bool          `json:"auto_start" yaml:"auto_start"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"` // bound on the safe stop at exit

	// Observability
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
	Verbose     bool   `json:"verbose" yaml:"verbose"`
	LogFormat   string `json:"log_format" yaml:"log_format"` // json, text
	LogLevel    string `json:"log_level" yaml:"log_level"`
	TUIEnabled  bool   `json:"tui" yaml:"tui"`

	// Diagnostic modes
	ConfigFile    string `json:"-" yaml:"-"`
	Check         bool   `json:"-" yaml:"-"`
	SkipPreflight bool   `json:"skip_preflight" yaml:"skip_preflight"`
	PrintConfig   bool   `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: engine.DefaultConfig(),

		// Supervisor
		TickInterval:        100 * time.Millisecond,
		SensorLossTolerance: 5,
		QueueSize:           8,

		// Backends
		Backend:       BackendSim,
		SensorTimeout: 50 * time.Millisecond,
		Pins:          actuator.DefaultPinMap(),
		Sim:           sim.DefaultConfig(),

		// Operator
		AutoStart:       false,
		ShutdownTimeout: 90 * time.Second,

		// Observability
		MetricsAddr: "0.0.0.0:17095",
		Verbose:     false,
		LogFormat:   "json",
		LogLevel:    "info",
		TUIEnabled:  false,
	}
}

// ApplyCheckMode modifies config for --check mode: preflight runs against the
// configured backends and nothing is started.
func ApplyCheckMode(cfg *Config) {
	cfg.SkipPreflight = false
	cfg.AutoStart = false
	cfg.TUIEnabled = false
	cfg.Verbose = true
}
