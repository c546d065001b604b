package config

import (
	"flag"
	"fmt"
	"io"
	"strings"
)

// ParseFlags parses command-line arguments (without the program name) and
// returns a Config. When -config names a YAML file it is applied over the
// defaults, and flags given explicitly on the command line override the file.
func ParseFlags(args []string) (*Config, error) {
	cfg := DefaultConfig()
	fs := newFlagSet(cfg)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if cfg.ConfigFile == "" {
		return cfg, nil
	}

	fileCfg, err := LoadFile(cfg.ConfigFile)
	if err != nil {
		return nil, err
	}

	// Replay explicit flags on top of the file.
	over := newFlagSet(fileCfg)
	var setErr error
	fs.Visit(func(f *flag.Flag) {
		if setErr != nil {
			return
		}
		if err := over.Set(f.Name, f.Value.String()); err != nil {
			setErr = fmt.Errorf("flag -%s: %w", f.Name, err)
		}
	})
	if setErr != nil {
		return nil, setErr
	}
	return fileCfg, nil
}

// newFlagSet binds every flag to a field of cfg.
func newFlagSet(cfg *Config) *flag.FlagSet {
	fs := flag.NewFlagSet("go-genset-supervisor", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }

	eng := &cfg.Engine
	th := &eng.Thresholds

	// Fault thresholds
	fs.IntVar(&th.MaxCoolantTempC, "max-coolant-temp", th.MaxCoolantTempC, "Coolant temperature fault limit (°C)")
	fs.IntVar(&th.MaxOilTempC, "max-oil-temp", th.MaxOilTempC, "Oil temperature fault limit (°C)")
	fs.Float64Var(&th.MinBattV, "min-batt-v", th.MinBattV, "Starter battery fault limit (V)")
	fs.IntVar(&th.MinOilPressurePa, "min-oil-pressure", th.MinOilPressurePa, "Oil pressure fault limit while running (Pa)")
	fs.DurationVar(&th.OilPressureGracePeriod, "oil-grace", th.OilPressureGracePeriod, "Time after the engine fires before oil pressure is supervised")
	fs.IntVar(&th.IdleRPM, "idle-rpm", th.IdleRPM, "Speed at which the engine counts as running (rpm)")

	// Start sequence
	fs.DurationVar(&eng.GlowPeriod, "glow", eng.GlowPeriod, "Glow plug pre-heat before cranking")
	fs.DurationVar(&eng.CrankTime, "crank-time", eng.CrankTime, "Longest single crank attempt")
	fs.IntVar(&eng.MaxRetries, "max-retries", eng.MaxRetries, "Crank attempts before StartFailed")
	fs.DurationVar(&eng.Rest.Initial, "retry-rest", eng.Rest.Initial, "Starter rest between crank attempts")
	fs.DurationVar(&eng.Rest.Max, "retry-rest-max", eng.Rest.Max, "Longest starter rest")
	fs.Float64Var(&eng.Rest.Multiplier, "retry-rest-multiply", eng.Rest.Multiplier, "Rest growth per failed crank (1.0 = fixed)")
	fs.IntVar(&eng.MinCoolantTempC, "min-coolant-temp", eng.MinCoolantTempC, "Coolant temperature that ends warm-up (°C)")
	fs.DurationVar(&eng.WarmupPeriod, "warmup", eng.WarmupPeriod, "Longest warm-up before load is applied")

	// Stop sequence
	fs.DurationVar(&eng.ShutdownDelay, "shutdown-delay", eng.ShutdownDelay, "Unloaded run-down before the fuel is cut")
	fs.DurationVar(&eng.ShutdownWait, "shutdown-wait", eng.ShutdownWait, "Wait for the engine to stop after the fuel is cut")

	// Supervisor
	fs.DurationVar(&cfg.TickInterval, "tick", cfg.TickInterval, "Supervisor tick interval")
	fs.IntVar(&cfg.SensorLossTolerance, "sensor-loss-tolerance", cfg.SensorLossTolerance, "Failed acquisitions tolerated before SensorLost")
	fs.IntVar(&cfg.QueueSize, "queue-size", cfg.QueueSize, "Operator request queue depth")

	// Backends
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, `Hardware backend: "sim", "gpio", "dry-run"`)
	fs.StringVar(&cfg.SensorURL, "sensor-url", cfg.SensorURL, "Prometheus exposition URL of the sensor front-end (gpio, dry-run)")
	fs.DurationVar(&cfg.SensorTimeout, "sensor-timeout", cfg.SensorTimeout, "Timeout of one sensor acquisition")
	fs.StringVar(&cfg.Pins.Fuel, "pin-fuel", cfg.Pins.Fuel, "GPIO pin of the fuel solenoid")
	fs.StringVar(&cfg.Pins.GlowPlugs, "pin-glow", cfg.Pins.GlowPlugs, "GPIO pin of the glow plug relay")
	fs.StringVar(&cfg.Pins.Starter, "pin-starter", cfg.Pins.Starter, "GPIO pin of the starter relay")
	fs.StringVar(&cfg.Pins.CoolantPump, "pin-pump", cfg.Pins.CoolantPump, "GPIO pin of the coolant pump relay")
	fs.StringVar(&cfg.Pins.AltLoad, "pin-load", cfg.Pins.AltLoad, "GPIO pin of the alternator load contactor")
	fs.StringVar(&cfg.Pins.Alarm, "pin-alarm", cfg.Pins.Alarm, "GPIO pin of the alarm sounder")
	fs.BoolVar(&cfg.Pins.ActiveLow, "active-low", cfg.Pins.ActiveLow, "Relays energise on a low output")

	// Simulator
	fs.StringVar(&cfg.SimFailure, "sim-failure", cfg.SimFailure, `Injected plant failure: "no-start", "overheat", "stuck-running", "low-oil", "sensor"`)
	fs.DurationVar(&cfg.Sim.CatchAfter, "sim-catch-after", cfg.Sim.CatchAfter, "Cranking time before the simulated engine fires")
	fs.Float64Var(&cfg.Sim.AmbientC, "sim-ambient", cfg.Sim.AmbientC, "Simulated ambient temperature (°C)")

	// Operator
	fs.BoolVar(&cfg.AutoStart, "auto-start", cfg.AutoStart, "Request a start once the supervisor is up")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Bound on the safe stop performed at exit")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics and control address (empty disables)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn", "error"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable the operator panel")

	// Diagnostics (double-dash convention)
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML configuration file")
	fs.BoolVar(&cfg.Check, "check", cfg.Check, "Validate config, run preflight checks and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")
	fs.BoolVar(&cfg.PrintConfig, "print-config", cfg.PrintConfig, "Print the effective configuration as YAML and exit")

	return fs
}

func printUsage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintf(w, `go-genset-supervisor - diesel generator start/stop sequencing and safety supervision

Usage:
  go-genset-supervisor [flags]

Fault Thresholds:
`)
	printFlagCategory(w, fs, []string{"max-coolant-temp", "max-oil-temp", "min-batt-v", "min-oil-pressure", "oil-grace", "idle-rpm"})

	fmt.Fprintf(w, "\nStart Sequence:\n")
	printFlagCategory(w, fs, []string{"glow", "crank-time", "max-retries", "retry-rest", "retry-rest-max", "retry-rest-multiply", "min-coolant-temp", "warmup"})

	fmt.Fprintf(w, "\nStop Sequence:\n")
	printFlagCategory(w, fs, []string{"shutdown-delay", "shutdown-wait"})

	fmt.Fprintf(w, "\nSupervisor:\n")
	printFlagCategory(w, fs, []string{"tick", "sensor-loss-tolerance", "queue-size"})

	fmt.Fprintf(w, "\nBackends:\n")
	printFlagCategory(w, fs, []string{"backend", "sensor-url", "sensor-timeout", "pin-fuel", "pin-glow", "pin-starter", "pin-pump", "pin-load", "pin-alarm", "active-low"})

	fmt.Fprintf(w, "\nSimulator:\n")
	printFlagCategory(w, fs, []string{"sim-failure", "sim-catch-after", "sim-ambient"})

	fmt.Fprintf(w, "\nOperator:\n")
	printFlagCategory(w, fs, []string{"auto-start", "shutdown-timeout", "tui"})

	fmt.Fprintf(w, "\nObservability:\n")
	printFlagCategory(w, fs, []string{"metrics", "v", "log-format", "log-level"})

	fmt.Fprintf(w, "\nSafety & Diagnostics:\n")
	printFlagCategory(w, fs, []string{"config", "check", "skip-preflight", "print-config"})

	fmt.Fprintf(w, `
Flag Convention:
  Single-dash flags (-glow, -backend) are normal options.
  Double-dash flags (--check, --print-config) are diagnostic modes.

Examples:
  # Simulated engine with the operator panel
  go-genset-supervisor -tui

  # Rehearse a start failure
  go-genset-supervisor -sim-failure no-start -auto-start -log-format text

  # Relay hat on a Raspberry Pi, sensors from a local exporter
  go-genset-supervisor -backend gpio -sensor-url http://127.0.0.1:9200/metrics -config genset.yaml

`)
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(w io.Writer, fs *flag.FlagSet, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(w, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(w)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	name, _ := flag.UnquoteUsage(f)
	return name
}
