// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
)

// minFileDescriptors covers the metrics server, the sensor scrape connections
// and one sysfs handle per GPIO line.
const minFileDescriptors = 64

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks   []Check
	Passed   bool
	Snapshot sensor.Snapshot // first good acquisition, if any
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Options controls RunAll.
type Options struct {
	Source     sensor.Source
	Thresholds fault.Thresholds

	// Timeout bounds each acquisition attempt.
	Timeout time.Duration

	// Attempts is how many acquisitions are tried before the source is
	// declared unreachable.
	Attempts int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = time.Second
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 200 * time.Millisecond
	}
}

// RunAll executes all preflight checks.
//
// Only an unreachable source, implausible readings or a short descriptor
// limit fail preflight. A running engine, a weak battery or an overheated
// engine are reported as warnings: supervision must still start so the
// machine can refuse starts and latch faults.
func RunAll(ctx context.Context, opts Options) *Result {
	opts.defaults()

	result := &Result{
		Checks: make([]Check, 0, 6),
		Passed: true,
	}
	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(minFileDescriptors))

	snap, srcCheck := checkSource(ctx, opts)
	add(srcCheck)
	if !srcCheck.Passed {
		return result
	}
	result.Snapshot = snap

	plausible := checkPlausible(snap)
	add(plausible)
	if !plausible.Passed {
		return result
	}

	add(checkAtRest(opts.Thresholds, snap))
	add(checkBattery(opts.Thresholds, snap))
	add(checkTemperatures(opts.Thresholds, snap))

	return result
}

// checkFileDescriptors verifies sufficient file descriptors are available.
func checkFileDescriptors(required int) Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	actual := int(limit.Cur)
	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, required),
	}
}

// checkSource acquires a snapshot, retrying a few times since a sensor
// exporter may still be starting alongside the supervisor.
func checkSource(ctx context.Context, opts Options) (sensor.Snapshot, Check) {
	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, opts.Timeout)
		snap, err := opts.Source.Acquire(actx)
		cancel()
		if err == nil {
			return snap, Check{
				Name:    "sensor_source",
				Passed:  true,
				Message: fmt.Sprintf("reachable (attempt %d of %d)", attempt, opts.Attempts),
			}
		}
		lastErr = err

		if attempt == opts.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return sensor.Snapshot{}, Check{
				Name:    "sensor_source",
				Passed:  false,
				Message: fmt.Sprintf("cancelled after %d attempts: %v", attempt, lastErr),
			}
		case <-time.After(opts.RetryDelay):
		}
	}

	return sensor.Snapshot{}, Check{
		Name:    "sensor_source",
		Passed:  false,
		Message: fmt.Sprintf("unreachable after %d attempts: %v", opts.Attempts, lastErr),
	}
}

func checkPlausible(s sensor.Snapshot) Check {
	if err := sensor.Check(s); err != nil {
		return Check{
			Name:    "sensor_readings",
			Passed:  false,
			Message: err.Error(),
		}
	}
	return Check{
		Name:   "sensor_readings",
		Passed: true,
		Message: fmt.Sprintf("rpm %d, oil %d kPa, coolant %d°C, oil %d°C, battery %.1f V",
			s.RPM, s.OilPressurePa/1000, s.CoolantTempC, s.OilTempC, s.StarterBattV),
	}
}

func checkAtRest(th fault.Thresholds, s sensor.Snapshot) Check {
	if s.RPM >= th.IdleRPM {
		return Check{
			Name:    "engine_at_rest",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("engine turning at %d rpm (idle %d), start requests will be refused", s.RPM, th.IdleRPM),
		}
	}
	return Check{
		Name:    "engine_at_rest",
		Passed:  true,
		Message: fmt.Sprintf("%d rpm", s.RPM),
	}
}

func checkBattery(th fault.Thresholds, s sensor.Snapshot) Check {
	c := Check{
		Name:    "starter_battery",
		Passed:  true,
		Message: fmt.Sprintf("%.2f V (minimum %.2f V)", s.StarterBattV, th.MinBattV),
	}
	if s.StarterBattV <= th.MinBattV {
		c.Warning = true
		c.Message += ", start requests will be refused"
	}
	return c
}

func checkTemperatures(th fault.Thresholds, s sensor.Snapshot) Check {
	faults := fault.Evaluate(th, s, 0, false)
	over := fault.Set{}
	for _, k := range []fault.Kind{fault.CoolantOverTemp, fault.OilOverTemp} {
		if faults.Has(k) {
			over = over.With(k)
		}
	}
	if !over.Empty() {
		return Check{
			Name:    "temperatures",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s (coolant %d°C, oil %d°C)", over, s.CoolantTempC, s.OilTempC),
		}
	}
	return Check{
		Name:    "temperatures",
		Passed:  true,
		Message: fmt.Sprintf("coolant %d°C, oil %d°C", s.CoolantTempC, s.OilTempC),
	}
}

// Fprint writes the preflight check results to w.
func Fprint(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed || check.Warning {
			if fix := suggestFix(check.Name); fix != "" {
				fmt.Fprintf(w, "    Fix: %s\n", fix)
			}
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "sensor_source":
		return "check -sensor-url and that the sensor exporter is running"
	case "sensor_readings":
		return "check sensor wiring, a negative or very cold reading usually means an open circuit"
	case "engine_at_rest":
		return "stop the engine manually or wait for it to spin down"
	case "starter_battery":
		return "charge or replace the starter battery"
	case "temperatures":
		return "let the engine cool down before starting"
	default:
		return ""
	}
}
