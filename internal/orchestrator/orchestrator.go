// Package orchestrator wires the supervisor to its backends and operator
// surfaces, and owns the process lifecycle: preflight, run, safe shutdown and
// the exit summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/config"
	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/logging"
	"github.com/randomizedcoder/go-genset-supervisor/internal/metrics"
	"github.com/randomizedcoder/go-genset-supervisor/internal/preflight"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sim"
	"github.com/randomizedcoder/go-genset-supervisor/internal/stats"
	"github.com/randomizedcoder/go-genset-supervisor/internal/supervisor"
	"github.com/randomizedcoder/go-genset-supervisor/internal/tui"
)

// summaryEvents is how many recent events the exit summary lists.
const summaryEvents = 10

// Options holds the process-level settings that are not part of Config.
type Options struct {
	Version string

	// Out receives preflight results and the exit summary. Default os.Stdout.
	Out io.Writer
}

// Orchestrator coordinates all components for one supervised engine.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer

	backends *backends

	machine       *engine.Machine
	supervisor    *supervisor.Supervisor
	events        *logging.EventLogger
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	stats         *stats.RunStats
}

// New creates a new Orchestrator with the given configuration. It opens the
// backends, so hardware errors surface here.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	b, err := newBackends(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		out:      opts.Out,
		backends: b,
		machine:  engine.NewMachine(cfg.Engine),
		events:   logging.NewEventLogger(logger, cfg.Verbose),
		registry: registry,
		metrics:  metrics.NewCollectorWithRegistry(metrics.CollectorConfig{Version: opts.Version, Backend: cfg.Backend}, registry),
		stats:    stats.NewRunStats(time.Now()),
	}

	o.supervisor = supervisor.New(supervisor.Config{
		Machine:             o.machine,
		Source:              b.source,
		Bank:                b.bank,
		Logger:              logger,
		TickInterval:        cfg.TickInterval,
		SensorLossTolerance: cfg.SensorLossTolerance,
		QueueSize:           cfg.QueueSize,
		Callbacks: supervisor.Callbacks{
			OnEvent:         o.onEvent,
			OnTick:          o.onTick,
			OnSensorError:   o.onSensorError,
			OnActuatorError: o.onActuatorError,
		},
	})

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, registry, o.supervisor, logger)
	}

	return o, nil
}

// Run supervises the engine. It blocks until a signal, context cancellation or
// the operator panel closing, then stops the engine safely before returning.
func (o *Orchestrator) Run(ctx context.Context) error {
	// Hardware outputs are only released from a clean stop so a latched
	// alarm keeps sounding after exit.
	release := true
	defer func() { o.backends.close(o.logger, release) }()

	// Run preflight checks
	if !o.config.SkipPreflight {
		result := preflight.RunAll(ctx, preflight.Options{
			Source:     o.backends.source,
			Thresholds: o.config.Engine.Thresholds,
			Timeout:    preflightTimeout(o.config.SensorTimeout),
		})
		preflight.Fprint(o.out, result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use -skip-preflight to override)")
		}
	}

	if o.config.Check {
		o.logger.Info("check_complete")
		return nil
	}

	// Start metrics server
	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	// The supervisor outlives ctx: it must keep ticking through the stop
	// sequence after the operator asked to exit.
	supCtx, supCancel := context.WithCancel(context.Background())
	defer supCancel()
	supDone := make(chan error, 1)
	go func() {
		supDone <- o.supervisor.Run(supCtx)
	}()

	if o.config.AutoStart {
		if err := o.supervisor.Submit(engine.RequestStart); err != nil {
			o.logger.Warn("auto_start_failed", "error", err)
		} else {
			o.logger.Info("auto_start_requested")
		}
	}

	program, tuiDone := o.startTUI()

	// Wait for completion signal
	select {
	case sig := <-sigCh:
		o.logger.Info("received_signal", "signal", sig.String())
	case <-ctx.Done():
		o.logger.Info("context_cancelled")
	case <-tuiDone:
		o.logger.Info("operator_panel_closed")
	case err := <-supDone:
		// Only a cancelled context ends the loop, so this is unexpected.
		o.logger.Error("supervisor_exited", "error", err)
		supDone <- err
	}

	stopped := o.safeStop()

	supCancel()
	<-supDone
	release = stopped && o.supervisor.View().Status.State == engine.StateStopped

	if !stopped {
		o.failsafe()
	}

	if program != nil {
		tui.SendQuit(program)
		<-tuiDone
	}

	if o.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
		cancel()
	}

	// Print exit summary
	fmt.Fprint(o.out, o.ExitSummary())

	if !stopped {
		return errors.New("engine stop was not confirmed before exit")
	}
	return nil
}

// startTUI launches the operator panel if enabled. The returned channel is
// closed when the panel exits; it is nil (blocks forever) when disabled.
func (o *Orchestrator) startTUI() (*tea.Program, chan struct{}) {
	if !o.config.TUIEnabled {
		return nil, nil
	}

	model := tui.New(tui.Config{
		Backend:     o.config.Backend,
		MetricsAddr: o.config.MetricsAddr,
		Engine:      o.config.Engine,
		Controller:  o.supervisor,
		Events:      o.events,
		Stats:       o.stats,
	})
	program := tea.NewProgram(model, tea.WithAltScreen())

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := program.Run(); err != nil {
			o.logger.Error("tui_error", "error", err)
		}
	}()
	return program, done
}

// safeStop requests a stop and waits, bounded by ShutdownTimeout, until the
// engine is at rest or a stop failure has been latched. It reports whether
// the engine reached a terminal condition in time.
func (o *Orchestrator) safeStop() bool {
	ctx, cancel := context.WithTimeout(context.Background(), o.config.ShutdownTimeout)
	defer cancel()

	if atRest(o.supervisor.View()) {
		return true
	}

	o.logger.Info("safe_shutdown_starting",
		"state", o.supervisor.View().Status.State.String(),
		"timeout", o.config.ShutdownTimeout.String(),
	)

	if err := o.submitStop(ctx); err != nil {
		o.logger.Error("safe_shutdown_request_failed", "error", err)
	}

	if err := o.supervisor.WaitFor(ctx, atRest); err != nil {
		v := o.supervisor.View()
		o.logger.Error("safe_shutdown_timeout",
			"state", v.Status.State.String(),
			"phase", v.Status.Phase.String(),
			"rpm", v.Snapshot.RPM,
		)
		return false
	}

	v := o.supervisor.View()
	o.logger.Info("safe_shutdown_complete",
		"state", v.Status.State.String(),
		"latched", v.Status.Latched.String(),
	)
	return true
}

// submitStop retries while the request queue is full. A stop in a state
// that does not need one is rejected by the machine and that is fine.
func (o *Orchestrator) submitStop(ctx context.Context) error {
	ticker := time.NewTicker(o.supervisor.Interval())
	defer ticker.Stop()

	for {
		err := o.supervisor.Submit(engine.RequestStop)
		if !errors.Is(err, engine.ErrQueueFull) {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-ticker.C:
		}
	}
}

// atRest reports whether nothing more will happen without operator input:
// stopped, or faulted with the stop sequence finished or unresolved.
func atRest(v supervisor.View) bool {
	switch v.Status.State {
	case engine.StateStopped:
		return true
	case engine.StateFault:
		return v.Status.Phase == engine.PhaseNone || v.Status.Phase == engine.PhaseStopUnresolved
	default:
		return false
	}
}

// failsafe de-energises everything that keeps the engine turning and sounds
// the alarm. It runs only after the supervisor loop has ended.
func (o *Orchestrator) failsafe() {
	cmds := []actuator.Command{
		{Name: actuator.AltLoad, On: false},
		{Name: actuator.Starter, On: false},
		{Name: actuator.GlowPlugs, On: false},
		{Name: actuator.Fuel, On: false},
		{Name: actuator.Alarm, On: true},
	}
	o.logger.Error("failsafe_outputs", "commands", fmt.Sprint(cmds))
	if err := actuator.Apply(o.backends.bank, cmds); err != nil {
		o.logger.Error("failsafe_failed", "error", err)
	}
}

// ExitSummary formats the run statistics.
func (o *Orchestrator) ExitSummary() string {
	return stats.FormatExitSummary(o.stats.Aggregate(time.Now()), stats.SummaryConfig{
		Backend:      o.config.Backend,
		MetricsAddr:  o.config.MetricsAddr,
		RecentEvents: o.events.Recent(summaryEvents),
	})
}

func preflightTimeout(sensorTimeout time.Duration) time.Duration {
	// A first scrape may include connection setup.
	if d := 10 * sensorTimeout; d > time.Second {
		return d
	}
	return time.Second
}

// Callback handlers

func (o *Orchestrator) onEvent(e engine.Event) {
	o.events.Handle(e)
	o.metrics.RecordEvent(e)
	o.stats.RecordEvent(e)
}

func (o *Orchestrator) onTick(v supervisor.View, took time.Duration) {
	o.metrics.RecordTick(v, took)
	o.stats.RecordTick(v, took)
}

func (o *Orchestrator) onSensorError(err error, consecutive int) {
	o.metrics.RecordSensorError(err, consecutive)
	o.stats.RecordSensorError(err, consecutive)
}

func (o *Orchestrator) onActuatorError(c actuator.Command, err error) {
	o.metrics.RecordActuatorError(c, err)
	o.stats.RecordActuatorError(c, err)
}

// Supervisor returns the supervisor for external access.
func (o *Orchestrator) Supervisor() *supervisor.Supervisor {
	return o.supervisor
}

// Plant returns the simulated plant, or nil for hardware backends.
func (o *Orchestrator) Plant() *sim.Plant {
	return o.backends.plant
}

// Registry returns the Prometheus registry the collector is registered on.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// Stats returns the run statistics.
func (o *Orchestrator) Stats() *stats.RunStats {
	return o.stats
}

// Source returns the sensor source.
func (o *Orchestrator) Source() sensor.Source {
	return o.backends.source
}
