package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/config"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sim"
)

// backends is the sensor source and actuator bank for one run.
type backends struct {
	source sensor.Source
	bank   actuator.Bank

	plant *sim.Plant         // sim only
	gpio  *actuator.GPIOBank // gpio only
}

func newBackends(cfg *config.Config, logger *slog.Logger) (*backends, error) {
	switch cfg.Backend {
	case config.BackendSim:
		failure, err := sim.ParseFailure(cfg.SimFailure)
		if err != nil {
			return nil, fmt.Errorf("sim_failure: %w", err)
		}
		plant := sim.NewPlant(cfg.Sim, nil)
		plant.Inject(failure)
		logger.Info("sim_plant_ready", "failure", plant.Failure().String())
		return &backends{source: plant, bank: plant, plant: plant}, nil

	case config.BackendGPIO:
		if err := actuator.InitHost(); err != nil {
			return nil, err
		}
		bank, err := actuator.NewGPIOBank(cfg.Pins, logger)
		if err != nil {
			return nil, fmt.Errorf("gpio bank: %w", err)
		}
		src := sensor.NewHTTPSource(cfg.SensorURL, sensor.DefaultMetricNames(), cfg.SensorTimeout, logger)
		return &backends{source: src, bank: bank, gpio: bank}, nil

	case config.BackendDryRun:
		src := sensor.NewHTTPSource(cfg.SensorURL, sensor.DefaultMetricNames(), cfg.SensorTimeout, logger)
		bank := &loggingBank{next: actuator.NewRecorder(), logger: logger}
		return &backends{source: src, bank: bank}, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// close releases hardware. A GPIO bank is only released when the engine is
// known safe; otherwise the outputs stay where failsafe left them.
func (b *backends) close(logger *slog.Logger, safe bool) {
	if b.gpio == nil {
		return
	}
	if !safe {
		logger.Warn("gpio_left_latched", "reason", "engine stop not confirmed")
		return
	}
	if err := b.gpio.Close(); err != nil {
		logger.Error("gpio_close_failed", "error", err)
	}
}

// loggingBank records commands without touching hardware, logging each one
// at info so a dry run shows what would have been switched.
type loggingBank struct {
	next   actuator.Bank
	logger *slog.Logger
}

func (b *loggingBank) Set(n actuator.Name, on bool) error {
	b.logger.Info("dry_run_actuator", "actuator", n.String(), "on", on)
	return b.next.Set(n, on)
}
