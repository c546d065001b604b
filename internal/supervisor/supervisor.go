// Package supervisor runs the engine state machine on a fixed tick.
//
// One goroutine owns the machine. Each tick it acquires a sensor snapshot,
// evaluates faults, feeds the machine at most one queued operator request and
// applies the actuator commands it emits, in order. Operator requests arrive
// through Submit from any goroutine; readers observe the machine through View.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
)

// Callbacks contains optional callback functions for supervisor events.
// They run on the supervisor goroutine and must not block.
type Callbacks struct {
	// OnEvent is called for every machine event, in order.
	OnEvent func(e engine.Event)

	// OnTick is called after every tick with the published view and the tick duration.
	OnTick func(v View, took time.Duration)

	// OnSensorError is called when acquisition fails. consecutive counts
	// failures since the last good snapshot.
	OnSensorError func(err error, consecutive int)

	// OnActuatorError is called when the bank rejects a command.
	OnActuatorError func(c actuator.Command, err error)
}

// View is what the supervisor publishes after each tick.
type View struct {
	Status       engine.Status
	Snapshot     sensor.Snapshot
	SensorOK     bool
	SensorErrors int
	Ticks        uint64
	UpdatedAt    time.Time
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	Machine   *engine.Machine
	Source    sensor.Source
	Bank      actuator.Bank
	Logger    *slog.Logger
	Callbacks Callbacks

	TickInterval time.Duration // default 100ms

	// SensorLossTolerance is how many consecutive failed acquisitions reuse the
	// last good snapshot before SensorLost is raised. Default 5.
	SensorLossTolerance int

	QueueSize int // default 8

	// Now is the time source; nil means time.Now.
	Now func() time.Time
}

// Supervisor drives one engine.
type Supervisor struct {
	machine   *engine.Machine
	source    sensor.Source
	bank      actuator.Bank
	logger    *slog.Logger
	callbacks Callbacks

	interval  time.Duration
	tolerance int
	requests  chan engine.Request
	now       func() time.Time

	// Owned by the tick goroutine.
	last         sensor.Snapshot
	haveLast     bool
	sensorErrors int

	ticks atomic.Uint64
	view  atomic.Value // View
}

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	tolerance := cfg.SensorLossTolerance
	if tolerance <= 0 {
		tolerance = 5
	}
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 8
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Supervisor{
		machine:   cfg.Machine,
		source:    cfg.Source,
		bank:      cfg.Bank,
		logger:    logger,
		callbacks: cfg.Callbacks,
		interval:  interval,
		tolerance: tolerance,
		requests:  make(chan engine.Request, queue),
		now:       now,
	}
	s.view.Store(View{Status: cfg.Machine.Status()})
	return s
}

// Submit queues an operator request for the next tick. It never blocks.
func (s *Supervisor) Submit(req engine.Request) error {
	if req == engine.RequestNone {
		return errors.New("empty request")
	}
	select {
	case s.requests <- req:
		s.logger.Debug("request_queued", "request", req.String())
		return nil
	default:
		s.logger.Warn("request_dropped", "request", req.String(), "reason", "queue_full")
		return engine.ErrQueueFull
	}
}

// View returns the view published by the most recent tick.
func (s *Supervisor) View() View {
	return s.view.Load().(View)
}

// Interval returns the tick interval.
func (s *Supervisor) Interval() time.Duration {
	return s.interval
}

// Run ticks until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor_starting", "tick_interval", s.interval.String())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Tick(ctx); err != nil {
			s.logger.Info("supervisor_stopped", "reason", "context_cancelled")
			return err
		}

		select {
		case <-ctx.Done():
			s.logger.Info("supervisor_stopped", "reason", "context_cancelled")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs one supervisor iteration. It only returns an error when ctx is done.
func (s *Supervisor) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	now := s.now()

	snap, ok := s.acquire(ctx)
	if !ok && ctx.Err() != nil {
		return ctx.Err()
	}

	var faults fault.Set
	switch {
	case !s.haveLast:
		// Nothing to evaluate yet.
		faults = fault.NewSet(fault.SensorLost)
	case s.sensorErrors > s.tolerance:
		faults = s.machine.Evaluate(now, snap).With(fault.SensorLost)
	default:
		faults = s.machine.Evaluate(now, snap)
	}

	out := s.machine.Step(engine.Input{
		Now:      now,
		Snapshot: snap,
		Faults:   faults,
		Request:  s.nextRequest(),
	})

	s.apply(out.Commands)

	for _, e := range out.Events {
		if s.callbacks.OnEvent != nil {
			s.callbacks.OnEvent(e)
		}
	}

	v := View{
		Status:       s.machine.Status(),
		Snapshot:     snap,
		SensorOK:     ok,
		SensorErrors: s.sensorErrors,
		Ticks:        s.ticks.Add(1),
		UpdatedAt:    now,
	}
	s.view.Store(v)

	if s.callbacks.OnTick != nil {
		s.callbacks.OnTick(v, time.Since(start))
	}
	return nil
}

// acquire returns a fresh snapshot, or the last good one when acquisition fails.
func (s *Supervisor) acquire(ctx context.Context) (sensor.Snapshot, bool) {
	snap, err := s.source.Acquire(ctx)
	if err == nil {
		if cerr := sensor.Check(snap); cerr != nil {
			err = fmt.Errorf("implausible snapshot: %w", cerr)
		}
	}

	if err == nil {
		if s.sensorErrors > 0 {
			s.logger.Info("sensor_recovered", "failed_ticks", s.sensorErrors)
		}
		s.sensorErrors = 0
		s.last = snap
		s.haveLast = true
		return snap, true
	}

	if ctx.Err() != nil {
		return s.last, false
	}

	s.sensorErrors++
	s.logger.Warn("sensor_acquire_failed",
		"error", err,
		"consecutive", s.sensorErrors,
		"tolerance", s.tolerance,
	)
	if s.callbacks.OnSensorError != nil {
		s.callbacks.OnSensorError(err, s.sensorErrors)
	}
	return s.last, false
}

func (s *Supervisor) nextRequest() engine.Request {
	select {
	case req := <-s.requests:
		return req
	default:
		return engine.RequestNone
	}
}

// apply sends every command to the bank. A failed command does not stop the
// rest from being applied.
func (s *Supervisor) apply(cmds []actuator.Command) {
	for _, c := range cmds {
		if err := s.bank.Set(c.Name, c.On); err != nil {
			s.logger.Error("actuator_set_failed", "actuator", c.Name.String(), "on", c.On, "error", err)
			if s.callbacks.OnActuatorError != nil {
				s.callbacks.OnActuatorError(c, err)
			}
			continue
		}
		s.logger.Debug("actuator_set", "actuator", c.Name.String(), "on", c.On)
	}
}

// WaitFor polls the published view until cond holds or ctx is done.
func (s *Supervisor) WaitFor(ctx context.Context, cond func(View) bool) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if cond(s.View()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
