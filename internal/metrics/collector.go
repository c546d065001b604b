// Package metrics provides Prometheus metrics for go-genset-supervisor.
//
// State-like values (state, phase, faults, actuators) are exported as one
// gauge per label value set to 0 or 1, so every series exists from startup.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
	"github.com/randomizedcoder/go-genset-supervisor/internal/supervisor"
)

// Collector manages all Prometheus metrics of one supervised engine.
type Collector struct {
	// --- Overview ---
	info       *prometheus.GaugeVec
	state      *prometheus.GaugeVec
	phase      *prometheus.GaugeVec
	runSeconds prometheus.Gauge
	attempts   prometheus.Gauge
	alarmAcked prometheus.Gauge

	// --- Faults ---
	faultActive  *prometheus.GaugeVec
	faultLatched *prometheus.GaugeVec
	faultsTotal  *prometheus.CounterVec

	// --- Actuators ---
	actuatorOn     *prometheus.GaugeVec
	actuatorErrors *prometheus.CounterVec

	// --- Sequencing ---
	transitionsTotal   *prometheus.CounterVec
	requestsTotal      *prometheus.CounterVec
	crankFailuresTotal prometheus.Counter

	// --- Sensors ---
	rpm            prometheus.Gauge
	oilPressure    prometheus.Gauge
	oilTemp        prometheus.Gauge
	coolantTemp    prometheus.Gauge
	coolantFlow    prometheus.Gauge
	battery        prometheus.Gauge
	sensorOK       prometheus.Gauge
	sensorErrors   prometheus.Counter
	sensorFailures prometheus.Gauge

	// --- Loop ---
	tickDuration prometheus.Histogram
	ticksTotal   prometheus.Counter

	// Internal tracking for latched-fault deltas
	mu          sync.Mutex
	prevLatched fault.Set
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version string
	Backend string
}

// NewCollector creates a new metrics collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "genset_info",
			Help: "Information about the supervisor (value always 1)",
		}, []string{"version", "backend"}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "genset_state",
			Help: "Engine state (1 for the current state)",
		}, []string{"state"}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "genset_phase",
			Help: "Timed sub-step of the start or stop sequence (1 for the current phase)",
		}, []string{"phase"}),
		runSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_run_seconds",
			Help: "Seconds since the engine was confirmed running (0 when not running)",
		}),
		attempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_start_attempts",
			Help: "Failed crank attempts in the current start",
		}),
		alarmAcked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_alarm_acknowledged",
			Help: "1 when the operator has acknowledged the current fault",
		}),

		faultActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "genset_fault_active",
			Help: "Fault present in the latest evaluation",
		}, []string{"kind"}),
		faultLatched: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "genset_fault_latched",
			Help: "Fault latched until reset",
		}, []string{"kind"}),
		faultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genset_faults_total",
			Help: "Faults latched, by kind",
		}, []string{"kind"}),

		actuatorOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "genset_actuator_on",
			Help: "Commanded actuator level",
		}, []string{"actuator"}),
		actuatorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genset_actuator_errors_total",
			Help: "Commands the actuator bank failed to apply",
		}, []string{"actuator"}),

		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genset_transitions_total",
			Help: "State transitions",
		}, []string{"from", "to"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "genset_requests_total",
			Help: "Operator requests by outcome",
		}, []string{"request", "result"}),
		crankFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genset_crank_failures_total",
			Help: "Crank attempts that expired without the engine catching",
		}),

		rpm: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_sensor_rpm",
			Help: "Engine speed",
		}),
		oilPressure: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_sensor_oil_pressure_pascals",
			Help: "Oil pressure",
		}),
		oilTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_sensor_oil_temp_celsius",
			Help: "Oil temperature",
		}),
		coolantTemp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_sensor_coolant_temp_celsius",
			Help: "Coolant temperature",
		}),
		coolantFlow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_sensor_coolant_flow_lpm",
			Help: "Coolant flow in litres per minute",
		}),
		battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_sensor_starter_battery_volts",
			Help: "Starter battery voltage",
		}),
		sensorOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_sensor_ok",
			Help: "1 when the latest acquisition succeeded",
		}),
		sensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genset_sensor_errors_total",
			Help: "Failed sensor acquisitions",
		}),
		sensorFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "genset_sensor_consecutive_errors",
			Help: "Failed acquisitions since the last good snapshot",
		}),

		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "genset_tick_duration_seconds",
			Help:    "Time spent in one supervisor tick",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 100µs to ~1.6s
		}),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "genset_ticks_total",
			Help: "Supervisor ticks",
		}),
	}

	registry.MustRegister(
		// Overview
		c.info,
		c.state,
		c.phase,
		c.runSeconds,
		c.attempts,
		c.alarmAcked,

		// Faults
		c.faultActive,
		c.faultLatched,
		c.faultsTotal,

		// Actuators
		c.actuatorOn,
		c.actuatorErrors,

		// Sequencing
		c.transitionsTotal,
		c.requestsTotal,
		c.crankFailuresTotal,

		// Sensors
		c.rpm,
		c.oilPressure,
		c.oilTemp,
		c.coolantTemp,
		c.coolantFlow,
		c.battery,
		c.sensorOK,
		c.sensorErrors,
		c.sensorFailures,

		// Loop
		c.tickDuration,
		c.ticksTotal,
	)

	c.info.WithLabelValues(cfg.Version, cfg.Backend).Set(1)

	// Create every labelled series up front.
	for _, s := range engine.States() {
		c.state.WithLabelValues(s.String()).Set(0)
	}
	c.state.WithLabelValues(engine.StateStopped.String()).Set(1)
	for _, p := range engine.Phases() {
		c.phase.WithLabelValues(p.String()).Set(0)
	}
	c.phase.WithLabelValues(engine.PhaseNone.String()).Set(1)
	for _, k := range fault.Kinds {
		c.faultActive.WithLabelValues(string(k)).Set(0)
		c.faultLatched.WithLabelValues(string(k)).Set(0)
		c.faultsTotal.WithLabelValues(string(k))
	}
	for _, n := range actuator.All() {
		c.actuatorOn.WithLabelValues(n.String()).Set(0)
		c.actuatorErrors.WithLabelValues(n.String())
	}

	return c
}

// =============================================================================
// Event Recording Methods
// =============================================================================

// RecordEvent counts transitions, requests and crank failures. It has the
// signature of supervisor.Callbacks.OnEvent.
func (c *Collector) RecordEvent(e engine.Event) {
	switch e.Kind {
	case engine.EventTransition:
		c.transitionsTotal.WithLabelValues(e.From.String(), e.State.String()).Inc()
	case engine.EventRequestAccepted:
		c.requestsTotal.WithLabelValues(e.Request.String(), "accepted").Inc()
	case engine.EventRequestRejected:
		c.requestsTotal.WithLabelValues(e.Request.String(), "rejected").Inc()
	case engine.EventCrankFailed:
		c.crankFailuresTotal.Inc()
	}
}

// RecordSensorError counts a failed acquisition.
func (c *Collector) RecordSensorError(err error, consecutive int) {
	c.sensorErrors.Inc()
	c.sensorFailures.Set(float64(consecutive))
}

// RecordActuatorError counts a command the bank failed to apply.
func (c *Collector) RecordActuatorError(cmd actuator.Command, err error) {
	c.actuatorErrors.WithLabelValues(cmd.Name.String()).Inc()
}

// RecordTick publishes the view of one tick. It has the signature of
// supervisor.Callbacks.OnTick.
func (c *Collector) RecordTick(v supervisor.View, took time.Duration) {
	c.tickDuration.Observe(took.Seconds())
	c.ticksTotal.Inc()

	st := v.Status
	for _, s := range engine.States() {
		c.state.WithLabelValues(s.String()).Set(boolFloat(s == st.State))
	}
	for _, p := range engine.Phases() {
		c.phase.WithLabelValues(p.String()).Set(boolFloat(p == st.Phase))
	}
	for _, k := range fault.Kinds {
		c.faultActive.WithLabelValues(string(k)).Set(boolFloat(st.ActiveFaults.Has(k)))
		c.faultLatched.WithLabelValues(string(k)).Set(boolFloat(st.Latched.Has(k)))
	}
	for _, n := range actuator.All() {
		c.actuatorOn.WithLabelValues(n.String()).Set(boolFloat(st.Outputs.On(n)))
	}
	c.attempts.Set(float64(st.Attempts))
	c.alarmAcked.Set(boolFloat(st.AlarmAcked))
	c.runSeconds.Set(st.Uptime(v.UpdatedAt).Seconds())

	c.mu.Lock()
	for _, k := range st.Latched.Kinds() {
		if !c.prevLatched.Has(k) {
			c.faultsTotal.WithLabelValues(string(k)).Inc()
		}
	}
	c.prevLatched = st.Latched
	c.mu.Unlock()

	c.sensorOK.Set(boolFloat(v.SensorOK))
	c.sensorFailures.Set(float64(v.SensorErrors))
	if v.SensorOK {
		s := v.Snapshot
		c.rpm.Set(float64(s.RPM))
		c.oilPressure.Set(float64(s.OilPressurePa))
		c.oilTemp.Set(float64(s.OilTempC))
		c.coolantTemp.Set(float64(s.CoolantTempC))
		c.coolantFlow.Set(float64(s.CoolantFlowLpm))
		c.battery.Set(s.StarterBattV)
	}
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
