package logging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
)

// MaxRecentEvents is the number of formatted events kept for the operator panel
// and the exit summary.
const MaxRecentEvents = 100

// EventLogger is a telemetry sink for engine events. It logs each event at a
// level derived from its kind and keeps the most recent ones formatted.
type EventLogger struct {
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent events
	mu     sync.Mutex
	buffer []string
	bufIdx int
	counts map[engine.EventKind]int
}

// NewEventLogger creates a new event sink. Phase changes are only logged when
// verbose is set.
func NewEventLogger(logger *slog.Logger, verbose bool) *EventLogger {
	return &EventLogger{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxRecentEvents),
		counts:  make(map[engine.EventKind]int),
	}
}

// Handle records and logs one event. It has the signature of
// supervisor.Callbacks.OnEvent.
func (h *EventLogger) Handle(e engine.Event) {
	line := Format(e)

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxRecentEvents
	h.counts[e.Kind]++
	h.mu.Unlock()

	h.log(e)
}

func (h *EventLogger) log(e engine.Event) {
	level := Classify(e)

	// In non-verbose mode phase chatter is dropped
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	attrs := []any{
		"state", e.State.String(),
		"phase", e.Phase.String(),
	}
	if e.RunID != "" {
		attrs = append(attrs, "run_id", e.RunID)
	}

	var msg string
	switch e.Kind {
	case engine.EventTransition:
		msg = "engine_transition"
		attrs = append(attrs, "from", e.From.String())
		if !e.Faults.Empty() {
			attrs = append(attrs, "faults", e.Faults.String())
		}
	case engine.EventPhase:
		msg = "engine_phase"
		attrs = append(attrs, "from_phase", e.FromPhase.String())
	case engine.EventFaultsChanged:
		msg = "faults_changed"
		attrs = append(attrs, "faults", e.Faults.String())
	case engine.EventRequestAccepted:
		msg = "request_accepted"
		attrs = append(attrs, "request", e.Request.String())
	case engine.EventRequestRejected:
		msg = "request_rejected"
		attrs = append(attrs, "request", e.Request.String(), "error", e.Err)
		if !e.Faults.Empty() {
			attrs = append(attrs, "faults", e.Faults.String())
		}
	case engine.EventCrankFailed:
		msg = "crank_failed"
		attrs = append(attrs, "attempt", e.Attempt)
		if e.Rest > 0 {
			attrs = append(attrs, "rest", e.Rest.String())
		}
	case engine.EventFaultLatched:
		msg = "fault_latched"
		attrs = append(attrs, "faults", e.Faults.String())
	default:
		msg = "engine_event"
		attrs = append(attrs, "kind", e.Kind.String())
	}

	h.logger.Log(context.Background(), level, msg, attrs...)
}

// Classify determines the log level for an event.
func Classify(e engine.Event) slog.Level {
	switch e.Kind {
	case engine.EventFaultLatched:
		return slog.LevelError
	case engine.EventTransition:
		if e.State == engine.StateFault {
			return slog.LevelError
		}
		return slog.LevelInfo
	case engine.EventCrankFailed, engine.EventRequestRejected:
		return slog.LevelWarn
	case engine.EventFaultsChanged:
		if e.Faults.Empty() {
			return slog.LevelInfo
		}
		return slog.LevelWarn
	case engine.EventRequestAccepted:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// Format renders an event as one line for display.
func Format(e engine.Event) string {
	ts := e.At.Format("15:04:05")

	switch e.Kind {
	case engine.EventTransition:
		if e.Faults.Empty() {
			return fmt.Sprintf("%s %s -> %s", ts, e.From, e.State)
		}
		return fmt.Sprintf("%s %s -> %s [%s]", ts, e.From, e.State, e.Faults)
	case engine.EventPhase:
		return fmt.Sprintf("%s phase %s -> %s", ts, e.FromPhase, e.Phase)
	case engine.EventFaultsChanged:
		if e.Faults.Empty() {
			return ts + " faults cleared"
		}
		return fmt.Sprintf("%s faults: %s", ts, e.Faults)
	case engine.EventRequestAccepted:
		return fmt.Sprintf("%s %s accepted", ts, e.Request)
	case engine.EventRequestRejected:
		return fmt.Sprintf("%s %s rejected: %v", ts, e.Request, e.Err)
	case engine.EventCrankFailed:
		if e.Rest > 0 {
			return fmt.Sprintf("%s crank attempt %d failed, resting %s", ts, e.Attempt, e.Rest)
		}
		return fmt.Sprintf("%s crank attempt %d failed", ts, e.Attempt)
	case engine.EventFaultLatched:
		return fmt.Sprintf("%s fault latched: %s", ts, e.Faults)
	default:
		return fmt.Sprintf("%s %s", ts, e.Kind)
	}
}

// Recent returns up to n of the most recent events, oldest first.
func (h *EventLogger) Recent(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxRecentEvents {
		n = MaxRecentEvents
	}

	lines := make([]string, 0, n)

	// Read from circular buffer in order
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxRecentEvents) % MaxRecentEvents
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}

// Counts returns how many events of each kind were handled, keyed by kind name.
func (h *EventLogger) Counts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int, len(h.counts))
	for k, n := range h.counts {
		counts[k.String()] = n
	}
	return counts
}
