package logging

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
)

var at = time.Date(2024, 1, 1, 12, 30, 5, 0, time.UTC)

func transition(from, to engine.State, faults ...fault.Kind) engine.Event {
	return engine.Event{
		Kind:   engine.EventTransition,
		At:     at,
		From:   from,
		State:  to,
		Faults: fault.NewSet(faults...),
		RunID:  "run-1",
	}
}

// =============================================================================
// Classification and formatting
// =============================================================================

func TestClassify(t *testing.T) {
	testCases := []struct {
		name  string
		event engine.Event
		want  slog.Level
	}{
		{"start transition", transition(engine.StateStopped, engine.StateStarting), slog.LevelInfo},
		{"into fault", transition(engine.StateRunning, engine.StateFault, fault.CoolantOverTemp), slog.LevelError},
		{"fault latched", engine.Event{Kind: engine.EventFaultLatched}, slog.LevelError},
		{"crank failed", engine.Event{Kind: engine.EventCrankFailed}, slog.LevelWarn},
		{"rejected", engine.Event{Kind: engine.EventRequestRejected}, slog.LevelWarn},
		{"faults raised", engine.Event{Kind: engine.EventFaultsChanged, Faults: fault.NewSet(fault.BatteryLow)}, slog.LevelWarn},
		{"faults cleared", engine.Event{Kind: engine.EventFaultsChanged}, slog.LevelInfo},
		{"accepted", engine.Event{Kind: engine.EventRequestAccepted}, slog.LevelInfo},
		{"phase", engine.Event{Kind: engine.EventPhase}, slog.LevelDebug},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.event); got != tc.want {
				t.Errorf("Classify() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	testCases := []struct {
		name  string
		event engine.Event
		want  string
	}{
		{
			"transition",
			transition(engine.StateStopped, engine.StateStarting),
			"12:30:05 stopped -> starting",
		},
		{
			"transition with faults",
			transition(engine.StateRunning, engine.StateFault, fault.CoolantOverTemp, fault.OilOverTemp),
			"12:30:05 running -> fault [CoolantOverTemp,OilOverTemp]",
		},
		{
			"phase",
			engine.Event{Kind: engine.EventPhase, At: at, FromPhase: engine.PhaseGlow, Phase: engine.PhaseCrank},
			"12:30:05 phase glow -> crank",
		},
		{
			"faults cleared",
			engine.Event{Kind: engine.EventFaultsChanged, At: at},
			"12:30:05 faults cleared",
		},
		{
			"rejected",
			engine.Event{Kind: engine.EventRequestRejected, At: at, Request: engine.RequestStart, Err: engine.ErrNotStopped},
			"12:30:05 start rejected: engine is not stopped",
		},
		{
			"crank failed with rest",
			engine.Event{Kind: engine.EventCrankFailed, At: at, Attempt: 1, Rest: 15 * time.Second},
			"12:30:05 crank attempt 1 failed, resting 15s",
		},
		{
			"crank failed final",
			engine.Event{Kind: engine.EventCrankFailed, At: at, Attempt: 3},
			"12:30:05 crank attempt 3 failed",
		},
		{
			"latched",
			engine.Event{Kind: engine.EventFaultLatched, At: at, Faults: fault.NewSet(fault.StopUnresolved)},
			"12:30:05 fault latched: StopUnresolved",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Format(tc.event); got != tc.want {
				t.Errorf("Format() = %q, want %q", got, tc.want)
			}
		})
	}
}

// =============================================================================
// EventLogger
// =============================================================================

func TestEventLogger_Handle(t *testing.T) {
	var buf bytes.Buffer
	h := NewEventLogger(New(Options{Out: &buf, Format: "text", Level: "debug"}), false)

	h.Handle(transition(engine.StateRunning, engine.StateFault, fault.LowOilPressure))
	h.Handle(engine.Event{
		Kind:    engine.EventRequestRejected,
		Request: engine.RequestReset,
		Err:     fmt.Errorf("%w: phase unload", engine.ErrStopInProgress),
	})

	out := buf.String()
	for _, want := range []string{
		"level=ERROR",
		"msg=engine_transition",
		"from=running",
		"state=fault",
		"faults=LowOilPressure",
		"run_id=run-1",
		"msg=request_rejected",
		"request=reset",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEventLogger_PhaseOnlyWhenVerbose(t *testing.T) {
	phase := engine.Event{Kind: engine.EventPhase, FromPhase: engine.PhaseNone, Phase: engine.PhaseGlow}

	var quiet bytes.Buffer
	NewEventLogger(New(Options{Out: &quiet, Format: "text", Level: "debug"}), false).Handle(phase)
	if strings.Contains(quiet.String(), "engine_phase") {
		t.Error("phase should not be logged without verbose")
	}

	var loud bytes.Buffer
	NewEventLogger(New(Options{Out: &loud, Format: "text", Level: "debug"}), true).Handle(phase)
	if !strings.Contains(loud.String(), "engine_phase") {
		t.Error("phase should be logged in verbose mode")
	}
}

func TestEventLogger_RecentAndCounts(t *testing.T) {
	h := NewEventLogger(New(Options{Out: &bytes.Buffer{}, Format: "text", Level: "error"}), false)

	if got := h.Recent(10); len(got) != 0 {
		t.Errorf("Recent() on empty logger = %v", got)
	}

	for i := 1; i <= MaxRecentEvents+5; i++ {
		h.Handle(engine.Event{Kind: engine.EventCrankFailed, At: at, Attempt: i})
	}
	h.Handle(transition(engine.StateStarting, engine.StateFault, fault.StartFailed))

	recent := h.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("len(Recent(3)) = %d, want 3", len(recent))
	}
	if !strings.Contains(recent[2], "starting -> fault") {
		t.Errorf("newest = %q, want the transition", recent[2])
	}
	if !strings.Contains(recent[1], fmt.Sprintf("attempt %d", MaxRecentEvents+5)) {
		t.Errorf("second newest = %q", recent[1])
	}

	if got := len(h.Recent(MaxRecentEvents * 2)); got != MaxRecentEvents {
		t.Errorf("Recent(large) returned %d lines, want %d", got, MaxRecentEvents)
	}

	counts := h.Counts()
	if counts["crank_failed"] != MaxRecentEvents+5 || counts["transition"] != 1 {
		t.Errorf("Counts() = %v", counts)
	}
}

func TestEventLogger_Concurrent(t *testing.T) {
	h := NewEventLogger(New(Options{Out: &syncBuffer{}}), false)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				h.Handle(engine.Event{Kind: engine.EventRequestRejected, Err: errors.New("busy")})
				_ = h.Recent(5)
			}
		}()
	}
	wg.Wait()

	if got := h.Counts()["request_rejected"]; got != 500 {
		t.Errorf("count = %d, want 500", got)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
