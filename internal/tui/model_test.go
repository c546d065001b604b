package tui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
	"github.com/randomizedcoder/go-genset-supervisor/internal/stats"
	"github.com/randomizedcoder/go-genset-supervisor/internal/supervisor"
)

// =============================================================================
// Mocks
// =============================================================================

type mockController struct {
	mu        sync.Mutex
	view      supervisor.View
	submitted []engine.Request
	err       error
}

func (c *mockController) Submit(req engine.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.submitted = append(c.submitted, req)
	return nil
}

func (c *mockController) View() supervisor.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

type mockEvents []string

func (e mockEvents) Recent(n int) []string {
	if n < len(e) {
		return e[len(e)-n:]
	}
	return e
}

type mockStats struct{ agg *stats.Aggregate }

func (s mockStats) Aggregate(time.Time) *stats.Aggregate { return s.agg }

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return t0 }

func runningView() supervisor.View {
	var out actuator.Outputs
	out = out.Apply(actuator.Command{Name: actuator.Fuel, On: true})
	out = out.Apply(actuator.Command{Name: actuator.AltLoad, On: true})
	return supervisor.View{
		Status: engine.Status{
			State:      engine.StateRunning,
			RunStarted: t0.Add(-10 * time.Minute),
			RunID:      "3f0c6a9e",
			Outputs:    out,
			MaxRetries: 3,
		},
		Snapshot: sensor.Snapshot{
			RPM:           1500,
			OilPressurePa: 320000,
			OilTempC:      88,
			CoolantTempC:  82,
			StarterBattV:  13.8,
		},
		SensorOK:  true,
		Ticks:     100,
		UpdatedAt: t0,
	}
}

func newTestModel(ctrl Controller) Model {
	return New(Config{
		Backend:     "sim",
		MetricsAddr: "localhost:17095",
		Engine:      engine.DefaultConfig(),
		Controller:  ctrl,
		Now:         fixedNow,
	})
}

func key(s string) tea.KeyMsg {
	switch s {
	case "ctrl+c":
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m Model, keys ...string) Model {
	for _, k := range keys {
		next, _ := m.Update(key(k))
		m = next.(Model)
	}
	return m
}

// =============================================================================
// Tests: New / Init
// =============================================================================

func TestNew(t *testing.T) {
	model := newTestModel(nil)

	if model.backend != "sim" {
		t.Errorf("backend = %s, want sim", model.backend)
	}
	if model.metricsAddr != "localhost:17095" {
		t.Errorf("metricsAddr = %s, want localhost:17095", model.metricsAddr)
	}
	if model.width != 80 || model.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", model.width, model.height)
	}
	if model.refresh != 250*time.Millisecond {
		t.Errorf("refresh = %v, want 250ms", model.refresh)
	}
}

func TestModel_Init(t *testing.T) {
	if cmd := newTestModel(nil).Init(); cmd == nil {
		t.Error("Init() returned nil cmd")
	}
}

// =============================================================================
// Tests: Update - Key Messages
// =============================================================================

func TestModel_Update_QuitKeys(t *testing.T) {
	tests := []struct {
		key      string
		wantQuit bool
	}{
		{"q", true},
		{"ctrl+c", true},
		{"esc", true},
		{"d", false},
		{"z", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			model := newTestModel(nil)
			newModel, cmd := model.Update(key(tt.key))
			m := newModel.(Model)

			if m.quitting != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", m.quitting, tt.wantQuit)
			}
			if tt.wantQuit && cmd == nil {
				t.Error("expected tea.Quit cmd")
			}
		})
	}
}

func TestModel_Update_RequestKeys(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want []engine.Request
	}{
		{"stop is immediate", []string{"x"}, []engine.Request{engine.RequestStop}},
		{"space stops", []string{" "}, []engine.Request{engine.RequestStop}},
		{"ack is immediate", []string{"a"}, []engine.Request{engine.RequestAck}},
		{"start needs confirmation", []string{"s"}, nil},
		{"start confirmed", []string{"s", "y"}, []engine.Request{engine.RequestStart}},
		{"start cancelled", []string{"s", "n"}, nil},
		{"reset confirmed", []string{"r", "y"}, []engine.Request{engine.RequestReset}},
		{"quit key cancels confirmation", []string{"r", "q"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &mockController{}
			m := press(newTestModel(ctrl), tt.keys...)

			if len(ctrl.submitted) != len(tt.want) {
				t.Fatalf("submitted = %v, want %v", ctrl.submitted, tt.want)
			}
			for i := range tt.want {
				if ctrl.submitted[i] != tt.want[i] {
					t.Errorf("submitted[%d] = %v, want %v", i, ctrl.submitted[i], tt.want[i])
				}
			}
			if m.quitting {
				t.Error("answering a confirmation must not quit")
			}
		})
	}
}

func TestModel_Update_ConfirmationPrompt(t *testing.T) {
	m := press(newTestModel(&mockController{}), "s")

	if m.Pending() != engine.RequestStart {
		t.Errorf("Pending() = %v, want start", m.Pending())
	}
	if !strings.Contains(m.Notice(), "(y/n)") {
		t.Errorf("Notice() = %q, want a y/n prompt", m.Notice())
	}

	m = press(m, "n")
	if m.Pending() != engine.RequestNone {
		t.Errorf("Pending() = %v after answer, want none", m.Pending())
	}
	if !strings.Contains(m.Notice(), "cancelled") {
		t.Errorf("Notice() = %q, want cancelled", m.Notice())
	}
}

func TestModel_Update_SubmitErrors(t *testing.T) {
	tests := []struct {
		name string
		ctrl Controller
		want string
	}{
		{"queue full", &mockController{err: engine.ErrQueueFull}, "busy"},
		{"other error", &mockController{err: errors.New("closed")}, "closed"},
		{"no controller", nil, "no supervisor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := press(newTestModel(tt.ctrl), "x")
			if !m.noticeErr || !strings.Contains(m.Notice(), tt.want) {
				t.Errorf("notice = %q (err=%v), want error containing %q", m.Notice(), m.noticeErr, tt.want)
			}
		})
	}
}

func TestModel_Update_ToggleDetailedView(t *testing.T) {
	m := newTestModel(nil)
	if m.detailedView {
		t.Error("detailedView should be false initially")
	}
	m = press(m, "d")
	if !m.detailedView {
		t.Error("detailedView should be true after pressing 'd'")
	}
	m = press(m, "d")
	if m.detailedView {
		t.Error("detailedView should be false after pressing 'd' again")
	}
}

// =============================================================================
// Tests: Update - Window Size / Tick / View
// =============================================================================

func TestModel_Update_WindowSize(t *testing.T) {
	newModel, _ := newTestModel(nil).Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m := newModel.(Model)

	if m.width != 120 || m.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", m.width, m.height)
	}
}

func TestModel_Update_Tick(t *testing.T) {
	ctrl := &mockController{view: runningView()}
	model := New(Config{
		Controller: ctrl,
		Events:     mockEvents{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"},
		Stats:      mockStats{agg: &stats.Aggregate{SuccessfulStarts: 2}},
		Now:        fixedNow,
	})

	newModel, cmd := model.Update(TickMsg(t0))
	m := newModel.(Model)

	if m.State() != engine.StateRunning {
		t.Errorf("State() = %v, want running", m.State())
	}
	if len(m.recent) != recentEvents || m.recent[0] != "c" {
		t.Errorf("recent = %v, want the last %d events", m.recent, recentEvents)
	}
	if m.aggregate == nil || m.aggregate.SuccessfulStarts != 2 {
		t.Errorf("aggregate = %+v", m.aggregate)
	}
	if cmd == nil {
		t.Error("expected tick cmd to be returned")
	}
}

func TestModel_Update_ViewMsg(t *testing.T) {
	newModel, _ := newTestModel(nil).Update(ViewMsg(runningView()))
	m := newModel.(Model)

	if !m.haveView || m.State() != engine.StateRunning {
		t.Errorf("haveView = %v, State() = %v", m.haveView, m.State())
	}
}

func TestModel_Update_QuitMsg(t *testing.T) {
	newModel, cmd := newTestModel(nil).Update(QuitMsg{})
	m := newModel.(Model)

	if !m.quitting || cmd == nil {
		t.Errorf("quitting = %v, cmd nil = %v", m.quitting, cmd == nil)
	}
	if m.View() != "" {
		t.Error("View() should be empty once quitting")
	}
}

// =============================================================================
// Tests: PhaseProgress
// =============================================================================

func TestModel_PhaseProgress(t *testing.T) {
	cfg := engine.DefaultConfig()

	tests := []struct {
		name      string
		status    engine.Status
		want      float64
		wantLabel string
		wantOK    bool
	}{
		{
			name:      "glow half way",
			status:    engine.Status{State: engine.StateStarting, Phase: engine.PhaseGlow, PhaseStarted: t0.Add(-4 * time.Second)},
			want:      0.5,
			wantLabel: "Glow plugs",
			wantOK:    true,
		},
		{
			name:      "second crank",
			status:    engine.Status{State: engine.StateStarting, Phase: engine.PhaseCrank, PhaseStarted: t0.Add(-5 * time.Second), Attempts: 1, MaxRetries: 3},
			want:      0.5,
			wantLabel: "attempt 2 of 3",
			wantOK:    true,
		},
		{
			name:      "crank rest",
			status:    engine.Status{State: engine.StateStarting, Phase: engine.PhaseCrankRest, PhaseStarted: t0.Add(-3 * time.Second), Attempts: 1},
			want:      0.2,
			wantLabel: "Starter rest",
			wantOK:    true,
		},
		{
			name:      "unload overrun clamps",
			status:    engine.Status{State: engine.StateRunning, Phase: engine.PhaseUnload, PhaseStarted: t0.Add(-time.Minute)},
			want:      1,
			wantLabel: "Idling unloaded",
			wantOK:    true,
		},
		{
			name:      "warmup from run timer",
			status:    engine.Status{State: engine.StateWarmup, RunStarted: t0.Add(-150 * time.Second)},
			want:      0.5,
			wantLabel: "Warm-up",
			wantOK:    true,
		},
		{
			name:   "running has no timed step",
			status: engine.Status{State: engine.StateRunning},
			wantOK: false,
		},
		{
			name:   "stop unresolved is untimed",
			status: engine.Status{State: engine.StateFault, Phase: engine.PhaseStopUnresolved, PhaseStarted: t0},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Config{Engine: cfg, Now: fixedNow})
			m.view = supervisor.View{Status: tt.status, UpdatedAt: t0}
			m.haveView = true

			got, label, ok := m.PhaseProgress()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if diff := got - tt.want; diff > 0.001 || diff < -0.001 {
				t.Errorf("progress = %v, want %v", got, tt.want)
			}
			if !strings.Contains(label, tt.wantLabel) {
				t.Errorf("label = %q, want to contain %q", label, tt.wantLabel)
			}
		})
	}
}

func TestNominalRest(t *testing.T) {
	cfg := engine.RestConfig{Initial: 10 * time.Second, Max: 35 * time.Second, Multiplier: 2}

	tests := []struct {
		failed int
		want   time.Duration
	}{
		{0, 10 * time.Second},
		{1, 10 * time.Second},
		{2, 20 * time.Second},
		{3, 35 * time.Second},
	}
	for _, tt := range tests {
		if got := nominalRest(cfg, tt.failed); got != tt.want {
			t.Errorf("nominalRest(%d) = %v, want %v", tt.failed, got, tt.want)
		}
	}
}

// =============================================================================
// Tests: View rendering
// =============================================================================

func TestModel_View_WaitingForFirstTick(t *testing.T) {
	out := newTestModel(nil).View()

	if !strings.Contains(out, "Waiting for the first supervisor tick") {
		t.Errorf("View() missing waiting message:\n%s", out)
	}
}

func TestModel_View_Running(t *testing.T) {
	m := newTestModel(&mockController{})
	m.width = 120
	m.view = runningView()
	m.haveView = true
	m.recent = []string{"12:00:00 warmup -> running"}

	out := m.View()
	for _, want := range []string{
		"go-genset-supervisor",
		"running",
		"Sensors",
		"1,500",
		"320",
		"13.80",
		"Actuators",
		"fuel",
		"alt_load",
		"✓ none",
		"warmup -> running",
		"s: start",
		"Metrics: localhost:17095",
		"3f0c6a9e",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestModel_View_FaultAndStaleSensors(t *testing.T) {
	v := runningView()
	v.Status.State = engine.StateFault
	v.Status.Phase = engine.PhaseSpinDown
	v.Status.PhaseStarted = t0.Add(-5 * time.Second)
	v.Status.ActiveFaults = fault.NewSet(fault.SensorLost)
	v.Status.Latched = fault.NewSet(fault.CoolantOverTemp, fault.SensorLost)
	v.SensorOK = false
	v.SensorErrors = 6

	m := newTestModel(nil)
	m.width = 120
	m.view = v
	m.haveView = true

	out := m.View()
	for _, want := range []string{
		"CoolantOverTemp,SensorLost",
		"press a to acknowledge",
		"stale: 6 failed reads",
		"Spinning down",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	m.view.Status.AlarmAcked = true
	if out := m.View(); !strings.Contains(out, "acknowledged") {
		t.Error("View() should show the alarm as acknowledged")
	}
}

func TestModel_View_Detailed(t *testing.T) {
	agg := &stats.Aggregate{SuccessfulStarts: 1, StartRequests: 2, CrankFailures: 1}
	agg.Channels[stats.ChannelRPM] = stats.ChannelStats{Count: 10, Min: 1490, P50: 1500, P95: 1510, Max: 1512}

	m := newTestModel(nil)
	m.width = 120
	m.view = runningView()
	m.haveView = true
	m.aggregate = agg
	m = press(m, "d")

	out := m.View()
	for _, want := range []string{"Run Statistics", "1 ok / 2 requested", "1500.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("detailed View() missing %q", want)
		}
	}
}

// =============================================================================
// Tests: Formatting Helpers
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{2*time.Hour + 5*time.Minute, "02:05:00"},
		{-time.Second, "00:00:00"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatNumberWithCommas(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1,500"},
		{1234567, "1,234,567"},
		{-1500, "-1,500"},
	}
	for _, tt := range tests {
		if got := formatNumberWithCommas(tt.n); got != tt.want {
			t.Errorf("formatNumberWithCommas(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
