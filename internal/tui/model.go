package tui

import (
	"errors"
	"fmt"
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/stats"
	"github.com/randomizedcoder/go-genset-supervisor/internal/supervisor"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// ViewMsg carries a supervisor view pushed from outside the refresh loop.
type ViewMsg supervisor.View

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Sources
// =============================================================================

// Controller accepts operator requests and publishes the engine view.
type Controller interface {
	Submit(req engine.Request) error
	View() supervisor.View
}

// EventSource provides formatted recent events, oldest first.
type EventSource interface {
	Recent(n int) []string
}

// StatsSource provides run statistics.
type StatsSource interface {
	Aggregate(now time.Time) *stats.Aggregate
}

// =============================================================================
// Model
// =============================================================================

// recentEvents is how many events the panel shows.
const recentEvents = 8

// Model represents the TUI state.
type Model struct {
	// Configuration
	backend     string
	metricsAddr string
	engineCfg   engine.Config
	refresh     time.Duration
	now         func() time.Time

	// Sources
	ctrl   Controller
	events EventSource
	stats  StatsSource

	// Current state
	view      supervisor.View
	haveView  bool
	recent    []string
	aggregate *stats.Aggregate
	startTime time.Time

	// Operator interaction
	pending   engine.Request // awaiting y/n confirmation
	notice    string
	noticeErr bool

	// Display options
	width        int
	height       int
	detailedView bool

	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	Backend     string
	MetricsAddr string
	Engine      engine.Config

	Controller Controller
	Events     EventSource
	Stats      StatsSource

	// RefreshInterval defaults to 250ms.
	RefreshInterval time.Duration

	// Now is the time source; nil means time.Now.
	Now func() time.Time
}

// New creates a new TUI model.
func New(cfg Config) Model {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	refresh := cfg.RefreshInterval
	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}
	return Model{
		backend:     cfg.Backend,
		metricsAddr: cfg.MetricsAddr,
		engineCfg:   cfg.Engine,
		refresh:     refresh,
		now:         now,
		ctrl:        cfg.Controller,
		events:      cfg.Events,
		stats:       cfg.Stats,
		startTime:   now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	// tea.WithAltScreen() is passed when creating the program.
	return m.tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.poll()
		return m, m.tickCmd()

	case ViewMsg:
		m.view = supervisor.View(msg)
		m.haveView = true
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.pending != engine.RequestNone {
		req := m.pending
		m.pending = engine.RequestNone
		if key == "y" || key == "Y" {
			m.submit(req)
		} else {
			m.setNotice(req.String()+" cancelled", false)
		}
		return m, nil
	}

	switch key {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "d":
		m.detailedView = !m.detailedView
	case "s":
		m.confirm(engine.RequestStart)
	case "x", " ":
		// Stopping is always safe, so no confirmation.
		m.submit(engine.RequestStop)
	case "a":
		m.submit(engine.RequestAck)
	case "r":
		m.confirm(engine.RequestReset)
	}
	return m, nil
}

func (m *Model) confirm(req engine.Request) {
	m.pending = req
	m.setNotice(fmt.Sprintf("%s engine? (y/n)", req), false)
}

func (m *Model) submit(req engine.Request) {
	if m.ctrl == nil {
		m.setNotice("no supervisor attached", true)
		return
	}
	if err := m.ctrl.Submit(req); err != nil {
		if errors.Is(err, engine.ErrQueueFull) {
			m.setNotice(req.String()+" not queued: supervisor busy, try again", true)
		} else {
			m.setNotice(fmt.Sprintf("%s failed: %v", req, err), true)
		}
		return
	}
	m.setNotice(req.String()+" requested", false)
}

func (m *Model) setNotice(s string, isErr bool) {
	m.notice = s
	m.noticeErr = isErr
}

// poll refreshes everything from the sources.
func (m *Model) poll() {
	if m.ctrl != nil {
		m.view = m.ctrl.View()
		m.haveView = true
	}
	if m.events != nil {
		m.recent = m.events.Recent(recentEvents)
	}
	if m.stats != nil {
		m.aggregate = m.stats.Aggregate(m.now())
	}
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderPanel()
}

// =============================================================================
// Commands
// =============================================================================

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the panel started.
func (m Model) Elapsed() time.Duration {
	return m.now().Sub(m.startTime)
}

// State returns the last seen engine state.
func (m Model) State() engine.State {
	return m.view.Status.State
}

// Notice returns the last operator feedback line.
func (m Model) Notice() string {
	return m.notice
}

// Pending returns the request awaiting confirmation, if any.
func (m Model) Pending() engine.Request {
	return m.pending
}

// PhaseProgress returns how far the current timed step has run (0.0 to 1.0)
// and a label for it. ok is false when nothing is being timed.
func (m Model) PhaseProgress() (progress float64, label string, ok bool) {
	st := m.view.Status
	now := m.view.UpdatedAt
	if now.IsZero() {
		now = m.now()
	}

	var total time.Duration
	started := st.PhaseStarted
	switch st.Phase {
	case engine.PhaseGlow:
		total, label = m.engineCfg.GlowPeriod, "Glow plugs"
	case engine.PhaseCrank:
		total, label = m.engineCfg.CrankTime, fmt.Sprintf("Cranking (attempt %d of %d)", st.Attempts+1, st.MaxRetries)
	case engine.PhaseCrankRest:
		total, label = nominalRest(m.engineCfg.Rest, st.Attempts), "Starter rest"
	case engine.PhaseUnload:
		total, label = m.engineCfg.ShutdownDelay, "Idling unloaded"
	case engine.PhaseSpinDown:
		total, label = m.engineCfg.ShutdownWait, "Spinning down"
	case engine.PhaseNone:
		if st.State != engine.StateWarmup || st.RunStarted.IsZero() {
			return 0, "", false
		}
		total, label, started = m.engineCfg.WarmupPeriod, "Warm-up", st.RunStarted
	default:
		return 0, "", false
	}

	if total <= 0 || started.IsZero() {
		return 0, label, false
	}
	progress = float64(now.Sub(started)) / float64(total)
	return math.Max(0, math.Min(1, progress)), label, true
}

// nominalRest is the rest after the given number of failed cranks with
// jitter ignored.
func nominalRest(cfg engine.RestConfig, failed int) time.Duration {
	mult := cfg.Multiplier
	if mult <= 0 {
		mult = 1
	}
	n := failed - 1
	if n < 0 {
		n = 0
	}
	d := float64(cfg.Initial) * math.Pow(mult, float64(n))
	if cfg.Max > 0 && d > float64(cfg.Max) {
		d = float64(cfg.Max)
	}
	return time.Duration(d)
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendView pushes a view to the TUI.
func SendView(p *tea.Program, v supervisor.View) {
	if p != nil {
		p.Send(ViewMsg(v))
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatNumberWithCommas formats a number with thousand separators.
func formatNumberWithCommas(n int64) string {
	if n < 0 {
		return "-" + formatNumberWithCommas(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	result := ""
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}
