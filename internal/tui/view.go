package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-genset-supervisor/internal/actuator"
	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderPanel renders the operator panel.
func (m Model) renderPanel() string {
	sections := []string{m.renderHeader()}

	if !m.haveView {
		sections = append(sections, boxStyle.Width(m.width-2).Render(
			noteStyle.Render("Waiting for the first supervisor tick..."),
		))
		sections = append(sections, m.renderFooter())
		return lipgloss.JoinVertical(lipgloss.Left, sections...)
	}

	sections = append(sections, m.renderEngine())
	sections = append(sections, renderTwoColumns(
		m.renderSensors(),
		append(m.renderActuators(), m.renderFaults()...),
		m.width-2,
	))
	if m.detailedView {
		sections = append(sections, m.renderRunStats())
	}
	sections = append(sections, m.renderEvents())
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-genset-supervisor │ %s │ Backend: %s │ Elapsed: %s ",
		GetStateLabel(m.State()),
		m.backend,
		formatDuration(m.Elapsed()),
	)
	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Engine Section
// =============================================================================

func (m Model) renderEngine() string {
	st := m.view.Status

	rows := []string{
		sectionHeaderStyle.Render("Engine"),
		RenderKeyValue("State", GetStateStyle(st.State).Render(st.State.String())),
		RenderKeyValue("Phase", st.Phase.String()),
	}
	if st.Attempts > 0 || st.Phase == engine.PhaseCrank || st.Phase == engine.PhaseCrankRest {
		rows = append(rows, RenderKeyValue("Failed cranks", fmt.Sprintf("%d of %d", st.Attempts, st.MaxRetries)))
	}
	if up := st.Uptime(m.view.UpdatedAt); up > 0 {
		rows = append(rows, RenderKeyValue("Run time", formatDuration(up)))
	}
	if st.RunID != "" {
		rows = append(rows, RenderKeyValue("Run ID", st.RunID))
	}

	if progress, label, ok := m.PhaseProgress(); ok {
		barWidth := m.width - 30
		if barWidth < 20 {
			barWidth = 20
		}
		rows = append(rows, "", mutedStyle.Render(label), RenderPhaseGauge(progress, barWidth))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Sensors
// =============================================================================

func (m Model) renderSensors() []string {
	s := m.view.Snapshot
	th := m.engineCfg.Thresholds

	rows := []string{sectionHeaderStyle.Render("Sensors")}
	if !m.view.SensorOK {
		rows = append(rows, LevelWarn.Render(fmt.Sprintf("⚠ stale: %d failed reads", m.view.SensorErrors)))
	}

	// Oil pressure is only meaningful once the engine turns.
	oilLevel := LevelOK
	if s.RPM > 0 {
		oilLevel = GetLowerLevel(float64(s.OilPressurePa), float64(th.MinOilPressurePa))
	}

	rows = append(rows,
		RenderReading("Speed", formatNumberWithCommas(int64(s.RPM)), "rpm", LevelOK),
		RenderReading("Oil pressure", fmt.Sprintf("%d", s.OilPressurePa/1000), "kPa", oilLevel),
		RenderReading("Oil temp", fmt.Sprintf("%d", s.OilTempC), "°C",
			GetUpperLevel(float64(s.OilTempC), float64(th.MaxOilTempC))),
		RenderReading("Coolant temp", fmt.Sprintf("%d", s.CoolantTempC), "°C",
			GetUpperLevel(float64(s.CoolantTempC), float64(th.MaxCoolantTempC))),
		RenderReading("Coolant flow", fmt.Sprintf("%d", s.CoolantFlowLpm), "L/min", LevelOK),
		RenderReading("Starter battery", fmt.Sprintf("%.2f", s.StarterBattV), "V",
			GetLowerLevel(s.StarterBattV, th.MinBattV)),
	)
	return rows
}

// =============================================================================
// Actuators and Faults
// =============================================================================

func (m Model) renderActuators() []string {
	out := m.view.Status.Outputs
	rows := []string{sectionHeaderStyle.Render("Actuators")}
	for _, n := range actuator.All() {
		rows = append(rows, RenderLamp(n.String(), out.On(n)))
	}
	return rows
}

func (m Model) renderFaults() []string {
	st := m.view.Status
	rows := []string{"", sectionHeaderStyle.Render("Faults")}

	if st.ActiveFaults.Empty() && st.Latched.Empty() {
		return append(rows, LevelOK.Render("✓ none"))
	}
	if !st.ActiveFaults.Empty() {
		rows = append(rows, RenderKeyValue("Active", LevelWarn.Render(st.ActiveFaults.String())))
	}
	if !st.Latched.Empty() {
		rows = append(rows, RenderKeyValue("Latched", LevelBad.Render(st.Latched.String())))
		ack := LevelWarn.Render("alarm sounding, press a to acknowledge")
		if st.AlarmAcked {
			ack = mutedStyle.Render("acknowledged")
		}
		rows = append(rows, ack)
	}
	return rows
}

// =============================================================================
// Run Statistics (detailed view)
// =============================================================================

func (m Model) renderRunStats() string {
	agg := m.aggregate
	rows := []string{sectionHeaderStyle.Render("Run Statistics")}
	if agg == nil {
		rows = append(rows, dimStyle.Render("statistics unavailable"))
		return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	rows = append(rows,
		RenderKeyValue("Starts", fmt.Sprintf("%d ok / %d requested", agg.SuccessfulStarts, agg.StartRequests)),
		RenderKeyValue("Failed cranks", fmt.Sprintf("%d", agg.CrankFailures)),
		RenderKeyValue("Engine run time", formatDuration(agg.RunTime)),
		"",
		mutedStyle.Render(fmt.Sprintf("%-14s %8s %8s %8s %8s", "channel", "min", "p50", "p95", "max")),
	)
	for _, c := range stats.Channels() {
		cs := agg.Channels[c]
		if cs.Count == 0 {
			continue
		}
		rows = append(rows, fmt.Sprintf("%-14s %8.1f %8.1f %8.1f %8.1f", c, cs.Min, cs.P50, cs.P95, cs.Max))
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Events
// =============================================================================

func (m Model) renderEvents() string {
	rows := []string{sectionHeaderStyle.Render("Recent Events")}
	if len(m.recent) == 0 {
		rows = append(rows, dimStyle.Render("no events yet"))
	}
	maxLen := m.width - 6
	for _, e := range m.recent {
		if maxLen > 10 && len(e) > maxLen {
			e = e[:maxLen-3] + "..."
		}
		rows = append(rows, e)
	}
	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"s: start",
		"x: stop",
		"a: ack",
		"r: reset",
		"d: details",
		"q: quit",
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := ""
	if m.metricsAddr != "" {
		right = dimStyle.Render("Metrics: " + m.metricsAddr)
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	line := lipgloss.JoinHorizontal(lipgloss.Left, left, strings.Repeat(" ", padding), right)
	if m.notice == "" {
		return footerStyle.Render(line)
	}

	notice := noteStyle.Render(m.notice)
	if m.noticeErr {
		notice = LevelBad.Render(m.notice)
	}
	return footerStyle.Render(lipgloss.JoinVertical(lipgloss.Left, notice, line))
}

// =============================================================================
// Two-Column Layout Helper
// =============================================================================

// renderTwoColumns renders two columns side-by-side with a separator.
func renderTwoColumns(left, right []string, totalWidth int) string {
	leftWidth := (totalWidth - 3) / 2
	if leftWidth < 30 {
		leftWidth = 30
	}

	leftContent := lipgloss.NewStyle().Width(leftWidth).Render(lipgloss.JoinVertical(lipgloss.Left, left...))
	rightContent := lipgloss.JoinVertical(lipgloss.Left, right...)

	separator := mutedStyle.Render(" │ ")
	return boxStyle.Render(lipgloss.JoinHorizontal(lipgloss.Top, leftContent, separator, rightContent))
}
