// Package tui provides a live operator panel for the generator supervisor.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It displays:
// - Engine state, phase and progress through timed phases
// - Live sensor readings against their limits
// - Active and latched faults
// - Actuator levels
// - Recent engine events
//
// Keys submit Start, Stop, Ack and Reset requests to the supervisor.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
)

// =============================================================================
// Palette
// =============================================================================

var (
	colorAccent  = lipgloss.Color("#7C3AED")
	colorHeading = lipgloss.Color("#06B6D4")

	colorHealthy = lipgloss.Color("#10B981")
	colorNearing = lipgloss.Color("#F59E0B")
	colorTripped = lipgloss.Color("#EF4444")
	colorNotice  = lipgloss.Color("#3B82F6")

	colorText  = lipgloss.Color("#E5E7EB")
	colorMuted = lipgloss.Color("#9CA3AF")
	colorDim   = lipgloss.Color("#6B7280")
	colorRule  = lipgloss.Color("#374151")
)

var (
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	noteStyle  = lipgloss.NewStyle().Foreground(colorNotice).Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorRule).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorAccent).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorHeading).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorRule)

	footerStyle = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)

	// Reading rows: a fixed-width label, the value, then its unit.
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted).Width(18)
	valueStyle = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	unitStyle  = dimStyle
)

// =============================================================================
// Reading Levels
// =============================================================================

// Level grades a reading against its trip limit.
type Level int

const (
	LevelOK Level = iota
	LevelWarn
	LevelBad
)

// warnMargin is the fraction of a limit at which a reading turns amber.
const warnMargin = 0.9

var levelStyles = map[Level]lipgloss.Style{
	LevelOK:   lipgloss.NewStyle().Foreground(colorHealthy).Bold(true),
	LevelWarn: lipgloss.NewStyle().Foreground(colorNearing).Bold(true),
	LevelBad:  lipgloss.NewStyle().Foreground(colorTripped).Bold(true),
}

// Render draws s in the colour of the level.
func (l Level) Render(s string) string {
	return levelStyles[l].Render(s)
}

// GetUpperLevel grades a reading that must stay below limit.
func GetUpperLevel(value, limit float64) Level {
	switch {
	case limit <= 0:
		return LevelOK
	case value >= limit:
		return LevelBad
	case value >= limit*warnMargin:
		return LevelWarn
	default:
		return LevelOK
	}
}

// GetLowerLevel grades a reading that must stay above limit.
func GetLowerLevel(value, limit float64) Level {
	switch {
	case limit <= 0:
		return LevelOK
	case value <= limit:
		return LevelBad
	case value*warnMargin <= limit:
		return LevelWarn
	default:
		return LevelOK
	}
}

// =============================================================================
// Engine State
// =============================================================================

// GetStateStyle returns the badge style for an engine state. Stopped and
// unknown states are muted.
func GetStateStyle(s engine.State) lipgloss.Style {
	switch s {
	case engine.StateRunning:
		return levelStyles[LevelOK]
	case engine.StateStarting, engine.StateWarmup:
		return noteStyle
	case engine.StateFault:
		return levelStyles[LevelBad]
	default:
		return mutedStyle.Bold(true)
	}
}

// GetStateLabel returns a styled state badge.
func GetStateLabel(s engine.State) string {
	return GetStateStyle(s).Render("● " + s.String())
}

// =============================================================================
// Rows
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

// RenderReading renders a label, a graded value and its unit.
func RenderReading(label, value, unit string, l Level) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		l.Render(value),
		unitStyle.Render(" "+unit),
	)
}

// RenderLamp renders an actuator output as a lit or dark lamp.
func RenderLamp(label string, on bool) string {
	if on {
		return LevelOK.Render("●") + " " + label
	}
	return dimStyle.Render("○ " + label)
}

// RenderPhaseGauge renders how far a timed phase has run. The bar is clamped
// to width but the percentage is not, so an overrun phase shows above 100%.
func RenderPhaseGauge(progress float64, width int) string {
	width = max(width, 10)
	filled := min(max(int(progress*float64(width)), 0), width)

	return lipgloss.NewStyle().Foreground(colorAccent).Render(strings.Repeat("█", filled)) +
		lipgloss.NewStyle().Foreground(colorRule).Render(strings.Repeat("░", width-filled)) +
		valueStyle.Render(fmt.Sprintf(" %3.0f%%", progress*100))
}
