package stats

// This file implements the exit summary formatter which displays run
// statistics at program exit.

import (
	"fmt"
	"strings"
	"time"

	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/fault"
)

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Backend is the configured sensor and actuator backend
	Backend string

	// Duration is used when no aggregate is available
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// RecentEvents are printed oldest first under "Recent Events"
	RecentEvents []string
}

// FormatExitSummary formats aggregated run statistics for display at
// program exit.
//
// The summary includes:
// - Run information and final engine state
// - Start and stop sequencing counts
// - Sensor channel distributions while the engine was running
// - Faults by kind and acquisition/actuation errors
// - Supervisor loop timing
// - The most recent engine events
func FormatExitSummary(agg *Aggregate, cfg SummaryConfig) string {
	if agg == nil {
		return formatBasicSummary(cfg)
	}

	var b strings.Builder
	writeHeader(&b)

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(agg.Elapsed))
	if cfg.Backend != "" {
		fmt.Fprintf(&b, "Backend:                %s\n", cfg.Backend)
	}
	fmt.Fprintf(&b, "Supervisor Ticks:       %s", FormatNumber(agg.Ticks))
	if agg.Elapsed > 0 {
		fmt.Fprintf(&b, "  (%s)", FormatRate(float64(agg.Ticks)/agg.Elapsed.Seconds()))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Final State:            %s", agg.FinalState)
	if agg.FinalPhase != engine.PhaseNone {
		fmt.Fprintf(&b, " (%s)", agg.FinalPhase)
	}
	b.WriteString("\n")
	if !agg.FinalFaults.Empty() {
		fmt.Fprintf(&b, "Latched Faults:         %s\n", agg.FinalFaults)
	}
	b.WriteString("\n")

	// Sequencing
	writeSection(&b, "Start / Stop Sequencing")
	fmt.Fprintf(&b, "  Start Requests:       %d\n", agg.StartRequests)
	fmt.Fprintf(&b, "  Successful Starts:    %d\n", agg.SuccessfulStarts)
	fmt.Fprintf(&b, "  Failed Cranks:        %d\n", agg.CrankFailures)
	fmt.Fprintf(&b, "  Stops:                %d\n", agg.Stops)
	if agg.Rejected > 0 {
		fmt.Fprintf(&b, "  Rejected Requests:    %d\n", agg.Rejected)
	}
	fmt.Fprintf(&b, "  Engine Run Time:      %s\n\n", FormatDuration(agg.RunTime))

	// Sensor channels
	if agg.Channels[ChannelRPM].Count > 0 {
		writeSection(&b, "Sensor Readings (running)")
		fmt.Fprintf(&b, "  %-14s %6s %9s %9s %9s %9s %9s\n", "Channel", "Unit", "Min", "P50", "P95", "P99", "Max")
		b.WriteString("  " + strings.Repeat("─", 70) + "\n")
		for _, c := range Channels() {
			cs := agg.Channels[c]
			fmt.Fprintf(&b, "  %-14s %6s %9.1f %9.1f %9.1f %9.1f %9.1f\n",
				c, c.Unit(), cs.Min, cs.P50, cs.P95, cs.P99, cs.Max)
		}
		fmt.Fprintf(&b, "\n  Samples:              %s\n\n", FormatNumber(agg.Channels[ChannelRPM].Count))
	}

	// Faults and errors
	hasFaults := len(agg.Faults) > 0
	hasErrors := agg.SensorErrors > 0 || agg.ActuatorErrors > 0
	if hasFaults || hasErrors {
		writeSection(&b, "Faults")
		// Reporting order, not map order
		for _, k := range fault.Kinds {
			if n := agg.Faults[k]; n > 0 {
				fmt.Fprintf(&b, "  %-22s%d\n", k.String()+":", n)
			}
		}
		if agg.SensorErrors > 0 {
			fmt.Fprintf(&b, "  Sensor Errors:        %d\n", agg.SensorErrors)
		}
		if agg.ActuatorErrors > 0 {
			fmt.Fprintf(&b, "  Actuator Errors:      %d\n", agg.ActuatorErrors)
		}
		b.WriteString("\n")
	}

	// Loop timing
	if agg.Ticks > 0 {
		writeSection(&b, "Supervisor Loop")
		fmt.Fprintf(&b, "  Tick P50:             %s\n", FormatMs(agg.TickP50))
		fmt.Fprintf(&b, "  Tick P99:             %s\n", FormatMs(agg.TickP99))
		fmt.Fprintf(&b, "  Tick Max:             %s\n\n", FormatMs(agg.TickMax))
	}

	writeRecent(&b, cfg.RecentEvents)
	writeFooter(&b, cfg)
	return b.String()
}

// formatBasicSummary formats a basic summary when stats are not available.
func formatBasicSummary(cfg SummaryConfig) string {
	var b strings.Builder
	writeHeader(&b)

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	if cfg.Backend != "" {
		fmt.Fprintf(&b, "Backend:                %s\n", cfg.Backend)
	}
	b.WriteString("\n(The supervisor did not run, no statistics were collected)\n\n")

	writeRecent(&b, cfg.RecentEvents)
	writeFooter(&b, cfg)
	return b.String()
}

func writeHeader(b *strings.Builder) {
	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                       go-genset-supervisor Exit Summary\n")
	b.WriteString(heavyRule + "\n")
}

func writeSection(b *strings.Builder, title string) {
	pad := (len([]rune(lightRule)) - 1 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(lightRule)
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(lightRule + "\n")
}

func writeRecent(b *strings.Builder, events []string) {
	if len(events) == 0 {
		return
	}
	writeSection(b, "Recent Events")
	for _, e := range events {
		fmt.Fprintf(b, "  %s\n", e)
	}
	b.WriteString("\n")
}

func writeFooter(b *strings.Builder, cfg SummaryConfig) {
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString(heavyRule)
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
