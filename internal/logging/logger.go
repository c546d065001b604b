// Package logging builds the supervisor's structured loggers and turns engine
// events into log records.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/randomizedcoder/go-genset-supervisor/internal/config"
)

// Service is stamped on every record as the "service" attribute.
const Service = "go-genset-supervisor"

// Options selects the handler and the attributes stamped on every record.
type Options struct {
	Format  string // "text", anything else is json
	Level   string
	Verbose bool // forces debug and adds source locations

	Backend string
	Version string

	Out io.Writer // nil means stderr
}

// New returns a logger for opts carrying the service, backend and version
// attributes, so individual call sites do not repeat them.
func New(opts Options) *slog.Logger {
	level := ParseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Verbose,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "text") {
		handler = slog.NewTextHandler(out, hopts)
	} else {
		handler = slog.NewJSONHandler(out, hopts)
	}

	attrs := []any{"service", Service}
	if opts.Backend != "" {
		attrs = append(attrs, "backend", opts.Backend)
	}
	if opts.Version != "" {
		attrs = append(attrs, "version", opts.Version)
	}
	return slog.New(handler).With(attrs...)
}

// ForConfig builds the process logger from the log fields of cfg, writing to
// out. While the TUI owns the terminal, records are discarded.
func ForConfig(cfg *config.Config, version string, out io.Writer) *slog.Logger {
	opts := Options{
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Verbose: cfg.Verbose,
		Backend: cfg.Backend,
		Version: version,
		Out:     out,
	}
	if cfg.TUIEnabled {
		opts.Out = io.Discard
	}
	return New(opts)
}

// ParseLevel accepts the slog level names, offsets such as "warn+2", and the
// "warning" alias. Anything else is info.
func ParseLevel(s string) slog.Level {
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// SetDefault installs logger as the slog default.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
