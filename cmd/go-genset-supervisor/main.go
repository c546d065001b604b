// Package main provides the go-genset-supervisor CLI entry point.
//
// go-genset-supervisor sequences the start and stop of a diesel generator and
// shuts it down safely when a sensor reading leaves its limits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/randomizedcoder/go-genset-supervisor/internal/config"
	"github.com/randomizedcoder/go-genset-supervisor/internal/logging"
	"github.com/randomizedcoder/go-genset-supervisor/internal/orchestrator"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-genset-supervisor
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-genset-supervisor %s\n", version)
			return 0
		}
	}

	// Parse command-line flags
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Initialize logger; records carry service, backend and version
	logger := logging.ForConfig(cfg, version, os.Stderr)
	logging.SetDefault(logger)

	// Validate configuration
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Apply --check mode modifications
	if cfg.Check {
		config.ApplyCheckMode(cfg)
		logger.Info("check_mode_enabled")
	}

	// Handle --print-config mode
	if cfg.PrintConfig {
		if err := config.WriteYAML(os.Stdout, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
			return 1
		}
		return 0
	}

	// Log startup
	logger.Info("starting",
		"tick_interval", cfg.TickInterval.String(),
		"auto_start", cfg.AutoStart,
		"metrics_addr", cfg.MetricsAddr,
	)

	// Print startup banner
	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	// Create and run orchestrator
	orch, err := orchestrator.New(cfg, logger, orchestrator.Options{Version: version})
	if err != nil {
		logger.Error("orchestrator_init_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := orch.Run(context.Background()); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                     go-genset-supervisor                          ║")
	fmt.Println("║        Diesel Generator Start/Stop Sequencing and Protection      ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Backend:     %s\n", cfg.Backend)
	switch cfg.Backend {
	case config.BackendSim:
		if cfg.SimFailure != "" {
			fmt.Printf("  Failure:     %s (injected)\n", cfg.SimFailure)
		}
	default:
		fmt.Printf("  Sensors:     %s\n", cfg.SensorURL)
	}
	fmt.Printf("  Tick:        %s\n", cfg.TickInterval)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	if cfg.AutoStart {
		fmt.Println("  Auto-start:  engine start requested at launch")
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop the engine and exit.")
	fmt.Println()
}
