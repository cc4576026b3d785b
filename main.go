// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"firealarm/cmd"
	"firealarm/internal/audio"
	"firealarm/internal/config"
	applog "firealarm/internal/log"
	"firealarm/internal/pipeline"
	"firealarm/pkg/build"
)

// main is the entry point for the fire alarm detector.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load the configuration
//   - Execute one-off commands if requested
//   - Open the input and allocate every pipeline buffer
//
// 2. Concurrent Phase (Hot Path):
//   - Acquisition, analysis and notification goroutines
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals or end of a replayed file
//   - Drain in-flight windows and events
//   - Close transports and the audio input
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds run without ldflags and keep the defaults.
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if opts.Exit {
		return
	}
	cfg := opts.Config

	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Handle one-off commands that don't run the detector.
	if opts.Command != "" {
		if err := executeCommand(ctx, opts.Command, cfg); err != nil {
			applog.Fatalf("%v", err)
		}
		return
	}

	engine, err := pipeline.NewEngine(cfg)
	if err != nil {
		applog.Fatalf("Startup failed: %v", err)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	applog.Infof("%s %s listening for fire alarms", build.GetBuildFlags().Name, build.GetBuildFlags().Version)
	runErr := engine.Run(ctx)

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err := engine.Close(); err != nil {
		applog.Errorf("Error closing engine: %v", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		applog.Fatalf("%v", runErr)
	}
	applog.Infof("Shutdown complete")
}

// executeCommand handles one-off commands that don't run the detector.
func executeCommand(ctx context.Context, command string, cfg *config.Config) error {
	switch command {
	case cmd.CommandList:
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
		return audio.ListDevices(os.Stdout)
	case cmd.CommandConfig:
		return cmd.PrintConfig(os.Stdout, cfg)
	case cmd.CommandSelfTest:
		return cmd.RunSelfTest(ctx, cfg, os.Stdout)
	}
	return nil
}
