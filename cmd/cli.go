// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firealarm/internal/config"
	"firealarm/pkg/build"
)

// Commands selected on the command line. An empty Command runs the detector.
const (
	CommandList     = "list"
	CommandConfig   = "config"
	CommandSelfTest = "selftest"
)

// Options is the parsed command line.
type Options struct {
	Command    string
	ConfigPath string
	Config     *config.Config
	Exit       bool // --help or --version was handled, nothing left to do.
}

// ParseArgs parses args (without the program name) and loads the layered
// configuration with the flags that were set.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	ran := false

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ran = true
			return nil
		},
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	command := func(name, short string) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: short,
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				options.Command = name
				ran = true
			},
		}
	}
	rootCmd.AddCommand(
		command(CommandList, "List available audio devices"),
		command(CommandConfig, "Print the effective configuration as YAML"),
		command(CommandSelfTest, "Run the detector against a synthetic alarm tone"),
	)

	defaults := config.Default()
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&options.ConfigPath, "config", "c", "",
		"Configuration file (default ./config.yaml or the user config directory)")

	// Audio Device Configuration
	flags.StringP("backend", "b", defaults.Audio.Backend,
		"Audio backend: portaudio, malgo, wav or tone")
	flags.IntP("device", "d", defaults.Audio.InputDevice,
		"Input device ID, -1 for the default. Use 'list' command to see available devices.")
	flags.StringP("input", "i", defaults.Audio.InputFile,
		"WAV file replayed by the wav backend")
	flags.StringP("record", "r", defaults.Audio.RecordFile,
		"Record the raw input to this WAV file")

	// Capture and Detection
	flags.String("strategy", defaults.Capture.Strategy,
		"Window assembly strategy: pingpong or chunked")
	flags.StringP("mode", "m", defaults.Detection.Mode,
		"Detection mode: short or long")
	flags.Float64P("threshold", "t", defaults.Detection.ThresholdDB,
		"Detection threshold in dB relative to full scale")

	// Notification
	flags.StringP("listen", "l", defaults.Notify.ListenAddr,
		"Address of the monitor page and WebSocket endpoint")

	// Debug Configuration
	flags.String("log-level", defaults.LogLevel,
		"Log level: debug, info, warn or error")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if !ran {
		options.Exit = true
		return options, nil
	}

	cfg, err := config.Load(options.ConfigPath, flags)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	options.Config = cfg
	return options, nil
}
