package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/config"
	"github.com/audiolibrelab/voicerec/internal/logging"
	"github.com/audiolibrelab/voicerec/internal/service"
)

var (
	cfg          *config.Config
	cfgFile      string
	pipeline     string
	profile      string
	backendFlag  string
	deviceFlag   string
	verboseLevel int

	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "voicerec [take-name]",
	Short: "Voice recorder with live level meter",
	Long: `voicerec records audio from an input device into memory, shows a live
level meter, plays the take back with pause and resume, and saves it as WAV.

When a take name is provided, it acts as 'voicerec run [take-name]'.`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		if err := setupLogging(verboseLevel, nil); err != nil {
			return err
		}

		// Use the default config path if it exists
		if cfgFile == "" {
			if _, err := os.Stat(config.DefaultConfigPath()); err == nil {
				cfgFile = config.DefaultConfigPath()
			} else if !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to access config: %w", err)
			}
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if backendFlag != "" {
			cfg.Audio.Backend = backendFlag
		}
		if deviceFlag != "" {
			cfg.Audio.Device = deviceFlag
		}
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid flags: %w", err)
		}

		if cfg.Logging.File.Enabled {
			if err := setupLogging(verboseLevel, &cfg.Logging.File); err != nil {
				return err
			}
		}
		slog.Debug("Configuration loaded", "file", cfgFile, "profile", cfg.Profile, "backend", cfg.Audio.Backend)

		// Validate pipeline if provided
		return validatePipeline()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// If a take name is provided, delegate to run command
		if len(args) == 1 {
			return runCmd.RunE(cmd, args)
		}
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/voicerec.yaml)")
	rootCmd.PersistentFlags().StringVarP(&pipeline, "pipeline", "p", "", "pipeline steps: r=record, p=play, s=save (e.g., 'rps', 'rs')")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_config from file)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "audio backend: auto, malgo, portaudio, null (overrides config)")
	rootCmd.PersistentFlags().StringVar(&deviceFlag, "device", "", "input device name or index (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(recordingsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(infoCmd)
}

// setupLogging installs the console logger, and the rotated file log when file is set
func setupLogging(level int, file *config.FileLogConfig) error {
	var opts *logging.FileOptions
	if file != nil {
		opts = &logging.FileOptions{
			Path:       file.Path,
			MaxSizeMB:  file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAgeDays: file.MaxAgeDays,
			Compress:   file.Compress,
		}
	}

	closeFn, err := logging.Setup(os.Stderr, level, opts)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	closeLog = closeFn
	return nil
}

// openService opens the configured audio host and a recorder on it.
// The returned func closes both.
func openService() (*service.RecorderService, func(), error) {
	host, err := audio.NewHost(cfg.Audio.Backend)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open audio backend: %w", err)
	}

	svc, err := service.New(cfg, host)
	if err != nil {
		host.Close()
		return nil, nil, err
	}

	return svc, func() {
		if err := svc.Close(); err != nil {
			slog.Warn("Closing recorder", "error", err)
		}
		if err := host.Close(); err != nil {
			slog.Warn("Closing audio backend", "error", err)
		}
	}, nil
}
