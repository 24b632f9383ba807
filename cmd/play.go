package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/play"
)

var playCmd = &cobra.Command{
	Use:   "play [file-or-take]",
	Short: "Play a saved WAV take",
	Long: `Play a WAV file through the configured output device until it ends or Ctrl+C.
A bare take name is looked up in the output directory, with or without the .wav extension.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := audio.NewHost(cfg.Audio.Backend)
		if err != nil {
			return fmt.Errorf("failed to open audio backend: %w", err)
		}
		defer host.Close()

		ctx, cancel := interruptContext(0)
		defer cancel()

		if err := play.New(cfg, host).Play(ctx, args[0]); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("playback failed: %w", err)
		}
		return nil
	},
}
