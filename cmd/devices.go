package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicerec/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:     "devices",
	Aliases: []string{"sources"},
	Short:   "List available input devices",
	Long:    `List the capture devices of the configured audio backend. Use a name or index with --device or audio.device.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := audio.NewHost(cfg.Audio.Backend)
		if err != nil {
			return fmt.Errorf("failed to open audio backend: %w", err)
		}
		defer host.Close()

		devices, err := audio.ListInputDevices(host)
		if err != nil {
			return err
		}

		fmt.Printf("🎙  Input devices (%s, %d found)\n", host.Name(), len(devices))
		fmt.Printf("═══════════════════════════════════════\n")
		for _, d := range devices {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Printf(" %s %2d. %s (%d ch, %.0f Hz)\n", marker, d.Index, d.Name, d.MaxChannels, d.DefaultSampleRate)
		}

		fmt.Printf("\n💡 Usage:\n")
		fmt.Printf("  • voicerec record --device 1\n")
		fmt.Printf("  • or set audio.device in the config file (partial names match)\n")
		return nil
	},
}
