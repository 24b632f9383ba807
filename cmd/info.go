package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/voicerec/internal/audio"
	"github.com/audiolibrelab/voicerec/internal/play"
)

var infoCmd = &cobra.Command{
	Use:   "info [file-or-take]",
	Short: "Show WAV file details, or the resolved configuration",
	Long: `With a file or take name, display its channels, sample rate, bit depth and duration.
Without arguments, display the resolved configuration with inheritance indicators
showing which values come from the active profile and which are inherited.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			printResolvedConfig()
			return nil
		}

		path, err := play.New(cfg, nil).Resolve(args[0])
		if err != nil {
			return err
		}
		info, err := audio.ReadWavInfo(path)
		if err != nil {
			return err
		}

		fmt.Printf("=== WAV FILE ===\n")
		fmt.Printf("path: %s\n", info.Path)
		fmt.Printf("channels: %d\n", info.Channels)
		fmt.Printf("sample_rate: %d\n", info.SampleRate)
		fmt.Printf("bit_depth: %d\n", info.BitDepth)
		fmt.Printf("duration: %s\n", info.Duration)
		return nil
	},
}

func printResolvedConfig() {
	fmt.Printf("=== RESOLVED CONFIGURATION (profile: %s) ===\n", cfg.Profile)

	fmt.Printf("\n[Audio]\n")
	fmt.Printf("backend: %s %s\n", cfg.Audio.Backend, inheritanceIndicator("audio.backend"))
	fmt.Printf("device: %s %s\n", cfg.Audio.Device, inheritanceIndicator("audio.device"))
	fmt.Printf("sample_rate: %d %s\n", cfg.Audio.SampleRate, inheritanceIndicator("audio.sample_rate"))
	fmt.Printf("channels: %d %s\n", cfg.Audio.Channels, inheritanceIndicator("audio.channels"))
	fmt.Printf("chunk_frames: %d %s\n", cfg.Audio.ChunkFrames, inheritanceIndicator("audio.chunk_frames"))
	fmt.Printf("sample_format: %s %s\n", cfg.Audio.SampleFormat, inheritanceIndicator("audio.sample_format"))

	fmt.Printf("\n[Output]\n")
	fmt.Printf("directory: %s %s\n", cfg.Output.Directory, inheritanceIndicator("output.directory"))
	fmt.Printf("filename_prefix: %s %s\n", cfg.Output.FilenamePrefix, inheritanceIndicator("output.filename_prefix"))
	fmt.Printf("auto_increment: %t %s\n", cfg.Output.AutoIncrement, inheritanceIndicator("output.auto_increment"))

	fmt.Printf("\n[Meter]\n")
	fmt.Printf("interval: %s\n", cfg.Meter.Interval)
}

// inheritanceIndicator returns a formatted indicator for inheritance status
func inheritanceIndicator(key string) string {
	if cfg.Inheritance == nil {
		return "[inherited]"
	}
	switch cfg.Inheritance.Fields[key] {
	case "inherited":
		return "[inherited]"
	case "profile-specific":
		return "[profile-specific]"
	default:
		return "[unknown]"
	}
}
