package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [take-name]",
	Short: "Record from the input device and save the take",
	Long: `Record audio from the configured input device with a live level meter.
Recording stops on Ctrl+C, or after --duration, and the take is saved as WAV
unless --no-save is given. With -p, the pipeline steps after 'r' run next.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		duration, _ := cmd.Flags().GetDuration("duration")
		noMeter, _ := cmd.Flags().GetBool("no-meter")
		noSave, _ := cmd.Flags().GetBool("no-save")

		remaining, err := remainingSteps('r')
		if err != nil {
			return err
		}

		svc, closeSvc, err := openService()
		if err != nil {
			return err
		}
		defer closeSvc()

		slog.Info("Record command started", "take", name, "device", svc.Status().Device, "duration", duration)
		if duration <= 0 {
			fmt.Println("Recording - Press Ctrl+C to stop...")
		}
		if err := recordUntilDone(svc, duration, !noMeter); err != nil {
			return fmt.Errorf("recording failed: %w", err)
		}

		if pipeline != "" {
			return executePipeline(svc, name, remaining)
		}
		if noSave {
			return nil
		}

		path, err := svc.Save(name)
		if err != nil {
			return fmt.Errorf("failed to save: %w", err)
		}
		fmt.Printf("Saved %s\n", path)
		return nil
	},
}

func init() {
	recordCmd.Flags().Duration("duration", 0, "stop after this long (e.g., 30s)")
	recordCmd.Flags().Bool("no-meter", false, "hide the live level meter")
	recordCmd.Flags().Bool("no-save", false, "do not save the take when recording stops")
}
