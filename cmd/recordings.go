package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recordingsCmd = &cobra.Command{
	Use:     "recordings",
	Aliases: []string{"ls"},
	Short:   "List saved takes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, closeSvc, err := openService()
		if err != nil {
			return err
		}
		defer closeSvc()

		recs, err := svc.ListRecordings()
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Printf("No recordings in %s\n", cfg.Output.Directory)
			return nil
		}

		fmt.Printf("Recordings in %s:\n", cfg.Output.Directory)
		for _, r := range recs {
			fmt.Printf("  %-24s %8s  %6.1fs  %s\n", r.Name, r.SizeHuman, r.DurationSeconds, r.ModTimeHuman)
		}
		return nil
	},
}
