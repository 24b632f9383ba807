package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [take-name]",
	Short: "Execute pipeline steps on a take",
	Long: `Execute the specified pipeline steps in one session. Use -p to specify which steps to run:
r records until Ctrl+C, p plays the take back, s saves it as WAV.

The take name is used by the save step when output.auto_increment is off.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pipeline == "" {
			return fmt.Errorf("no pipeline specified, use -p flag (e.g., -p rps)")
		}

		name := ""
		if len(args) == 1 {
			name = args[0]
		}

		svc, closeSvc, err := openService()
		if err != nil {
			return err
		}
		defer closeSvc()

		return executePipeline(svc, name, []rune(strings.ToLower(pipeline)))
	},
}
