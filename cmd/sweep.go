package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/clipgrab/clipgrab_server/internal/workspace"
	"github.com/spf13/cobra"
)

var sweepMaxAge time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired files from the staging directory once",
	Long: `Delete every staged file older than the retention period and exit.
Useful from cron when the server runs without its periodic cleanup.

Example:
  clipgrab sweep --max-age 30m`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
	sweepCmd.Flags().DurationVar(&sweepMaxAge, "max-age", 0, "delete files older than this (default is staging.retention)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}

	maxAge := sweepMaxAge
	if maxAge == 0 {
		maxAge = config.Staging.Retention
	}
	return RunSweep(config.Staging.Dir, maxAge, cmd.OutOrStdout())
}

// RunSweep sweeps dir once and writes a summary to out.
func RunSweep(dir string, maxAge time.Duration, out io.Writer) error {
	manager, err := workspace.New(workspace.Config{Dir: dir})
	if err != nil {
		return err
	}

	result, err := manager.SweepExpired(maxAge)
	fmt.Fprintf(out, "Deleted %d file(s), freed %d bytes from %s\n", result.Deleted, result.FreedBytes, manager.Dir())
	return err
}
