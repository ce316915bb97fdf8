// Command tally validates a plaintext work-item workspace: item records,
// per-item history logs, sprints, backlog ordering, and repo links.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyboard/tally/internal/telemetry"
)

var (
	workspaceDir string
	jsonOutput   bool
	noColor      bool
	quietFlag    bool

	// exitCode is set by commands and applied after Execute returns, so
	// PersistentPostRun (telemetry flush) still runs.
	exitCode int

	// Signal-aware context for graceful cancellation.
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "tally",
	Short: "Workspace validator for plaintext work-item trackers",
	Long: `tally checks a work-item workspace for consistency: every record
against its schema, every reference against the item index, and every
item's declared status against a full replay of its history log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return telemetry.Init(cmd.Context(), "tally", version)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspaceDir, "dir", "C", ".", "workspace directory")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "suppress non-essential output")
}

func main() {
	rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer rootCancel()

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fmt.Fprintf(os.Stderr, "tally: %v\n", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}
