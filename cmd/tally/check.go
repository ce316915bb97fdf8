package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tallyboard/tally/internal/config"
	"github.com/tallyboard/tally/internal/report"
	"github.com/tallyboard/tally/internal/validate"
)

// debounce window for filesystem events in watch mode. Editors fire
// bursts of writes; one re-validation per burst is enough.
const watchDebounce = 250 * time.Millisecond

var watchFlag bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the workspace",
	Long: `Run one full validation pass over the workspace and report every
issue found. The pass never stops early: one bad record does not block
validation of the rest.

Exit code is 0 when no issues were found, 1 otherwise. With --watch the
pass re-runs on workspace changes and the exit code reflects the last
completed pass.

Examples:
  tally check                 # validate the current directory
  tally check -C ../project   # validate another workspace
  tally check --json          # print the raw result object
  tally check --watch         # re-validate on every change`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(workspaceDir)
		if err != nil {
			return err
		}
		if !watchFlag {
			return runCheck(cmd.Context(), cfg)
		}
		return runWatch(cmd.Context(), cfg)
	},
}

func init() {
	checkCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "re-validate on workspace changes")
	rootCmd.AddCommand(checkCmd)
}

// runCheck performs one pass and renders it. The issue count drives the
// process exit code; only load catastrophes surface as errors.
func runCheck(ctx context.Context, cfg *config.Config) error {
	res, err := validate.Run(ctx, workspaceDir, cfg)
	if err != nil {
		exitCode = 2
		return err
	}

	if jsonOutput {
		if err := report.JSON(os.Stdout, res); err != nil {
			return err
		}
	} else if !quietFlag || !res.OK() {
		report.Human(os.Stdout, res, useColor(cfg.Color))
	}

	if res.OK() {
		exitCode = 0
	} else {
		exitCode = 1
	}
	return nil
}

// runWatch re-validates on every workspace change until interrupted.
func runWatch(ctx context.Context, cfg *config.Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the record directories and the workspace root (backlog,
	// taxonomy, config live there). Subdirectories that appear later are
	// picked up on the next pass's add.
	for _, sub := range []string{"", cfg.ItemsDir, cfg.HistoryDir, cfg.SprintsDir, cfg.SchemaDir} {
		path := filepath.Join(workspaceDir, sub)
		if _, statErr := os.Stat(path); statErr == nil {
			if err := watcher.Add(path); err != nil {
				return fmt.Errorf("watching %s: %w", path, err)
			}
		}
	}

	if err := runCheck(ctx, cfg); err != nil {
		return err
	}

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			if !quietFlag {
				fmt.Fprintln(os.Stderr, "workspace changed, re-validating")
			}
			if err := runCheck(ctx, cfg); err != nil {
				fmt.Fprintf(os.Stderr, "tally: %v\n", err)
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "tally: watch: %v\n", watchErr)
		}
	}
}

// useColor decides whether human output gets styled. --no-color and the
// config's color mode win over detection; "auto" means an interactive
// stdout with a color-capable terminal.
func useColor(mode string) bool {
	if noColor || mode == "never" {
		return false
	}
	if mode == "always" {
		return true
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}
