// Package cmd provides the CLI commands for indexgen.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/logging"
	"github.com/Aman-CERP/indexgen/pkg/version"
)

// Global flags.
var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the indexgen CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexgen",
		Short: "Turn metadata change notifications into index tasks",
		Long: `indexgen decides whether a metadata change needs re-indexing and, when it
does, records a single index task for the identifier, replacing any queued
task that has not started yet.

Run 'indexgen run' to consume notifications, or use 'check' and 'enqueue'
to evaluate and queue individual snapshots.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// The daemon configures its own file logging in run.
			if cmd.Name() == "run" {
				return nil
			}
			level := "warn"
			if debugMode {
				level = "debug"
			}
			logger, _, err := logging.Setup(logging.StderrConfig(level))
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return nil
		},
	}

	cmd.SetVersionTemplate("indexgen version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default ./indexgen.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newEnqueueCmd())
	cmd.AddCommand(newPublishCmd())
	cmd.AddCommand(newTasksCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints errors in CLI form.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, ierrors.FormatForCLI(err))
	}
	return err
}
