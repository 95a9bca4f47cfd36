package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexgen/internal/daemon"
	"github.com/Aman-CERP/indexgen/internal/output"
)

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the daemon is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			st := daemon.ReadStatus(daemon.DefaultConfig())
			if jsonOutput {
				return out.JSON(st)
			}
			if st.Running {
				out.Successf("Daemon is running (pid %d)", st.PID)
			} else {
				out.Status("", "Daemon is not running")
			}
			out.Statusf("", "PID file: %s", st.PIDPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newStopCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long: `Stop sends SIGTERM to the running daemon and waits for it to exit.
In-flight notifications are finished before the process stops.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			pid, err := daemon.Stop(daemon.DefaultConfig(), timeout)
			if errors.Is(err, daemon.ErrPIDFileNotFound) {
				out.Status("", "Daemon is not running")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}
			out.Successf("Daemon stopped (pid %d)", pid)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 20*time.Second, "How long to wait for the daemon to exit")
	return cmd
}
