package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexgen/internal/config"
	"github.com/Aman-CERP/indexgen/internal/logging"
	"github.com/Aman-CERP/indexgen/internal/output"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the daemon log",
		Long: `Logs prints the last lines of the daemon's JSON log in readable form.
Use -f to keep following new entries.`,
		Example: `  indexgen logs -n 100
  indexgen logs -f --level warn
  indexgen logs --filter 'urn:uuid:1234'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level to show (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only lines matching this regular expression")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Log file (default server.log_file)")
	return cmd
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	if opts.level != "" && !logging.ValidLevel(opts.level) {
		return fmt.Errorf("invalid level %q", opts.level)
	}
	var pattern *regexp.Regexp
	if opts.filter != "" {
		var err error
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	path := opts.logFile
	if path == "" {
		path = logging.DefaultLogPath()
		if cfg, err := config.Load(configPath); err == nil && cfg.Server.LogFile != "" {
			path = cfg.Server.LogFile
		}
	}

	out := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor || output.NoColor() || !output.IsTTY(out),
	}, out)

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n", path)

	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)
	if !opts.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ch := make(chan logging.Entry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, path, ch) }()

	for {
		select {
		case e := <-ch:
			_, _ = fmt.Fprintln(out, viewer.Format(e))
		case err := <-errCh:
			return err
		}
	}
}
