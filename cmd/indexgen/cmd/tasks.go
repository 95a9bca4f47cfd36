package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexgen/internal/config"
	"github.com/Aman-CERP/indexgen/internal/meta"
	"github.com/Aman-CERP/indexgen/internal/output"
	"github.com/Aman-CERP/indexgen/internal/store"
	"github.com/Aman-CERP/indexgen/internal/task"
)

func newTasksCmd() *cobra.Command {
	var (
		pid        string
		status     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List queued index tasks",
		Example: `  indexgen tasks --status NEW
  indexgen tasks --pid urn:uuid:1234 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := task.Filter{PID: pid, Limit: limit}
			if status != "" {
				st, err := task.ParseStatus(status)
				if err != nil {
					return err
				}
				f.Status = st
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := store.Open(ctx, store.Config{
				Driver: cfg.Store.Driver,
				Path:   cfg.Store.Path,
				DSN:    cfg.Store.DSN,
			})
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			tasks, err := st.List(ctx, f)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				if tasks == nil {
					tasks = []task.IndexTask{}
				}
				return out.JSON(tasks)
			}
			if len(tasks) == 0 {
				out.Status("", "No tasks")
				return nil
			}
			rows := make([][]string, 0, len(tasks))
			for _, t := range tasks {
				rows = append(rows, []string{
					strconv.FormatInt(t.ID, 10),
					t.PID,
					string(t.Kind),
					string(t.Status),
					strconv.Itoa(t.Priority),
					t.SerialVersion,
					t.DateModified.Format(meta.TimeLayout),
				})
			}
			out.Table([]string{"ID", "PID", "KIND", "STATUS", "PRIORITY", "SERIAL", "MODIFIED"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&pid, "pid", "", "Only tasks for this identifier")
	cmd.Flags().StringVar(&status, "status", "", "Only tasks in this status (NEW, IN PROCESS, COMPLETE, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum tasks to list (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
