package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexgen/internal/config"
	"github.com/Aman-CERP/indexgen/internal/output"
	"github.com/Aman-CERP/indexgen/internal/task"
)

func newEnqueueCmd() *cobra.Command {
	var (
		objectPath string
		check      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue <add|update|delete> <snapshot.json|->",
		Short: "Generate an index task for one snapshot",
		Long: `Enqueue runs a single snapshot through the task generator, replacing any
pending task for the same identifier.

With --check the snapshot is first evaluated against the search index and
nothing is queued when it is already current. Deletes are never checked.`,
		Example: `  indexgen enqueue update sysmeta.json --path /data/objects/ab/cd
  cat sysmeta.json | indexgen enqueue add - --check`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := task.ParseKind(args[0])
			if err != nil {
				return err
			}
			snap, err := readSnapshot(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := buildCore(ctx, cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			out := output.New(cmd.OutOrStdout())
			if check && kind != task.KindDelete {
				if d := c.filter.Evaluate(ctx, snap); !d.Index {
					out.Statusf("", "%s is up to date (%s), nothing queued", snap.Identifier, d.Reason)
					return nil
				}
			}

			var t *task.IndexTask
			switch kind {
			case task.KindAdd:
				t, err = c.generator.OnAdd(ctx, snap, objectPath)
			case task.KindUpdate:
				t, err = c.generator.OnUpdate(ctx, snap, objectPath)
			case task.KindDelete:
				t, err = c.generator.OnDelete(ctx, snap)
			}
			if err != nil {
				return err
			}
			if t == nil {
				out.Statusf("", "%s is on the ignore list, nothing queued", snap.Identifier)
				return nil
			}

			if jsonOutput {
				return out.JSON(t)
			}
			out.Successf("Queued %s task %d for %s", t.Kind, t.ID, t.PID)
			if t.ObjectPath != "" {
				out.Statusf("", "Object path: %s", t.ObjectPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&objectPath, "path", "", "Object path recorded on the task")
	cmd.Flags().BoolVar(&check, "check", false, "Skip snapshots the index already reflects")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the task as JSON")
	return cmd
}
