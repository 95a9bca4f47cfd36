package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexgen/internal/config"
	"github.com/Aman-CERP/indexgen/internal/filter"
	"github.com/Aman-CERP/indexgen/internal/output"
)

type checkResult struct {
	PID     string `json:"pid"`
	Index   bool   `json:"index"`
	Reason  string `json:"reason"`
	Backend string `json:"backend"`
}

func newCheckCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check <snapshot.json|->",
		Short: "Decide whether a snapshot needs indexing",
		Long: `Check compares a system-metadata snapshot with the document currently in
the search index and reports whether it would be queued for indexing.
Nothing is written.

Exit status is zero in both cases; use --json for scripting.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshot(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			backend, err := openLookup(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = backend.close() }()

			f := filter.New(filter.Config{Enabled: cfg.Filter.Enabled}, backend.lookup)
			d := f.Evaluate(cmd.Context(), snap)
			res := checkResult{
				PID:     snap.Identifier,
				Index:   d.Index,
				Reason:  string(d.Reason),
				Backend: backend.name,
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(res)
			}
			if d.Index {
				out.Successf("%s needs indexing (%s)", res.PID, res.Reason)
			} else {
				out.Statusf("", "%s is up to date (%s)", res.PID, res.Reason)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
