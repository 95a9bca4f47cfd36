package cmd

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexgen/internal/config"
	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/logging"
	"github.com/Aman-CERP/indexgen/internal/notify"
	"github.com/Aman-CERP/indexgen/internal/output"
	"github.com/Aman-CERP/indexgen/internal/preflight"
	"github.com/Aman-CERP/indexgen/internal/store"
)

func newDoctorCmd() *cobra.Command {
	var (
		jsonOutput bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that indexgen can run with the current configuration",
		Long: `Doctor runs the daemon's preflight checks and probes every configured
backend: the task store, the search index, Redis and the spool directory.

An unreachable search index only warns, because the filter indexes
everything when it cannot read the index.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose))
			results := checker.RunAll(cmd.Context(), preflightTarget(cfg, true))

			if jsonOutput {
				if err := output.New(cmd.OutOrStdout()).JSON(results); err != nil {
					return err
				}
			} else {
				checker.PrintResults(results)
			}
			if checker.HasCriticalFailures(results) {
				return ierrors.New(ierrors.ErrCodeConfigInvalid, "preflight checks failed", nil).
					WithSuggestion("Fix the failed checks above and run 'indexgen doctor' again")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	return cmd
}

// preflightTarget lists what must hold before the daemon starts. Backend
// probes are included only when withProbes is set; the daemon opens the
// backends itself and fails on its own.
func preflightTarget(cfg *config.Config, withProbes bool) preflight.Target {
	t := preflight.Target{StateDir: logging.HomeDir()}

	switch cfg.Store.Driver {
	case store.DriverSQLite, store.DriverSQLite3:
		t.DataDirs = append(t.DataDirs, filepath.Dir(cfg.Store.Path))
	}
	if cfg.Index.Backend == config.BackendBleve {
		t.DataDirs = append(t.DataDirs, cfg.Index.Path)
	}
	if !withProbes {
		return t
	}

	t.Probes = append(t.Probes, preflight.Probe{
		Name:     "task_store",
		Required: true,
		Check: func(ctx context.Context) error {
			st, err := store.Open(ctx, store.Config{
				Driver: cfg.Store.Driver,
				Path:   cfg.Store.Path,
				DSN:    cfg.Store.DSN,
			})
			if err != nil {
				return err
			}
			return st.Close()
		},
	})
	t.Probes = append(t.Probes, preflight.Probe{
		Name: "search_index",
		Check: func(ctx context.Context) error {
			backend, err := openLookup(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = backend.close() }()
			return backend.ready(ctx)
		},
	})
	if cfg.Notify.RedisAddr != "" {
		t.Probes = append(t.Probes, preflight.Probe{
			Name:     "redis",
			Required: true,
			Check: func(ctx context.Context) error {
				client, err := notify.NewRedisClient(ctx, notify.RedisConfig{
					Addr:     cfg.Notify.RedisAddr,
					Password: cfg.Notify.RedisPassword,
					DB:       cfg.Notify.RedisDB,
				})
				if err != nil {
					return err
				}
				return client.Close()
			},
		})
	}
	if cfg.Notify.SpoolDir != "" {
		dir := cfg.Notify.SpoolDir
		t.Probes = append(t.Probes, preflight.Probe{
			Name:     "spool_dir",
			Required: true,
			Check: func(context.Context) error {
				if r := preflight.New().CheckWritePermissions(dir); r.Status != preflight.StatusPass {
					return errors.New(r.Message)
				}
				return nil
			},
		})
	}
	return t
}
