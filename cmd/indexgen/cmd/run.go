package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexgen/internal/config"
	"github.com/Aman-CERP/indexgen/internal/daemon"
	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/logging"
	"github.com/Aman-CERP/indexgen/internal/metrics"
	"github.com/Aman-CERP/indexgen/internal/notify"
	"github.com/Aman-CERP/indexgen/internal/preflight"
	"github.com/Aman-CERP/indexgen/internal/profiling"
	"github.com/Aman-CERP/indexgen/internal/server"
	"github.com/Aman-CERP/indexgen/pkg/version"
)

func newRunCmd() *cobra.Command {
	var (
		noLogFile bool
		prof      profiling.Config
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the notification daemon in the foreground",
		Long: `Run consumes change notifications and generates index tasks until it
receives SIGINT or SIGTERM.

Sources are enabled by configuration:
  notify.redis_addr   Redis pub/sub channel (notify.channel)
  notify.spool_dir    directory of JSON event files
The HTTP server (server.addr) always runs and serves /metrics, /healthz,
/readyz and POST /v1/events.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), noLogFile, prof)
		},
	}

	cmd.Flags().BoolVar(&noLogFile, "no-log-file", false, "Log to stderr only")
	cmd.Flags().StringVar(&prof.CPUPath, "cpu-profile", "", "Write a CPU profile to this file")
	cmd.Flags().StringVar(&prof.HeapPath, "heap-profile", "", "Write a heap profile to this file on exit")
	cmd.Flags().StringVar(&prof.TracePath, "trace", "", "Write an execution trace to this file")
	return cmd
}

func runDaemon(ctx context.Context, noLogFile bool, prof profiling.Config) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.FilePath = cfg.Server.LogFile
	if debugMode {
		logCfg.Level = "debug"
	}
	if noLogFile {
		logCfg.FilePath = ""
	}
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	slog.Info("indexgen starting",
		slog.String("version", version.Version),
		slog.String("config", configPath),
		slog.String("log_file", logCfg.FilePath))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	checker := preflight.New()
	results := checker.RunAll(ctx, preflightTarget(cfg, false))
	for _, r := range results {
		if r.Status != preflight.StatusPass {
			slog.Warn("preflight check did not pass",
				slog.String("check", r.Name),
				slog.String("status", r.Status.String()),
				slog.String("message", r.Message))
		}
	}
	if checker.HasCriticalFailures(results) {
		return ierrors.New(ierrors.ErrCodeConfigInvalid, "preflight checks failed", nil).
			WithSuggestion("Run 'indexgen doctor' for details")
	}

	dcfg := daemon.DefaultConfig()
	if st := daemon.ReadStatus(dcfg); st.Running {
		return fmt.Errorf("%w (pid %d)", daemon.ErrAlreadyRunning, st.PID)
	}
	d, err := daemon.New(dcfg)
	if err != nil {
		return err
	}
	c, err := buildCore(ctx, cfg, m)
	if err != nil {
		return err
	}
	d.OnShutdown(c.Close)

	if prof.Enabled() {
		session, err := profiling.Start(prof)
		if err != nil {
			_ = c.Close()
			return err
		}
		d.OnShutdown(session.Stop)
	}

	readiness := []server.Option{server.WithReadiness("index", c.backend.ready)}
	dispatchOpts := []notify.DispatcherOption{
		notify.WithFilter(c.filter),
		notify.WithMetrics(m),
	}

	var sources []func(notify.Handler) error
	if cfg.Notify.RedisAddr != "" {
		rcfg := notify.RedisConfig{
			Addr:      cfg.Notify.RedisAddr,
			Password:  cfg.Notify.RedisPassword,
			DB:        cfg.Notify.RedisDB,
			Channel:   cfg.Notify.Channel,
			Workers:   cfg.Notify.Workers,
			DedupSize: cfg.Notify.DedupWindow,
		}
		client, err := notify.NewRedisClient(ctx, rcfg)
		if err != nil {
			_ = c.Close()
			return err
		}
		d.OnShutdown(client.Close)
		dispatchOpts = append(dispatchOpts,
			notify.WithPathResolver(notify.NewRedisPathResolver(client, cfg.Notify.ObjectPathKey)))
		readiness = append(readiness, server.WithReadiness("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		sources = append(sources, func(h notify.Handler) error {
			src, err := notify.NewRedisSource(client, rcfg, h, m)
			if err != nil {
				return err
			}
			d.Add("redis", src.Run)
			return nil
		})
	}
	if cfg.Notify.SpoolDir != "" {
		sources = append(sources, func(h notify.Handler) error {
			src, err := notify.NewSpoolSource(cfg.Notify.SpoolDir, h, notify.SpoolOptions{})
			if err != nil {
				return err
			}
			d.Add("spool", src.Run)
			return nil
		})
	}

	dispatcher := notify.NewDispatcher(c.generator, notify.Options{
		ReplayGuard: cfg.Notify.ReplayGuard,
		PreCheck:    cfg.Notify.PreCheck,
	}, dispatchOpts...)

	for _, add := range sources {
		if err := add(dispatcher); err != nil {
			_ = c.Close()
			return err
		}
	}
	if len(sources) == 0 {
		slog.Warn("no notification source configured, accepting events over HTTP only")
	}

	srv := server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, dispatcher, m, readiness...)
	d.Add("http", srv.Run)

	err = d.Run(ctx)
	if errors.Is(err, daemon.ErrAlreadyRunning) {
		_ = c.Close()
	}
	return err
}
