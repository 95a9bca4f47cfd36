package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/indexgen/internal/config"
	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/notify"
	"github.com/Aman-CERP/indexgen/internal/output"
)

func newPublishCmd() *cobra.Command {
	var (
		objectPath string
		register   bool
		spool      bool
	)

	cmd := &cobra.Command{
		Use:   "publish <add|update|delete> <snapshot.json|->",
		Short: "Send a change notification to a running daemon",
		Long: `Publish wraps a snapshot in a notification event and sends it on the
configured Redis channel, or drops it into the spool directory with --spool.

With --register the object path is also stored in the Redis path hash so
later notifications without a path can be resolved.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshot(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			ev := notify.Event{
				ID:         uuid.NewString(),
				Kind:       notify.Kind(args[0]),
				Snapshot:   snap,
				ObjectPath: objectPath,
			}
			if err := ev.Validate(); err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if spool {
				path, err := writeSpoolEvent(cfg.Notify.SpoolDir, ev)
				if err != nil {
					return err
				}
				out.Successf("Spooled %s event %s", ev.Kind, ev.ID)
				out.Statusf("", "File: %s", path)
				return nil
			}

			ctx := cmd.Context()
			client, err := notify.NewRedisClient(ctx, notify.RedisConfig{
				Addr:     cfg.Notify.RedisAddr,
				Password: cfg.Notify.RedisPassword,
				DB:       cfg.Notify.RedisDB,
			})
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			if register && objectPath != "" {
				resolver := notify.NewRedisPathResolver(client, cfg.Notify.ObjectPathKey)
				if err := resolver.Register(ctx, snap.Identifier, objectPath); err != nil {
					return err
				}
			}

			channel := cfg.Notify.Channel
			if channel == "" {
				channel = notify.DefaultChannel
			}
			if err := notify.Publish(ctx, client, channel, ev); err != nil {
				return err
			}
			out.Successf("Published %s event %s on %s", ev.Kind, ev.ID, channel)
			return nil
		},
	}

	cmd.Flags().StringVar(&objectPath, "path", "", "Object path carried by the event")
	cmd.Flags().BoolVar(&register, "register", false, "Also store --path in the Redis path hash")
	cmd.Flags().BoolVar(&spool, "spool", false, "Write the event to notify.spool_dir instead of Redis")
	return cmd
}

// writeSpoolEvent writes ev under dir. The file is written under a dot name
// and renamed so the spool never reads a partial event.
func writeSpoolEvent(dir string, ev notify.Event) (string, error) {
	if dir == "" {
		return "", ierrors.ConfigError("notify.spool_dir is not set", nil).
			WithSuggestion("Set notify.spool_dir or INDEXGEN_SPOOL_DIR")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create spool directory: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return "", ierrors.InternalError("cannot encode event", err)
	}

	name := fmt.Sprintf("%d-%s.json", time.Now().UnixNano(), ev.ID)
	tmp := filepath.Join(dir, "."+name)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write spool file: %w", err)
	}
	final := filepath.Join(dir, name)
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to publish spool file: %w", err)
	}
	return final, nil
}
