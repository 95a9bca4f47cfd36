package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/indexgen/configs"
	"github.com/Aman-CERP/indexgen/internal/config"
	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage indexgen configuration",
		Long: `Configuration is read from ./indexgen.yaml (or --config), then .env,
then INDEXGEN_* environment variables, each overriding the previous.`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())
	return cmd
}

// activeConfigPath is the file commands read and write.
func activeConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultFileName
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, resolved bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated config file",
		Long: `Init writes the annotated default configuration to ./indexgen.yaml (or
--config).
An existing file is kept unless --force is given, in which case it is
backed up first. With --resolved the effective settings are written
without comments instead of the template.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := activeConfigPath()
			out := output.New(cmd.OutOrStdout())

			if _, err := os.Stat(path); err == nil {
				if !force {
					return ierrors.New(ierrors.ErrCodeConfigInvalid, "config file already exists", nil).
						WithDetail("path", path).
						WithSuggestion("Use --force to overwrite it; the current file is backed up")
				}
				backup, err := config.Backup(path)
				if err != nil {
					return err
				}
				out.Statusf("", "Backed up %s to %s", path, filepath.Base(backup))
			}

			if resolved {
				cfg, err := config.Load("")
				if err != nil {
					return err
				}
				if err := cfg.WriteYAML(path); err != nil {
					return err
				}
				out.Successf("Wrote %s", path)
				return nil
			}
			if dir := filepath.Dir(path); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create config directory: %w", err)
				}
			}
			if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			out.Successf("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")
	cmd.Flags().BoolVar(&resolved, "resolved", false, "Write every setting as resolved from defaults, .env and the environment")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := filepath.Abs(activeConfigPath())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "restore [backup]",
		Short: "Restore the config file from a backup",
		Long: `Restore replaces the config file with a backup, the newest one when no
backup is named. Use --list to see the available backups.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := activeConfigPath()
			out := output.New(cmd.OutOrStdout())

			backups, err := config.ListBackups(path)
			if err != nil {
				return err
			}
			if list {
				if len(backups) == 0 {
					out.Status("", "No backups")
				}
				for _, b := range backups {
					out.Status("", b)
				}
				return nil
			}

			var src string
			switch {
			case len(args) == 1:
				src = args[0]
			case len(backups) > 0:
				src = backups[0]
			default:
				return ierrors.New(ierrors.ErrCodeConfigNotFound, "no config backups found", nil).
					WithDetail("path", path)
			}

			if err := config.Restore(path, src); err != nil {
				return err
			}
			out.Successf("Restored %s from %s", path, filepath.Base(src))
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List backups instead of restoring")
	return cmd
}
