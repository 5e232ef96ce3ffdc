package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"shapelearner/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample configuration file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(targetPath)
			if path == "" {
				if flag := cmd.Flag("config"); flag != nil && flag.Changed {
					path = flag.Value.String()
				}
			}
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return err
			}

			if !overwrite {
				if _, err := os.Stat(expanded); err == nil {
					return fmt.Errorf("config already exists at %s (use --overwrite)", expanded)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("stat config: %w", err)
				}
			}
			if err := config.CreateSample(expanded); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample config to %s\n", expanded)
			return nil
		},
	}

	cmd.Flags().StringVar(&targetPath, "path", "", "Where to write the config (default: ~/.config/shapelearner/config.toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and report the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			difficulty, err := cfg.Difficulty()
			if err != nil {
				return err
			}
			if ctx.jsonMode() {
				return writeJSON(cmd, map[string]any{
					"valid":      true,
					"dataDir":    cfg.Paths.DataDir,
					"outputDir":  cfg.Paths.OutputDir,
					"store":      cfg.Store.Driver,
					"modelStore": cfg.ModelStore.Backend,
					"difficulty": difficulty,
					"bind":       cfg.API.Bind,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration is valid")
			fmt.Fprintf(out, "  Data dir:    %s\n", cfg.Paths.DataDir)
			fmt.Fprintf(out, "  Output dir:  %s\n", cfg.Paths.OutputDir)
			fmt.Fprintf(out, "  Store:       %s\n", cfg.Store.Driver)
			fmt.Fprintf(out, "  Model store: %s\n", cfg.ModelStore.Backend)
			fmt.Fprintf(out, "  Difficulty:  %v\n", difficulty)
			fmt.Fprintf(out, "  API bind:    %s\n", cfg.API.Bind)
			return nil
		},
	}
}
