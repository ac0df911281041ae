// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/invowk/pystep/internal/config"
)

// newConfigCommand creates the `pystep config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage pystep configuration",
		Long: `Manage pystep configuration.

Configuration is stored in:
  - Linux: ~/.config/pystep/config.cue
  - macOS: ~/Library/Application Support/pystep/config.cue
  - Windows: %APPDATA%\pystep\config.cue

A config.cue in the current directory is used when none exists there.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration (tokens masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showConfig(cmd.Context(), app)
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return initConfig(app)
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context, app *App) error {
	cfg, path, err := config.Load(ctx, config.LoadOptions{ConfigFilePath: app.configPath})
	if err != nil {
		app.renderIssueFor(err)
		return err
	}

	source := SubtitleStyle.Render("(using defaults)")
	if path != "" {
		if abs, absErr := filepath.Abs(path); absErr == nil {
			path = abs
		}
		source = path
	}
	fmt.Fprintf(app.stdout, "%s: %s\n\n", CmdStyle.Render("Config file"), source)
	fmt.Fprint(app.stdout, config.GenerateCUE(cfg.Redacted()))
	return nil
}

func initConfig(app *App) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	path, created, err := config.CreateDefault(dir)
	if err != nil {
		return err
	}
	if !created {
		fmt.Fprintf(app.stdout, "%s %s\n", WarningStyle.Render("Config file already exists:"), path)
		return nil
	}
	fmt.Fprintf(app.stdout, "%s %s\n", SuccessStyle.Render("Created"), path)
	return nil
}
