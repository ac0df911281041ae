// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "pystep",
		Short: "Run shell build steps on local, embedded or remote nodes",
		Long: TitleStyle.Render("pystep") + SubtitleStyle.Render(" - run shell build steps on build nodes") + `

pystep materializes a build step as a temporary script on a build node,
runs it with the node's shell (traced, and failing fast unless exit codes
are ignored), optionally inside a Python virtualenv, and always removes
the script afterwards.

` + SubtitleStyle.Render("Examples:") + `
  pystep run -c 'pip install -r requirements.txt' --virtualenv py311
  pystep run --file build.sh --node builder --vars-file build.toml
  pystep agent --listen 0.0.0.0:2222 --root /srv/builds
  pystep config show
  pystep issues`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&app.configPath, "config", "", "config file (default is $XDG_CONFIG_HOME/pystep/config.cue)")

	root.AddCommand(newRunCommand(app))
	root.AddCommand(newAgentCommand(app))
	root.AddCommand(newConfigCommand(app))
	root.AddCommand(newIssuesCommand(app))

	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the status the command asked for.
// It is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitFailure)
	}
}
