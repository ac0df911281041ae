// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/log"

	"github.com/invowk/pystep/internal/config"
	"github.com/invowk/pystep/internal/issue"
)

// glamourStyle picks dark or light on terminals and plain text otherwise.
const glamourStyle = "auto"

type (
	// App wires CLI services and shared dependencies. All command handlers
	// receive the App and write through its streams.
	App struct {
		Config config.Provider
		stdout io.Writer
		stderr io.Writer

		// set by persistent flags
		verbose    bool
		configPath string
	}

	// Dependencies are the injection points of NewApp. Nil fields are
	// replaced with production defaults.
	Dependencies struct {
		Config config.Provider
		Stdout io.Writer
		Stderr io.Writer
	}
)

// NewApp creates an App.
func NewApp(deps Dependencies) *App {
	app := &App{Config: deps.Config, stdout: deps.Stdout, stderr: deps.Stderr}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// loadConfig loads configuration honoring --config.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	return a.Config.Load(ctx, config.LoadOptions{ConfigFilePath: a.configPath})
}

// logger returns the operational logger on stderr at the configured level;
// --verbose forces debug.
func (a *App) logger(cfg *config.Config, prefix string) *log.Logger {
	level := cfg.LogLevel.Level()
	if a.verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(a.stderr, log.Options{Prefix: prefix, Level: level})
}

// formatErrorForDisplay uses ActionableError.Format when available. In
// verbose mode it shows the full error chain.
func formatErrorForDisplay(err error, verbose bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verbose)
	}
	return err.Error()
}

// renderIssueFor writes the troubleshooting page linked to err, if any.
func (a *App) renderIssueFor(err error) {
	is, ok := issue.IssueOf(err)
	if !ok {
		return
	}
	rendered, renderErr := is.Render(glamourStyle)
	if renderErr != nil {
		rendered = is.Markdown()
	}
	_, _ = io.WriteString(a.stderr, rendered)
}
