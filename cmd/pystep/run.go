// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/invowk/pystep/internal/buildlog"
	"github.com/invowk/pystep/internal/environ"
	"github.com/invowk/pystep/internal/executor"
	"github.com/invowk/pystep/internal/issue"
	"github.com/invowk/pystep/internal/node"
	"github.com/invowk/pystep/internal/shell"
	"github.com/invowk/pystep/internal/virtualenv"
	"github.com/invowk/pystep/pkg/buildstep"
)

// runOptions captures the inputs of `pystep run`.
type runOptions struct {
	command        string
	file           string
	ignoreExitCode bool
	virtualenv     string
	virtualenvHome string
	workspace      string
	vars           []string
	varsFiles      []string
	node           string
	dryRun         bool
	timeout        time.Duration
}

func newRunCommand(app *App) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one build step",
		Long: `Run one build step on a build node.

The step is written to a temporary script in the workspace and run with
"<shell> -xe <script>" (or "-x" with --ignore-exit-code). The script is
deleted afterwards on every path. Exit status is 0 on success, 1 on
failure and 130 when interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStep(cmd.Context(), app, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.command, "command", "c", "", "build step text")
	f.StringVar(&opts.file, "file", "", "read the build step text from a file")
	f.BoolVar(&opts.ignoreExitCode, "ignore-exit-code", false, "report success whatever the exit code and do not stop at the first failing command")
	f.StringVar(&opts.virtualenv, "virtualenv", "", "activate a configured virtualenv installation")
	f.StringVar(&opts.virtualenvHome, "virtualenv-home", "", "activate the virtualenv at this home")
	f.StringVar(&opts.workspace, "workspace", "", "workspace directory on the node (default: node root)")
	f.StringArrayVar(&opts.vars, "var", nil, "build variable KEY=VALUE (repeatable)")
	f.StringArrayVar(&opts.varsFiles, "vars-file", nil, "build variables file, TOML (.toml) or dotenv (repeatable)")
	f.StringVar(&opts.node, "node", "", "configured node to run on (default: local)")
	f.BoolVar(&opts.dryRun, "dry-run", false, "print the script, command line and environment changes without running")
	f.DurationVar(&opts.timeout, "timeout", 0, "interrupt the step after this duration")

	cmd.MarkFlagsOneRequired("command", "file")
	cmd.MarkFlagsMutuallyExclusive("command", "file")
	cmd.MarkFlagsMutuallyExclusive("virtualenv", "virtualenv-home")

	return cmd
}

func runStep(ctx context.Context, app *App, opts runOptions) error {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		app.renderIssueFor(err)
		return err
	}
	logger := app.logger(cfg, "pystep")

	text, err := stepText(opts)
	if err != nil {
		return err
	}
	step := buildstep.New(opts.ignoreExitCode, text)

	vars, err := loadVariables(opts.varsFiles, opts.vars)
	if err != nil {
		return err
	}

	n, err := cfg.Node(opts.node, logger.WithPrefix("ssh-node"))
	if err != nil {
		return issue.NewErrorContext().
			WithOperation("select build node").
			WithResource(opts.node).
			WithSuggestion("Use 'pystep config show' to list configured nodes").
			WithIssue(issue.NodeUnavailableId).
			Wrap(err).
			BuildError()
	}
	if c, ok := n.(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	setup := virtualenv.Setup{
		Name:    strings.ToLower(opts.virtualenv),
		Home:    opts.virtualenvHome,
		Catalog: cfg,
	}
	shells := cfg.ShellRegistry()
	runner := executor.New(step,
		executor.WithSetup(setup),
		executor.WithShellResolver(shells),
		executor.WithScriptExtension(cfg.ScriptExtension),
		executor.WithLogger(logger.WithPrefix("executor")),
	)
	build := executor.NewBuild(n, opts.workspace, vars)

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	if opts.dryRun {
		p, planErr := newPlan(ctx, step, build, setup, shells)
		if planErr != nil {
			return planErr
		}
		return renderPlan(app.stdout, p)
	}

	res, err := runner.Execute(ctx, build, buildlog.NewConsole(app.stdout))
	if err != nil {
		if errors.Is(err, executor.ErrInterrupted) {
			return &ExitError{Code: ExitInterrupted, Err: issue.NewErrorContext().
				WithOperation("run build step").
				WithIssue(issue.BuildInterruptedId).
				Wrap(err).
				BuildError()}
		}
		return err
	}
	if res.CleanupErr != nil {
		_, _ = fmt.Fprintln(app.stderr, WarningStyle.Render("Warning: ")+"leftover script "+res.ScriptPath)
	}
	if res.Succeeded {
		return nil
	}

	failure := stepFailure(res, opts)
	app.renderIssueFor(failure)
	return &ExitError{Code: ExitFailure, Err: failure}
}

// stepText returns the --command text or the contents of --file.
func stepText(opts runOptions) (string, error) {
	if opts.file == "" {
		return opts.command, nil
	}
	data, err := os.ReadFile(opts.file)
	if err != nil {
		return "", issue.NewErrorContext().
			WithOperation("read build step").
			WithResource(opts.file).
			Wrap(err).
			BuildError()
	}
	return string(data), nil
}

// loadVariables layers variables files in order, then --var pairs.
func loadVariables(files, pairs []string) (*environ.Env, error) {
	vars := environ.New()
	for _, f := range files {
		var (
			loaded *environ.Env
			err    error
		)
		if strings.EqualFold(filepath.Ext(f), ".toml") {
			loaded, err = environ.LoadTOML(f)
		} else {
			loaded, err = environ.LoadDotenv(f)
		}
		if err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("read build variables").
				WithResource(f).
				WithSuggestion("TOML files need a .toml extension; anything else is read as dotenv").
				Wrap(err).
				BuildError()
		}
		vars.Merge(loaded)
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, issue.NewErrorContext().
				WithOperation("parse build variable").
				WithResource(pair).
				WithSuggestion("Use --var KEY=VALUE").
				BuildError()
		}
		vars.Set(key, value)
	}
	return vars, nil
}

// stepFailure describes a failed Result and links the matching page.
func stepFailure(res executor.Result, opts runOptions) error {
	if res.Err == nil {
		return issue.NewErrorContext().
			WithOperation("run build step").
			Wrap(fmt.Errorf("exit code %d", res.ExitCode)).
			BuildError()
	}

	id := issue.LaunchFailedId
	var stageErr *executor.StageError
	if errors.As(res.Err, &stageErr) {
		switch stageErr.Stage {
		case executor.StageScript:
			id = issue.ScriptCreationFailedId
		case executor.StageEnvironment:
			id = issue.EnvironmentSetupFailedId
			if opts.virtualenv != "" && errors.Is(res.Err, environ.ErrSetupRejected) {
				id = issue.InstallationNotFoundId
			}
		case executor.StageCleanup:
			id = issue.CleanupFailedId
		}
	}
	switch {
	case errors.Is(res.Err, node.ErrUnavailable):
		id = issue.NodeUnavailableId
	case errors.Is(res.Err, shell.ErrNoShell):
		id = issue.ShellNotFoundId
	}

	return issue.NewErrorContext().
		WithOperation("run build step").
		WithIssue(id).
		Wrap(res.Err).
		BuildError()
}
