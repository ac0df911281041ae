// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/invowk/pystep/internal/agent"
	"github.com/invowk/pystep/internal/issue"
)

type agentOptions struct {
	listen  string
	token   string
	root    string
	shell   string
	hostKey string
}

func newAgentCommand(app *App) *cobra.Command {
	var opts agentOptions

	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Serve build steps to remote pystep clients over SSH",
		Long: `Serve build steps to remote pystep clients over SSH.

Clients authenticate with the shared token as password. Each exec request
runs through the agent shell in the agent root. A token is generated and
printed when none is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveAgent(cmd.Context(), app, cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.listen, "listen", "", "host:port to listen on (default "+agent.DefaultListen+")")
	f.StringVar(&opts.token, "token", "", "shared password clients must present")
	f.StringVar(&opts.root, "root", "", "working directory of every command (default: current directory)")
	f.StringVar(&opts.shell, "shell", "", "shell running each command (default "+agent.DefaultShell+")")
	f.StringVar(&opts.hostKey, "host-key", "", "persist the SSH host key at this path")

	return cmd
}

// agentConfig overlays explicitly set flags on the configured values.
func agentConfig(base agent.Config, cmd *cobra.Command, opts agentOptions) agent.Config {
	f := cmd.Flags()
	if f.Changed("listen") {
		base.Listen = opts.listen
	}
	if f.Changed("token") {
		base.Token = opts.token
	}
	if f.Changed("root") {
		base.Root = opts.root
	}
	if f.Changed("shell") {
		base.Shell = opts.shell
	}
	if f.Changed("host-key") {
		base.HostKeyPath = opts.hostKey
	}
	return base
}

func serveAgent(ctx context.Context, app *App, cmd *cobra.Command, opts agentOptions) error {
	cfg, err := app.loadConfig(ctx)
	if err != nil {
		app.renderIssueFor(err)
		return err
	}

	agentCfg := agentConfig(cfg.AgentConfig(), cmd, opts)
	generated := agentCfg.Token == ""
	agentCfg.Logger = app.logger(cfg, "agent")

	srv, err := agent.New(agentCfg)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return issue.NewErrorContext().
			WithOperation("start agent").
			WithResource(agentCfg.Listen).
			WithSuggestion("Check that the address is free or pick another with --listen").
			Wrap(err).
			BuildError()
	}

	fmt.Fprintf(app.stderr, "%s %s\n", TitleStyle.Render("Agent listening on"), CmdStyle.Render(srv.Address()))
	if generated {
		fmt.Fprintf(app.stderr, "%s %s\n", SubtitleStyle.Render("Token:"), srv.Token())
	}

	select {
	case <-ctx.Done():
	case serveErr, ok := <-srv.Err():
		if ok && serveErr != nil {
			_ = srv.Stop()
			return serveErr
		}
	}
	return srv.Stop()
}
