// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/invowk/pystep/internal/buildlog"
	"github.com/invowk/pystep/internal/environ"
	"github.com/invowk/pystep/internal/executor"
	"github.com/invowk/pystep/internal/issue"
	"github.com/invowk/pystep/internal/shell"
	"github.com/invowk/pystep/pkg/buildstep"
)

// scriptPlaceholder stands in for the temporary script path in a dry run.
const scriptPlaceholder = "<script>"

type (
	// plan is what `run --dry-run` shows. Building it reads the node
	// environment and resolves the virtualenv but writes and launches nothing.
	plan struct {
		Node      string
		Workspace string
		Script    string
		Argv      []string
		Changes   []envChange
	}

	envChange struct {
		Key     string
		Value   string
		Removed bool
	}
)

func newPlan(ctx context.Context, step buildstep.Config, b *executor.BuildInfo, setup environ.SetupStep, shells shell.Resolver) (plan, error) {
	n := b.Node()
	p := plan{Node: n.Name(), Workspace: b.Workspace(), Script: step.Contents()}

	ambient, err := b.Environment(ctx)
	if err != nil {
		return p, err
	}
	rec := buildlog.NewRecorder()
	composed, err := environ.Compose(ctx, ambient, b.Variables(), setup, environ.SetupContext{
		Node:      n,
		Workspace: p.Workspace,
		Listener:  rec,
	})
	if err != nil {
		if errors.Is(err, environ.ErrSetupRejected) {
			err = errors.Join(append([]error{err}, rec.Diagnostics()...)...)
		}
		return p, issue.NewErrorContext().
			WithOperation("compose build environment").
			WithIssue(issue.EnvironmentSetupFailedId).
			Wrap(err).
			BuildError()
	}

	if p.Argv, err = shell.BuildArgv(ctx, shells, scriptPlaceholder, step.IgnoreExitCode(), n); err != nil {
		return p, err
	}
	p.Changes = diffEnv(ambient, composed)
	return p, nil
}

// diffEnv lists variables of after that are new or changed, in after's
// order, followed by variables removed from before.
func diffEnv(before, after *environ.Env) []envChange {
	var changes []envChange
	for _, k := range after.Keys() {
		v := after.Get(k)
		if old, ok := before.Lookup(k); !ok || old != v {
			changes = append(changes, envChange{Key: k, Value: v})
		}
	}
	for _, k := range before.Keys() {
		if _, ok := after.Lookup(k); !ok {
			changes = append(changes, envChange{Key: k, Removed: true})
		}
	}
	return changes
}

// Markdown renders the plan as a Markdown document.
func (p plan) Markdown() string {
	var md strings.Builder
	md.WriteString("# Dry run\n\n")
	fmt.Fprintf(&md, "- **Node:** %s\n", p.Node)
	fmt.Fprintf(&md, "- **Workspace:** %s\n", p.Workspace)

	md.WriteString("\n## Script\n\n~~~sh\n")
	md.WriteString(strings.TrimPrefix(p.Script, "\n"))
	md.WriteString("\n~~~\n")

	md.WriteString("\n## Command line\n\n~~~\n")
	md.WriteString(strings.Join(p.Argv, " "))
	md.WriteString("\n~~~\n")

	md.WriteString("\n## Environment changes\n\n")
	if len(p.Changes) == 0 {
		md.WriteString("*(none)*\n")
		return md.String()
	}
	md.WriteString("| Variable | Value |\n| --- | --- |\n")
	for _, c := range p.Changes {
		value := "`" + escapeCell(c.Value) + "`"
		if c.Removed {
			value = "*(removed)*"
		}
		fmt.Fprintf(&md, "| `%s` | %s |\n", escapeCell(c.Key), value)
	}
	return md.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// renderPlan writes the plan through glamour.
func renderPlan(w io.Writer, p plan) error {
	out, err := glamour.Render(p.Markdown(), glamourStyle)
	if err != nil {
		return fmt.Errorf("failed to render dry run: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
