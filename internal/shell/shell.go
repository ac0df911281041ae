// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/invowk/pystep/internal/node"
)

const (
	// DefaultShell is used when neither the node nor the registry names one.
	DefaultShell = "sh"

	// FlagTrace echoes each command without stopping on failure.
	FlagTrace = "-x"
	// FlagTraceFailFast echoes each command and stops at the first failure.
	FlagTraceFailFast = "-xe"
)

// ErrNoShell is returned when a resolver yields an empty shell path.
var ErrNoShell = errors.New("no shell configured")

type (
	// Resolver resolves the shell binary for a node.
	Resolver interface {
		ResolveShell(ctx context.Context, n node.Node) (string, error)
	}

	// ResolverFunc adapts a function to Resolver.
	ResolverFunc func(ctx context.Context, n node.Node) (string, error)

	// Registry is the configured shell of every node: PerNode entries keyed
	// by node name win over Default, which falls back to DefaultShell.
	Registry struct {
		Default string
		PerNode map[string]string
	}
)

// ResolveShell calls f.
func (f ResolverFunc) ResolveShell(ctx context.Context, n node.Node) (string, error) {
	return f(ctx, n)
}

// ResolveShell returns the shell configured for n.
func (r Registry) ResolveShell(_ context.Context, n node.Node) (string, error) {
	if n != nil {
		if sh := strings.TrimSpace(r.PerNode[n.Name()]); sh != "" {
			return sh, nil
		}
	}
	if sh := strings.TrimSpace(r.Default); sh != "" {
		return sh, nil
	}
	return DefaultShell, nil
}

// Flag returns -x when exit codes are ignored and -xe otherwise.
func Flag(ignoreExitCode bool) string {
	if ignoreExitCode {
		return FlagTrace
	}
	return FlagTraceFailFast
}

// BuildArgv returns [shell, flag, script] for running script on n.
func BuildArgv(ctx context.Context, r Resolver, script string, ignoreExitCode bool, n node.Node) ([]string, error) {
	if r == nil {
		r = Registry{}
	}
	sh, err := r.ResolveShell(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve shell: %w", err)
	}
	if strings.TrimSpace(sh) == "" {
		return nil, ErrNoShell
	}
	return []string{sh, Flag(ignoreExitCode), script}, nil
}
