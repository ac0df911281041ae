// SPDX-License-Identifier: MPL-2.0

package virtualenv

import (
	"context"
	"fmt"
	"errors"
	"path"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/shell"

	"github.com/invowk/pystep/internal/environ"
	"github.com/invowk/pystep/internal/node"
)

// ErrUndefinedVariable is wrapped when a home references an unset variable.
var ErrUndefinedVariable = errors.New("undefined variable")

const (
	// EnvVirtualEnv names the activated virtualenv home.
	EnvVirtualEnv = "VIRTUAL_ENV"
	// EnvPath is the executable search path.
	EnvPath = "PATH"
	// EnvPythonHome is removed on activation; a set PYTHONHOME breaks virtualenvs.
	EnvPythonHome = "PYTHONHOME"
)

type (
	// Installation is an immutable virtualenv descriptor. The zero OS means
	// the installation has not been translated for a node and is treated as
	// unix.
	Installation struct {
		name string
		home string
		os   node.OS
	}

	// ResolutionError reports a failure to resolve an installation.
	ResolutionError struct {
		Installation string
		Home         string
		Node         string
		Err          error
	}
)

// New returns an unresolved installation. name may be empty for an
// anonymous installation given only by its home.
func New(name, home string) Installation {
	return Installation{name: name, home: strings.TrimSpace(home)}
}

// Name returns the catalog name, or "" for an anonymous installation.
func (i Installation) Name() string { return i.name }

// Home returns the installation home in its current resolution stage.
func (i Installation) Home() string { return i.home }

// OS returns the OS family of the node the installation was translated for.
func (i Installation) OS() node.OS {
	if i.os == "" {
		return node.OSUnix
	}
	return i.os
}

// ForNode translates the installation for n. A node-specific tool location
// replaces the home of a named installation; a relative home is resolved
// against the node root. Fails when n cannot be reached.
func (i Installation) ForNode(ctx context.Context, n node.Node) (Installation, error) {
	if n == nil {
		return i, i.errorf("", "no node given")
	}
	if err := n.Online(ctx); err != nil {
		return i, &ResolutionError{Installation: i.name, Home: i.home, Node: n.Name(), Err: err}
	}

	out := i
	out.os = n.OS()
	if tl, ok := n.(node.ToolLocator); ok && i.name != "" {
		if home, found := tl.ToolHome(i.name); found {
			out.home = strings.TrimSpace(home)
		}
	}
	if out.home == "" {
		return i, out.errorf(n.Name(), "empty home directory")
	}
	if !isAbs(out.home, out.os) && !strings.HasPrefix(out.home, "$") {
		out.home = join(out.os, n.Root(), out.home)
	}
	return out, nil
}

// ForEnvironment expands $VAR and ${VAR} references in the home using the
// values in env. A reference to an unset variable is an error naming it. A
// home without any "$" is returned as is, so Windows backslashes are never
// reinterpreted.
func (i Installation) ForEnvironment(env *environ.Env) (Installation, error) {
	if !strings.Contains(i.home, "$") {
		return i, nil
	}
	var missing []string
	expanded, err := shell.Expand(i.home, func(name string) string {
		v, ok := env.Lookup(name)
		if !ok && i.references(name) && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
		return v
	})
	if err != nil {
		return i, &ResolutionError{Installation: i.name, Home: i.home, Err: err}
	}
	if len(missing) > 0 {
		return i, i.errorf("", "%w: %s", ErrUndefinedVariable, strings.Join(missing, ", "))
	}
	out := i
	out.home = expanded
	if out.home == "" {
		return i, i.errorf("", "home expands to an empty path")
	}
	return out, nil
}

// references reports whether the home mentions variable name. The expander
// also consults variables of its own, such as IFS.
func (i Installation) references(name string) bool {
	return strings.Contains(i.home, "$"+name) || strings.Contains(i.home, "${"+name)
}

// Resolve runs ForNode then ForEnvironment.
func (i Installation) Resolve(ctx context.Context, n node.Node, env *environ.Env) (Installation, error) {
	onNode, err := i.ForNode(ctx, n)
	if err != nil {
		return i, err
	}
	return onNode.ForEnvironment(env)
}

// Resolve resolves an anonymous installation rooted at home.
func Resolve(ctx context.Context, home string, n node.Node, env *environ.Env) (Installation, error) {
	return New("", home).Resolve(ctx, n, env)
}

// BinDir is the directory holding the installation's executables.
func (i Installation) BinDir() string {
	if i.OS() == node.OSWindows {
		return join(node.OSWindows, i.home, "Scripts")
	}
	return join(node.OSUnix, i.home, "bin")
}

// Interpreter is the path of the python executable.
func (i Installation) Interpreter() string {
	if i.OS() == node.OSWindows {
		return join(node.OSWindows, i.BinDir(), "python.exe")
	}
	return join(node.OSUnix, i.BinDir(), "python")
}

// Apply activates the installation in env: VIRTUAL_ENV is set, the bin
// directory is put in front of PATH and PYTHONHOME is removed.
func (i Installation) Apply(env *environ.Env) {
	env.Set(EnvVirtualEnv, i.home)
	env.PrependPath(EnvPath, i.BinDir(), i.OS().PathSeparator())
	env.Delete(EnvPythonHome)
}

func (i Installation) errorf(nodeName, format string, args ...any) error {
	return &ResolutionError{Installation: i.name, Home: i.home, Node: nodeName, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (e *ResolutionError) Error() string {
	subject := e.Home
	if e.Installation != "" {
		subject = fmt.Sprintf("%s (%s)", e.Installation, e.Home)
	}
	if e.Node != "" {
		return fmt.Sprintf("failed to resolve virtualenv %s on node %s: %v", subject, e.Node, e.Err)
	}
	return fmt.Sprintf("failed to resolve virtualenv %s: %v", subject, e.Err)
}

// Unwrap returns the underlying error.
func (e *ResolutionError) Unwrap() error { return e.Err }

func isAbs(p string, family node.OS) bool {
	if family != node.OSWindows {
		return path.IsAbs(p)
	}
	if strings.HasPrefix(p, `\\`) || strings.HasPrefix(p, `\`) || strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) >= 3 && p[1] == ':' && (p[2] == '\\' || p[2] == '/')
}

func join(family node.OS, dir, elem string) string {
	if family != node.OSWindows {
		return path.Join(dir, elem)
	}
	dir = strings.TrimRight(strings.ReplaceAll(dir, "/", `\`), `\`)
	elem = strings.TrimLeft(strings.ReplaceAll(strings.TrimPrefix(elem, "./"), "/", `\`), `\`)
	if dir == "" {
		return elem
	}
	return dir + `\` + elem
}
