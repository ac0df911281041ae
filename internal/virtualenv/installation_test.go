// SPDX-License-Identifier: MPL-2.0

package virtualenv

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/invowk/pystep/internal/environ"
	"github.com/invowk/pystep/internal/node"
)

// stubNode is a reachable or unreachable node with a fixed OS and root.
type stubNode struct {
	name      string
	os        node.OS
	root      string
	offline   error
	toolHomes map[string]string
}

func (n *stubNode) Name() string { return n.name }
func (n *stubNode) OS() node.OS  { return n.os }
func (n *stubNode) Root() string { return n.root }
func (n *stubNode) Online(context.Context) error {
	if n.offline != nil {
		return &node.UnavailableError{Node: n.name, Cause: n.offline}
	}
	return nil
}
func (n *stubNode) Environment(context.Context) ([]string, error) { return nil, nil }
func (n *stubNode) WriteTempFile(context.Context, string, string, string, string) (string, error) {
	return "", errors.New("not supported")
}
func (n *stubNode) Delete(context.Context, string) error { return nil }
func (n *stubNode) Launch(context.Context, node.LaunchSpec) (int, error) {
	return node.ExitCodeUnknown, errors.New("not supported")
}
func (n *stubNode) ToolHome(name string) (string, bool) {
	home, ok := n.toolHomes[name]
	return home, ok
}

func unixNode() *stubNode {
	return &stubNode{name: "linux-1", os: node.OSUnix, root: "/srv/agent"}
}

func windowsNode() *stubNode {
	return &stubNode{name: "win-1", os: node.OSWindows, root: `C:\agent`}
}

func TestForNode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		inst Installation
		node *stubNode
		want string
	}{
		{"absolute unix home", New("", "/opt/venv"), unixNode(), "/opt/venv"},
		{"relative unix home", New("", "envs/py3"), unixNode(), "/srv/agent/envs/py3"},
		{"variable home untouched", New("", "$HOME/venv"), unixNode(), "$HOME/venv"},
		{"absolute windows home", New("", `D:\venv`), windowsNode(), `D:\venv`},
		{"relative windows home", New("", "envs/py3"), windowsNode(), `C:\agent\envs\py3`},
		{
			"tool home override",
			New("py311", "/opt/default"),
			&stubNode{name: "n", os: node.OSUnix, root: "/", toolHomes: map[string]string{"py311": "/custom/py311"}},
			"/custom/py311",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.inst.ForNode(t.Context(), tt.node)
			if err != nil {
				t.Fatalf("ForNode() error = %v", err)
			}
			if got.Home() != tt.want {
				t.Errorf("Home() = %q, want %q", got.Home(), tt.want)
			}
			if got.OS() != tt.node.os {
				t.Errorf("OS() = %s, want %s", got.OS(), tt.node.os)
			}
			if tt.inst.OS() != node.OSUnix || tt.inst.Home() == "" {
				t.Error("ForNode() modified its receiver")
			}
		})
	}
}

func TestForNodeUnavailable(t *testing.T) {
	t.Parallel()

	offline := &stubNode{name: "gone", os: node.OSUnix, offline: errors.New("channel closed")}
	_, err := New("py3", "/opt/py3").ForNode(t.Context(), offline)

	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("ForNode() error = %v, want *ResolutionError", err)
	}
	if resErr.Node != "gone" || resErr.Installation != "py3" {
		t.Errorf("ResolutionError = %+v", resErr)
	}
	if !errors.Is(err, node.ErrUnavailable) {
		t.Error("ResolutionError should wrap node.ErrUnavailable")
	}

	if _, err := New("", "/x").ForNode(t.Context(), nil); err == nil {
		t.Error("ForNode(nil) should fail")
	}
	if _, err := New("", "  ").ForNode(t.Context(), unixNode()); err == nil {
		t.Error("ForNode() with an empty home should fail")
	}
}

func TestForEnvironment(t *testing.T) {
	t.Parallel()

	env := environ.FromMap(map[string]string{"HOME": "/home/ci", "PY": "3.12"})

	tests := []struct {
		home    string
		want    string
		wantErr bool
	}{
		{"$HOME/venv", "/home/ci/venv", false},
		{"${HOME}/envs/py${PY}", "/home/ci/envs/py3.12", false},
		{"/opt/$UNSET/venv", "", true},
		{"/opt/${UNSET}/py$PY", "", true},
		{`C:\tools\venv`, `C:\tools\venv`, false},
		{"$UNSET", "", true},
		{"$(whoami)/venv", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.home, func(t *testing.T) {
			t.Parallel()
			got, err := New("", tt.home).ForEnvironment(env)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ForEnvironment() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got.Home() != tt.want {
				t.Errorf("Home() = %q, want %q", got.Home(), tt.want)
			}
		})
	}
}

func TestForEnvironmentNamesUndefinedVariables(t *testing.T) {
	t.Parallel()

	env := environ.FromMap(map[string]string{"HOME": "/home/ci"})
	_, err := New("dev", "$HOME/$TOOLS/${PYVER}/$TOOLS").ForEnvironment(env)
	if !errors.Is(err, ErrUndefinedVariable) {
		t.Fatalf("ForEnvironment() error = %v, want ErrUndefinedVariable", err)
	}
	var resErr *ResolutionError
	if !errors.As(err, &resErr) || resErr.Installation != "dev" {
		t.Fatalf("ForEnvironment() error = %v, want a ResolutionError for dev", err)
	}
	if !strings.Contains(err.Error(), "undefined variable: TOOLS, PYVER") {
		t.Errorf("error = %q, want both missing names once", err)
	}
}

func TestBinDirAndInterpreter(t *testing.T) {
	t.Parallel()

	unix, err := New("", "/opt/venv").ForNode(t.Context(), unixNode())
	if err != nil {
		t.Fatal(err)
	}
	if unix.BinDir() != "/opt/venv/bin" || unix.Interpreter() != "/opt/venv/bin/python" {
		t.Errorf("unix BinDir() = %q, Interpreter() = %q", unix.BinDir(), unix.Interpreter())
	}

	win, err := New("", `C:\venv\`).ForNode(t.Context(), windowsNode())
	if err != nil {
		t.Fatal(err)
	}
	if win.BinDir() != `C:\venv\Scripts` || win.Interpreter() != `C:\venv\Scripts\python.exe` {
		t.Errorf("windows BinDir() = %q, Interpreter() = %q", win.BinDir(), win.Interpreter())
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	inst, err := Resolve(t.Context(), "/opt/venv", unixNode(), environ.New())
	if err != nil {
		t.Fatal(err)
	}

	env := environ.FromMap(map[string]string{"PATH": "/usr/bin:/bin", "PYTHONHOME": "/usr"})
	inst.Apply(env)

	if got := env.Get("PATH"); got != "/opt/venv/bin:/usr/bin:/bin" {
		t.Errorf("PATH = %q", got)
	}
	if got := env.Get("VIRTUAL_ENV"); got != "/opt/venv" {
		t.Errorf("VIRTUAL_ENV = %q", got)
	}
	if _, ok := env.Lookup("PYTHONHOME"); ok {
		t.Error("PYTHONHOME should be removed")
	}

	empty := environ.New()
	inst.Apply(empty)
	if got := empty.Get("PATH"); got != "/opt/venv/bin" {
		t.Errorf("PATH on empty env = %q", got)
	}
}

func TestApplyWindowsSeparator(t *testing.T) {
	t.Parallel()

	inst, err := Resolve(t.Context(), `C:\venv`, windowsNode(), environ.New())
	if err != nil {
		t.Fatal(err)
	}
	env := environ.FromMap(map[string]string{"PATH": `C:\Windows`})
	inst.Apply(env)
	if got := env.Get("PATH"); got != `C:\venv\Scripts;C:\Windows` {
		t.Errorf("PATH = %q", got)
	}
}

func TestResolveDeterministic(t *testing.T) {
	t.Parallel()

	base := environ.FromMap(map[string]string{"HOME": "/home/ci", "PATH": "/bin", "PYTHONHOME": "/usr"})
	n := unixNode()

	first, err := Resolve(t.Context(), "$HOME/venv", n, base)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Resolve(t.Context(), "$HOME/venv", n, base)
	if err != nil {
		t.Fatal(err)
	}

	a, b := base.Clone(), base.Clone()
	first.Apply(a)
	second.Apply(b)
	if !a.Equal(b) {
		t.Errorf("environments differ:\n%q\n%q", a.Slice(), b.Slice())
	}
	if base.Get("PATH") != "/bin" {
		t.Error("Resolve() mutated the environment")
	}
}
