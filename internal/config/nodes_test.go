// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/invowk/pystep/internal/node"
	"github.com/invowk/pystep/internal/testutil"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Shell = "bash"
	cfg.Virtualenvs = map[string]string{"py311": "/opt/py311"}
	cfg.Nodes = map[string]NodeConfig{
		"builder": {
			Kind:                  NodeKindSSH,
			Address:               "h:2222",
			Token:                 "secret",
			InsecureIgnoreHostKey: true,
			Root:                  "/srv",
			Shell:                 "/bin/dash",
		},
		"sandbox": {Kind: NodeKindVirtual, Root: "/tmp/sandbox", ToolHomes: map[string]string{"py311": "/venv"}},
		"host":    {Kind: NodeKindLocal, Root: "/work"},
	}
	cfg.Agent.Token = "agent-secret"
	return cfg
}

func TestConfig_Node(t *testing.T) {
	t.Parallel()

	cfg := testConfig()

	tests := []struct {
		name     string
		wantName string
		check    func(t *testing.T, n node.Node)
	}{
		{"", "local", func(t *testing.T, n node.Node) {
			if _, ok := n.(*node.Local); !ok {
				t.Errorf("default node is %T, want *node.Local", n)
			}
		}},
		{"virtual", "virtual", func(t *testing.T, n node.Node) {
			if _, ok := n.(*node.Virtual); !ok {
				t.Errorf("built-in virtual node is %T", n)
			}
		}},
		{"Sandbox", "sandbox", func(t *testing.T, n node.Node) {
			v, ok := n.(*node.Virtual)
			if !ok {
				t.Fatalf("sandbox is %T, want *node.Virtual", n)
			}
			if v.Root() != "/tmp/sandbox" {
				t.Errorf("Root() = %q", v.Root())
			}
			if home, ok := v.ToolHome("py311"); !ok || home != "/venv" {
				t.Errorf("ToolHome(py311) = %q, %v", home, ok)
			}
		}},
		{"builder", "builder", func(t *testing.T, n node.Node) {
			if _, ok := n.(*node.SSH); !ok {
				t.Errorf("builder is %T, want *node.SSH", n)
			}
			if n.Root() != "/srv" || n.OS() != node.OSUnix {
				t.Errorf("unexpected builder root/os: %q %v", n.Root(), n.OS())
			}
		}},
		{"host", "host", func(t *testing.T, n node.Node) {
			if n.Root() != "/work" {
				t.Errorf("Root() = %q", n.Root())
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.wantName, func(t *testing.T) {
			t.Parallel()

			n, err := cfg.Node(tt.name, log.New(io.Discard))
			if err != nil {
				t.Fatalf("Node(%q) error = %v", tt.name, err)
			}
			if n.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", n.Name(), tt.wantName)
			}
			tt.check(t, n)
		})
	}
}

func TestConfig_NodeErrors(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	if _, err := cfg.Node("missing", nil); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("Node(missing) error = %v, want ErrUnknownNode", err)
	}

	cfg.Nodes["broken"] = NodeConfig{Kind: NodeKindSSH}
	if _, err := cfg.Node("broken", nil); !errors.Is(err, ErrInvalidNode) {
		t.Errorf("Node(broken) error = %v, want ErrInvalidNode", err)
	}

	cfg.Nodes["odd"] = NodeConfig{Kind: "docker"}
	if _, err := cfg.Node("odd", nil); !errors.Is(err, ErrInvalidNodeKind) {
		t.Errorf("Node(odd) error = %v, want ErrInvalidNodeKind", err)
	}
}

func TestConfig_ShellRegistry(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	reg := cfg.ShellRegistry()

	builder, _ := cfg.Node("builder", nil)
	host, _ := cfg.Node("host", nil)

	if sh, _ := reg.ResolveShell(t.Context(), builder); sh != "/bin/dash" {
		t.Errorf("builder shell = %q, want /bin/dash", sh)
	}
	if sh, _ := reg.ResolveShell(t.Context(), host); sh != "bash" {
		t.Errorf("host shell = %q, want bash", sh)
	}
}

func TestConfig_AgentConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Agent.Root = "/srv/agent"
	cfg.Agent.Listen = ""

	ac := cfg.AgentConfig()
	if ac.Listen != "127.0.0.1:2222" {
		t.Errorf("Listen = %q, want default", ac.Listen)
	}
	if ac.Token != "agent-secret" || ac.Root != "/srv/agent" || ac.Shell != "/bin/sh" {
		t.Errorf("unexpected agent config: %+v", ac)
	}
}

func TestConfig_Redacted(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	red := cfg.Redacted()

	if red.Nodes["builder"].Token != redacted || red.Agent.Token != redacted {
		t.Errorf("tokens not masked: %+v %+v", red.Nodes["builder"], red.Agent)
	}
	if red.Nodes["host"].Token != "" {
		t.Errorf("empty token should stay empty, got %q", red.Nodes["host"].Token)
	}
	if cfg.Nodes["builder"].Token != "secret" || cfg.Agent.Token != "agent-secret" {
		t.Error("Redacted() modified the original")
	}

	red.Virtualenvs["new"] = "/x"
	if _, ok := cfg.Virtualenvs["new"]; ok {
		t.Error("Redacted() shares the virtualenvs map")
	}
}

func TestLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level   LogLevel
		want    log.Level
		wantErr bool
	}{
		{"", log.InfoLevel, false},
		{LogLevelDebug, log.DebugLevel, false},
		{LogLevelWarn, log.WarnLevel, false},
		{LogLevelError, log.ErrorLevel, false},
		{"loud", log.InfoLevel, true},
	}
	for _, tt := range tests {
		if got := tt.level.Level(); got != tt.want {
			t.Errorf("LogLevel(%q).Level() = %v, want %v", tt.level, got, tt.want)
		}
		if err := tt.level.Validate(); (err != nil) != tt.wantErr {
			t.Errorf("LogLevel(%q).Validate() = %v, wantErr %v", tt.level, err, tt.wantErr)
		}
	}

	if err := LogLevel("loud").Validate(); !errors.Is(err, ErrInvalidLogLevel) {
		t.Errorf("Validate() should wrap ErrInvalidLogLevel, got %v", err)
	}
}

func TestNodeKind_Validate(t *testing.T) {
	t.Parallel()

	for _, k := range []NodeKind{NodeKindLocal, NodeKindVirtual, NodeKindSSH} {
		if err := k.Validate(); err != nil {
			t.Errorf("%q.Validate() = %v", k, err)
		}
	}
	err := NodeKind("docker").Validate()
	var kindErr *InvalidNodeKindError
	if !errors.As(err, &kindErr) || kindErr.Value != "docker" {
		t.Errorf("Validate() = %v, want InvalidNodeKindError", err)
	}
}

func TestProvider(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `shell: "zsh"`)

	cfg, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Shell != "zsh" {
		t.Errorf("Shell = %q, want zsh", cfg.Shell)
	}

	stub := ProviderFunc(func(_ context.Context, _ LoadOptions) (*Config, error) { return testConfig(), nil })
	if cfg, _ := stub.Load(t.Context(), LoadOptions{}); cfg.Shell != "bash" {
		t.Errorf("ProviderFunc.Load() Shell = %q", cfg.Shell)
	}
}

//nolint:paralleltest // changes HOME
func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	testutil.SetHomeDir(t, home)

	tests := []struct {
		in   string
		want string
	}{
		{"~/.ssh/known_hosts", filepath.Join(home, ".ssh", "known_hosts")},
		{"~", home},
		{"/etc/ssh/known_hosts", "/etc/ssh/known_hosts"},
		{"~other/file", "~other/file"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandHome(tt.in); got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
