// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/invowk/pystep/internal/agent"
	"github.com/invowk/pystep/internal/node"
	"github.com/invowk/pystep/internal/shell"
)

// redacted replaces secrets in Redacted configurations.
const redacted = "********"

// ErrUnknownNode is returned by Node for names that are not configured.
var ErrUnknownNode = errors.New("unknown node")

// Lookup returns the home of a catalog installation. Names are
// case-insensitive because configuration keys are.
func (c *Config) Lookup(name string) (string, bool) {
	home, ok := c.Virtualenvs[strings.ToLower(name)]
	return home, ok
}

// NodeNames returns the configured node names in sorted order.
func (c *Config) NodeNames() []string {
	return sortedKeys(c.Nodes)
}

// ShellRegistry returns the global default shell with per-node overrides.
func (c *Config) ShellRegistry() shell.Registry {
	reg := shell.Registry{Default: c.Shell, PerNode: map[string]string{}}
	for name, n := range c.Nodes {
		if n.Shell != "" {
			reg.PerNode[name] = n.Shell
		}
	}
	return reg
}

// Node builds the named node. The empty name and the names "local" and
// "virtual" resolve to built-in nodes unless configured explicitly.
func (c *Config) Node(name string, logger *log.Logger) (node.Node, error) {
	name = strings.ToLower(name)
	nc, ok := c.Nodes[name]
	if !ok {
		switch name {
		case "", string(NodeKindLocal):
			return node.NewLocal(""), nil
		case string(NodeKindVirtual):
			return node.NewVirtual(""), nil
		default:
			return nil, fmt.Errorf("%w: %q (configured: %s)", ErrUnknownNode, name, strings.Join(c.NodeNames(), ", "))
		}
	}
	if err := nc.Validate(name); err != nil {
		return nil, err
	}

	switch nc.Kind {
	case NodeKindVirtual:
		v := node.NewVirtual(nc.Root)
		v.NodeName = name
		v.ToolHomes = nc.ToolHomes
		return v, nil
	case NodeKindSSH:
		return node.NewSSH(node.SSHConfig{
			Name:                  name,
			Address:               nc.Address,
			User:                  nc.User,
			Token:                 nc.Token,
			KnownHostsFile:        expandHome(nc.KnownHosts),
			InsecureIgnoreHostKey: nc.InsecureIgnoreHostKey,
			RootDir:               nc.Root,
			ToolHomes:             nc.ToolHomes,
			Logger:                logger,
		}), nil
	default:
		return &node.Local{NodeName: name, RootDir: nc.Root, ToolHomes: nc.ToolHomes}, nil
	}
}

// AgentConfig returns the agent configuration with package defaults for
// anything left unset.
func (c *Config) AgentConfig() agent.Config {
	cfg := agent.DefaultConfig()
	if c.Agent.Listen != "" {
		cfg.Listen = c.Agent.Listen
	}
	if c.Agent.Shell != "" {
		cfg.Shell = c.Agent.Shell
	}
	cfg.Token = c.Agent.Token
	cfg.Root = c.Agent.Root
	cfg.HostKeyPath = expandHome(c.Agent.HostKey)
	return cfg
}

// Level maps the level to a charmbracelet/log level, defaulting to info.
func (l LogLevel) Level() log.Level {
	lvl, err := log.ParseLevel(string(l))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Redacted returns a deep copy of c with tokens masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Virtualenvs = maps.Clone(c.Virtualenvs)
	out.Nodes = make(map[string]NodeConfig, len(c.Nodes))
	for name, n := range c.Nodes {
		if n.Token != "" {
			n.Token = redacted
		}
		n.ToolHomes = maps.Clone(n.ToolHomes)
		out.Nodes[name] = n
	}
	if out.Agent.Token != "" {
		out.Agent.Token = redacted
	}
	return &out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

// expandHome replaces a leading "~/" with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
