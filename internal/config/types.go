// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/invowk/pystep/internal/agent"
	"github.com/invowk/pystep/internal/shell"
	"github.com/invowk/pystep/pkg/buildstep"
)

const (
	// NodeKindLocal runs steps with the host shell.
	NodeKindLocal NodeKind = "local"
	// NodeKindVirtual runs steps in the embedded mvdan/sh interpreter.
	NodeKindVirtual NodeKind = "virtual"
	// NodeKindSSH runs steps on a remote pystep agent.
	NodeKindSSH NodeKind = "ssh"

	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidNodeKind is returned when a NodeKind value is not recognized.
	ErrInvalidNodeKind = errors.New("invalid node kind")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidNode is the sentinel error wrapped by InvalidNodeError.
	ErrInvalidNode = errors.New("invalid node")
)

type (
	// NodeKind selects the node implementation.
	NodeKind string

	// LogLevel is the minimum level of operational logs.
	LogLevel string

	// InvalidNodeKindError wraps ErrInvalidNodeKind.
	InvalidNodeKindError struct {
		Value NodeKind
	}

	// InvalidLogLevelError wraps ErrInvalidLogLevel.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidNodeError reports a node entry that cannot be built. It wraps
	// ErrInvalidNode.
	InvalidNodeError struct {
		Name   string
		Reason string
	}

	// Config is the root configuration.
	Config struct {
		// Shell is the default shell binary.
		Shell string `json:"shell" mapstructure:"shell"`
		// LogLevel is the minimum level of operational logs.
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`
		// ScriptExtension is the temporary script file extension.
		ScriptExtension string `json:"script_extension" mapstructure:"script_extension"`
		// Virtualenvs is the installation catalog (name -> home).
		Virtualenvs map[string]string `json:"virtualenvs" mapstructure:"virtualenvs"`
		// Nodes are the named build nodes.
		Nodes map[string]NodeConfig `json:"nodes" mapstructure:"nodes"`
		// Agent configures `pystep agent`.
		Agent AgentConfig `json:"agent" mapstructure:"agent"`
	}

	// NodeConfig describes one build node.
	NodeConfig struct {
		Kind                  NodeKind          `json:"kind" mapstructure:"kind"`
		Address               string            `json:"address" mapstructure:"address"`
		User                  string            `json:"user" mapstructure:"user"`
		Token                 string            `json:"token" mapstructure:"token"`
		KnownHosts            string            `json:"known_hosts" mapstructure:"known_hosts"`
		InsecureIgnoreHostKey bool              `json:"insecure_ignore_host_key" mapstructure:"insecure_ignore_host_key"`
		Root                  string            `json:"root" mapstructure:"root"`
		Shell                 string            `json:"shell" mapstructure:"shell"`
		ToolHomes             map[string]string `json:"tool_homes" mapstructure:"tool_homes"`
	}

	// AgentConfig configures the worker agent.
	AgentConfig struct {
		Listen  string `json:"listen" mapstructure:"listen"`
		Token   string `json:"token" mapstructure:"token"`
		Root    string `json:"root" mapstructure:"root"`
		Shell   string `json:"shell" mapstructure:"shell"`
		HostKey string `json:"host_key" mapstructure:"host_key"`
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Shell:           shell.DefaultShell,
		LogLevel:        LogLevelInfo,
		ScriptExtension: buildstep.DefaultScriptExtension,
		Virtualenvs:     map[string]string{},
		Nodes:           map[string]NodeConfig{},
		Agent: AgentConfig{
			Listen: agent.DefaultListen,
			Shell:  agent.DefaultShell,
		},
	}
}

func (e *InvalidNodeKindError) Error() string {
	return fmt.Sprintf("invalid node kind %q (valid: local, virtual, ssh)", e.Value)
}

func (e *InvalidNodeKindError) Unwrap() error { return ErrInvalidNodeKind }

func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

func (e *InvalidNodeError) Error() string {
	return fmt.Sprintf("node %q: %s", e.Name, e.Reason)
}

func (e *InvalidNodeError) Unwrap() error { return ErrInvalidNode }

// Validate returns an error if the kind is not recognized.
func (k NodeKind) Validate() error {
	switch k {
	case NodeKindLocal, NodeKindVirtual, NodeKindSSH:
		return nil
	default:
		return &InvalidNodeKindError{Value: k}
	}
}

// Validate returns an error if the level is not recognized. The empty level
// means info.
func (l LogLevel) Validate() error {
	switch l {
	case "", LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

// Validate checks the constraints the schema does not express.
func (n NodeConfig) Validate(name string) error {
	if err := n.Kind.Validate(); err != nil {
		return fmt.Errorf("node %q: %w", name, err)
	}
	if n.Kind != NodeKindSSH {
		return nil
	}
	if strings.TrimSpace(n.Address) == "" {
		return &InvalidNodeError{Name: name, Reason: "ssh nodes require an address"}
	}
	if n.KnownHosts == "" && !n.InsecureIgnoreHostKey {
		return &InvalidNodeError{Name: name, Reason: "ssh nodes require known_hosts or insecure_ignore_host_key"}
	}
	return nil
}

// Validate checks every field and node entry, reporting all problems.
func (c *Config) Validate() error {
	var errs []error
	if err := c.LogLevel.Validate(); err != nil {
		errs = append(errs, err)
	}
	for _, name := range c.NodeNames() {
		if err := c.Nodes[name].Validate(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
