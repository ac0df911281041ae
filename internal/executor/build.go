// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/invowk/pystep/internal/environ"
	"github.com/invowk/pystep/internal/node"
)

const (
	// EnvWorkspace holds the workspace directory.
	EnvWorkspace = "WORKSPACE"
	// EnvBuildID holds the build identifier.
	EnvBuildID = "BUILD_ID"
	// EnvNodeName holds the name of the build node.
	EnvNodeName = "NODE_NAME"
)

type (
	// Build is the orchestrator's view of the build a step belongs to.
	Build interface {
		// Node is where the step runs.
		Node() node.Node
		// Workspace is the working directory on the node.
		Workspace() string
		// Environment is the ambient build environment.
		Environment(ctx context.Context) (*environ.Env, error)
		// Variables are build parameters (e.g. matrix axis values).
		Variables() *environ.Env
	}

	// BuildInfo is the default Build. Its ambient environment is the node's
	// own environment (or an explicit base) plus WORKSPACE, BUILD_ID and
	// NODE_NAME.
	BuildInfo struct {
		id        string
		node      node.Node
		workspace string
		base      *environ.Env
		variables *environ.Env
	}
)

// NewBuild describes a build on n with the given workspace. A random build
// ID is assigned.
func NewBuild(n node.Node, workspace string, variables *environ.Env) *BuildInfo {
	return &BuildInfo{
		id:        uuid.NewString(),
		node:      n,
		workspace: workspace,
		variables: variables.Clone(),
	}
}

// WithID returns a copy with the given build ID.
func (b *BuildInfo) WithID(id string) *BuildInfo {
	c := *b
	c.id = id
	return &c
}

// WithBaseEnv returns a copy whose ambient environment starts from base
// instead of the node environment.
func (b *BuildInfo) WithBaseEnv(base *environ.Env) *BuildInfo {
	c := *b
	c.base = base.Clone()
	return &c
}

// ID returns the build identifier.
func (b *BuildInfo) ID() string { return b.id }

// Node returns the build node.
func (b *BuildInfo) Node() node.Node { return b.node }

// Workspace returns the workspace, defaulting to the node root.
func (b *BuildInfo) Workspace() string {
	if b.workspace == "" && b.node != nil {
		return b.node.Root()
	}
	return b.workspace
}

// Variables returns a copy of the build variables.
func (b *BuildInfo) Variables() *environ.Env { return b.variables.Clone() }

// Environment returns the ambient build environment.
func (b *BuildInfo) Environment(ctx context.Context) (*environ.Env, error) {
	var env *environ.Env
	if b.base != nil {
		env = b.base.Clone()
	} else {
		entries, err := b.node.Environment(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read environment of node %s: %w", b.node.Name(), err)
		}
		env = environ.FromSlice(entries)
	}

	env.Set(EnvWorkspace, b.Workspace())
	env.Set(EnvBuildID, b.id)
	env.Set(EnvNodeName, b.node.Name())
	return env, nil
}
