// SPDX-License-Identifier: MPL-2.0

package environ

import (
	"context"
	"errors"
	"fmt"

	"github.com/invowk/pystep/internal/buildlog"
	"github.com/invowk/pystep/internal/node"
)

// ErrSetupRejected is returned by Compose when the setup step reports a fatal
// configuration problem by returning false.
var ErrSetupRejected = errors.New("environment setup rejected the build step")

type (
	// SetupContext carries what a setup step may need besides the environment.
	SetupContext struct {
		// Node is the node the step runs on.
		Node node.Node
		// Workspace is the build workspace on that node.
		Workspace string
		// Listener receives diagnostics.
		Listener buildlog.Listener
	}

	// SetupStep customizes the environment of one build step, for example by
	// activating a virtualenv. It mutates env in place. Returning false means
	// the build cannot proceed (the step is expected to have reported why);
	// a non-nil error is an I/O or cancellation failure.
	SetupStep interface {
		Setup(ctx context.Context, env *Env, sc SetupContext) (bool, error)
	}

	// SetupFunc adapts a function to SetupStep.
	SetupFunc func(ctx context.Context, env *Env, sc SetupContext) (bool, error)

	noSetup struct{}
)

// NoSetup is a SetupStep that leaves the environment untouched.
var NoSetup SetupStep = noSetup{}

// Setup calls f.
func (f SetupFunc) Setup(ctx context.Context, env *Env, sc SetupContext) (bool, error) {
	return f(ctx, env, sc)
}

func (noSetup) Setup(context.Context, *Env, SetupContext) (bool, error) { return true, nil }

// Compose builds the environment of a child process from three layers,
// applied in order:
//
//  1. the ambient build environment,
//  2. build variables (they override ambient values and are visible to setup),
//  3. mutations made by the setup step.
//
// The inputs are never modified. A nil setup behaves like NoSetup.
func Compose(ctx context.Context, ambient, variables *Env, setup SetupStep, sc SetupContext) (*Env, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	env := ambient.Clone()
	env.Merge(variables)

	if setup == nil {
		setup = NoSetup
	}
	ok, err := setup.Setup(ctx, env, sc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSetupRejected
	}
	return env, nil
}

// Steps chains setup steps; the first one that fails stops the chain.
func Steps(steps ...SetupStep) SetupStep {
	return SetupFunc(func(ctx context.Context, env *Env, sc SetupContext) (bool, error) {
		for i, s := range steps {
			ok, err := s.Setup(ctx, env, sc)
			if err != nil {
				return false, fmt.Errorf("setup step %d: %w", i+1, err)
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	})
}
