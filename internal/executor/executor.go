// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/invowk/pystep/internal/buildlog"
	"github.com/invowk/pystep/internal/environ"
	"github.com/invowk/pystep/internal/node"
	"github.com/invowk/pystep/internal/shell"
	"github.com/invowk/pystep/pkg/buildstep"
)

const (
	// StateIdle is the state before anything was done.
	StateIdle State = iota
	// StateScriptCreated means the script file exists on the node.
	StateScriptCreated
	// StateEnvironmentComposed means the child environment is final.
	StateEnvironmentComposed
	// StateLaunched means the process was handed to the node.
	StateLaunched
	// StateCompleted means the process exited and was classified.
	StateCompleted
)

const (
	// DefaultCleanupTimeout bounds script deletion, which also runs after
	// cancellation.
	DefaultCleanupTimeout = 30 * time.Second

	// Fatal marker messages written to the listener.
	msgScriptCreation = "Unable to produce a script file"
	msgEnvironment    = "Unable to set up the build environment"
	msgLaunch         = "Command execution failed"
	msgCleanup        = "Unable to delete script file"
)

type (
	// State is the furthest point an execution reached.
	State int

	// Result is the outcome of one execution.
	Result struct {
		// ExitCode is the process exit code, or node.ExitCodeUnknown when no
		// exit code was obtained.
		ExitCode int
		// Succeeded is the overall verdict of the step.
		Succeeded bool
		// State is the furthest state reached.
		State State
		// ScriptPath is the script location on the node, if it was created.
		ScriptPath string
		// Err is the *StageError that made the step fail, if any.
		Err error
		// CleanupErr is the script deletion failure, if any. It never
		// affects Succeeded.
		CleanupErr error
	}

	// Executor runs one configured build step. It holds no per-execution
	// state, so one Executor may run concurrently for several builds.
	Executor struct {
		step           buildstep.Config
		setup          environ.SetupStep
		shells         shell.Resolver
		extension      string
		cleanupTimeout time.Duration
		logger         *log.Logger
	}

	// Option configures an Executor.
	Option func(*Executor)
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScriptCreated:
		return "script-created"
	case StateEnvironmentComposed:
		return "environment-composed"
	case StateLaunched:
		return "launched"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// WithSetup sets the environment setup step.
func WithSetup(setup environ.SetupStep) Option {
	return func(e *Executor) { e.setup = setup }
}

// WithShellResolver sets how the shell binary is chosen per node.
func WithShellResolver(r shell.Resolver) Option {
	return func(e *Executor) { e.shells = r }
}

// WithScriptExtension overrides the script file extension.
func WithScriptExtension(ext string) Option {
	return func(e *Executor) {
		if ext != "" {
			e.extension = ext
		}
	}
}

// WithCleanupTimeout overrides DefaultCleanupTimeout.
func WithCleanupTimeout(d time.Duration) Option {
	return func(e *Executor) { e.cleanupTimeout = d }
}

// WithLogger sets the operational logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// New creates an Executor for step.
func New(step buildstep.Config, opts ...Option) *Executor {
	e := &Executor{
		step:           step,
		setup:          environ.NoSetup,
		shells:         shell.Registry{},
		extension:      buildstep.DefaultScriptExtension,
		cleanupTimeout: DefaultCleanupTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.NewWithOptions(io.Discard, log.Options{Prefix: "executor"})
	}
	return e
}

// Step returns the configured build step.
func (e *Executor) Step() buildstep.Config { return e.step }

// Perform runs the step and returns its verdict. The error is non-nil only
// when ctx was cancelled, in which case it wraps ErrInterrupted.
func (e *Executor) Perform(ctx context.Context, b Build, l buildlog.Listener) (bool, error) {
	res, err := e.Execute(ctx, b, l)
	return res.Succeeded, err
}

// Execute runs the step on the build node. Stage failures are reported to l
// and recorded in the Result; only cancellation is returned as an error. The
// script file is deleted before Execute returns whenever it was created.
func (e *Executor) Execute(ctx context.Context, b Build, l buildlog.Listener) (res Result, err error) {
	res = Result{ExitCode: node.ExitCodeUnknown, State: StateIdle}
	n := b.Node()
	workspace := b.Workspace()

	script, createErr := n.WriteTempFile(ctx, workspace, buildstep.ScriptPrefix, e.extension, e.step.Contents())
	if createErr != nil {
		if ctx.Err() != nil {
			return res, interrupted(ctx)
		}
		res.Err = e.fail(l, msgScriptCreation, &StageError{Stage: StageScript, Err: createErr})
		return res, nil
	}
	res.State = StateScriptCreated
	res.ScriptPath = script
	e.logger.Debug("script created", "node", n.Name(), "path", script)

	defer func() {
		res.CleanupErr = e.cleanup(ctx, n, script, l)
	}()

	env, envErr := e.compose(ctx, b, n, workspace, l)
	if envErr != nil {
		if ctx.Err() != nil {
			return res, interrupted(ctx)
		}
		stageErr := &StageError{Stage: StageEnvironment, Err: envErr}
		if errors.Is(envErr, environ.ErrSetupRejected) {
			l.Diagnostic(stageErr)
			res.Err = stageErr
		} else {
			res.Err = e.fail(l, msgEnvironment, stageErr)
		}
		return res, nil
	}
	res.State = StateEnvironmentComposed

	argv, argvErr := shell.BuildArgv(ctx, e.shells, script, e.step.IgnoreExitCode(), n)
	if argvErr != nil {
		if ctx.Err() != nil {
			return res, interrupted(ctx)
		}
		res.Err = e.fail(l, msgLaunch, &StageError{Stage: StageLaunch, Err: argvErr})
		return res, nil
	}

	res.State = StateLaunched
	e.logger.Debug("launching", "node", n.Name(), "argv", argv, "dir", workspace)
	code, launchErr := n.Launch(ctx, node.LaunchSpec{
		Argv:   argv,
		Env:    env.Slice(),
		Dir:    workspace,
		Stdout: l,
		Stderr: l,
	})
	if ctx.Err() != nil {
		return res, interrupted(ctx)
	}
	if launchErr != nil {
		res.Err = e.fail(l, msgLaunch, &StageError{Stage: StageLaunch, Err: launchErr})
		return res, nil
	}

	res.State = StateCompleted
	res.ExitCode = code
	res.Succeeded = e.step.Succeeded(code)
	e.logger.Debug("completed", "node", n.Name(), "exit", code, "succeeded", res.Succeeded)
	if !res.Succeeded {
		l.Diagnostic(fmt.Errorf("build step exited with code %d", code))
	}
	return res, nil
}

func (e *Executor) compose(ctx context.Context, b Build, n node.Node, workspace string, l buildlog.Listener) (*environ.Env, error) {
	ambient, err := b.Environment(ctx)
	if err != nil {
		return nil, err
	}
	return environ.Compose(ctx, ambient, b.Variables(), e.setup, environ.SetupContext{
		Node:      n,
		Workspace: workspace,
		Listener:  l,
	})
}

// cleanup deletes the script even when ctx is already cancelled.
func (e *Executor) cleanup(ctx context.Context, n node.Node, script string, l buildlog.Listener) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cleanupTimeout)
	defer cancel()

	if err := n.Delete(cleanupCtx, script); err != nil {
		return e.fail(l, msgCleanup+" "+script, &StageError{Stage: StageCleanup, Err: err})
	}
	e.logger.Debug("script deleted", "node", n.Name(), "path", script)
	return nil
}

// fail reports err as a diagnostic followed by a fatal marker with details.
func (e *Executor) fail(l buildlog.Listener, msg string, err error) error {
	l.Diagnostic(err)
	_, _ = fmt.Fprintln(l.FatalError(msg), err)
	return err
}

func interrupted(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrInterrupted, context.Cause(ctx))
}
