// SPDX-License-Identifier: MPL-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"time"
)

// DefaultWaitDelay bounds how long Launch waits for output pipes to drain
// after the process has exited or been killed.
const DefaultWaitDelay = 5 * time.Second

// Local is the machine pystep itself runs on.
type Local struct {
	// NodeName overrides the default name "local".
	NodeName string
	// RootDir is the base for node-relative paths; defaults to the working directory.
	RootDir string
	// ToolHomes maps tool names to node-specific install locations.
	ToolHomes map[string]string
	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration
}

// NewLocal creates a local node rooted at root.
func NewLocal(root string) *Local {
	return &Local{RootDir: root}
}

// Name returns the node name.
func (n *Local) Name() string {
	if n.NodeName != "" {
		return n.NodeName
	}
	return "local"
}

// OS returns the host OS family.
func (n *Local) OS() OS { return hostOS() }

// Root returns the node root directory.
func (n *Local) Root() string {
	if n.RootDir != "" {
		return n.RootDir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// Online always succeeds unless ctx is done: the local machine is reachable
// by definition.
func (n *Local) Online(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &UnavailableError{Node: n.Name(), Cause: err}
	}
	return nil
}

// Environment returns the environment of the current process.
func (n *Local) Environment(context.Context) ([]string, error) {
	return os.Environ(), nil
}

// ToolHome returns a configured tool location.
func (n *Local) ToolHome(name string) (string, bool) {
	home, ok := n.ToolHomes[name]
	return home, ok
}

// WriteTempFile creates the file with os.CreateTemp.
func (n *Local) WriteTempFile(ctx context.Context, dir, prefix, ext, content string) (string, error) {
	return writeLocalTempFile(ctx, dir, prefix, ext, content)
}

// Delete removes the file.
func (n *Local) Delete(_ context.Context, path string) error {
	return os.Remove(path)
}

// Launch runs argv with os/exec.
func (n *Local) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	if len(spec.Argv) == 0 {
		return ExitCodeUnknown, errors.New("empty command line")
	}

	cmd := exec.CommandContext(ctx, spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	cmd.WaitDelay = n.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ExitCodeUnknown, ctxErr
	}
	return exitCodeFromError(err)
}

func writeLocalTempFile(ctx context.Context, dir, prefix, ext, content string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.CreateTemp(dir, prefix+"*"+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	path := f.Name()

	if _, err := f.WriteString(content); err != nil {
		_ = f.Close()
		_ = os.Remove(path) // Best-effort cleanup on error path
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path) // Best-effort cleanup on error path
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}

	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return path, nil
}

// exitCodeFromError maps the error of a finished process to its exit code.
// Errors other than a non-zero exit are returned as launch failures.
func exitCodeFromError(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return ExitCodeUnknown, err
}

func hostOS() OS {
	if goruntime.GOOS == "windows" {
		return OSWindows
	}
	return OSUnix
}
