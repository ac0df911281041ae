// SPDX-License-Identifier: MPL-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	// OSUnix is any POSIX node.
	OSUnix OS = "unix"
	// OSWindows is a Windows node.
	OSWindows OS = "windows"

	// ExitCodeUnknown is reported when a process could not be started or
	// did not report an exit status.
	ExitCodeUnknown = -1
)

// ErrUnavailable is the sentinel wrapped by UnavailableError.
var ErrUnavailable = errors.New("node is unavailable")

type (
	// OS identifies the operating system family of a node.
	OS string

	// Node is a machine a build step runs on. All paths are expressed in the
	// node's own filesystem.
	Node interface {
		// Name identifies the node in logs and configuration.
		Name() string
		// OS returns the node's operating system family.
		OS() OS
		// Root is the base directory node-relative paths are resolved against.
		Root() string
		// Online checks that the node can be reached.
		Online(ctx context.Context) error
		// Environment returns the node's own process environment as KEY=VALUE entries.
		Environment(ctx context.Context) ([]string, error)
		// WriteTempFile exclusively creates a uniquely named file
		// dir/prefix<random>ext holding content and returns its path.
		WriteTempFile(ctx context.Context, dir, prefix, ext, content string) (string, error)
		// Delete removes a file.
		Delete(ctx context.Context, path string) error
		// Launch runs a process and blocks until it exits. When ctx is
		// cancelled the process is terminated and ctx's error is returned.
		Launch(ctx context.Context, spec LaunchSpec) (int, error)
	}

	// ToolLocator is implemented by nodes that know node-specific install
	// locations for named tools.
	ToolLocator interface {
		ToolHome(name string) (string, bool)
	}

	// LaunchSpec describes a process to start on a node.
	LaunchSpec struct {
		// Argv is the program followed by its arguments.
		Argv []string
		// Env is the complete environment as KEY=VALUE entries.
		Env []string
		// Dir is the working directory.
		Dir string
		// Stdout and Stderr receive process output as it is produced.
		Stdout io.Writer
		Stderr io.Writer
	}

	// UnavailableError reports that a node could not be reached.
	UnavailableError struct {
		Node  string
		Cause error
	}
)

// PathSeparator returns the list separator used in PATH-like variables.
func (o OS) PathSeparator() string {
	if o == OSWindows {
		return ";"
	}
	return ":"
}

// FileSeparator returns the separator between path elements.
func (o OS) FileSeparator() string {
	if o == OSWindows {
		return `\`
	}
	return "/"
}

// String returns the OS name.
func (o OS) String() string { return string(o) }

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("node %q is unavailable", e.Node)
	}
	return fmt.Sprintf("node %q is unavailable: %v", e.Node, e.Cause)
}

// Unwrap returns ErrUnavailable and the cause.
func (e *UnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrUnavailable}
	}
	return []error{ErrUnavailable, e.Cause}
}
