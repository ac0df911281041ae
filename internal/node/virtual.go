// SPDX-License-Identifier: MPL-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// syntaxErrorExitCode matches what POSIX shells return for unparsable scripts.
const syntaxErrorExitCode = 2

// Virtual is a local node whose scripts run in the embedded mvdan/sh
// interpreter instead of a host shell binary. The shell path in argv is
// ignored; its single-letter options (-x, -e, ...) become interpreter options.
// External programs invoked by the script are still resolved through PATH.
type Virtual struct {
	Local
}

// NewVirtual creates a virtual node rooted at root.
func NewVirtual(root string) *Virtual {
	return &Virtual{Local: Local{NodeName: "virtual", RootDir: root}}
}

// Name returns the node name.
func (n *Virtual) Name() string {
	if n.NodeName != "" {
		return n.NodeName
	}
	return "virtual"
}

// Launch interprets the script named by the last element of argv.
func (n *Virtual) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	opts, scriptPath, err := splitShellArgv(spec.Argv)
	if err != nil {
		return ExitCodeUnknown, err
	}

	stdout, stderr := spec.Stdout, spec.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	f, err := os.Open(scriptPath)
	if err != nil {
		return ExitCodeUnknown, fmt.Errorf("failed to open script: %w", err)
	}
	prog, err := syntax.NewParser().Parse(f, scriptPath)
	_ = f.Close()
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return syntaxErrorExitCode, nil
	}

	runnerOpts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(spec.Env...)),
		interp.StdIO(nil, stdout, stderr),
		interp.Params(opts...),
	}
	if spec.Dir != "" {
		runnerOpts = append(runnerOpts, interp.Dir(spec.Dir))
	}

	runner, err := interp.New(runnerOpts...)
	if err != nil {
		return ExitCodeUnknown, fmt.Errorf("failed to create interpreter: %w", err)
	}

	err = runner.Run(ctx, prog)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ExitCodeUnknown, ctxErr
	}
	if err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return int(status), nil
		}
		return ExitCodeUnknown, fmt.Errorf("script execution failed: %w", err)
	}
	return 0, nil
}

// splitShellArgv takes [shell, -opts..., script] apart. Combined option
// groups such as -xe are split into one option per letter.
func splitShellArgv(argv []string) ([]string, string, error) {
	if len(argv) < 2 {
		return nil, "", fmt.Errorf("expected shell and script path, got %q", argv)
	}

	var opts []string
	for _, arg := range argv[1 : len(argv)-1] {
		if len(arg) < 2 || arg[0] != '-' {
			return nil, "", fmt.Errorf("unsupported shell argument %q", arg)
		}
		for _, letter := range strings.Split(arg[1:], "") {
			opts = append(opts, "-"+letter)
		}
	}
	return opts, argv[len(argv)-1], nil
}
