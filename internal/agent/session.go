// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
)

const (
	// exitCommandNotRunnable mirrors the shell convention for a command
	// that could not be started.
	exitCommandNotRunnable = 127
	// exitKilled is reported for a command terminated by SIGKILL.
	exitKilled = 128 + 9
)

// sessionMiddleware dispatches exec requests to runCommand and bare
// sessions to an interactive shell.
func (s *Server) sessionMiddleware() wish.Middleware {
	return func(next ssh.Handler) ssh.Handler {
		return func(sess ssh.Session) {
			if sess.RawCommand() == "" {
				s.runInteractiveShell(sess)
			} else {
				s.runCommand(sess)
			}
		}
	}
}

// runCommand executes the raw command line through the configured shell.
// A KILL, TERM or INT signal from the client terminates the process.
func (s *Server) runCommand(sess ssh.Session) {
	signals := make(chan ssh.Signal, 1)
	sess.Signals(signals)
	defer sess.Signals(nil)

	ctx, cancel := context.WithCancel(sess.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, s.cfg.Shell, "-c", sess.RawCommand())
	cmd.Dir = s.cfg.Root
	cmd.Env = append(os.Environ(), sess.Environ()...)
	cmd.Stdin = sess
	cmd.Stdout = sess
	cmd.Stderr = sess.Stderr()
	cmd.WaitDelay = s.cfg.WaitDelay

	s.logger.Debug("exec", "user", sess.User(), "command", sess.RawCommand())

	if err := cmd.Start(); err != nil {
		_, _ = fmt.Fprintf(sess.Stderr(), "agent: %v\n", err)
		_ = sess.Exit(exitCommandNotRunnable) //nolint:errcheck // Session teardown; error non-critical
		return
	}

	go func() {
		for {
			select {
			case sig := <-signals:
				if sig == ssh.SIGKILL || sig == ssh.SIGTERM || sig == ssh.SIGINT {
					s.logger.Debug("terminating command", "signal", sig)
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	code := exitStatus(cmd.Wait(), ctx.Err() != nil)
	_ = sess.Exit(code) //nolint:errcheck // Session teardown; error non-critical
}

// exitStatus converts a Wait error into an SSH exit status.
func exitStatus(err error, killed bool) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return exitKilled
	}
	if killed {
		return exitKilled
	}
	return 1
}
