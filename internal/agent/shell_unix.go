// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package agent

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/charmbracelet/ssh"
	"github.com/creack/pty"
)

// runInteractiveShell attaches the configured shell to a pseudo-terminal.
// Sessions that did not request a PTY are refused.
func (s *Server) runInteractiveShell(sess ssh.Session) {
	ptyReq, winCh, isPty := sess.Pty()
	if !isPty {
		_, _ = fmt.Fprintln(sess.Stderr(), "agent: interactive sessions require a PTY")
		_ = sess.Exit(1) //nolint:errcheck // Session teardown; error non-critical
		return
	}

	cmd := exec.CommandContext(sess.Context(), s.cfg.Shell)
	cmd.Dir = s.cfg.Root
	cmd.Env = append(os.Environ(), sess.Environ()...)
	cmd.Env = append(cmd.Env, "TERM="+ptyReq.Term)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(ptyReq.Window.Height), //nolint:gosec // terminal sizes fit in uint16
		Cols: uint16(ptyReq.Window.Width),  //nolint:gosec // terminal sizes fit in uint16
	})
	if err != nil {
		_, _ = fmt.Fprintf(sess.Stderr(), "agent: failed to start shell: %v\n", err)
		_ = sess.Exit(1) //nolint:errcheck // Session teardown; error non-critical
		return
	}
	defer func() { _ = f.Close() }()

	s.logger.Info("interactive shell opened", "user", sess.User(), "remote", sess.RemoteAddr())

	go func() {
		for win := range winCh {
			_ = pty.Setsize(f, &pty.Winsize{Rows: uint16(win.Height), Cols: uint16(win.Width)}) //nolint:gosec // terminal sizes fit in uint16
		}
	}()
	go func() {
		_, _ = io.Copy(f, sess) //nolint:errcheck // I/O copy; errors are non-recoverable
	}()
	_, _ = io.Copy(sess, f) //nolint:errcheck // I/O copy; errors are non-recoverable

	_ = sess.Exit(exitStatus(cmd.Wait(), false)) //nolint:errcheck // Session teardown; error non-critical
}
