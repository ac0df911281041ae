// SPDX-License-Identifier: MPL-2.0

//go:build windows

package agent

import (
	"fmt"

	"github.com/charmbracelet/ssh"
)

// runInteractiveShell is unsupported on Windows, which has no PTY support
// in the agent.
func (s *Server) runInteractiveShell(sess ssh.Session) {
	_, _ = fmt.Fprintln(sess.Stderr(), "agent: interactive sessions are not supported on Windows")
	_ = sess.Exit(1) //nolint:errcheck // Session teardown; error non-critical
}
