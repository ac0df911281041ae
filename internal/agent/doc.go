// SPDX-License-Identifier: MPL-2.0

// Package agent implements the worker-side SSH server that remote build
// steps are executed through.
//
// The agent accepts password authentication with a shared token only. Each
// exec request runs through the configured shell with `-c` in the agent root
// directory. A session without a command gets an interactive shell on a
// pseudo-terminal, for operators debugging a worker by hand.
package agent
