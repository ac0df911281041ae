// SPDX-License-Identifier: MPL-2.0

// Package shell decides how a build script is invoked: which shell binary
// runs it on a given node, and with which tracing and fail-fast flags.
package shell
