// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the pystep command tree: running a single build step
// on a node, serving the worker agent, inspecting configuration and
// rendering troubleshooting pages.
package cmd
