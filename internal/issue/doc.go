// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and the Markdown troubleshooting
// pages shown by the pystep CLI when a build step cannot run.
package issue
