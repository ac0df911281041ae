// SPDX-License-Identifier: MPL-2.0

// Package buildlog provides the listener a build step reports to: a console
// implementation for the CLI and an in-memory recorder for tests.
package buildlog
