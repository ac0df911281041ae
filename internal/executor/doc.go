// SPDX-License-Identifier: MPL-2.0

// Package executor runs one build step: it materializes the step's command
// as a script on the build node, composes the child environment, launches
// the script through a shell and classifies the exit code. The script file
// is deleted on every path out of Execute, including cancellation.
package executor
