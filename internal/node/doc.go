// SPDX-License-Identifier: MPL-2.0

// Package node abstracts the machine a build step runs on.
//
// A Node writes and deletes files in its own filesystem and launches
// processes with an explicit environment and working directory. Three
// implementations are provided: Local (host filesystem and os/exec),
// Virtual (host filesystem and the embedded mvdan/sh interpreter) and SSH
// (a remote worker reached over SSH, usually running `pystep agent`).
package node
