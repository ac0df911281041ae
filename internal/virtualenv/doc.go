// SPDX-License-Identifier: MPL-2.0

// Package virtualenv resolves Python virtual environment installations for
// a node and an environment, and activates them by mutating environment
// variables.
//
// Resolution is a pipeline of value transforms: an Installation is first
// translated for a node (ForNode), then has variables in its home expanded
// (ForEnvironment). Each stage returns a new Installation. Apply is the only
// operation with an effect, and it only touches the environment it is given.
package virtualenv
