// SPDX-License-Identifier: MPL-2.0

// Package buildstep defines the configuration of a shell build step and the
// pure text transforms applied to its command body before it is written to a
// script file.
package buildstep
