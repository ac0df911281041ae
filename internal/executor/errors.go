// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"errors"
	"fmt"
)

const (
	// StageScript is script materialization.
	StageScript Stage = "script"
	// StageEnvironment is environment composition and setup.
	StageEnvironment Stage = "environment"
	// StageLaunch is shell resolution, process launch and wait.
	StageLaunch Stage = "launch"
	// StageCleanup is script deletion.
	StageCleanup Stage = "cleanup"
)

var (
	// ErrScriptCreation means the script file could not be written.
	ErrScriptCreation = errors.New("unable to produce a script file")
	// ErrEnvironmentSetup means the environment could not be composed or
	// the setup step rejected the build.
	ErrEnvironmentSetup = errors.New("environment setup failed")
	// ErrLaunch means the process could not be run to completion.
	ErrLaunch = errors.New("command execution failed")
	// ErrCleanup means the script file could not be deleted.
	ErrCleanup = errors.New("unable to delete script file")
	// ErrInterrupted is returned when the build step was cancelled.
	ErrInterrupted = errors.New("build step interrupted")
)

type (
	// Stage names the part of an execution an error occurred in.
	Stage string

	// StageError is a failure of one execution stage. It matches both the
	// stage sentinel and the underlying cause with errors.Is.
	StageError struct {
		Stage Stage
		Err   error
	}
)

// Sentinel returns the sentinel error of the stage.
func (s Stage) Sentinel() error {
	switch s {
	case StageScript:
		return ErrScriptCreation
	case StageEnvironment:
		return ErrEnvironmentSetup
	case StageLaunch:
		return ErrLaunch
	case StageCleanup:
		return ErrCleanup
	default:
		return nil
	}
}

// Error implements the error interface.
func (e *StageError) Error() string {
	if sentinel := e.Stage.Sentinel(); sentinel != nil {
		return fmt.Sprintf("%v: %v", sentinel, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the stage sentinel and the cause.
func (e *StageError) Unwrap() []error {
	if sentinel := e.Stage.Sentinel(); sentinel != nil {
		return []error{sentinel, e.Err}
	}
	return []error{e.Err}
}
