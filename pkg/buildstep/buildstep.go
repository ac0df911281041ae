// SPDX-License-Identifier: MPL-2.0

package buildstep

const (
	// DefaultScriptExtension is the file extension of materialized scripts.
	DefaultScriptExtension = ".sh"
	// ScriptPrefix is the temp file name prefix of materialized scripts.
	ScriptPrefix = "pystep"
	// SuccessSentinel is appended as the last line of every script.
	SuccessSentinel = "exit 0"
)

// Config is the immutable configuration of one build step.
// The zero value is a step with an empty command that honours exit codes.
type Config struct {
	ignoreExitCode bool
	command        string
}

// New creates a step configuration. The command is stored with Unix line
// endings, so Command never contains a CR LF pair.
func New(ignoreExitCode bool, command string) Config {
	return Config{
		ignoreExitCode: ignoreExitCode,
		command:        FixLineEndings(command),
	}
}

// IgnoreExitCode reports whether a non-zero exit code still counts as success.
func (c Config) IgnoreExitCode() bool { return c.ignoreExitCode }

// Command returns the normalized command body.
func (c Config) Command() string { return c.command }

// Contents returns the exact text written to the script file: the guarded,
// normalized command followed by the success sentinel line.
func (c Config) Contents() string {
	return GuardLeadingNonASCII(FixLineEndings(c.command)) + "\n" + SuccessSentinel
}

// Succeeded classifies an exit code for this step.
func (c Config) Succeeded(exitCode int) bool {
	return c.ignoreExitCode || exitCode == 0
}
