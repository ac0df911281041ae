// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"
)

type Id int

const (
	ScriptCreationFailedId Id = iota + 1
	EnvironmentSetupFailedId
	InstallationNotFoundId
	NodeUnavailableId
	LaunchFailedId
	CleanupFailedId
	ConfigLoadFailedId
	ShellNotFoundId
	BuildInterruptedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Markdown returns the page source including the "See also" links.
func (i *Issue) Markdown() string {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also:\n")
		for _, link := range append(slices.Clone(i.docLinks), i.extLinks...) {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return md.String()
}

// Render renders the page with glamour using the given style ("dark",
// "light", "notty" or a JSON style path).
func (i *Issue) Render(stylePath string) (string, error) {
	return render(i.Markdown(), stylePath)
}

var (
	render = glamour.Render

	scriptCreationFailedIssue = &Issue{
		id: ScriptCreationFailedId,
		mdMsg: `
# Unable to produce a script file!

The build step writes its commands to a temporary script on the build node
before launching it. That file could not be created.

## Things you can try:
- Check that the node's temporary directory exists and is writable
- Check free disk space on the node
- For remote nodes, make sure the agent's root directory is writable:
~~~
$ pystep agent --root /srv/builds
~~~`,
	}

	environmentSetupFailedIssue = &Issue{
		id: EnvironmentSetupFailedId,
		mdMsg: `
# Unable to set up the build environment!

The environment for the step could not be prepared. This usually means
the virtualenv home could not be resolved on the node, or the variables
file could not be read.

## Things you can try:
- Run with --verbose to see which setup step failed
- Check the installation's home path in your configuration
- Use 'pystep config show' to inspect the merged settings`,
	}

	installationNotFoundIssue = &Issue{
		id: InstallationNotFoundId,
		mdMsg: `
# Virtualenv installation not found!

The step names a virtualenv installation that is not configured.
Installation names are case-insensitive.

## Things you can try:
- List configured installations:
~~~
$ pystep config show
~~~

- Add the installation to your config.cue:
~~~cue
virtualenvs: {
  py311: "/opt/venvs/py311"
}
~~~

- Or point at a home directly with --home`,
	}

	nodeUnavailableIssue = &Issue{
		id: NodeUnavailableId,
		mdMsg: `
# Build node unavailable!

The node selected for the step is offline or unreachable.

## Things you can try:
- Check that the agent is running on the remote host:
~~~
$ pystep agent --listen 0.0.0.0:2222
~~~

- Verify the node address and token in your configuration
- Check the known_hosts file or host key policy for SSH nodes`,
	}

	launchFailedIssue = &Issue{
		id: LaunchFailedId,
		mdMsg: `
# Command execution failed!

The shell process for the step could not be started, or its I/O broke
down while it ran.

## Things you can try:
- Check that the configured shell exists on the node
- Run with --verbose to see the launch error
- Use --dry-run to print the script and command line that would run`,
	}

	cleanupFailedIssue = &Issue{
		id: CleanupFailedId,
		mdMsg: `
# Unable to delete script file!

The step finished but its temporary script could not be removed from the
node. The build result is not affected.

## Things you can try:
- Remove the leftover file by hand; its path is printed above
- Check permissions on the node's temporary directory`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file could not be read or did not validate against the
schema.

## Search locations (in order of precedence):
1. The path given with --config
2. The pystep directory under your user configuration directory
3. config.cue in the current directory

## Example configuration:
~~~cue
shell: "bash"
log_level: "info"
virtualenvs: {
  py311: "/opt/venvs/py311"
}
nodes: {
  builder: {
    kind: "ssh"
    address: "builder.internal:2222"
    token: "..."
    known_hosts: "~/.ssh/known_hosts"
  }
}
~~~`,
	}

	shellNotFoundIssue = &Issue{
		id: ShellNotFoundId,
		mdMsg: `
# Shell not found!

No shell is configured for the selected node.

## Things you can try:
- Set a default shell in your configuration:
~~~cue
shell: "sh"
~~~

- Or set one for the node with 'nodes.<name>.shell'`,
	}

	buildInterruptedIssue = &Issue{
		id: BuildInterruptedId,
		mdMsg: `
# Build interrupted!

The step was cancelled while it ran. The shell process was killed and the
temporary script removed.

## Things you can try:
- Re-run the step
- Raise the timeout with --timeout if the step was cut short`,
	}

	ordered = []*Issue{
		scriptCreationFailedIssue,
		environmentSetupFailedIssue,
		installationNotFoundIssue,
		nodeUnavailableIssue,
		launchFailedIssue,
		cleanupFailedIssue,
		configLoadFailedIssue,
		shellNotFoundIssue,
		buildInterruptedIssue,
	}

	issues = func() map[Id]*Issue {
		m := make(map[Id]*Issue, len(ordered))
		for _, is := range ordered {
			m[is.Id()] = is
		}
		return m
	}()
)

// Values returns every catalog page ordered by Id.
func Values() []*Issue {
	return slices.Clone(ordered)
}

func Get(id Id) *Issue {
	return issues[id]
}
