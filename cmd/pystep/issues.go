// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/invowk/pystep/internal/issue"
)

func newIssuesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "issues [ID]",
		Short: "List or show troubleshooting pages",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 0 {
				listIssues(app.stdout)
				return nil
			}
			return showIssue(app.stdout, args[0])
		},
	}
}

func listIssues(w io.Writer) {
	for _, is := range issue.Values() {
		fmt.Fprintf(w, "%s  %s\n", CmdStyle.Render(fmt.Sprintf("%2d", is.Id())), issueTitle(is))
	}
}

func showIssue(w io.Writer, arg string) error {
	id, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid issue id %q: %w", arg, err)
	}
	is := issue.Get(issue.Id(id))
	if is == nil {
		return fmt.Errorf("no issue with id %d; run 'pystep issues' to list them", id)
	}
	rendered, err := is.Render(glamourStyle)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, rendered)
	return err
}

// issueTitle is the first heading of the page without its trailing "!".
func issueTitle(is *issue.Issue) string {
	for line := range strings.SplitSeq(string(is.MarkdownMsg()), "\n") {
		if title, ok := strings.CutPrefix(line, "# "); ok {
			return strings.TrimSuffix(title, "!")
		}
	}
	return ""
}
