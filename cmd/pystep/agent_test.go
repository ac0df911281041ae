// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"testing"

	"github.com/invowk/pystep/internal/agent"
)

func TestAgentConfig_FlagsOverride(t *testing.T) {
	t.Parallel()

	cmd := newAgentCommand(NewApp(Dependencies{}))
	opts := agentOptions{listen: "0.0.0.0:2200", token: "flag-token"}
	if err := cmd.Flags().Set("listen", opts.listen); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("token", opts.token); err != nil {
		t.Fatal(err)
	}

	base := agent.DefaultConfig()
	base.Root = "/srv/from-config"
	got := agentConfig(base, cmd, opts)

	if got.Listen != "0.0.0.0:2200" || got.Token != "flag-token" {
		t.Errorf("flags not applied: %+v", got)
	}
	if got.Root != "/srv/from-config" {
		t.Errorf("unset flag overrode config: Root = %q", got.Root)
	}
	if got.Shell != agent.DefaultShell {
		t.Errorf("Shell = %q, want default", got.Shell)
	}
}
