package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tmuxorc/tmuxorc/internal/role"
)

// claudeInterfaceMarkers mirrors classify's own Step A marker set (§4.3).
// It is duplicated rather than imported because detecting "has the Claude
// REPL appeared yet" during spawn polling is a one-shot boolean check, not
// a pane-state classification — team.Coordinator takes it as an injected
// predicate precisely so C6 never depends on C3.
var claudeInterfaceMarkers = []string{
	"│ >", "assistant:", "Human:", "? for shortcuts",
	"Bypassing Permissions", "@anthropic-ai/claude-code", "╭─", "╰─",
}

func hasClaudeInterface(content string) bool {
	for _, marker := range claudeInterfaceMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}

func spawnCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "spawn",
		GroupID: GroupSpawn,
		Short:   "Spawn an orchestrator, PM, or generic agent",
	}
	cmd.AddCommand(spawnOrcCmd(), spawnPMCmd(), spawnAgentCmd())
	return cmd
}

func spawnOrcCmd() *cobra.Command {
	var profile, cwd string
	var noGUI bool
	cmd := &cobra.Command{
		Use:   "orc [session]",
		Short: "Spawn the human-facing orchestrator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			sess := args[0]
			t, err := app.Coordinator.SpawnOrchestrator(cmd.Context(), sess, cwd, profile, hasClaudeInterface)
			if err != nil {
				return err
			}
			emit(app, os.Stdout, t.String(), func() string { return fmt.Sprintf("spawned orchestrator at %s\n", t) })
			if noGUI {
				fmt.Fprintf(os.Stdout, "attach with: tmux attach -t %s\n", sess)
				return nil
			}
			attachCmd := fmt.Sprintf("tmux attach -t %s", sess)
			if err := launchInNewTerminal(attachCmd); err != nil {
				fmt.Fprintf(os.Stderr, "spawn orc: %v; attach with: tmux attach -t %s\n", err, sess)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&profile, "profile", "", "claude CLI profile name")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the new session")
	cmd.Flags().BoolVar(&noGUI, "no-gui", false, "launch in the current terminal instead of a new emulator window")
	return cmd
}

func spawnPMCmd() *cobra.Command {
	var extend, cwd string
	cmd := &cobra.Command{
		Use:   "pm [session]",
		Short: "Spawn the singleton project-manager agent for a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			sess := args[0]
			t, err := app.Coordinator.SpawnPM(cmd.Context(), sess, cwd, extend, hasClaudeInterface)
			if err != nil {
				return err
			}
			emit(app, os.Stdout, t.String(), func() string { return fmt.Sprintf("spawned PM at %s\n", t) })
			return nil
		},
	}
	cmd.Flags().StringVar(&extend, "extend-briefing", "", "text appended under '## Additional Instructions'")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the new session")
	return cmd
}

func spawnAgentCmd() *cobra.Command {
	var briefing, cwd, agentRole string
	cmd := &cobra.Command{
		Use:   "agent [session]",
		Short: "Spawn a generic role agent, appended as a new window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			sess := args[0]
			if !role.Valid(agentRole) {
				return fmt.Errorf("spawn agent: invalid role %q", agentRole)
			}
			t, err := app.Coordinator.SpawnAgent(cmd.Context(), agentRole, sess, cwd, briefing, hasClaudeInterface)
			if err != nil {
				return err
			}
			emit(app, os.Stdout, t.String(), func() string { return fmt.Sprintf("spawned %s at %s\n", agentRole, t) })
			return nil
		},
	}
	cmd.Flags().StringVar(&agentRole, "role", role.Developer, "agent role (see role package for the full table)")
	cmd.Flags().StringVar(&briefing, "briefing", "", "briefing text sent after the Claude interface is detected")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the new window")
	return cmd
}
