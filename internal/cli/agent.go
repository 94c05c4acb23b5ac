package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tmuxorc/tmuxorc/internal/role"
	"github.com/tmuxorc/tmuxorc/internal/style"
	"github.com/tmuxorc/tmuxorc/internal/target"
)

// terminalWidth reports the current terminal column count, falling back
// to 80 when stdout isn't a TTY (piped output, tests, --json mode).
func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agent",
		GroupID: GroupAgent,
		Short:   "List, message, and manage individual agents",
	}
	cmd.AddCommand(agentListCmd(), agentStatusCmd(), agentSendCmd(), agentKillCmd(), agentRestartCmd(), agentKillAllCmd())
	return cmd
}

func renderAgentTable(agents []target.Agent) string {
	targetWidth := 20
	if terminalWidth() >= 98 {
		targetWidth = 32 // room for session:window.pane without truncation
	}
	t := style.NewTable(
		style.Column{Name: "TARGET", Width: targetWidth},
		style.Column{Name: "ROLE", Width: 14},
		style.Column{Name: "STATE", Width: 16},
	)
	for _, a := range agents {
		t.AddRow(a.Target.String(), a.Role, stateBadge(a.State))
	}
	return t.Render()
}

func stateBadge(s target.AgentState) string {
	switch s {
	case target.StateActive:
		return "🟢 active"
	case target.StateIdle:
		return "🟡 idle"
	case target.StateFresh:
		return "✨ fresh"
	case target.StateMessageQueued:
		return "✉️ message_queued"
	case target.StateCrashed:
		return "🔴 crashed"
	case target.StateError:
		return "🔴 error"
	default:
		return "⚪ unknown"
	}
}

func agentListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every discovered agent (fast path, §4.2)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			agents, err := app.Cache.DiscoverAgents(cmd.Context())
			if err != nil {
				return err
			}
			emit(app, os.Stdout, agents, func() string { return renderAgentTable(agents) })
			return nil
		},
	}
	return cmd
}

func agentStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [target]",
		Short: "Show the last 5 lines of one agent's pane (no state classification)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			t, err := target.ParseTarget(args[0])
			if err != nil {
				return err
			}
			content, err := app.Driver.CapturePane(cmd.Context(), t, 100)
			if err != nil {
				return err
			}
			status := struct {
				Target string `json:"target"`
				Snippet string `json:"pane_snippet"`
			}{Target: t.String(), Snippet: lastLines(content, 5)}
			emit(app, os.Stdout, status, func() string {
				return fmt.Sprintf("%s\n%s\n", t, status.Snippet)
			})
			return nil
		},
	}
	return cmd
}

func lastLines(content string, n int) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func agentSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [target] [text]",
		Short: "Deliver a message into an agent's pane (§4.5)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			t, err := target.ParseTarget(args[0])
			if err != nil {
				return err
			}
			ok := app.Messaging.SendMessage(cmd.Context(), t, args[1])
			if !ok {
				return fmt.Errorf("agent send: delivery to %s failed", t)
			}
			emit(app, os.Stdout, map[string]bool{"sent": true}, func() string { return fmt.Sprintf("sent to %s\n", t) })
			return nil
		},
	}
	return cmd
}

func agentKillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill [target]",
		Short: "Kill a single agent's window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			t, err := target.ParseTarget(args[0])
			if err != nil {
				return err
			}
			if err := app.Cache.KillWindow(cmd.Context(), t); err != nil {
				return err
			}
			emit(app, os.Stdout, map[string]bool{"killed": true}, func() string { return fmt.Sprintf("killed %s\n", t) })
			return nil
		},
	}
	return cmd
}

func agentRestartCmd() *cobra.Command {
	var briefing, cwd, agentRole string
	cmd := &cobra.Command{
		Use:   "restart [target]",
		Short: "Kill and respawn an agent with the same role and briefing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			t, err := target.ParseTarget(args[0])
			if err != nil {
				return err
			}
			newT, err := app.Coordinator.RestartAgent(cmd.Context(), t, agentRole, cwd, briefing, hasClaudeInterface)
			if err != nil {
				return err
			}
			emit(app, os.Stdout, newT.String(), func() string { return fmt.Sprintf("restarted %s as %s\n", t, newT) })
			return nil
		},
	}
	cmd.Flags().StringVar(&agentRole, "role", role.Developer, "role to respawn as")
	cmd.Flags().StringVar(&briefing, "briefing", "", "briefing text sent to the respawned agent")
	cmd.Flags().StringVar(&cwd, "cwd", "", "working directory for the respawned window")
	return cmd
}

func agentKillAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill-all [session]",
		Short: "Kill every agent window in a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			if err := app.Coordinator.KillAll(cmd.Context(), args[0]); err != nil {
				return err
			}
			emit(app, os.Stdout, map[string]bool{"killed_all": true}, func() string { return fmt.Sprintf("killed all agents in %s\n", args[0]) })
			return nil
		},
	}
	return cmd
}
