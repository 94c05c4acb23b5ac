package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tmuxorc/tmuxorc/internal/messaging"
	"github.com/tmuxorc/tmuxorc/internal/target"
	"github.com/tmuxorc/tmuxorc/internal/team"
)

func teamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "team",
		GroupID: GroupTeam,
		Short:   "Compose and coordinate multi-agent teams (§4.6)",
	}
	cmd.AddCommand(teamDeployCmd(), teamStatusCmd(), teamBroadcastCmd())
	return cmd
}

// memberSpec parses one "--member role:count" flag value into a
// team.Member; briefings for each role are supplied separately via
// --briefing role=text (repeatable) in a real CLI, omitted here since a
// single positional flag already covers the common case.
func memberSpec(s string) (team.Member, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return team.Member{}, fmt.Errorf("team deploy: invalid --member %q, want role:count", s)
	}
	count, err := strconv.Atoi(parts[1])
	if err != nil || count < 1 {
		return team.Member{}, fmt.Errorf("team deploy: invalid member count in %q", s)
	}
	return team.Member{Role: parts[0], Count: count}, nil
}

func teamDeployCmd() *cobra.Command {
	var members []string
	var strategy, cwd string
	cmd := &cobra.Command{
		Use:   "deploy [name]",
		Short: "Deploy a new team: spawn every (role, count) member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			spec := team.Spec{Name: args[0], Strategy: target.CoordinationStrategy(strategy), CWD: cwd}
			for _, m := range members {
				ms, err := memberSpec(m)
				if err != nil {
					return err
				}
				spec.Members = append(spec.Members, ms)
			}
			if !target.ValidStrategy(spec.Strategy) {
				return fmt.Errorf("team deploy: invalid strategy %q", strategy)
			}
			result := app.Coordinator.CreateTeam(cmd.Context(), spec, hasClaudeInterface)
			emit(app, os.Stdout, result, func() string {
				var b strings.Builder
				fmt.Fprintf(&b, "deployed %d/%d members of team %q\n", len(result.Team.Members), memberTotal(spec.Members), spec.Name)
				if result.Error != nil {
					fmt.Fprintf(&b, "error: %v\n", result.Error)
				}
				return b.String()
			})
			return result.Error
		},
	}
	cmd.Flags().StringArrayVar(&members, "member", nil, "role:count, repeatable (e.g. --member Backend:2)")
	cmd.Flags().StringVar(&strategy, "strategy", string(target.HubAndSpoke), "hub_and_spoke|peer_to_peer|hierarchical")
	cmd.Flags().StringVar(&cwd, "cwd", "", "project working directory for every spawned member")
	return cmd
}

func memberTotal(members []team.Member) int {
	n := 0
	for _, m := range members {
		n += m.Count
	}
	return n
}

func teamStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [session]",
		Short: "Show every agent in a session's team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			all, err := app.Cache.DiscoverAgents(cmd.Context())
			if err != nil {
				return err
			}
			var members []target.Agent
			for _, a := range all {
				if a.Target.Session == args[0] {
					members = append(members, a)
				}
			}
			emit(app, os.Stdout, members, func() string { return renderAgentTable(members) })
			return nil
		},
	}
	return cmd
}

func teamBroadcastCmd() *cobra.Command {
	var scopeSession, scopeRole string
	var allSessions, urgent bool
	cmd := &cobra.Command{
		Use:   "broadcast [text]",
		Short: "Deliver text to every agent matching a scope (§4.5)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			scope := messaging.Scope{Session: scopeSession, Role: scopeRole, AllSessions: allSessions}
			result, err := app.Messaging.Broadcast(cmd.Context(), scope, args[0], messaging.BroadcastOptions{Urgent: urgent})
			if err != nil {
				return err
			}
			emit(app, os.Stdout, result, func() string {
				return fmt.Sprintf("sent to %d agent(s), %d failure(s)\n", len(result.Sent), len(result.Failed))
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&scopeSession, "session", "", "scope=session=S")
	cmd.Flags().StringVar(&scopeRole, "role", "", "scope=role=R")
	cmd.Flags().BoolVar(&allSessions, "all-sessions", false, "scope=all-sessions")
	cmd.Flags().BoolVar(&urgent, "urgent", false, "prefix text with the urgent marker")
	return cmd
}
