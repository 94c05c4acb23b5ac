package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmuxorc/tmuxorc/internal/style"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		GroupID: GroupSession,
		Short:   "List and attach to tmux sessions (C1)",
	}
	cmd.AddCommand(sessionListCmd(), sessionAttachCmd())
	return cmd
}

func sessionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every tmux session (§4.2 cached read)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			sessions, err := app.Cache.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			emit(app, os.Stdout, sessions, func() string {
				t := style.NewTable(style.Column{Name: "SESSION", Width: 30})
				for _, s := range sessions {
					t.AddRow(s)
				}
				return t.Render()
			})
			return nil
		},
	}
	return cmd
}

// sessionAttachCmd prints the tmux attach invocation rather than execing
// into it directly: replacing the CLI's own process with tmux is a
// terminal/TTY concern the core driver (argv-only, no shell, no PTY
// takeover per §4.1) deliberately stays out of.
func sessionAttachCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach [session]",
		Short: "Print the tmux command to attach to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			has, err := app.Driver.HasSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !has {
				return fmt.Errorf("session attach: no such session %q", args[0])
			}
			command := fmt.Sprintf("tmux attach-session -t %s", args[0])
			emit(app, os.Stdout, command, func() string { return command + "\n" })
			return nil
		},
	}
	return cmd
}
