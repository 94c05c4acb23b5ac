package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmuxorc/tmuxorc/internal/store"
	"github.com/tmuxorc/tmuxorc/internal/style"
	"github.com/tmuxorc/tmuxorc/internal/target"
)

func taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		GroupID: GroupTask,
		Short:   "Create, track, and assign tasks (§3 TaskAssignment, §6 store)",
	}
	cmd.AddCommand(
		taskCreateCmd(), taskGetCmd(), taskListCmd(),
		taskUpdateStatusCmd(), taskDeleteCmd(),
		taskAssignCmd(), taskReassignCmd(), taskWorkloadCmd(),
	)
	return cmd
}

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func taskCreateCmd() *cobra.Command {
	var agentID, priority, tags, blockers string
	cmd := &cobra.Command{
		Use:   "create [task-id]",
		Short: "Create a new task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			now := time.Now().UTC().Format(time.RFC3339)
			task := store.Task{
				TaskID:    args[0],
				AgentID:   agentID,
				Status:    store.StatusPending,
				Priority:  priority,
				Blockers:  splitCSV(blockers),
				Tags:      splitCSV(tags),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if task.Priority == "" {
				task.Priority = "medium"
			}
			if err := app.Store.Create(task); err != nil {
				return err
			}
			emit(app, os.Stdout, task, func() string { return fmt.Sprintf("created %s\n", task.TaskID) })
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "agent target (session:window) the task is for")
	cmd.Flags().StringVar(&priority, "priority", "medium", "low|medium|high|critical")
	cmd.Flags().StringVar(&tags, "tags", "", "comma-separated tags")
	cmd.Flags().StringVar(&blockers, "blockers", "", "comma-separated blocker task ids")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get [task-id]",
		Short: "Show a single task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			task, err := app.Store.Get(args[0])
			if err != nil {
				return err
			}
			emit(app, os.Stdout, task, func() string { return renderTaskTable([]store.Task{task}) })
			return nil
		},
	}
	return cmd
}

func renderTaskTable(tasks []store.Task) string {
	t := style.NewTable(
		style.Column{Name: "TASK", Width: 20},
		style.Column{Name: "AGENT", Width: 16},
		style.Column{Name: "STATUS", Width: 14},
		style.Column{Name: "PRIORITY", Width: 10},
	)
	for _, task := range tasks {
		t.AddRow(task.TaskID, task.AgentID, string(task.Status), task.Priority)
	}
	return t.Render()
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every task",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			tasks, err := app.Store.List()
			if err != nil {
				return err
			}
			emit(app, os.Stdout, tasks, func() string { return renderTaskTable(tasks) })
			return nil
		},
	}
	return cmd
}

func taskUpdateStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-status [task-id] [status]",
		Short: "Transition a task's status (pending|in_progress|completed|blocked|cancelled)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			if err := app.Store.UpdateStatus(args[0], store.Status(args[1]), time.Now()); err != nil {
				return err
			}
			task, err := app.Store.Get(args[0])
			if err != nil {
				return err
			}
			emit(app, os.Stdout, task, func() string { return fmt.Sprintf("%s -> %s\n", args[0], args[1]) })
			return nil
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [task-id]",
		Short: "Delete a task record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			if err := app.Store.Delete(args[0]); err != nil {
				return err
			}
			emit(app, os.Stdout, map[string]bool{"deleted": true}, func() string { return fmt.Sprintf("deleted %s\n", args[0]) })
			return nil
		},
	}
	return cmd
}

func taskAssignCmd() *cobra.Command {
	var priority, title, description, dueDate, deps, criteria string
	var hours int
	var deliver bool
	cmd := &cobra.Command{
		Use:   "assign [task-id] [target]",
		Short: "Assign a task to an agent and optionally deliver it into the pane",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			t, err := target.ParseTarget(args[1])
			if err != nil {
				return err
			}
			req := store.AssignRequest{
				TaskID: args[0], Agent: t, Priority: priority,
				TaskTitle: title, TaskDescription: description, DueDate: dueDate,
				Dependencies: splitCSV(deps), CompletionCriteria: splitCSV(criteria),
			}
			if hours > 0 {
				req.EstimatedHours = &hours
			}
			assignment, err := store.Assign(app.Assignments, req, time.Now(), nil)
			if err != nil {
				return err
			}
			if deliver {
				app.Messaging.SendMessage(cmd.Context(), t, store.AssignmentMessage(req))
			}
			emit(app, os.Stdout, assignment, func() string {
				return fmt.Sprintf("assigned %s to %s (assignment %s)\n", assignment.TaskID, t, assignment.AssignmentID)
			})
			return nil
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "medium", "low|medium|high|critical")
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "task description")
	cmd.Flags().StringVar(&dueDate, "due-date", "", "ISO-8601 due date")
	cmd.Flags().StringVar(&deps, "dependencies", "", "comma-separated dependency task ids")
	cmd.Flags().StringVar(&criteria, "completion-criteria", "", "comma-separated completion criteria")
	cmd.Flags().IntVar(&hours, "estimated-hours", 0, "estimated hours of work")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "also send the assignment message into the agent's pane")
	return cmd
}

func taskReassignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reassign [task-id] [target]",
		Short: "Re-route an existing assignment to a different agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			t, err := target.ParseTarget(args[1])
			if err != nil {
				return err
			}
			assignment, err := store.Reassign(app.Assignments, args[0], t, time.Now(), nil)
			if err != nil {
				return err
			}
			emit(app, os.Stdout, assignment, func() string {
				return fmt.Sprintf("reassigned %s to %s\n", assignment.TaskID, t)
			})
			return nil
		},
	}
	return cmd
}

func taskWorkloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workload [target]",
		Short: "Show an agent's current task load and saturation score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			t, err := target.ParseTarget(args[0])
			if err != nil {
				return err
			}
			wl, err := app.Assignments.WorkloadFor(t.String())
			if err != nil {
				return err
			}
			score := store.LoadScore(wl.ActiveTasks, wl.TotalEstimatedHours)
			emit(app, os.Stdout, wl, func() string {
				return fmt.Sprintf("%s: %d active, %d pending, %d completed, load %.2f\n",
					t, wl.ActiveTasks, wl.PendingTasks, wl.CompletedTasks, score)
			})
			return nil
		},
	}
	return cmd
}
