// Package cli implements the §6 CLI surface: one subcommand tree mapping
// one-to-one onto the core operations of §4. Commands are grouped with
// cobra's GroupID, RunE returns a wrapped error, and persistent flags are
// registered once in Root.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tmuxorc/tmuxorc/internal/briefing"
	"github.com/tmuxorc/tmuxorc/internal/cache"
	"github.com/tmuxorc/tmuxorc/internal/config"
	"github.com/tmuxorc/tmuxorc/internal/messaging"
	"github.com/tmuxorc/tmuxorc/internal/monitor"
	"github.com/tmuxorc/tmuxorc/internal/store"
	"github.com/tmuxorc/tmuxorc/internal/team"
	"github.com/tmuxorc/tmuxorc/internal/tmux"
	"github.com/tmuxorc/tmuxorc/internal/util"
)

// Command groups, mirroring the table in §6.
const (
	GroupSpawn   = "spawn"
	GroupAgent   = "agent"
	GroupTeam    = "team"
	GroupMonitor = "monitor"
	GroupSession = "session"
	GroupTask    = "task"
)

// App bundles every core collaborator the CLI's subcommands share. It is
// built once in Execute and threaded through via cobra's Context, rather
// than living in package-level globals, so tests can construct an App
// over fakes without touching process state.
type App struct {
	Logger      *slog.Logger
	Config      config.Config
	Driver      *tmux.Driver
	Cache       *cache.Cache
	Messaging   *messaging.Engine
	Monitor     *monitor.Monitor
	Coordinator *team.Coordinator
	Store       *store.Store
	Assignments *store.AssignmentStore
	Briefing    *briefing.Store
	JSON        bool
}

// NewApp wires the core components from a loaded Config, matching the
// construction order implied by §2's dependency graph (C1 before C2
// before C5/C6; C4 last since it wraps C2/C5).
func NewApp(cfg config.Config, logger *slog.Logger, claudeBinary, contextDir string) *App {
	driver := tmux.New()
	c := cache.New(driver)
	msg := messaging.New(driver, c, cfg.Messaging.StepDelay.Duration)
	briefingStore := briefing.New(util.ExpandHome(contextDir))
	coordinator := team.New(driver, c, briefingStore, claudeBinary)
	taskStore := store.New(util.ExpandHome(cfg.StateDir))
	assignmentStore := store.NewAssignmentStore(util.ExpandHome(cfg.StateDir))

	mon := monitor.New(driver, c, msg, logger, monitor.Config{
		Interval:       cfg.Monitor.Interval.Duration,
		WorkerPoolSize: cfg.Monitor.WorkerPoolSize,
		IdleCycles:     cfg.Monitor.IdleCycles,
		IdleSeconds:    cfg.Monitor.IdleSeconds,
		WatchdogFactor: cfg.Monitor.WatchdogFactor,
	})

	return &App{
		Logger:      logger,
		Config:      cfg,
		Driver:      driver,
		Cache:       c,
		Messaging:   msg,
		Monitor:     mon,
		Coordinator: coordinator,
		Store:       taskStore,
		Assignments: assignmentStore,
		Briefing:    briefingStore,
	}
}

type appContextKey struct{}

func withApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appContextKey{}, app)
}

func appFrom(cmd *cobra.Command) *App {
	app, _ := cmd.Context().Value(appContextKey{}).(*App)
	return app
}

// exitCode maps an error to the §6 exit-code contract. A nil error maps
// to 0.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case tmux.Is(err, tmux.KindUnavailable):
		return 2
	case isUserError(err):
		return 1
	default:
		return 3
	}
}

// isUserError reports whether err represents a caller mistake (bad
// input, not-found, role conflict) as opposed to an internal failure.
func isUserError(err error) bool {
	switch err.(type) {
	case *team.RoleConflictError, *team.InvalidProfileError, *team.InvalidTeamSizeError:
		return true
	case *store.NotFoundError:
		return true
	}
	if tmux.Is(err, tmux.KindInvalidInput) {
		return true
	}
	return false
}

// Root builds the top-level command tree. Its PersistentPreRunE stores app
// in the command context, where every subcommand's RunE retrieves it via
// appFrom.
func Root(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:           "tmuxorc",
		Short:         "Manage fleets of Claude Code agents running in tmux",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&app.JSON, "json", false, "wrap output as {success,data,error,timestamp}")

	root.AddGroup(
		&cobra.Group{ID: GroupSpawn, Title: "Spawn commands:"},
		&cobra.Group{ID: GroupAgent, Title: "Agent commands:"},
		&cobra.Group{ID: GroupTeam, Title: "Team commands:"},
		&cobra.Group{ID: GroupMonitor, Title: "Monitor commands:"},
		&cobra.Group{ID: GroupSession, Title: "Session commands:"},
		&cobra.Group{ID: GroupTask, Title: "Task commands:"},
	)

	root.AddCommand(spawnCmd(), agentCmd(), teamCmd(), monitorCmd(), sessionCmd(), taskCmd())

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cmd.SetContext(withApp(cmd.Context(), app))
		return nil
	}
	return root
}

// Execute builds the default App from environment/config and runs the
// command tree, returning the §6 process exit code. It never calls
// os.Exit itself so cmd/tmuxorc/main.go stays a one-line wrapper.
func Execute(args []string) int {
	debug := config.DebugEnabled()
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	stateDir := home + "/.tmux-orchestrator"
	cfg, err := config.Load(stateDir + "/config.toml")
	if err != nil {
		fmt.Fprintln(os.Stderr, "tmuxorc: loading config:", err)
		return 3
	}

	app := NewApp(cfg, logger, "claude", stateDir+"/context")
	root := Root(app)
	root.SetArgs(args)

	err = root.ExecuteContext(withApp(context.Background(), app))
	if err != nil {
		if app.JSON {
			printJSON(os.Stdout, nil, err)
		} else {
			fmt.Fprintln(os.Stderr, "tmuxorc:", err)
		}
		return exitCode(err)
	}
	return 0
}
