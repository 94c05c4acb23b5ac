package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmuxorc/tmuxorc/internal/daemon"
	"github.com/tmuxorc/tmuxorc/internal/dashboard"
	"github.com/tmuxorc/tmuxorc/internal/util"
)

func pidPath(stateDir string) string {
	return filepath.Join(util.ExpandHome(stateDir), "enhanced-monitor.pid")
}

func logPath(stateDir string) string {
	return filepath.Join(util.ExpandHome(stateDir), "logs", "enhanced-monitor.log")
}

func monitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "monitor",
		GroupID: GroupMonitor,
		Short:   "Run and control the concurrent pane-state monitor daemon (C4)",
	}
	cmd.AddCommand(monitorStartCmd(), monitorStopCmd(), monitorStatusCmd(), monitorWatchCmd())
	return cmd
}

func monitorWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open a live bubbletea dashboard of every agent's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return dashboard.Run(appFrom(cmd).Cache)
		},
	}
}

func monitorStartCmd() *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the monitor daemon (blocks in foreground mode)",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			lf := logPath(app.Config.StateDir)
			if err := os.MkdirAll(filepath.Dir(lf), 0o755); err != nil {
				return fmt.Errorf("monitor start: creating log dir: %w", err)
			}
			file, err := os.OpenFile(lf, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("monitor start: opening log file: %w", err)
			}
			defer file.Close()
			app.Logger = slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, file), nil))
			_ = foreground // daemonizing (fork+detach) is an OS/process-supervision concern outside the core

			lifecycle := daemon.NewLifecycle(pidPath(app.Config.StateDir))
			if err := lifecycle.Start(); err != nil {
				return fmt.Errorf("monitor start: %w", err)
			}

			if err := daemon.CheckClockSkew(time.Now(), 24*time.Hour); err != nil {
				_ = lifecycle.Stop()
				return fmt.Errorf("monitor start: %w", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			go lifecycle.WaitForShutdown(cancel)

			app.Monitor.Run(ctx)
			return lifecycle.Stop()
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", true, "run in the foreground instead of forking a background process")
	return cmd
}

func monitorStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Send SIGTERM to a running monitor daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			pid, err := readPID(pidPath(app.Config.StateDir))
			if err != nil {
				return err
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("monitor stop: %w", err)
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("monitor stop: signaling pid %d: %w", pid, err)
			}
			emit(app, os.Stdout, map[string]int{"pid": pid}, func() string { return fmt.Sprintf("sent SIGTERM to pid %d\n", pid) })
			return nil
		},
	}
	return cmd
}

func monitorStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the monitor daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			pid, err := readPID(pidPath(app.Config.StateDir))
			running := err == nil && processAlive(pid)
			status := map[string]any{"running": running, "pid": pid}
			emit(app, os.Stdout, status, func() string {
				if running {
					return fmt.Sprintf("running (pid %d)\n", pid)
				}
				return "not running\n"
			})
			return nil
		},
	}
	return cmd
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("monitor: no pid file at %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("monitor: malformed pid file %s", path)
	}
	return pid, nil
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
