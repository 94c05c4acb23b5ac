// Package daemon implements the monitor process's lifecycle plumbing: a
// single exclusively-created PID file for the monitor daemon process, and
// graceful signal handling.
package daemon

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// PIDFile manages the exclusive-create/delete-on-exit PID file described
// in §6's persisted-state layout (enhanced-monitor.pid) and §5's shared
// resources list.
type PIDFile struct {
	path string
}

// NewPIDFile returns a PIDFile at path. It does not touch the filesystem
// until Acquire is called.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// AlreadyRunningError is returned by Acquire when the PID file exists and
// names a process that is still alive.
type AlreadyRunningError struct{ PID int }

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("daemon: already running as pid %d", e.PID)
}

// Acquire creates the PID file exclusively. If a stale file is found
// (process no longer alive), it is removed and creation is retried once.
func (p *PIDFile) Acquire() error {
	if pid, alive := p.readAndCheck(); alive {
		return &AlreadyRunningError{PID: pid}
	} else if pid != 0 {
		_ = os.Remove(p.path)
	}

	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			if pid, alive := p.readAndCheck(); alive {
				return &AlreadyRunningError{PID: pid}
			}
			_ = os.Remove(p.path)
			return p.Acquire()
		}
		return fmt.Errorf("daemon: creating pid file %s: %w", p.path, err)
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%d\n", os.Getpid())
	return err
}

// readAndCheck reads the PID file, if present, and reports whether the
// named process is still alive. pid is 0 if the file is absent or
// unparseable.
func (p *PIDFile) readAndCheck() (pid int, alive bool) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, false
	}
	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, false
	}
	return pid, processAlive(pid)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On POSIX, signal 0 probes existence/permission without killing.
	return proc.Signal(syscall.Signal(0)) == nil
}

// Release deletes the PID file. Called on clean shutdown only — a
// process that dies uncleanly leaves the file for the next Acquire's
// staleness check to clear.
func (p *PIDFile) Release() error {
	err := os.Remove(p.path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// DrainBound is how long WaitForShutdown blocks after the first signal,
// unless a second signal arrives first, per the 10s drain bound on the
// monitor's worker pool.
const DrainBound = 10 * time.Second

// ShutdownSignals lists the signals that trigger graceful shutdown. A
// second delivery of either, after the first has been observed, aborts
// the drain and exits immediately instead of waiting out DrainBound.
var ShutdownSignals = []os.Signal{syscall.SIGTERM, syscall.SIGINT}

// Lifecycle coordinates PID-file ownership with signal-triggered
// graceful shutdown for the monitor daemon. The first SIGTERM/SIGINT
// cancels ctx so the running tick can finish its classification batch
// and skip dispatching new notifications; WaitForShutdown then blocks for
// DrainBound before returning, without tracking whether that tick has
// already returned. A second signal during the drain short-circuits the
// wait.
type Lifecycle struct {
	PIDFile *PIDFile
	sigCh   chan os.Signal
}

// NewLifecycle constructs a Lifecycle over pidPath and starts listening
// for ShutdownSignals immediately.
func NewLifecycle(pidPath string) *Lifecycle {
	l := &Lifecycle{
		PIDFile: NewPIDFile(pidPath),
		sigCh:   make(chan os.Signal, 2),
	}
	signal.Notify(l.sigCh, ShutdownSignals...)
	return l
}

// Start acquires the PID file. Callers should treat an *AlreadyRunningError
// as fatal startup failure per §4.4.
func (l *Lifecycle) Start() error {
	return l.PIDFile.Acquire()
}

// WaitForShutdown blocks until the first shutdown signal arrives, then
// cancels cancel and blocks up to DrainBound (or until a second signal
// arrives) before returning. Callers invoke this on its own goroutine and
// use the supplied cancel func to stop the monitor's Run loop.
func (l *Lifecycle) WaitForShutdown(cancel func()) {
	<-l.sigCh
	cancel()

	select {
	case <-l.sigCh:
	case <-time.After(DrainBound):
	}
}

// Stop releases the PID file. Called after the monitor's Run loop has
// returned, on every shutdown path (clean or forced).
func (l *Lifecycle) Stop() error {
	signal.Stop(l.sigCh)
	return l.PIDFile.Release()
}

// CheckClockSkew is a fatal daemon-startup precondition from §4.4: a
// clock more than 24h out of sync with reference must abort startup
// rather than silently corrupt TTL/idle-cycle timing. reference is
// injected so tests can simulate skew without touching the system clock.
func CheckClockSkew(reference time.Time, maxSkew time.Duration) error {
	skew := time.Since(reference)
	if skew < 0 {
		skew = -skew
	}
	if skew > maxSkew {
		return fmt.Errorf("daemon: clock skew %s exceeds bound %s", skew, maxSkew)
	}
	return nil
}
