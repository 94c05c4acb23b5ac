// Package tmux wraps tmux session/window/pane operations as argv-only
// subprocess calls, with typed errors and a per-operation timeout bound to
// the caller's context. It addresses targets using the session:window[.pane]
// syntax of internal/target.
package tmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tmuxorc/tmuxorc/internal/target"
)

// ErrorKind taxonomies the ways a tmux invocation can fail.
type ErrorKind int

const (
	// KindUnavailable means the tmux binary could not be found or executed.
	KindUnavailable ErrorKind = iota
	// KindTimeout means the operation's context deadline elapsed.
	KindTimeout
	// KindNonZeroExit means tmux ran and returned a non-zero exit status.
	KindNonZeroExit
	// KindInvalidInput means the caller-supplied target or argument failed
	// validation before a subprocess was ever started.
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	case KindNonZeroExit:
		return "non_zero_exit"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// TmuxError is the concrete error type Driver methods return when a tmux
// invocation fails. SendEnterRetry wraps it with fmt.Errorf, and the
// methods that wait between steps (SendKeys, SendEnterRetry,
// WaitForPaneCommand) return the context's error when cancelled. Callers
// that need to branch on failure mode should use errors.As, not string
// matching.
type TmuxError struct {
	Kind   ErrorKind
	Op     string
	Args   []string
	Stderr string
	Err    error
}

func (e *TmuxError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr != "" {
		return fmt.Sprintf("tmux %s: %s", e.Op, stderr)
	}
	if e.Err != nil {
		return fmt.Sprintf("tmux %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("tmux %s: %s", e.Op, e.Kind)
}

func (e *TmuxError) Unwrap() error { return e.Err }

// Is reports whether err is a TmuxError of the given kind.
func Is(err error, kind ErrorKind) bool {
	var te *TmuxError
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}

func invalidInput(op string, format string, args ...any) error {
	return &TmuxError{Kind: KindInvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

// Runner executes an argv-only tmux invocation and returns trimmed stdout.
// Production code uses execRunner; tests inject a fake to avoid shelling
// out.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", &TmuxError{Kind: KindTimeout, Op: opName(args), Args: args, Err: ctx.Err()}
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", &TmuxError{Kind: KindUnavailable, Op: opName(args), Args: args, Err: err}
		}
		return "", &TmuxError{Kind: KindNonZeroExit, Op: opName(args), Args: args, Stderr: stderr.String(), Err: err}
	}
	return strings.TrimSpace(stdout.String()), nil
}

func opName(args []string) string {
	if len(args) == 0 {
		return "(empty)"
	}
	return args[0]
}

// Default per-operation timeouts (§4.1): fast read-only queries get a short
// bound, session-mutating operations get more room.
const (
	QuickTimeout  = 2 * time.Second
	NormalTimeout = 3 * time.Second
	SlowTimeout   = 5 * time.Second
)

// Driver is the tmux subprocess wrapper. It holds no session state of its
// own — every operation is addressed by an explicit target.Target or
// session name, re-validated on each call.
type Driver struct {
	runner Runner
}

// New returns a Driver backed by the real tmux binary.
func New() *Driver {
	return &Driver{runner: execRunner{}}
}

// NewWithRunner returns a Driver backed by an injected Runner, for tests.
func NewWithRunner(r Runner) *Driver {
	return &Driver{runner: r}
}

func (d *Driver) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.runner.Run(cctx, args...)
}

// IsAvailable reports whether the tmux binary can be invoked at all.
func (d *Driver) IsAvailable(ctx context.Context) bool {
	_, err := d.run(ctx, QuickTimeout, "-V")
	return err == nil
}

// NewSession creates a detached session named sess, optionally with an
// initial working directory and an initial command run as the pane's
// process (avoids the race of sending a command after the shell spawns).
func (d *Driver) NewSession(ctx context.Context, sess, workDir, command string) error {
	if !target.ValidSessionName(sess) {
		return invalidInput("new-session", "invalid session name %q", sess)
	}
	args := []string{"new-session", "-d", "-s", sess}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	if command != "" {
		args = append(args, command)
	}
	_, err := d.run(ctx, SlowTimeout, args...)
	return err
}

// NewWindow creates a new window in an existing session, named name, with
// an optional initial command. Returns the new window's index.
func (d *Driver) NewWindow(ctx context.Context, sess, name, workDir, command string) (int, error) {
	if !target.ValidSessionName(sess) {
		return 0, invalidInput("new-window", "invalid session name %q", sess)
	}
	args := []string{"new-window", "-t", sess, "-P", "-F", "#{window_index}"}
	if name != "" {
		args = append(args, "-n", name)
	}
	if workDir != "" {
		args = append(args, "-c", workDir)
	}
	if command != "" {
		args = append(args, command)
	}
	out, err := d.run(ctx, SlowTimeout, args...)
	if err != nil {
		return 0, err
	}
	idx, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, &TmuxError{Kind: KindNonZeroExit, Op: "new-window", Err: convErr}
	}
	return idx, nil
}

// KillSession kills an entire session. A missing session is not an error.
func (d *Driver) KillSession(ctx context.Context, sess string) error {
	_, err := d.run(ctx, NormalTimeout, "kill-session", "-t", "="+sess)
	if Is(err, KindNonZeroExit) {
		return nil
	}
	return err
}

// KillWindow kills a single window, leaving the rest of the session alone.
func (d *Driver) KillWindow(ctx context.Context, t target.Target) error {
	if !t.HasWindow {
		return invalidInput("kill-window", "target %q has no window component", t)
	}
	_, err := d.run(ctx, NormalTimeout, "kill-window", "-t", t.String())
	return err
}

// HasSession reports whether a session exists, using "=" for exact-name
// matching so "proj" does not spuriously match "proj-boot".
func (d *Driver) HasSession(ctx context.Context, sess string) (bool, error) {
	_, err := d.run(ctx, QuickTimeout, "has-session", "-t", "="+sess)
	if err != nil {
		if Is(err, KindNonZeroExit) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListSessions returns every live session name.
func (d *Driver) ListSessions(ctx context.Context) ([]string, error) {
	out, err := d.run(ctx, QuickTimeout, "list-sessions", "-F", "#{session_name}")
	if err != nil {
		if Is(err, KindNonZeroExit) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// ListWindows returns every window in a session, in tmux's own ordering.
func (d *Driver) ListWindows(ctx context.Context, sess string) ([]target.Window, error) {
	out, err := d.run(ctx, QuickTimeout, "list-windows", "-t", sess, "-F", "#{window_index}\t#{window_name}\t#{window_active}")
	if err != nil {
		if Is(err, KindNonZeroExit) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var windows []target.Window
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			continue
		}
		idx, convErr := strconv.Atoi(fields[0])
		if convErr != nil {
			continue
		}
		windows = append(windows, target.Window{
			Index:  idx,
			Name:   fields[1],
			Active: fields[2] == "1",
		})
	}
	return windows, nil
}

// SendKeys sends literal text to a target and, unless raw is true, follows
// it with a separately-sent Enter key after debounce. The two-step
// send-then-Enter shape avoids tmux coalescing a fast paste-then-Enter into
// a single event that some TUIs drop.
func (d *Driver) SendKeys(ctx context.Context, t target.Target, text string, debounce time.Duration, raw bool) error {
	dest := t.String()
	if _, err := d.run(ctx, NormalTimeout, "send-keys", "-t", dest, "-l", text); err != nil {
		return err
	}
	if raw {
		return nil
	}
	if debounce > 0 {
		select {
		case <-time.After(debounce):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	_, err := d.run(ctx, NormalTimeout, "send-keys", "-t", dest, "Enter")
	return err
}

// ClearInput sends Ctrl-U to clear any pending, unsubmitted input on the
// target's input line.
func (d *Driver) ClearInput(ctx context.Context, t target.Target) error {
	_, err := d.run(ctx, QuickTimeout, "send-keys", "-t", t.String(), "C-u")
	return err
}

// SendEnterRetry sends the Enter key, retrying up to 3 times with a 200ms
// backoff — submission is the one step that must not silently fail, since
// a dropped Enter leaves a message sitting unsent in the input box.
func (d *Driver) SendEnterRetry(ctx context.Context, t target.Target) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, err := d.run(ctx, QuickTimeout, "send-keys", "-t", t.String(), "Enter"); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("send enter: %d attempts failed: %w", 3, lastErr)
}

// CapturePane returns the last n visible lines of a pane, or the full
// scrollback if n <= 0.
func (d *Driver) CapturePane(ctx context.Context, t target.Target, n int) (string, error) {
	args := []string{"capture-pane", "-p", "-t", t.String()}
	if n > 0 {
		args = append(args, "-S", fmt.Sprintf("-%d", n))
	} else {
		args = append(args, "-S", "-")
	}
	return d.run(ctx, QuickTimeout, args...)
}

// GetPaneCurrentCommand returns the foreground process name of a target's
// pane (e.g. "bash", "node", "claude").
func (d *Driver) GetPaneCurrentCommand(ctx context.Context, t target.Target) (string, error) {
	out, err := d.run(ctx, QuickTimeout, "list-panes", "-t", t.String(), "-F", "#{pane_current_command}")
	if err != nil {
		return "", err
	}
	lines := strings.Split(out, "\n")
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], nil
}

// GetPaneWorkDir returns the current working directory of a target's pane.
func (d *Driver) GetPaneWorkDir(ctx context.Context, t target.Target) (string, error) {
	out, err := d.run(ctx, QuickTimeout, "list-panes", "-t", t.String(), "-F", "#{pane_current_path}")
	if err != nil {
		return "", err
	}
	lines := strings.Split(out, "\n")
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], nil
}

// PaneInfo is one row of a list-panes -a query: a pane's address plus its
// last-activity timestamp.
type PaneInfo struct {
	Session      string
	WindowIndex  int
	WindowName   string
	PaneActivity int64
}

// ListPanesAll runs a single list-panes -a query across every session on
// the server, the one-process-for-the-whole-fleet batch read the fast
// discovery path needs instead of walking ListSessions/ListWindows one
// session at a time.
func (d *Driver) ListPanesAll(ctx context.Context) ([]PaneInfo, error) {
	out, err := d.run(ctx, QuickTimeout, "list-panes", "-a", "-F",
		"#{session_name}|#{window_index}|#{window_name}|#{pane_activity}")
	if err != nil {
		if Is(err, KindNonZeroExit) {
			return nil, nil
		}
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var panes []PaneInfo
	for _, line := range strings.Split(out, "\n") {
		fields := strings.SplitN(line, "|", 4)
		if len(fields) != 4 {
			continue
		}
		idx, convErr := strconv.Atoi(fields[1])
		if convErr != nil {
			continue
		}
		activity, _ := strconv.ParseInt(fields[3], 10, 64)
		panes = append(panes, PaneInfo{
			Session:      fields[0],
			WindowIndex:  idx,
			WindowName:   fields[2],
			PaneActivity: activity,
		})
	}
	return panes, nil
}

// PaneActivity returns the #{pane_activity} unix timestamp for a single
// target. Used when a caller already has a specific pane in hand rather
// than needing the whole-fleet batch ListPanesAll gives.
func (d *Driver) PaneActivity(ctx context.Context, t target.Target) (int64, error) {
	out, err := d.run(ctx, QuickTimeout, "display-message", "-t", t.String(), "-p", "#{pane_activity}")
	if err != nil {
		return 0, err
	}
	ts, convErr := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if convErr != nil {
		return 0, &TmuxError{Kind: KindNonZeroExit, Op: "display-message", Err: convErr}
	}
	return ts, nil
}

// PressKey sends a single non-literal tmux key name (e.g. "Down", "Enter",
// "Up") rather than literal text — used to drive one-off terminal dialogs
// that expect a single keypress.
func (d *Driver) PressKey(ctx context.Context, t target.Target, key string) error {
	_, err := d.run(ctx, QuickTimeout, "send-keys", "-t", t.String(), key)
	return err
}

// RenameWindow renames a window. Used by team coordination to apply the
// Claude-<role> naming convention after spawn.
func (d *Driver) RenameWindow(ctx context.Context, t target.Target, name string) error {
	if !t.HasWindow {
		return invalidInput("rename-window", "target %q has no window component", t)
	}
	_, err := d.run(ctx, QuickTimeout, "rename-window", "-t", t.String(), name)
	return err
}

// SelectWindow focuses a window without attaching a client to it.
func (d *Driver) SelectWindow(ctx context.Context, t target.Target) error {
	if !t.HasWindow {
		return invalidInput("select-window", "target %q has no window component", t)
	}
	_, err := d.run(ctx, QuickTimeout, "select-window", "-t", t.String())
	return err
}

// DisplayMessage shows a transient status-line message in a session,
// visible only to an attached client.
func (d *Driver) DisplayMessage(ctx context.Context, sess, message string, durationMs int) error {
	args := []string{"display-message", "-t", sess}
	if durationMs > 0 {
		args = append(args, "-d", strconv.Itoa(durationMs))
	}
	args = append(args, message)
	_, err := d.run(ctx, QuickTimeout, args...)
	return err
}

// SetRenumberWindowsOff disables tmux's automatic window renumbering on
// a single session, so a killed window's index is never silently
// reassigned to a later-created window (§9 Open Question: stable window
// indices).
func (d *Driver) SetRenumberWindowsOff(ctx context.Context, sess string) error {
	return d.SetOption(ctx, sess, "renumber-windows", "off")
}

// SetOption sets a session-scoped tmux option.
func (d *Driver) SetOption(ctx context.Context, sess, option, value string) error {
	_, err := d.run(ctx, QuickTimeout, "set-option", "-t", sess, option, value)
	return err
}

// WaitForPaneCommand polls GetPaneCurrentCommand until it matches want or
// the context is done, sleeping interval between polls. Used by team
// coordination to detect that a just-spawned runtime process has taken
// over the pane from the launching shell.
func (d *Driver) WaitForPaneCommand(ctx context.Context, t target.Target, want string, interval time.Duration) error {
	for {
		cmd, err := d.GetPaneCurrentCommand(ctx, t)
		if err == nil && cmd == want {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
