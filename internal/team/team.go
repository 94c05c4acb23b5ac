// Package team implements spawn and team-coordination operations:
// creating orchestrator/PM/agent windows, enforcing role uniqueness, and
// composing multi-member teams.
package team

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tmuxorc/tmuxorc/internal/cache"
	"github.com/tmuxorc/tmuxorc/internal/role"
	"github.com/tmuxorc/tmuxorc/internal/target"
	"github.com/tmuxorc/tmuxorc/internal/tmux"
)

// profilePattern is the injection guard on Orchestrator profile names.
var profilePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

// teamNamePattern constrains CreateTeam's team name.
var teamNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// claudeProcessNames are the foreground pane commands a live Claude Code
// process can report, besides the version-number form ("2.0.76").
var claudeProcessNames = []string{"node", "claude"}

var claudeVersionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+`)

// bypassPermissionsWarning is the text Claude Code shows when it starts
// with --dangerously-skip-permissions and needs the warning dialog
// dismissed before accepting further input.
const bypassPermissionsWarning = "Bypass Permissions mode"

func isLiveClaudeCommand(cmd string) bool {
	for _, name := range claudeProcessNames {
		if cmd == name {
			return true
		}
	}
	return claudeVersionPattern.MatchString(cmd)
}

// RoleConflictError reports that a unique role is already present.
type RoleConflictError struct{ Role string }

func (e *RoleConflictError) Error() string {
	return fmt.Sprintf("team: role %q already present in session", e.Role)
}

// ClaudeInterfaceNotDetectedError reports that the polling loop never saw
// the Claude Code interface after spawn.
type ClaudeInterfaceNotDetectedError struct{ Target target.Target }

func (e *ClaudeInterfaceNotDetectedError) Error() string {
	return fmt.Sprintf("team: claude interface not detected at %s", e.Target)
}

// InvalidProfileError reports a profile name that failed the injection
// guard.
type InvalidProfileError struct{ Profile string }

func (e *InvalidProfileError) Error() string {
	return fmt.Sprintf("team: invalid profile %q", e.Profile)
}

// InvalidTeamSizeError reports a CreateTeam spec whose total member count
// fell outside [1, 20].
type InvalidTeamSizeError struct{ Size int }

func (e *InvalidTeamSizeError) Error() string {
	return fmt.Sprintf("team: invalid team size %d (must be 1-20)", e.Size)
}

// ContextStore is the external collaborator (§6) that loads role briefing
// text. A missing role is expected to return an error.
type ContextStore interface {
	LoadContext(role string) (string, error)
}

// Coordinator spawns and composes agent teams.
type Coordinator struct {
	driver       *tmux.Driver
	cache        *cache.Cache
	context      ContextStore
	claudeBinary string
	pollAttempts int
	pollInterval time.Duration
	startupWait  time.Duration
}

// New returns a Coordinator. claudeBinary is the host `claude` executable
// name (overridable for tests); pollAttempts/pollInterval implement the
// "poll up to 5x, 1s apart" readiness check from §4.6.
func New(driver *tmux.Driver, c *cache.Cache, ctxStore ContextStore, claudeBinary string) *Coordinator {
	return &Coordinator{
		driver:       driver,
		cache:        c,
		context:      ctxStore,
		claudeBinary: claudeBinary,
		pollAttempts: 5,
		pollInterval: time.Second,
		startupWait:  3 * time.Second,
	}
}

// claudeCommand builds the argv-safe command line for launching Claude.
// profile, if non-empty, must already have passed ValidateProfile.
func (c *Coordinator) claudeCommand(profile string) string {
	cmd := c.claudeBinary + " --dangerously-skip-permissions"
	if profile != "" {
		cmd += " --profile " + profile
	}
	return cmd
}

// ValidateProfile enforces the §4.6 injection guard on orchestrator
// profile names.
func ValidateProfile(profile string) error {
	if profile == "" {
		return nil
	}
	if !profilePattern.MatchString(profile) {
		return &InvalidProfileError{Profile: profile}
	}
	return nil
}

// existingRoles lists the roles already present among a session's
// windows, used by the role-uniqueness check.
func (c *Coordinator) existingRoles(ctx context.Context, sess string) ([]string, error) {
	windows, err := c.cache.ListWindows(ctx, sess)
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(windows))
	for _, w := range windows {
		roles = append(roles, role.FromWindowName(w.Name))
	}
	return roles, nil
}

func contains(haystack []string, needle string) bool {
	for _, h := range haystack {
		if h == needle {
			return true
		}
	}
	return false
}

// checkRoleUniqueness enforces §4.6: before creating a PM or Orchestrator
// window, reject if that role already exists in the session.
func (c *Coordinator) checkRoleUniqueness(ctx context.Context, sess, requestedRole string) error {
	if !role.Unique(requestedRole) {
		return nil
	}
	roles, err := c.existingRoles(ctx, sess)
	if err != nil {
		return err
	}
	if contains(roles, requestedRole) {
		return &RoleConflictError{Role: requestedRole}
	}
	return nil
}

// waitForClaudeInterface polls CapturePane until the interface markers
// appear, up to pollAttempts times, pollInterval apart.
func (c *Coordinator) waitForClaudeInterface(ctx context.Context, t target.Target, hasInterface func(string) bool) error {
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		content, err := c.driver.CapturePane(ctx, t, 50)
		if err == nil && hasInterface(content) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
	return &ClaudeInterfaceNotDetectedError{Target: t}
}

// createSessionFresh creates a new session and disables tmux's
// window-renumbering on it, so a later KillWindow never causes a
// subsequently-created window's index to be reassigned (§8 invariant 1,
// §9 Open Question on window-index reuse).
func (c *Coordinator) createSessionFresh(ctx context.Context, sess, cwd, command string) error {
	if err := c.cache.CreateSession(ctx, sess, cwd, command); err != nil {
		return err
	}
	_ = c.driver.SetRenumberWindowsOff(ctx, sess)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sessionHasLiveClaude reports whether any Claude window in sess still has
// a live Claude Code process in its pane, rather than a dead shell left
// behind after the process exited out from under a still-running tmux
// session.
func (c *Coordinator) sessionHasLiveClaude(ctx context.Context, sess string) (bool, error) {
	windows, err := c.cache.ListWindows(ctx, sess)
	if err != nil {
		return false, err
	}
	sawClaudeWindow := false
	for _, w := range windows {
		if !target.IsClaudeWindow(w.Name) {
			continue
		}
		sawClaudeWindow = true
		t := target.Target{Session: sess, Window: w.Index, HasWindow: true}
		cmd, err := c.driver.GetPaneCurrentCommand(ctx, t)
		if err != nil || cmd == "" {
			// Inconclusive — never kill a session on ambiguous evidence.
			return true, nil
		}
		if isLiveClaudeCommand(cmd) {
			return true, nil
		}
	}
	if !sawClaudeWindow {
		// No Claude windows at all yet — not a zombie, just an empty session.
		return true, nil
	}
	return false, nil
}

// recoverZombieSession kills sess if tmux still reports it but every one
// of its Claude windows has lost its underlying process, so the caller can
// recreate it fresh instead of appending a window onto a dead session.
func (c *Coordinator) recoverZombieSession(ctx context.Context, sess string) (bool, error) {
	alive, err := c.sessionHasLiveClaude(ctx, sess)
	if err != nil {
		return false, err
	}
	if alive {
		return false, nil
	}
	if err := c.cache.KillSession(ctx, sess); err != nil {
		return false, err
	}
	return true, nil
}

// awaitStartup gives the freshly-spawned process up to startupWait to take
// over the pane from the launching shell, via Driver.WaitForPaneCommand.
// Failure here is non-fatal — waitForClaudeInterface is the real readiness
// gate; this only avoids polling the interface before the shell has even
// exec'd into claudeBinary.
func (c *Coordinator) awaitStartup(ctx context.Context, t target.Target) {
	wctx, cancel := context.WithTimeout(ctx, c.startupWait)
	defer cancel()
	_ = c.driver.WaitForPaneCommand(wctx, t, c.claudeBinary, 200*time.Millisecond)
}

// dismissBypassPermissions checks for the --dangerously-skip-permissions
// warning dialog and, if present, selects "Yes, I accept" (Down then
// Enter). It is a no-op when the dialog never appears, so it is safe to
// call unconditionally after every spawn.
func (c *Coordinator) dismissBypassPermissions(ctx context.Context, t target.Target) {
	content, err := c.driver.CapturePane(ctx, t, 30)
	if err != nil || !strings.Contains(content, bypassPermissionsWarning) {
		return
	}
	_ = c.driver.PressKey(ctx, t, "Down")
	_ = sleepCtx(ctx, 200*time.Millisecond)
	_ = c.driver.PressKey(ctx, t, "Enter")
}

// SpawnAgent is the generic spawn form (§4.6): creates the session if
// absent, appends a new window named Claude-<role> to the end of the
// session (the caller cannot choose the index — windows are always
// appended, per invariant 1 in §8), starts Claude, waits, and delivers
// briefing.
func (c *Coordinator) SpawnAgent(ctx context.Context, agentRole, sess, cwd, briefing string, hasInterface func(string) bool) (target.Target, error) {
	exists, err := c.driver.HasSession(ctx, sess)
	if err != nil {
		return target.Target{}, err
	}
	if exists {
		killed, err := c.recoverZombieSession(ctx, sess)
		if err != nil {
			return target.Target{}, err
		}
		exists = !killed
	}
	if !exists {
		if err := c.createSessionFresh(ctx, sess, cwd, ""); err != nil {
			return target.Target{}, err
		}
	} else {
		if err := c.checkRoleUniqueness(ctx, sess, agentRole); err != nil {
			return target.Target{}, err
		}
	}

	windowName := target.ClaudeWindowPrefix + agentRole
	idx, err := c.cache.CreateWindow(ctx, sess, windowName, cwd, c.claudeCommand(""))
	if err != nil {
		return target.Target{}, err
	}
	t := target.Target{Session: sess, Window: idx, HasWindow: true}

	c.awaitStartup(ctx, t)
	if err := c.waitForClaudeInterface(ctx, t, hasInterface); err != nil {
		return t, err
	}
	c.dismissBypassPermissions(ctx, t)
	if briefing != "" {
		c.deliverBriefing(ctx, t, briefing)
	}
	return t, nil
}

// SpawnPM spawns the singleton PM window for a session, concatenating the
// standard PM briefing from the Context store with an optional extension
// under an "## Additional Instructions" heading.
func (c *Coordinator) SpawnPM(ctx context.Context, sess, cwd, extendBriefing string, hasInterface func(string) bool) (target.Target, error) {
	base, err := c.context.LoadContext(role.PM)
	if err != nil {
		return target.Target{}, fmt.Errorf("team: loading PM briefing: %w", err)
	}
	briefing := base
	if extendBriefing != "" {
		briefing = base + "\n\n## Additional Instructions\n\n" + extendBriefing
	}
	return c.SpawnAgent(ctx, role.PM, sess, cwd, briefing, hasInterface)
}

// SpawnOrchestrator launches a local orchestrator session running Claude
// with --dangerously-skip-permissions, and optionally --profile. The
// session itself is the orchestrator's only window; callers that want it
// in a separate terminal emulator launch it via the OS-terminal table in
// internal/cli, then attach to this session from there.
func (c *Coordinator) SpawnOrchestrator(ctx context.Context, sess, cwd, profile string, hasInterface func(string) bool) (target.Target, error) {
	if err := ValidateProfile(profile); err != nil {
		return target.Target{}, err
	}
	exists, err := c.driver.HasSession(ctx, sess)
	if err != nil {
		return target.Target{}, err
	}
	if exists {
		killed, err := c.recoverZombieSession(ctx, sess)
		if err != nil {
			return target.Target{}, err
		}
		exists = !killed
	}
	if exists {
		if err := c.checkRoleUniqueness(ctx, sess, role.Orchestrator); err != nil {
			return target.Target{}, err
		}
	} else {
		if err := c.createSessionFresh(ctx, sess, cwd, c.claudeCommand(profile)); err != nil {
			return target.Target{}, err
		}
	}
	t := target.Target{Session: sess, Window: 0, HasWindow: true}
	_ = c.driver.RenameWindow(ctx, t, target.ClaudeWindowPrefix+role.Orchestrator)
	c.awaitStartup(ctx, t)
	if err := c.waitForClaudeInterface(ctx, t, hasInterface); err != nil {
		return t, err
	}
	c.dismissBypassPermissions(ctx, t)
	return t, nil
}

// deliverBriefing sends the briefing text as a single message, then Enter
// via SendEnterRetry. Send errors are discarded here and not reported to
// the caller: an undetected interface already aborted the spawn with a
// clear error, so a briefing delivery failure at this point is not fatal
// to the spawn.
func (c *Coordinator) deliverBriefing(ctx context.Context, t target.Target, briefing string) {
	_ = c.driver.SendKeys(ctx, t, briefing, 500*time.Millisecond, true)
	_ = c.driver.SendEnterRetry(ctx, t)
}

// RestartAgent kills the window at t (if present) and respawns the same
// role with the same briefing, composed entirely from SpawnAgent/KillWindow.
func (c *Coordinator) RestartAgent(ctx context.Context, t target.Target, agentRole, cwd, briefing string, hasInterface func(string) bool) (target.Target, error) {
	_ = c.cache.KillWindow(ctx, t)
	return c.SpawnAgent(ctx, agentRole, t.Session, cwd, briefing, hasInterface)
}

// KillAll tears down every Claude- window in a session, composed from
// the cache's ListWindows and KillWindow.
func (c *Coordinator) KillAll(ctx context.Context, sess string) error {
	windows, err := c.cache.ListWindows(ctx, sess)
	if err != nil {
		return err
	}
	var firstErr error
	for _, w := range windows {
		if !target.IsClaudeWindow(w.Name) {
			continue
		}
		t := target.Target{Session: sess, Window: w.Index, HasWindow: true}
		if err := c.cache.KillWindow(ctx, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Member describes one role's allocation within a CreateTeam spec.
type Member struct {
	Role     string
	Count    int
	Briefing string
}

// Spec is the CreateTeam input: named team, strategy, and member roles.
type Spec struct {
	Name     string
	Strategy target.CoordinationStrategy
	CWD      string
	Members  []Member
}

// TeamResult is CreateTeam's partial-success-capable output: whatever
// agents were spawned before the first fatal error, plus that error
// (nil on full success).
type TeamResult struct {
	Team  target.Team
	Error error
}

func totalMembers(members []Member) int {
	n := 0
	for _, m := range members {
		n += m.Count
	}
	return n
}

// CreateTeam spawns every member of spec into spec.Name's session: the
// first agent creates the session, every subsequent one appends a window.
// On any failure it stops and returns everything spawned so far plus the
// error — it never rolls back prior spawns (§4.6).
func (c *Coordinator) CreateTeam(ctx context.Context, spec Spec, hasInterface func(string) bool) TeamResult {
	total := totalMembers(spec.Members)
	if total < 1 || total > 20 {
		return TeamResult{Error: &InvalidTeamSizeError{Size: total}}
	}
	if !teamNamePattern.MatchString(spec.Name) {
		return TeamResult{Error: fmt.Errorf("team: invalid team name %q", spec.Name)}
	}

	team := target.Team{ID: uuid.NewString(), Name: spec.Name, Strategy: spec.Strategy, ProjectPath: spec.CWD}
	for _, m := range spec.Members {
		for i := 0; i < m.Count; i++ {
			agentRole := m.Role
			var t target.Target
			var err error
			if agentRole == role.PM {
				t, err = c.SpawnPM(ctx, spec.Name, spec.CWD, m.Briefing, hasInterface)
			} else {
				t, err = c.SpawnAgent(ctx, agentRole, spec.Name, spec.CWD, m.Briefing, hasInterface)
			}
			if err != nil {
				return TeamResult{Team: team, Error: err}
			}
			team.Members = append(team.Members, target.Agent{Target: t, Role: agentRole})
		}
	}
	return TeamResult{Team: team}
}
