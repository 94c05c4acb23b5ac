// Package monitor implements the concurrent pane-state monitor (C4): a
// ticker-driven loop that fans C3 classification out across every
// discovered agent with bounded concurrency, reconciles per-agent scratch
// state, and routes status-alert notifications to each session's PM.
package monitor

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/tmuxorc/tmuxorc/internal/cache"
	"github.com/tmuxorc/tmuxorc/internal/classify"
	"github.com/tmuxorc/tmuxorc/internal/messaging"
	"github.com/tmuxorc/tmuxorc/internal/target"
	"github.com/tmuxorc/tmuxorc/internal/tmux"
)

// snapshotInterval is the 300ms gap between the 4 captures C3 consumes.
// It is a var, not a const, so tests can shrink it instead of paying the
// full real-time delay.
var snapshotInterval = 300 * time.Millisecond

const snapshotCount = 4

// scratch is an agent's per-tick-reconciled state, keyed by Target and
// purged when the target disappears from two consecutive discovery scans
// (§4.1 ownership: the Monitor, not the Cache, owns this).
type scratch struct {
	lastHash       string
	lastChangeAt   time.Time
	idleCycles     int
	missedDiscover int
}

// Notifier is the subset of messaging.Engine the monitor depends on,
// narrowed to an interface so tests can substitute a recorder.
type Notifier interface {
	SendMessage(ctx context.Context, t target.Target, text string) bool
}

// Config tunes the monitor's tick cadence and worker bound.
type Config struct {
	Interval       time.Duration
	WorkerPoolSize int
	IdleCycles     int
	IdleSeconds    int
	WatchdogFactor int
}

// Monitor is the C4 daemon. It holds no exported state; Run drives
// everything through the injected collaborators.
type Monitor struct {
	driver    *tmux.Driver
	cache     *cache.Cache
	notifier  Notifier
	logger    *slog.Logger
	cfg       Config

	mu      sync.Mutex
	scratch map[target.Target]*scratch
}

// New returns a Monitor. logger must not be nil — every package in this
// tree threads its logger explicitly rather than reaching for a global.
func New(driver *tmux.Driver, c *cache.Cache, notifier Notifier, logger *slog.Logger, cfg Config) *Monitor {
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = 10
	}
	if cfg.IdleCycles <= 0 {
		cfg.IdleCycles = 3
	}
	if cfg.IdleSeconds <= 0 {
		cfg.IdleSeconds = 120
	}
	if cfg.WatchdogFactor <= 0 {
		cfg.WatchdogFactor = 4
	}
	return &Monitor{
		driver:   driver,
		cache:    c,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		scratch:  map[target.Target]*scratch{},
	}
}

// Run blocks until ctx is cancelled, ticking at cfg.Interval. Drift within
// a tick is absorbed by time.Ticker itself, which drops missed ticks
// rather than accumulating them — cadence is preserved at the cost of a
// skipped tick under sustained overrun, matching §4.4's monotonic-timer
// requirement.
func (m *Monitor) Run(ctx context.Context) {
	interval := m.cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m.logger.Info("monitor started", "interval", interval, "worker_pool_size", m.cfg.WorkerPoolSize)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor stopping")
			return
		case <-ticker.C:
			m.runTickWithWatchdog(ctx, interval)
		}
	}
}

// runTickWithWatchdog runs one tick on its own goroutine and force-returns
// control to the caller (abandoning that goroutine) if it exceeds
// interval*WatchdogFactor — the hard watchdog of §4.4. The abandoned
// goroutine still completes in the background; it cannot be killed from
// inside the Go runtime, so the watchdog's guarantee is "the loop keeps
// ticking," not "the overrunning call is terminated."
func (m *Monitor) runTickWithWatchdog(ctx context.Context, interval time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.tick(ctx)
	}()

	select {
	case <-done:
	case <-time.After(interval * time.Duration(m.cfg.WatchdogFactor)):
		m.logger.Error("monitor tick exceeded watchdog bound", "bound", interval*time.Duration(m.cfg.WatchdogFactor))
	}
}

// tick performs one full discover→classify→reconcile→notify pass. Discovery
// and classification both come from cache.DeepDiscover, which owns the
// bounded fan-out across agents; tick itself only reconciles and notifies.
func (m *Monitor) tick(ctx context.Context) {
	agents, err := m.cache.DeepDiscover(ctx, m.cfg.WorkerPoolSize, m.captureSnapshots, classify.Classify)
	if err != nil {
		m.logger.Error("monitor tick: discovery failed", "error", err)
		return
	}

	for i := range agents {
		m.reconcile(agents[i].Target, agents[i].State, agents[i].LastSnapshot)
	}
	m.purgeMissing(agents)
	m.dispatchNotifications(ctx, agents)
}

// captureSnapshots captures the 4 timed snapshots C3 consumes. A capture
// failure is reported up to the caller for this tick only; it is never
// retried within the tick (§4.4 failure semantics).
func (m *Monitor) captureSnapshots(ctx context.Context, t target.Target) ([]string, error) {
	snapshots := make([]string, 0, snapshotCount)
	for i := 0; i < snapshotCount; i++ {
		content, err := m.driver.CapturePane(ctx, t, 100)
		if err != nil {
			m.logger.Warn("monitor: capture failed", "target", t.String(), "error", err)
			return nil, err
		}
		snapshots = append(snapshots, content)
		if i < snapshotCount-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(snapshotInterval):
			}
		}
	}
	return snapshots, nil
}

// classifyAgent captures and classifies a single target directly, bypassing
// the Cache — used by callers that need a one-off classification outside
// the tick's fleet-wide discovery pass.
func (m *Monitor) classifyAgent(ctx context.Context, t target.Target) (target.AgentState, string) {
	snapshots, err := m.captureSnapshots(ctx, t)
	if err != nil {
		return target.StateUnknown, ""
	}
	state := classify.Classify(snapshots)
	last := snapshots[len(snapshots)-1]
	return state, last
}

// reconcile updates the per-target scratch state that reportedIdle reads
// (§4.4 step 4): a changed hash resets idle_cycles and last_change_at, and
// an unchanged hash on an Idle or Fresh agent increments idle_cycles.
func (m *Monitor) reconcile(t target.Target, state target.AgentState, hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.scratch[t]
	if !ok {
		s = &scratch{lastChangeAt: time.Now()}
		m.scratch[t] = s
	}
	s.missedDiscover = 0

	if hash != s.lastHash {
		s.lastHash = hash
		s.lastChangeAt = time.Now()
		s.idleCycles = 0
		return
	}

	if state == target.StateIdle || state == target.StateFresh {
		s.idleCycles++
	}
}

// reportedIdle reports whether target t currently satisfies the "reported
// idle" threshold from §4.4 step 4.
func (m *Monitor) reportedIdle(t target.Target) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scratch[t]
	if !ok {
		return false
	}
	threshold := m.cfg.IdleCycles
	if classify.HasCorroboratingIdlePhrase(s.lastHash) {
		threshold = 1
	}
	return s.idleCycles >= threshold || time.Since(s.lastChangeAt) > time.Duration(m.cfg.IdleSeconds)*time.Second
}

// purgeMissing drops scratch entries for targets absent from two
// consecutive discovery scans.
func (m *Monitor) purgeMissing(current []target.Agent) {
	present := make(map[target.Target]bool, len(current))
	for _, a := range current {
		present[a.Target] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for t, s := range m.scratch {
		if present[t] {
			continue
		}
		s.missedDiscover++
		if s.missedDiscover >= 2 {
			delete(m.scratch, t)
		}
	}
}

// dispatchNotifications builds and sends the §4.4.1 status alert to each
// session's PM, in session-name then target order. A session with no PM
// drops its notifications (logged once per tick, not per agent).
func (m *Monitor) dispatchNotifications(ctx context.Context, agents []target.Agent) {
	bySession := map[string][]target.Agent{}
	for _, a := range agents {
		bySession[a.Target.Session] = append(bySession[a.Target.Session], a)
	}

	sessions := make([]string, 0, len(bySession))
	for s := range bySession {
		sessions = append(sessions, s)
	}
	sort.Strings(sessions)

	for _, sess := range sessions {
		members := bySession[sess]
		sort.Slice(members, func(i, j int) bool { return members[i].Target.Window < members[j].Target.Window })

		pm, ok := messaging.FindPM(sess, members)
		var crashed, idle []target.Agent
		for _, a := range members {
			switch {
			case a.State == target.StateCrashed:
				crashed = append(crashed, a)
			case m.reportedIdle(a.Target):
				idle = append(idle, a)
			}
		}
		if len(crashed) == 0 && len(idle) == 0 {
			continue
		}
		if !ok {
			m.logger.Warn("monitor: no PM to notify", "session", sess)
			continue
		}

		// Self-notification guard: never send an agent's own alert to itself.
		crashed = excludeTarget(crashed, pm.Target)
		idle = excludeTarget(idle, pm.Target)
		if len(crashed) == 0 && len(idle) == 0 {
			continue
		}

		body := messaging.AlertBody(crashed, idle)
		if !m.notifier.SendMessage(ctx, pm.Target, body) {
			m.logger.Warn("monitor: notification send failed", "session", sess, "pm", pm.Target.String())
		}
	}
}

func excludeTarget(agents []target.Agent, t target.Target) []target.Agent {
	out := agents[:0:0]
	for _, a := range agents {
		if a.Target != t {
			out = append(out, a)
		}
	}
	return out
}
