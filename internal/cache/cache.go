// Package cache wraps internal/tmux with TTL memoization and the
// fleet-wide batch discovery operations built on top of it.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tmuxorc/tmuxorc/internal/role"
	"github.com/tmuxorc/tmuxorc/internal/target"
	"github.com/tmuxorc/tmuxorc/internal/tmux"
)

// claudeWindowSubstrings is the §4.2 step 2 filter: a window is a
// candidate agent window if its lowercased name contains any of these.
var claudeWindowSubstrings = []string{
	"claude", "pm", "developer", "qa", "devops", "reviewer", "backend", "frontend",
}

const (
	// DefaultTTL is the normal memoization window for list reads.
	DefaultTTL = 5 * time.Second
	// ExtendedTTL is selectable for whole-fleet listings that tolerate
	// slightly staler data in exchange for fewer tmux invocations.
	ExtendedTTL = 10 * time.Second
	// activeThreshold is how recently a pane must have had activity
	// (per pane_activity) to be reported Active by the fast path.
	activeThreshold = 300 * time.Second
)

type entry struct {
	value    any
	writeAt  time.Time
	validFor time.Duration
}

func (e entry) fresh(now time.Time) bool {
	return !e.writeAt.IsZero() && now.Sub(e.writeAt) < e.validFor
}

// Cache memoizes C1 list reads and exposes batch discovery. A single mutex
// guards the table with no nested locking, matching §4.4's stated
// threading model: single writer per key, many readers.
type Cache struct {
	driver *tmux.Driver

	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
}

// New returns a Cache wrapping driver with the default TTL.
func New(driver *tmux.Driver) *Cache {
	return &Cache{driver: driver, entries: map[string]entry{}, ttl: DefaultTTL}
}

// NewExtended returns a Cache using the 10s extended TTL.
func NewExtended(driver *tmux.Driver) *Cache {
	return &Cache{driver: driver, entries: map[string]entry{}, ttl: ExtendedTTL}
}

func (c *Cache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !e.fresh(time.Now()) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, writeAt: time.Now(), validFor: c.ttl}
}

// Invalidate clears the entire cache. Any tmux operation that mutates
// session/window topology (create or kill) must call this — §4.2 treats
// the memoized tables as all-or-nothing, never partially stale.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = map[string]entry{}
}

// ListSessions returns memoized session names.
func (c *Cache) ListSessions(ctx context.Context) ([]string, error) {
	const key = "sessions"
	if v, ok := c.get(key); ok {
		return v.([]string), nil
	}
	sessions, err := c.driver.ListSessions(ctx)
	if err != nil {
		if tmux.Is(err, tmux.KindTimeout) {
			return nil, nil
		}
		return nil, err
	}
	c.put(key, sessions)
	return sessions, nil
}

// ListWindows returns memoized windows for a single session.
func (c *Cache) ListWindows(ctx context.Context, sess string) ([]target.Window, error) {
	key := "windows:" + sess
	if v, ok := c.get(key); ok {
		return v.([]target.Window), nil
	}
	windows, err := c.driver.ListWindows(ctx, sess)
	if err != nil {
		if tmux.Is(err, tmux.KindTimeout) {
			return nil, nil
		}
		return nil, err
	}
	c.put(key, windows)
	return windows, nil
}

// CreateSession creates a session via the underlying driver and
// invalidates the cache on success.
func (c *Cache) CreateSession(ctx context.Context, sess, workDir, command string) error {
	if err := c.driver.NewSession(ctx, sess, workDir, command); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// CreateWindow creates a window and invalidates the cache on success.
func (c *Cache) CreateWindow(ctx context.Context, sess, name, workDir, command string) (int, error) {
	idx, err := c.driver.NewWindow(ctx, sess, name, workDir, command)
	if err != nil {
		return 0, err
	}
	c.Invalidate()
	return idx, nil
}

// KillWindow kills a window and invalidates the cache on success.
func (c *Cache) KillWindow(ctx context.Context, t target.Target) error {
	if err := c.driver.KillWindow(ctx, t); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// KillSession kills a session and invalidates the cache unconditionally —
// a missing session is not an error, but the topology may still have
// changed underneath a stale read.
func (c *Cache) KillSession(ctx context.Context, sess string) error {
	err := c.driver.KillSession(ctx, sess)
	c.Invalidate()
	return err
}

// isCandidateWindow reports whether a window name matches the §4.2 step 2
// agent-window filter.
func isCandidateWindow(name string) bool {
	lower := strings.ToLower(name)
	for _, sub := range claudeWindowSubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// DiscoverAgents is the §4.2 fast path: a single batch pane query,
// filtered to agent-shaped windows, with status derived from
// pane_activity recency rather than a snapshot diff. It is cheap enough to
// call on every list/status CLI invocation; it is not authoritative for
// crash/fresh/queued detection — callers needing that must use
// DeepDiscover.
func (c *Cache) DiscoverAgents(ctx context.Context) ([]target.Agent, error) {
	const key = "agents"
	if v, ok := c.get(key); ok {
		return v.([]target.Agent), nil
	}

	agents, err := c.discoverViaBatch(ctx)
	if err != nil || len(agents) == 0 {
		agents, err = c.discoverViaIteration(ctx)
		if err != nil {
			return nil, err
		}
		ApplyFastStatus(ctx, c.driver, agents, time.Now())
	}
	c.put(key, agents)
	return agents, nil
}

// discoverViaBatch is the real §4.1 ListPanesAll query: one "list-panes
// -a" subprocess for the whole fleet, filtered to agent-shaped windows,
// with status derived inline from the pane_activity column the query
// already returns (no further per-agent round trip needed).
func (c *Cache) discoverViaBatch(ctx context.Context) ([]target.Agent, error) {
	panes, err := c.driver.ListPanesAll(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var agents []target.Agent
	for _, p := range panes {
		if !isCandidateWindow(p.WindowName) {
			continue
		}
		activity := time.Unix(p.PaneActivity, 0)
		state := target.StateIdle
		if now.Sub(activity) < activeThreshold {
			state = target.StateActive
		}
		agents = append(agents, target.Agent{
			Target:           target.Target{Session: p.Session, Window: p.WindowIndex, HasWindow: true},
			Role:             role.FromWindowName(p.WindowName),
			State:            state,
			LastActivityTime: activity,
		})
	}
	sortAgents(agents)
	return agents, nil
}

func (c *Cache) discoverViaIteration(ctx context.Context) ([]target.Agent, error) {
	sessions, err := c.driver.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	var agents []target.Agent
	for _, sess := range sessions {
		windows, err := c.driver.ListWindows(ctx, sess)
		if err != nil {
			continue
		}
		for _, w := range windows {
			if !isCandidateWindow(w.Name) {
				continue
			}
			t := target.Target{Session: sess, Window: w.Index, HasWindow: true}
			agents = append(agents, target.Agent{
				Target: t,
				Role:   role.FromWindowName(w.Name),
				State:  target.StateUnknown,
			})
		}
	}
	sortAgents(agents)
	return agents, nil
}

func sortAgents(agents []target.Agent) {
	sort.Slice(agents, func(i, j int) bool {
		a, b := agents[i].Target, agents[j].Target
		if a.Session != b.Session {
			return a.Session < b.Session
		}
		return a.Window < b.Window
	})
}

// PaneActivitySource supplies the raw #{pane_activity} unix timestamp for
// a target, decoupled from DeepDiscover's snapshot capture so tests can
// fake activity recency without faking pane content.
type PaneActivitySource interface {
	PaneActivity(ctx context.Context, t target.Target) (int64, error)
}

// ApplyFastStatus derives Active/Idle/Unknown for each agent from its
// pane_activity timestamp, per §4.2 step 3. DiscoverAgents applies it to
// the agents found by its per-session fallback path; its batch path
// derives the same status inline.
func ApplyFastStatus(ctx context.Context, src PaneActivitySource, agents []target.Agent, now time.Time) {
	for i := range agents {
		ts, err := src.PaneActivity(ctx, agents[i].Target)
		if err != nil {
			agents[i].State = target.StateUnknown
			continue
		}
		activity := time.Unix(ts, 0)
		if now.Sub(activity) < activeThreshold {
			agents[i].State = target.StateActive
		} else {
			agents[i].State = target.StateIdle
		}
		agents[i].LastActivityTime = activity
	}
}

// Snapshotter captures the 4 timed snapshots that internal/classify needs.
// internal/monitor implements this against the real driver; DeepDiscover
// takes it as a parameter so it stays independently testable.
type Snapshotter func(ctx context.Context, t target.Target) ([]string, error)

// DeepDiscover re-walks the current topology like DiscoverAgents, but
// classifies every agent with a full snapshot sequence via snap instead of
// the pane_activity heuristic. This is the authoritative path — the
// Monitor always uses it — so the fan-out across agents is bounded by
// workerPoolSize goroutines instead of run one at a time, matching the
// concurrency bound the monitor's tick cadence depends on.
func (c *Cache) DeepDiscover(ctx context.Context, workerPoolSize int, snap Snapshotter, classify func([]string) target.AgentState) ([]target.Agent, error) {
	agents, err := c.discoverViaIteration(ctx)
	if err != nil {
		return nil, err
	}
	if workerPoolSize <= 0 {
		workerPoolSize = 1
	}

	sem := make(chan struct{}, workerPoolSize)
	var wg sync.WaitGroup
	for i := range agents {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			snapshots, err := snap(ctx, agents[idx].Target)
			if err != nil {
				agents[idx].State = target.StateUnknown
				return
			}
			agents[idx].State = classify(snapshots)
			if len(snapshots) > 0 {
				agents[idx].LastSnapshot = snapshots[len(snapshots)-1]
			}
			agents[idx].LastActivityTime = time.Now()
		}(i)
	}
	wg.Wait()
	return agents, nil
}
