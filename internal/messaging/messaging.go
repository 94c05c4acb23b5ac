// Package messaging implements the delivery engine described in §4.5:
// clear input, paste literal text, press Enter, each as a separate tmux
// send-keys invocation with a configurable inter-step delay. A payload is
// never split across multiple send-keys calls.
package messaging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tmuxorc/tmuxorc/internal/cache"
	"github.com/tmuxorc/tmuxorc/internal/role"
	"github.com/tmuxorc/tmuxorc/internal/target"
	"github.com/tmuxorc/tmuxorc/internal/tmux"
)

// UrgentPrefix is prepended to broadcast text when opts.Urgent is set.
const UrgentPrefix = "🚨 URGENT: "

// Engine sends and broadcasts messages to agents.
type Engine struct {
	driver    *tmux.Driver
	cache     *cache.Cache
	stepDelay time.Duration
}

// New returns an Engine with the given inter-step delay (§4.5 default
// 500ms between clear→text and text→Enter).
func New(driver *tmux.Driver, c *cache.Cache, stepDelay time.Duration) *Engine {
	return &Engine{driver: driver, cache: c, stepDelay: stepDelay}
}

// SendMessage delivers text to t: clear pending input, paste the entire
// text as one literal payload (never chunked), then press Enter. It
// returns false — never an error — on delivery failure, per §7's C5
// propagation policy.
func (e *Engine) SendMessage(ctx context.Context, t target.Target, text string) bool {
	if !target.ValidSessionName(t.Session) {
		return false
	}
	exists, err := e.driver.HasSession(ctx, t.Session)
	if err != nil || !exists {
		return false
	}

	if err := e.driver.ClearInput(ctx, t); err != nil {
		return false
	}
	if e.stepDelay > 0 {
		if !sleep(ctx, e.stepDelay) {
			return false
		}
	}

	if err := e.driver.SendKeys(ctx, t, text, e.stepDelay, true); err != nil {
		return false
	}
	if e.stepDelay > 0 {
		if !sleep(ctx, e.stepDelay) {
			return false
		}
	}

	if err := e.driver.SendEnterRetry(ctx, t); err != nil {
		return false
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// Scope selects the candidate set for Broadcast.
type Scope struct {
	Session string // scope=session=S
	AllSessions bool
	Role    string // scope=role=R
	// Custom, when non-nil, is consulted per-candidate for scope=custom-filter(s,w).
	Custom func(t target.Target) bool
}

// BroadcastOptions tunes a Broadcast call.
type BroadcastOptions struct {
	Urgent  bool
	Exclude []target.Target
}

// BroadcastResult reports delivery outcomes, per target, for one
// Broadcast call.
type BroadcastResult struct {
	Sent   []target.Target
	Failed []target.Target
}

func excluded(t target.Target, list []target.Target) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

func matchesScope(scope Scope, a target.Agent) bool {
	switch {
	case scope.Custom != nil:
		return scope.Custom(a.Target)
	case scope.Role != "":
		return a.Role == scope.Role
	case scope.Session != "":
		return a.Target.Session == scope.Session
	case scope.AllSessions:
		return true
	default:
		return false
	}
}

// Broadcast enumerates candidate agents via the cache, filters by scope,
// and delivers text to each surviving target. Delivery is best-effort per
// target; both outcome lists are always returned, sorted by (session,
// window) ascending to keep CLI output deterministic.
func (e *Engine) Broadcast(ctx context.Context, scope Scope, text string, opts BroadcastOptions) (BroadcastResult, error) {
	agents, err := e.cache.DiscoverAgents(ctx)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("messaging: discovering agents: %w", err)
	}

	payload := text
	if opts.Urgent {
		payload = UrgentPrefix + text
	}

	var result BroadcastResult
	for _, a := range agents {
		if !matchesScope(scope, a) {
			continue
		}
		if excluded(a.Target, opts.Exclude) {
			continue
		}
		if e.SendMessage(ctx, a.Target, payload) {
			result.Sent = append(result.Sent, a.Target)
		} else {
			result.Failed = append(result.Failed, a.Target)
		}
	}
	sortTargets(result.Sent)
	sortTargets(result.Failed)
	return result, nil
}

func sortTargets(ts []target.Target) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Session != ts[j].Session {
			return ts[i].Session < ts[j].Session
		}
		return ts[i].Window < ts[j].Window
	})
}

// AlertBody renders the §4.4.1 status-alert message template. Either
// section is omitted entirely when its list is empty.
func AlertBody(crashed, idle []target.Agent) string {
	var b strings.Builder
	b.WriteString("⚠️ Agent Status Alert:\n")
	if len(crashed) > 0 {
		b.WriteString("\n🔴 CRASHED AGENTS:\n")
		for _, a := range crashed {
			fmt.Fprintf(&b, "  • %s (%s)\n", a.Role, a.Target.String())
		}
	}
	if len(idle) > 0 {
		b.WriteString("\n🟡 IDLE AGENTS:\n")
		for _, a := range idle {
			fmt.Fprintf(&b, "  • %s (%s)\n", a.Role, a.Target.String())
		}
	}
	b.WriteString("\nPlease investigate and take action.")
	return b.String()
}

// FindPM returns the PM agent for a session among candidates, or false if
// none exists.
func FindPM(session string, agents []target.Agent) (target.Agent, bool) {
	for _, a := range agents {
		if a.Target.Session == session && a.Role == role.PM {
			return a, true
		}
	}
	return target.Agent{}, false
}
