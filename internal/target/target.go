// Package target implements the §3 data model shared by every other
// component: the Target addressing syntax (session:window[.pane]),
// Session/Window/Agent/Team records, and the AgentState enum, so every
// other package depends on one definition instead of parsing targets
// locally.
package target

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// sessionNamePattern is the §4.1 validation rule: a non-empty string over
// [A-Za-z0-9_-]. tmux itself accepts a much wider character set; this is
// the core's own conservative allowlist, not a tmux limitation.
var sessionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidSessionName reports whether s is a legal session name: non-empty,
// no whitespace, and drawn only from [A-Za-z0-9_-]. It also rejects the
// shell/tmux metacharacters named in §4.1 explicitly, though the allowlist
// above already excludes all of them.
func ValidSessionName(s string) bool {
	if s == "" || strings.ContainsRune(s, 0) {
		return false
	}
	return sessionNamePattern.MatchString(s)
}

// Target is the §3 addressable location of an agent: "session",
// "session:window", or "session:window.pane". It is comparable (usable as
// a map key) and its zero value is never a valid target.
type Target struct {
	Session   string
	Window    int
	HasWindow bool
	Pane      int
	HasPane   bool
}

// String renders t back into tmux's own addressing syntax.
func (t Target) String() string {
	if !t.HasWindow {
		return t.Session
	}
	if t.HasPane {
		return fmt.Sprintf("%s:%d.%d", t.Session, t.Window, t.Pane)
	}
	return fmt.Sprintf("%s:%d", t.Session, t.Window)
}

// InvalidTargetError reports a target string that failed §4.1 validation.
type InvalidTargetError struct {
	Input  string
	Reason string
}

func (e *InvalidTargetError) Error() string {
	return fmt.Sprintf("target: invalid target %q: %s", e.Input, e.Reason)
}

// ParseTarget parses a "session", "session:window", or
// "session:window.pane" string per §3/§4.1: session is a non-empty
// [A-Za-z0-9_-] string; window and pane are non-negative integers.
// A bare session name is a valid Target with HasWindow false; it only
// addresses Session-level operations.
func ParseTarget(s string) (Target, error) {
	if s == "" || strings.ContainsRune(s, 0) {
		return Target{}, &InvalidTargetError{Input: s, Reason: "empty or contains a null byte"}
	}

	colonIdx := strings.Index(s, ":")
	if colonIdx < 0 {
		if !ValidSessionName(s) {
			return Target{}, &InvalidTargetError{Input: s, Reason: "invalid session name"}
		}
		return Target{Session: s}, nil
	}

	session := s[:colonIdx]
	rest := s[colonIdx+1:]
	if !ValidSessionName(session) || rest == "" {
		return Target{}, &InvalidTargetError{Input: s, Reason: "exactly one colon with non-empty parts is required"}
	}

	windowPart := rest
	panePart := ""
	if dotIdx := strings.Index(rest, "."); dotIdx >= 0 {
		windowPart = rest[:dotIdx]
		panePart = rest[dotIdx+1:]
	}

	window, err := strconv.Atoi(windowPart)
	if err != nil || window < 0 {
		return Target{}, &InvalidTargetError{Input: s, Reason: "window must be a non-negative integer"}
	}

	t := Target{Session: session, Window: window, HasWindow: true}
	if panePart != "" {
		pane, err := strconv.Atoi(panePart)
		if err != nil || pane < 0 {
			return Target{}, &InvalidTargetError{Input: s, Reason: "pane must be a non-negative integer"}
		}
		t.Pane = pane
		t.HasPane = true
	}
	return t, nil
}

// Session is a tmux session's attributes, per §3.
type Session struct {
	Name      string
	CreatedAt time.Time
	Attached  bool
	Windows   []Window
}

// ClaudeWindowPrefix is the naming convention (§3) that the classifier
// treats as authoritative evidence a window hosts an agent.
const ClaudeWindowPrefix = "Claude-"

// Window is a pane container inside a session, per §3.
type Window struct {
	Index  int
	Name   string
	Active bool
}

// IsClaudeWindow reports whether a window name carries the Claude-<role>
// naming convention (case-sensitive on the prefix, per §3).
func IsClaudeWindow(name string) bool {
	return strings.HasPrefix(name, ClaudeWindowPrefix)
}

// AgentState is the §3 tagged enum describing an agent's classified
// lifecycle state.
type AgentState int

const (
	StateUnknown AgentState = iota
	StateActive
	StateIdle
	StateFresh
	StateMessageQueued
	StateCrashed
	StateError
)

// String renders the state's canonical name, used in logs and CLI text
// output.
func (s AgentState) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateIdle:
		return "Idle"
	case StateFresh:
		return "Fresh"
	case StateMessageQueued:
		return "MessageQueued"
	case StateCrashed:
		return "Crashed"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Agent is the logical (Target, role, state, snapshot, activity) tuple of
// §3. Agents are never persisted; they are rediscovered each scan.
type Agent struct {
	Target           Target
	Role             string
	State            AgentState
	LastSnapshot     string
	LastActivityTime time.Time
}

// CoordinationStrategy is a Team's coordination topology, per §3.
type CoordinationStrategy string

const (
	HubAndSpoke  CoordinationStrategy = "hub_and_spoke"
	PeerToPeer   CoordinationStrategy = "peer_to_peer"
	Hierarchical CoordinationStrategy = "hierarchical"
)

// ValidStrategy reports whether s is one of the three recognized
// coordination topologies.
func ValidStrategy(s CoordinationStrategy) bool {
	switch s {
	case HubAndSpoke, PeerToPeer, Hierarchical:
		return true
	default:
		return false
	}
}

// Team is the §3 (team-name, strategy, members, project-path) record. ID is
// a generated identifier distinct from Name, since Name is user-supplied and
// not guaranteed unique across a daemon's lifetime.
type Team struct {
	ID          string
	Name        string
	Strategy    CoordinationStrategy
	Members     []Agent
	ProjectPath string
}

// Hub returns the team's hub agent under hub_and_spoke: the PM member if
// present, else the first spawned member. ok is false for an empty team.
func (t Team) Hub(pmRole string) (Agent, bool) {
	for _, m := range t.Members {
		if m.Role == pmRole {
			return m, true
		}
	}
	if len(t.Members) > 0 {
		return t.Members[0], true
	}
	return Agent{}, false
}
