// Package role derives an agent's logical role from its tmux window name.
// First match wins.
package role

import "strings"

// Known role names. PM and Orchestrator are unique-per-session; the rest
// may coexist (distinguished by a "-<n>" window-name suffix).
const (
	PM            = "PM"
	Orchestrator  = "Orchestrator"
	Frontend      = "Frontend"
	Backend       = "Backend"
	QA            = "QA"
	DevOps        = "DevOps"
	Reviewer      = "Reviewer"
	Writer        = "Writer"
	Database      = "Database"
	Developer     = "Developer" // default
)

// rule is one row of the §4.3 lookup table.
type rule struct {
	substrings []string
	role       string
}

// table is ordered; the first matching rule wins.
var table = []rule{
	{[]string{"pm", "project-manager", "manager"}, PM},
	{[]string{"orchestrator", "orc"}, Orchestrator},
	{[]string{"frontend"}, Frontend},
	{[]string{"backend"}, Backend},
	{[]string{"qa", "test"}, QA},
	{[]string{"devops", "ops"}, DevOps},
	{[]string{"reviewer", "review"}, Reviewer},
	{[]string{"docs", "writer", "documentation"}, Writer},
	{[]string{"db", "database", "data"}, Database},
}

// FromWindowName derives a role from a tmux window name. Unmatched names
// default to Developer.
func FromWindowName(windowName string) string {
	lower := strings.ToLower(windowName)
	for _, r := range table {
		for _, sub := range r.substrings {
			if strings.Contains(lower, sub) {
				return r.role
			}
		}
	}
	return Developer
}

// Unique reports whether a role may appear at most once per session
// (§4.6 role uniqueness: PM and Orchestrator).
func Unique(r string) bool {
	return r == PM || r == Orchestrator
}

// Valid reports whether r is a recognized role name (used by ConfigError
// InvalidRole validation in callers that accept a role from user input).
func Valid(r string) bool {
	switch r {
	case PM, Orchestrator, Frontend, Backend, QA, DevOps, Reviewer, Writer, Database, Developer:
		return true
	default:
		return false
	}
}
