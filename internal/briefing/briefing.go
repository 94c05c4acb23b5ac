// Package briefing implements the Context store consumer side of §6's
// external interface: a flat directory of per-role briefing markdown
// files, with a single LoadContext(role) operation. It also offers an
// optional glamour-rendered preview for interactive CLI use — the Context
// store itself is an external collaborator, not a template engine the
// core owns.
package briefing

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/glamour"
)

// MissingRoleError is returned by LoadContext when no briefing file
// exists for the requested role.
type MissingRoleError struct {
	Role string
	Dir  string
}

func (e *MissingRoleError) Error() string {
	return fmt.Sprintf("briefing: no context file for role %q in %s", e.Role, e.Dir)
}

// Store reads role briefings from a flat directory, one file per role
// named "<role>.md" (case-insensitive on the role name).
type Store struct {
	dir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(role string) string {
	return filepath.Join(s.dir, normalizeRoleName(role)+".md")
}

func normalizeRoleName(role string) string {
	out := make([]rune, 0, len(role))
	for _, r := range role {
		if r >= 'A' && r <= 'Z' {
			r = r + ('a' - 'A')
		}
		out = append(out, r)
	}
	return string(out)
}

// LoadContext implements the §6 external interface: returns the briefing
// text for role, or a MissingRoleError if no file exists.
func (s *Store) LoadContext(role string) (string, error) {
	path := s.path(role)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &MissingRoleError{Role: role, Dir: s.dir}
		}
		return "", fmt.Errorf("briefing: reading %s: %w", path, err)
	}
	return string(data), nil
}

// RenderPreview renders markdown briefing text for terminal display,
// used only by the interactive `briefing preview` CLI command — the core
// spawn path sends the raw markdown text to the agent pane unrendered.
func RenderPreview(markdown string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", fmt.Errorf("briefing: building renderer: %w", err)
	}
	out, err := r.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("briefing: rendering: %w", err)
	}
	return out, nil
}
