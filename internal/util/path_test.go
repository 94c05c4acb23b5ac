package util

import (
	"os"
	"testing"
)

func requireHome(t *testing.T) string {
	t.Helper()
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home directory")
	}
	return home
}

func TestExpandHome(t *testing.T) {
	home := requireHome(t)

	cases := []struct {
		name, in, want string
	}{
		{"tilde path", "~/.tmuxorc/work", home + "/.tmuxorc/work"},
		{"tilde slash only", "~/", home + "/"},
		{"absolute path unchanged", "/home/user/.config", "/home/user/.config"},
		{"relative path unchanged", "relative/path", "relative/path"},
		{"empty string unchanged", "", ""},
		{"bare tilde unchanged", "~", "~"},
		{"tilde-user form unchanged", "~otheruser/.config", "~otheruser/.config"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ExpandHome(c.in); got != c.want {
				t.Errorf("ExpandHome(%q) = %q, want %q", c.in, got, c.want)
			}
		})
	}
}
