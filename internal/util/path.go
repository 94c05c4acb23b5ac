// Package util holds small filesystem helpers shared across the daemon and
// CLI, where pulling in a dependency for one function would be overkill.
package util

import (
	"os"
	"strings"
	"sync"
)

var homeDirOnce struct {
	sync.Once
	dir string
}

// userHome resolves the current user's home directory once per process and
// reuses the result for every later call.
func userHome() string {
	homeDirOnce.Do(func() {
		homeDirOnce.dir, _ = os.UserHomeDir()
	})
	return homeDirOnce.dir
}

// ExpandHome rewrites a leading "~/" to the resolved home directory. Any
// other form — a bare "~", a "~user/" prefix, or a path without a tilde — is
// returned untouched, since only the single-user "~/" shorthand is
// supported here.
func ExpandHome(path string) string {
	const prefix = "~/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	home := userHome()
	if home == "" {
		return path
	}
	return home + strings.TrimPrefix(path, "~")
}
