package briefing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadContext_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "pm.md"), []byte("You are the PM."), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := New(dir)
	got, err := s.LoadContext("PM")
	if err != nil {
		t.Fatalf("LoadContext: %v", err)
	}
	if got != "You are the PM." {
		t.Errorf("got %q", got)
	}
}

func TestLoadContext_MissingRole(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.LoadContext("Backend")
	if _, ok := err.(*MissingRoleError); !ok {
		t.Fatalf("expected *MissingRoleError, got %T: %v", err, err)
	}
}

func TestRenderPreview_NoError(t *testing.T) {
	if _, err := RenderPreview("# Hello\n\nBody text."); err != nil {
		t.Fatalf("RenderPreview: %v", err)
	}
}
