package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestPIDFile_AcquireAndRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.pid")
	p := NewPIDFile(path)

	if err := p.Acquire(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	got, err := strconv.Atoi(string(data[:len(data)-1])) // trim trailing newline
	if err != nil {
		t.Fatalf("parsing pid file contents %q: %v", data, err)
	}
	if got != os.Getpid() {
		t.Errorf("pid file contains %d, want %d", got, os.Getpid())
	}

	if err := p.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected pid file to be removed after Release")
	}
}

func TestPIDFile_AcquireFailsWhileOwnerAlive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := NewPIDFile(path)
	err := p.Acquire()
	if _, ok := err.(*AlreadyRunningError); !ok {
		t.Fatalf("expected *AlreadyRunningError, got %T: %v", err, err)
	}
}

func TestPIDFile_AcquireClearsStaleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.pid")
	// PID 999999 is not expected to exist on any test host.
	if err := os.WriteFile(path, []byte("999999\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	p := NewPIDFile(path)
	if err := p.Acquire(); err != nil {
		t.Fatalf("Acquire over stale pid file: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) == "999999\n" {
		t.Error("expected stale pid to be overwritten with the current process's pid")
	}
}

func TestPIDFile_ReleaseMissingIsNotError(t *testing.T) {
	p := NewPIDFile(filepath.Join(t.TempDir(), "absent.pid"))
	if err := p.Release(); err != nil {
		t.Errorf("Release on a never-acquired file should be a no-op, got %v", err)
	}
}

func TestCheckClockSkew_WithinBoundIsNil(t *testing.T) {
	if err := CheckClockSkew(time.Now(), 24*time.Hour); err != nil {
		t.Errorf("expected no skew error, got %v", err)
	}
}

func TestCheckClockSkew_ExceedsBound(t *testing.T) {
	stale := time.Now().Add(-25 * time.Hour)
	if err := CheckClockSkew(stale, 24*time.Hour); err == nil {
		t.Error("expected an error for a reference point 25h in the past")
	}
}

func TestLifecycle_WaitForShutdownCancelsOnFirstSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.pid")
	l := NewLifecycle(path)
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()

	cancelled := make(chan struct{})
	done := make(chan struct{})
	go func() {
		l.WaitForShutdown(func() { close(cancelled) })
		close(done)
	}()

	l.sigCh <- os.Interrupt

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("expected cancel to be invoked promptly after a shutdown signal")
	}

	// A second signal should short-circuit the drain wait.
	l.sigCh <- os.Interrupt
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected WaitForShutdown to return promptly on a second signal")
	}
}
