package monitor

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmuxorc/tmuxorc/internal/cache"
	"github.com/tmuxorc/tmuxorc/internal/target"
	"github.com/tmuxorc/tmuxorc/internal/tmux"
)

type fakeRunner struct {
	mu           sync.Mutex
	calls        int
	sessions     string
	windows      string
	paneContents map[string]string // by session:window
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	switch args[0] {
	case "list-sessions":
		return f.sessions, nil
	case "list-windows":
		return f.windows, nil
	case "capture-pane":
		paneTarget := args[3] // capture-pane -p -t <target> -S ...
		return f.paneContents[paneTarget], nil
	}
	return "", nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []struct {
		target target.Target
		body   string
	}
}

func (r *recordingNotifier) SendMessage(ctx context.Context, t target.Target, text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, struct {
		target target.Target
		body   string
	}{t, text})
	return true
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestMonitor(r *fakeRunner, notifier Notifier) *Monitor {
	driver := tmux.NewWithRunner(r)
	c := cache.New(driver)
	m := New(driver, c, notifier, discardLogger(), Config{Interval: time.Hour, WorkerPoolSize: 4, IdleCycles: 3, IdleSeconds: 120})
	return m
}

func TestTick_CrashedAgentReportedToPM(t *testing.T) {
	snapshotInterval = time.Millisecond
	r := &fakeRunner{
		sessions: "proj",
		windows:  "0\tClaude-pm\t1\n1\tClaude-backend\t0",
		paneContents: map[string]string{
			"proj:0": "assistant: ok\n│ >\n╰─\n? for shortcuts",
			"proj:1": "some output\nuser@host:~$ ",
		},
	}
	notifier := &recordingNotifier{}
	m := newTestMonitor(r, notifier)
	m.tick(context.Background())

	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d: %+v", len(notifier.sent), notifier.sent)
	}
	sent := notifier.sent[0]
	if sent.target.Window != 0 {
		t.Errorf("expected notification to go to the PM window, got %+v", sent.target)
	}
	if !strings.Contains(sent.body, "CRASHED AGENTS") {
		t.Errorf("expected crashed section in body, got %q", sent.body)
	}
	if !strings.Contains(sent.body, "proj:1") {
		t.Errorf("expected proj:1 target mentioned, got %q", sent.body)
	}
}

func TestTick_NoPMDropsNotification(t *testing.T) {
	snapshotInterval = time.Millisecond
	r := &fakeRunner{
		sessions: "proj",
		windows:  "0\tClaude-backend\t0",
		paneContents: map[string]string{
			"proj:0": "some output\nuser@host:~$ ",
		},
	}
	notifier := &recordingNotifier{}
	m := newTestMonitor(r, notifier)
	m.tick(context.Background())
	if len(notifier.sent) != 0 {
		t.Errorf("expected no notification without a PM, got %+v", notifier.sent)
	}
}

func TestTick_NoCrashOrIdleSendsNothing(t *testing.T) {
	snapshotInterval = time.Millisecond
	content := "assistant: hi\n│ >\n╰─\n? for shortcuts"
	r := &fakeRunner{
		sessions: "proj",
		windows:  "0\tClaude-pm\t1\n1\tClaude-backend\t0",
		paneContents: map[string]string{
			"proj:0": content,
			"proj:1": content + "!", // static -> Idle, but a first observation is never reported idle
		},
	}
	notifier := &recordingNotifier{}
	m := newTestMonitor(r, notifier)
	m.tick(context.Background())
	if len(notifier.sent) != 0 {
		t.Errorf("expected no notification when no agent is crashed/idle, got %+v", notifier.sent)
	}
}

func TestReconcileAndReportedIdle_RequiresThreeCycles(t *testing.T) {
	r := &fakeRunner{}
	m := newTestMonitor(r, &recordingNotifier{})
	tg := target.Target{Session: "proj", Window: 1, HasWindow: true}

	// The first observation of a hash establishes the baseline — it is
	// neither a "change" with prior state nor an "unchanged repeat" yet.
	m.reconcile(tg, target.StateIdle, "samehash")
	if m.reportedIdle(tg) {
		t.Error("should not be reported idle on the baseline observation")
	}
	m.reconcile(tg, target.StateIdle, "samehash")
	if m.reportedIdle(tg) {
		t.Error("should not be reported idle after 1 repeat")
	}
	m.reconcile(tg, target.StateIdle, "samehash")
	if m.reportedIdle(tg) {
		t.Error("should not be reported idle after 2 repeats")
	}
	m.reconcile(tg, target.StateIdle, "samehash")
	if !m.reportedIdle(tg) {
		t.Error("should be reported idle after 3 repeats (default threshold)")
	}
}

func TestReconcile_HashChangeResetsIdleCycles(t *testing.T) {
	r := &fakeRunner{}
	m := newTestMonitor(r, &recordingNotifier{})
	tg := target.Target{Session: "proj", Window: 1, HasWindow: true}

	m.reconcile(tg, target.StateIdle, "hash-a")
	m.reconcile(tg, target.StateIdle, "hash-a")
	m.reconcile(tg, target.StateIdle, "hash-a")
	m.reconcile(tg, target.StateIdle, "hash-a")
	if !m.reportedIdle(tg) {
		t.Fatal("expected idle after reaching the repeat threshold")
	}
	m.reconcile(tg, target.StateActive, "hash-b")
	if m.reportedIdle(tg) {
		t.Error("expected a hash change to reset idle cycles")
	}
}

func TestPurgeMissing_DropsAfterTwoMisses(t *testing.T) {
	r := &fakeRunner{}
	m := newTestMonitor(r, &recordingNotifier{})
	tg := target.Target{Session: "proj", Window: 1, HasWindow: true}
	m.reconcile(tg, target.StateIdle, "h")

	m.purgeMissing(nil)
	m.mu.Lock()
	_, stillPresent := m.scratch[tg]
	m.mu.Unlock()
	if !stillPresent {
		t.Fatal("expected scratch entry to survive a single missed scan")
	}

	m.purgeMissing(nil)
	m.mu.Lock()
	_, stillPresent = m.scratch[tg]
	m.mu.Unlock()
	if stillPresent {
		t.Error("expected scratch entry to be purged after two consecutive missed scans")
	}
}

func TestClassifyAgent_EmptyCaptureReportsUnknown(t *testing.T) {
	snapshotInterval = time.Millisecond
	r := &fakeRunner{} // no pane content configured -> empty string -> Unknown
	m := newTestMonitor(r, &recordingNotifier{})
	tg := target.Target{Session: "proj", Window: 0, HasWindow: true}
	state, _ := m.classifyAgent(context.Background(), tg)
	if state != target.StateUnknown {
		t.Errorf("expected Unknown for empty capture, got %v", state)
	}
}
