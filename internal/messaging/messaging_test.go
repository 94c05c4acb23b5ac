package messaging

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tmuxorc/tmuxorc/internal/cache"
	"github.com/tmuxorc/tmuxorc/internal/target"
	"github.com/tmuxorc/tmuxorc/internal/tmux"
)

type fakeRunner struct {
	calls     [][]string
	responses map[string]string
	fail      map[string]bool
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string(nil), args...))
	if f.fail[args[0]] {
		return "", &tmux.TmuxError{Kind: tmux.KindNonZeroExit, Op: args[0]}
	}
	return f.responses[args[0]], nil
}

func mustTarget(t *testing.T, s string) target.Target {
	t.Helper()
	tg, err := target.ParseTarget(s)
	if err != nil {
		t.Fatalf("ParseTarget(%q): %v", s, err)
	}
	return tg
}

func newEngine(r *fakeRunner) *Engine {
	driver := tmux.NewWithRunner(r)
	c := cache.New(driver)
	return New(driver, c, time.Millisecond)
}

func TestSendMessage_FullSequence(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{"has-session": ""}}
	e := newEngine(r)
	tg := mustTarget(t, "proj:1")
	ok := e.SendMessage(context.Background(), tg, "run the tests")
	if !ok {
		t.Fatalf("expected SendMessage to succeed, calls: %v", r.calls)
	}
	// has-session, C-u, literal text, Enter
	if len(r.calls) != 4 {
		t.Fatalf("expected 4 subprocess calls, got %d: %v", len(r.calls), r.calls)
	}
	if r.calls[1][len(r.calls[1])-1] != "C-u" {
		t.Errorf("expected C-u as second call, got %v", r.calls[1])
	}
	if r.calls[3][len(r.calls[3])-1] != "Enter" {
		t.Errorf("expected Enter as final call, got %v", r.calls[3])
	}
}

func TestSendMessage_FailsIfNoSession(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"has-session": true}}
	e := newEngine(r)
	tg := mustTarget(t, "proj:1")
	if e.SendMessage(context.Background(), tg, "hi") {
		t.Error("expected SendMessage to fail when session absent")
	}
	if len(r.calls) != 1 {
		t.Errorf("expected exactly the has-session check, got %d calls", len(r.calls))
	}
}

func TestSendMessage_NoPartialSendOnClearFailure(t *testing.T) {
	r := &fakeRunner{fail: map[string]bool{"send-keys": true}}
	e := newEngine(r)
	tg := mustTarget(t, "proj:1")
	if e.SendMessage(context.Background(), tg, "hi") {
		t.Error("expected SendMessage to fail when clear step fails")
	}
}

func TestBroadcast_ByRole(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{
		"list-sessions": "a\nb\nc",
		"list-windows":  "0\tClaude-pm\t1\n1\tClaude-frontend-1\t0",
		"has-session":   "",
	}}
	e := newEngine(r)
	result, err := e.Broadcast(context.Background(), Scope{Role: "PM"}, "Standup now", BroadcastOptions{})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(result.Sent) != 3 {
		t.Fatalf("expected 3 PMs reached (one per session), got %d: %+v", len(result.Sent), result.Sent)
	}
	for _, tg := range result.Sent {
		if tg.Window != 0 {
			t.Errorf("expected only the PM window (index 0) to be targeted, got %v", tg)
		}
	}
}

func TestBroadcast_UrgentPrefix(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{
		"list-sessions": "a",
		"list-windows":  "0\tClaude-pm\t1",
		"has-session":   "",
	}}
	e := newEngine(r)
	_, err := e.Broadcast(context.Background(), Scope{AllSessions: true}, "deploy", BroadcastOptions{Urgent: true})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	found := false
	for _, call := range r.calls {
		for _, a := range call {
			if strings.Contains(a, UrgentPrefix) {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected urgent prefix to appear in a send-keys payload")
	}
}

func TestBroadcast_ExcludesRequestedTargets(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{
		"list-sessions": "a",
		"list-windows":  "0\tClaude-pm\t1\n1\tClaude-frontend-1\t0",
		"has-session":   "",
	}}
	e := newEngine(r)
	excludeTarget := target.Target{Session: "a", Window: 0, HasWindow: true}
	result, err := e.Broadcast(context.Background(), Scope{AllSessions: true}, "hi", BroadcastOptions{Exclude: []target.Target{excludeTarget}})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	for _, tg := range result.Sent {
		if tg == excludeTarget {
			t.Error("expected excluded target to be skipped")
		}
	}
}

func TestAlertBody_OmitsEmptySections(t *testing.T) {
	body := AlertBody(nil, []target.Agent{{Target: mustTarget(t, "proj:2"), Role: "Backend"}})
	if strings.Contains(body, "CRASHED") {
		t.Error("expected no CRASHED section when crashed list is empty")
	}
	if !strings.Contains(body, "IDLE AGENTS") {
		t.Error("expected IDLE AGENTS section")
	}
	if !strings.Contains(body, "proj:2") {
		t.Error("expected target to appear in the alert body")
	}
}

func TestFindPM(t *testing.T) {
	agents := []target.Agent{
		{Target: mustTarget(t, "proj:0"), Role: "PM"},
		{Target: mustTarget(t, "proj:1"), Role: "Backend"},
	}
	pm, ok := FindPM("proj", agents)
	if !ok {
		t.Fatal("expected to find PM")
	}
	if pm.Target.Window != 0 {
		t.Errorf("unexpected PM target: %+v", pm.Target)
	}
	if _, ok := FindPM("other", agents); ok {
		t.Error("expected no PM found for unrelated session")
	}
}
