package team

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tmuxorc/tmuxorc/internal/cache"
	"github.com/tmuxorc/tmuxorc/internal/tmux"
)

type fakeRunner struct {
	calls       [][]string
	responses   map[string]string
	fail        map[string]bool
	newWindowIx string
}

func (f *fakeRunner) Run(ctx context.Context, args ...string) (string, error) {
	f.calls = append(f.calls, append([]string(nil), args...))
	if f.fail[args[0]] {
		return "", &tmux.TmuxError{Kind: tmux.KindNonZeroExit, Op: args[0]}
	}
	if args[0] == "new-window" {
		if f.newWindowIx != "" {
			return f.newWindowIx, nil
		}
		return "0", nil
	}
	return f.responses[args[0]], nil
}

type fakeContextStore map[string]string

func (f fakeContextStore) LoadContext(r string) (string, error) {
	v, ok := f[r]
	if !ok {
		return "", &missingRoleError{role: r}
	}
	return v, nil
}

type missingRoleError struct{ role string }

func (e *missingRoleError) Error() string { return "no briefing for role " + e.role }

func newTestCoordinator(r *fakeRunner, ctxStore ContextStore) *Coordinator {
	driver := tmux.NewWithRunner(r)
	c := New(driver, cache.New(driver), ctxStore, "claude")
	c.startupWait = time.Millisecond
	c.pollInterval = time.Millisecond
	return c
}

func alwaysReady(content string) bool { return strings.Contains(content, "? for shortcuts") }

func TestSpawnAgent_CreatesSessionWhenAbsent(t *testing.T) {
	r := &fakeRunner{
		responses: map[string]string{"capture-pane": "? for shortcuts"},
		fail:      map[string]bool{"has-session": true},
	}
	c := newTestCoordinator(r, fakeContextStore{})
	tgt, err := c.SpawnAgent(context.Background(), "Backend", "proj", "/work", "", alwaysReady)
	if err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}
	if tgt.Session != "proj" || tgt.Window != 0 {
		t.Errorf("unexpected target: %+v", tgt)
	}
	foundNewSession := false
	for _, call := range r.calls {
		if call[0] == "new-session" {
			foundNewSession = true
		}
	}
	if !foundNewSession {
		t.Error("expected a new-session call for an absent session")
	}
}

func TestSpawnAgent_AppendsWindowWhenSessionExists(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{
		"has-session":  "",
		"list-windows": "0\tClaude-pm\t1",
		"capture-pane": "? for shortcuts",
	}}
	c := newTestCoordinator(r, fakeContextStore{})
	_, err := c.SpawnAgent(context.Background(), "Backend", "proj", "/work", "", alwaysReady)
	if err != nil {
		t.Fatalf("SpawnAgent: %v", err)
	}
	for _, call := range r.calls {
		if call[0] == "new-session" {
			t.Error("did not expect new-session when session already exists")
		}
	}
}

func TestSpawnAgent_RoleConflictForPM(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{
		"has-session":  "",
		"list-windows": "0\tClaude-pm\t1",
	}}
	c := newTestCoordinator(r, fakeContextStore{})
	_, err := c.SpawnAgent(context.Background(), "PM", "proj", "/work", "", alwaysReady)
	var conflict *RoleConflictError
	if err == nil {
		t.Fatal("expected RoleConflictError")
	}
	if rc, ok := err.(*RoleConflictError); ok {
		conflict = rc
	}
	if conflict == nil {
		t.Fatalf("expected *RoleConflictError, got %T: %v", err, err)
	}
	for _, call := range r.calls {
		if call[0] == "new-window" {
			t.Error("no new-window call expected on role conflict")
		}
	}
}

func TestSpawnAgent_InterfaceNeverDetected(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{
		"capture-pane": "not ready yet",
	}}
	c := newTestCoordinator(r, fakeContextStore{})
	_, err := c.SpawnAgent(context.Background(), "Backend", "proj", "/work", "", alwaysReady)
	if _, ok := err.(*ClaudeInterfaceNotDetectedError); !ok {
		t.Fatalf("expected ClaudeInterfaceNotDetectedError, got %T: %v", err, err)
	}
}

func TestSpawnPM_ConcatenatesExtension(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{"capture-pane": "? for shortcuts"}}
	c := newTestCoordinator(r, fakeContextStore{"PM": "base briefing"})
	_, err := c.SpawnPM(context.Background(), "proj", "/work", "extra instructions", alwaysReady)
	if err != nil {
		t.Fatalf("SpawnPM: %v", err)
	}
	found := false
	for _, call := range r.calls {
		for _, a := range call {
			if strings.Contains(a, "Additional Instructions") && strings.Contains(a, "extra instructions") {
				found = true
			}
		}
	}
	if !found {
		t.Error("expected extended briefing to be sent")
	}
}

func TestValidateProfile(t *testing.T) {
	if err := ValidateProfile(""); err != nil {
		t.Errorf("empty profile should be valid, got %v", err)
	}
	if err := ValidateProfile("team-a_1"); err != nil {
		t.Errorf("valid profile rejected: %v", err)
	}
	if err := ValidateProfile("a; rm -rf /"); err == nil {
		t.Error("expected injection-shaped profile to be rejected")
	}
}

func TestCreateTeam_RejectsInvalidSize(t *testing.T) {
	r := &fakeRunner{}
	c := newTestCoordinator(r, fakeContextStore{})
	result := c.CreateTeam(context.Background(), Spec{Name: "team1", Members: nil}, alwaysReady)
	if _, ok := result.Error.(*InvalidTeamSizeError); !ok {
		t.Fatalf("expected InvalidTeamSizeError for size 0, got %v", result.Error)
	}

	members := make([]Member, 21)
	for i := range members {
		members[i] = Member{Role: "Backend", Count: 1}
	}
	result = c.CreateTeam(context.Background(), Spec{Name: "team1", Members: members}, alwaysReady)
	if _, ok := result.Error.(*InvalidTeamSizeError); !ok {
		t.Fatalf("expected InvalidTeamSizeError for size 21, got %v", result.Error)
	}
}

func TestCreateTeam_SpawnsAllMembers(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{"capture-pane": "? for shortcuts"}}
	c := newTestCoordinator(r, fakeContextStore{"PM": "pm briefing"})
	spec := Spec{
		Name:     "team1",
		Strategy: "hub_and_spoke",
		Members: []Member{
			{Role: "PM", Count: 1},
			{Role: "Backend", Count: 2},
		},
	}
	result := c.CreateTeam(context.Background(), spec, alwaysReady)
	if result.Error != nil {
		t.Fatalf("CreateTeam: %v", result.Error)
	}
	if len(result.Team.Members) != 3 {
		t.Fatalf("expected 3 spawned members, got %d", len(result.Team.Members))
	}
}

func TestKillAll_OnlyTargetsClaudeWindows(t *testing.T) {
	r := &fakeRunner{responses: map[string]string{
		"list-windows": "0\tClaude-pm\t1\n1\tscratch\t0",
	}}
	c := newTestCoordinator(r, fakeContextStore{})
	if err := c.KillAll(context.Background(), "proj"); err != nil {
		t.Fatalf("KillAll: %v", err)
	}
	killed := 0
	for _, call := range r.calls {
		if call[0] == "kill-window" {
			killed++
		}
	}
	if killed != 1 {
		t.Errorf("expected exactly 1 kill-window call, got %d", killed)
	}
}
