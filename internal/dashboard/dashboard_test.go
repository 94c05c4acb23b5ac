package dashboard

import (
	"fmt"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tmuxorc/tmuxorc/internal/target"
)

func TestUpdateQuitKeys(t *testing.T) {
	msgs := []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune("q")},
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyEsc},
	}
	for _, msg := range msgs {
		m := NewModel(nil)
		_, cmd := m.Update(msg)
		if cmd == nil {
			t.Fatalf("key %q: expected a quit command", msg.String())
		}
	}
}

func TestUpdateFetchMsgStoresAgents(t *testing.T) {
	m := NewModel(nil)
	agents := []target.Agent{
		{Target: target.Target{Session: "proj", Window: 1, HasWindow: true}, Role: "Backend", State: target.StateActive},
	}
	m.Update(fetchMsg{agents: agents})

	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.agents) != 1 || m.agents[0].Role != "Backend" {
		t.Fatalf("agents not stored: %+v", m.agents)
	}
}

func TestViewRendersErrorAndAgents(t *testing.T) {
	m := NewModel(nil)
	m.Update(fetchMsg{err: fmt.Errorf("boom")})
	if out := m.View(); out == "" {
		t.Fatal("expected non-empty error view")
	}

	m.Update(fetchMsg{agents: []target.Agent{
		{Target: target.Target{Session: "proj", Window: 2, HasWindow: true}, Role: "QA", State: target.StateIdle},
	}})
	out := m.View()
	if out == "" {
		t.Fatal("expected non-empty agent view")
	}
}

func TestViewConcurrentWithFetch(t *testing.T) {
	m := NewModel(nil)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			m.Update(fetchMsg{agents: []target.Agent{
				{Target: target.Target{Session: "proj", Window: i, HasWindow: true}, Role: "Backend"},
			}})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = m.View()
		}
	}()

	wg.Wait()
}

func TestBadgeCoversEveryState(t *testing.T) {
	states := []target.AgentState{
		target.StateUnknown, target.StateActive, target.StateIdle, target.StateFresh,
		target.StateMessageQueued, target.StateCrashed, target.StateError,
	}
	for _, s := range states {
		if badge(s) == "" {
			t.Fatalf("state %v: empty badge", s)
		}
	}
}
