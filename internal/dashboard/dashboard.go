// Package dashboard implements `monitor watch`, a live bubbletea view of
// every discovered agent's classified state.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tmuxorc/tmuxorc/internal/cache"
	"github.com/tmuxorc/tmuxorc/internal/style"
	"github.com/tmuxorc/tmuxorc/internal/target"
)

// keyMap holds the dashboard's key bindings plus a ShortHelp/FullHelp pair
// satisfying bubbles/help.KeyMap.
type keyMap struct {
	Quit    key.Binding
	Refresh key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:    key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
		Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh now")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// refreshInterval is how often the dashboard re-polls the cache. A var, not
// a const, so tests can shrink it.
var refreshInterval = 2 * time.Second

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Faint(true).Padding(0, 1)
)

// Model is the bubbletea model backing `monitor watch`.
type Model struct {
	cache *cache.Cache
	keys  keyMap
	help  help.Model

	mu     sync.RWMutex
	agents []target.Agent
	err    error
	width  int
	height int
}

// NewModel returns a dashboard polling c for agent state.
func NewModel(c *cache.Cache) *Model {
	return &Model{cache: c, keys: defaultKeyMap(), help: help.New()}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetch, tick())
}

type fetchMsg struct {
	agents []target.Agent
	err    error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) fetch() tea.Msg {
	agents, err := m.cache.DiscoverAgents(context.Background())
	return fetchMsg{agents: agents, err: err}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.mu.Unlock()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetch
		}
		return m, nil

	case fetchMsg:
		m.mu.Lock()
		m.agents, m.err = msg.agents, msg.err
		m.mu.Unlock()
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.fetch, tick())
	}
	return m, nil
}

func (m *Model) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	header := headerStyle.Render(fmt.Sprintf("tmux-orchestrator — %d agent(s)", len(m.agents)))
	if m.err != nil {
		return header + "\n" + panelStyle.Render(fmt.Sprintf("error: %v", m.err)) + "\n"
	}

	agents := make([]target.Agent, len(m.agents))
	copy(agents, m.agents)
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].Target.Session != agents[j].Target.Session {
			return agents[i].Target.Session < agents[j].Target.Session
		}
		return agents[i].Target.Window < agents[j].Target.Window
	})

	t := style.NewTable(
		style.Column{Name: "TARGET", Width: 22},
		style.Column{Name: "ROLE", Width: 14},
		style.Column{Name: "STATE", Width: 18},
	)
	for _, a := range agents {
		t.AddRow(a.Target.String(), a.Role, badge(a.State))
	}

	footer := footerStyle.Render(m.help.View(m.keys))
	return header + "\n" + panelStyle.Render(t.Render()) + "\n" + footer + "\n"
}

func badge(s target.AgentState) string {
	switch s {
	case target.StateActive:
		return "active"
	case target.StateIdle:
		return "idle"
	case target.StateFresh:
		return "fresh"
	case target.StateMessageQueued:
		return "message_queued"
	case target.StateCrashed:
		return "crashed"
	case target.StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Run blocks running the dashboard in the current terminal until the user
// quits.
func Run(c *cache.Cache) error {
	_, err := tea.NewProgram(NewModel(c), tea.WithAltScreen()).Run()
	return err
}
