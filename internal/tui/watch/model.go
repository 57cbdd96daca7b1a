package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/meshmgr/internal/events"
)

const (
	eventLogSize   = 50
	refreshEvery   = 5 * time.Second
	reconnectDelay = 3 * time.Second
)

type keyMap struct {
	Up   key.Binding
	Down key.Binding
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding  { return []key.Binding{k.Up, k.Down, k.Quit} }
func (k keyMap) FullHelp() [][]key.Binding { return [][]key.Binding{k.ShortHelp()} }

var keys = keyMap{
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "previous agent")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "next agent")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// HealthState tracks manager health from /healthz polling.
type HealthState struct {
	Status           string
	UptimeSeconds    int64
	AgentsLoaded     int
	LoopsRunning     int
	EventSubscribers int
	Connected        bool
}

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	client *client

	width  int
	height int

	health    HealthState
	agents    map[string]*AgentState
	eventLog  []events.Event
	lastID    int64
	lastEvent time.Time

	spinner  spinner.Model
	help     help.Model
	theme    Theme
	selected int

	hubEvents chan events.Event
	lastError string
}

// New creates a watch model for the admin API at apiURL.
func New(apiURL, token string) *Model {
	theme := NewDefaultTheme()
	return &Model{
		client:    newClient(apiURL, token),
		agents:    make(map[string]*AgentState),
		eventLog:  make([]events.Event, 0, eventLogSize),
		hubEvents: make(chan events.Event, 100),
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(theme.Spinner)),
		help:      help.New(),
		theme:     theme,
	}
}

// Run starts the dashboard and blocks until the user quits.
func Run(apiURL, token string) error {
	_, err := tea.NewProgram(New(apiURL, token), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.client.subscribe(0, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		m.client.fetchHealth,
		m.client.fetchAgents,
		m.spinner.Tick,
		tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) }),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.selected > 0 {
				m.selected--
			}
		case key.Matches(msg, keys.Down):
			if m.selected < len(m.agents)-1 {
				m.selected++
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tea.Batch(
			m.client.fetchHealth,
			m.client.fetchAgents,
			tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) }),
		)

	case eventMsg:
		e := events.Event(msg)
		if e.ID > m.lastID {
			m.lastID = e.ID
		}
		m.lastEvent = e.At

		m.eventLog = append([]events.Event{e}, m.eventLog...)
		if len(m.eventLog) > eventLogSize {
			m.eventLog = m.eventLog[:eventLogSize]
		}
		updateAgentState(m.agents, e)

		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case healthMsg:
		m.health = HealthState{
			Status:           msg.Status,
			UptimeSeconds:    msg.UptimeSeconds,
			AgentsLoaded:     msg.AgentsLoaded,
			LoopsRunning:     msg.LoopsRunning,
			EventSubscribers: msg.EventSubscribers,
			Connected:        true,
		}
		m.lastError = ""

	case agentsMsg:
		applyStatus(m.agents, msg)

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading the same channel, so
		// the new subscription only has to be started.
		return m, tea.Tick(reconnectDelay, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.client.subscribe(m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	parts := []string{
		m.renderHeader(),
		renderAgents(m.agents, m.selected, m.spinner.View(), m.theme, m.width),
		renderEventStream(m.eventLog, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	parts = append(parts, " "+m.help.View(keys))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

func (m Model) renderHeader() string {
	innerWidth := m.width - 4

	status := m.theme.StatusOK.Render("HEALTHY")
	switch {
	case !m.health.Connected:
		status = m.theme.StatusFailed.Render("CONNECTING")
	case m.health.Status != "ok" && m.health.Status != "":
		status = m.theme.StatusFailed.Render(strings.ToUpper(m.health.Status))
	}

	lastEvent := "never"
	if !m.lastEvent.IsZero() {
		lastEvent = formatAgo(time.Since(m.lastEvent))
	}

	title := " MESHMGR WATCH " + m.theme.Dim.Render(m.client.baseURL)
	clock := m.theme.Dim.Render(time.Now().Format("15:04:05"))
	pad := max(innerWidth-lipgloss.Width(title)-lipgloss.Width(clock)-4, 1)

	content := lipgloss.JoinVertical(lipgloss.Left,
		title+strings.Repeat(" ", pad)+clock+" ",
		fmt.Sprintf(" %s  ⏱ %s  Agents: %d  Loops running: %d  Watchers: %d",
			status,
			formatDuration(time.Duration(m.health.UptimeSeconds)*time.Second),
			m.health.AgentsLoaded,
			m.health.LoopsRunning,
			m.health.EventSubscribers,
		),
		fmt.Sprintf(" Last event: %s", lastEvent),
	)
	return m.theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
