// Package tui implements the watch-mode terminal UI: a stage list with
// live tool output, a pipeline progress pane, and a settings overlay.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mbiome/ampliconflow/internal/config"
	"github.com/mbiome/ampliconflow/internal/events"
)

// Pane focus targets
const (
	FocusStagePane = iota
	FocusProgressPane
	numPanes
)

// Model is the root TUI model.
type Model struct {
	stagePane    StagePaneModel
	progressPane ProgressPaneModel
	settingsPane SettingsPaneModel

	bus     *events.EventBus
	eventCh <-chan Event

	focus  int
	width  int
	height int
	done   bool
}

// Event aliases the bus event type so waitForEvent can wrap it in a tea.Msg.
type Event = events.Event

// eventMsg wraps a bus event for delivery through bubbletea.
type eventMsg struct {
	event Event
}

// busClosedMsg signals that the event bus was closed (pipeline finished).
type busClosedMsg struct{}

// NewModel creates the root model subscribed to the given bus.
func NewModel(bus *events.EventBus, cfg *config.PipelineConfig, globalPath, projectPath string) Model {
	m := Model{
		stagePane:    NewStagePaneModel(),
		progressPane: NewProgressPaneModel(),
		settingsPane: NewSettingsPaneModel(cfg, globalPath, projectPath),
		bus:          bus,
		eventCh:      bus.SubscribeAll(256),
		focus:        FocusStagePane,
	}
	m.stagePane.SetFocused(true)
	return m
}

// Init subscribes to bus events.
func (m Model) Init() tea.Cmd {
	return m.waitForEvent()
}

// waitForEvent returns a command that blocks for the next bus event.
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.eventCh
		if !ok {
			return busClosedMsg{}
		}
		return eventMsg{event: ev}
	}
}

// Update handles messages for the root model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case tea.KeyMsg:
		// Settings overlay captures all keys while visible
		if m.settingsPane.IsVisible() {
			var cmd tea.Cmd
			m.settingsPane, cmd = m.settingsPane.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			return m, tea.Quit

		case KeyTab:
			m.setFocus((m.focus + 1) % numPanes)
			return m, nil

		case KeyShiftTab:
			m.setFocus((m.focus + numPanes - 1) % numPanes)
			return m, nil

		case KeySettings:
			m.settingsPane.SetVisible(true)
			return m, m.settingsPane.Init()
		}

	case eventMsg:
		// Fan the event into both panes, then wait for the next one.
		var cmd tea.Cmd
		m.stagePane, cmd = m.stagePane.Update(msg.event)
		cmds = append(cmds, cmd)
		m.progressPane, cmd = m.progressPane.Update(msg.event)
		cmds = append(cmds, cmd)
		cmds = append(cmds, m.waitForEvent())
		return m, tea.Batch(cmds...)

	case busClosedMsg:
		m.done = true
		return m, nil
	}

	var cmd tea.Cmd
	m.stagePane, cmd = m.stagePane.Update(msg)
	cmds = append(cmds, cmd)
	m.progressPane, cmd = m.progressPane.Update(msg)
	cmds = append(cmds, cmd)

	if m.settingsPane.IsVisible() {
		m.settingsPane, cmd = m.settingsPane.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// layout recomputes pane sizes from the window dimensions.
func (m *Model) layout() {
	if m.width == 0 || m.height == 0 {
		return
	}

	helpHeight := 1
	contentHeight := m.height - helpHeight

	progressHeight := 12
	if progressHeight > contentHeight/2 {
		progressHeight = contentHeight / 2
	}
	stageHeight := contentHeight - progressHeight

	m.stagePane.SetSize(m.width, stageHeight)
	m.progressPane.SetSize(m.width, progressHeight)
	m.settingsPane.SetSize(m.width, contentHeight)
}

// setFocus moves focus to the given pane.
func (m *Model) setFocus(focus int) {
	m.focus = focus
	m.stagePane.SetFocused(focus == FocusStagePane)
	m.progressPane.SetFocused(focus == FocusProgressPane)
}

// View renders the full UI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.settingsPane.IsVisible() {
		return lipgloss.JoinVertical(
			lipgloss.Left,
			m.settingsPane.View(),
			StyleHelp.Render("Enter: save | Esc: cancel"),
		)
	}

	help := HelpView()
	if m.done {
		help = StyleHelp.Render("Pipeline finished | j/k: select stage | q: quit")
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.stagePane.View(),
		m.progressPane.View(),
		help,
	)
}
