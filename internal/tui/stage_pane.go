package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mbiome/ampliconflow/internal/events"
)

// StageState tracks one pipeline stage for display.
type StageState struct {
	ID        string
	Status    string // "running", "completed", "skipped", "failed"
	Output    []string
	StartTime time.Time
	Duration  time.Duration
}

// StagePaneModel shows the stage list alongside a scrollable viewport
// with the selected stage's captured tool output.
type StagePaneModel struct {
	stages      map[string]*StageState // stage ID -> state
	stageOrder  []string               // first-event order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing viewport refreshes
}

// NewStagePaneModel creates a new stage pane model.
func NewStagePaneModel() StagePaneModel {
	vp := viewport.New(0, 0)
	return StagePaneModel{
		stages:   make(map[string]*StageState),
		viewport: vp,
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// track returns the state for a stage, registering it on first sight.
func (m *StagePaneModel) track(id string, ts time.Time) *StageState {
	if st, exists := m.stages[id]; exists {
		return st
	}
	st := &StageState{ID: id, Status: "pending", StartTime: ts}
	m.stages[id] = st
	m.stageOrder = append(m.stageOrder, id)
	if len(m.stageOrder) == 1 {
		m.selectedIdx = 0
	}
	return st
}

// Update handles messages for the stage pane.
func (m StagePaneModel) Update(msg tea.Msg) (StagePaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.stageOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.StageStartedEvent:
		st := m.track(msg.ID, msg.Timestamp)
		st.Status = "running"
		st.StartTime = msg.Timestamp
		if m.selectedStageID() == msg.ID {
			m.updateViewportContent()
		}

	case events.StageSkippedEvent:
		st := m.track(msg.ID, msg.Timestamp)
		st.Status = "skipped"
		st.Output = append(st.Output, "[Outputs present, skipped]")
		if m.selectedStageID() == msg.ID {
			m.updateViewportContent()
		}

	case events.StageOutputEvent:
		if st, exists := m.stages[msg.ID]; exists {
			st.Output = append(st.Output, msg.Line)
			if m.selectedStageID() == msg.ID {
				m.updateTag++
				tag := m.updateTag
				return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
					return tickMsg{tag: tag}
				})
			}
		}

	case events.StageCompletedEvent:
		if st, exists := m.stages[msg.ID]; exists {
			st.Status = "completed"
			st.Duration = msg.Duration
			st.Output = append(st.Output, fmt.Sprintf("\n[Completed in %v]", msg.Duration))
			if m.selectedStageID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case events.StageFailedEvent:
		if st, exists := m.stages[msg.ID]; exists {
			st.Status = "failed"
			st.Duration = msg.Duration
			st.Output = append(st.Output, fmt.Sprintf("\n[Failed: %v]", msg.Err))
			if m.selectedStageID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case tickMsg:
		// Only update if this tick matches the current tag (debouncing)
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// View renders the stage pane.
func (m StagePaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 25
	viewportWidth := m.width - listWidth - 4 // account for borders and padding

	listContent := m.renderStageList(listWidth)
	viewportContent := m.viewport.View()

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		listContent,
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(viewportContent),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// renderStageList renders the stage list column.
func (m StagePaneModel) renderStageList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Stages")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.stageOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	} else {
		for i, id := range m.stageOrder {
			st := m.stages[id]
			icon := m.StatusIcon(st.Status)
			name := id
			if len(name) > width-6 {
				name = name[:width-9] + "..."
			}

			line := fmt.Sprintf("%s %s", icon, name)
			if i == m.selectedIdx {
				line = lipgloss.NewStyle().
					Background(lipgloss.Color("62")).
					Foreground(lipgloss.Color("0")).
					Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func (m StagePaneModel) StatusIcon(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("●")
	case "completed":
		return StyleStatusComplete.Render("✓")
	case "skipped":
		return StyleStatusSkipped.Render("≡")
	case "failed":
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// selectedStageID returns the stage ID of the current selection.
func (m StagePaneModel) selectedStageID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.stageOrder) {
		return m.stageOrder[m.selectedIdx]
	}
	return ""
}

// updateViewportContent updates the viewport with the selected stage's output.
func (m *StagePaneModel) updateViewportContent() {
	id := m.selectedStageID()
	if id == "" {
		m.viewport.SetContent("Waiting for stages...")
		return
	}

	st, exists := m.stages[id]
	if !exists {
		m.viewport.SetContent("Waiting for stages...")
		return
	}

	m.viewport.SetContent(strings.Join(st.Output, "\n"))
	m.viewport.GotoBottom()
}

// resizeViewport resizes the viewport based on pane dimensions.
func (m *StagePaneModel) resizeViewport() {
	listWidth := 25
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 4

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *StagePaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *StagePaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
