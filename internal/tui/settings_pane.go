package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/mbiome/ampliconflow/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.PipelineConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget     string
	manifestFile   string
	classifierFile string
	outputDir      string
	qiimeCommand   string
	biomCommand    string
	combineCommand string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.PipelineConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		visible:     false,
		saved:       false,

		saveTarget:     "project",
		manifestFile:   cfg.ManifestFile,
		classifierFile: cfg.Taxonomy.Classifier,
		outputDir:      cfg.OutputDir,
		qiimeCommand:   cfg.Tools.Qiime,
		biomCommand:    cfg.Tools.Biom,
		combineCommand: cfg.Tools.Combine,
	}

	m.buildForm()
	return m
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.ampliconflow/config.json)", "global"),
					huh.NewOption("Project (.ampliconflow/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("manifestFile").
				Title("Manifest File").
				Value(&m.manifestFile).
				Placeholder("manifest.txt"),

			huh.NewInput().
				Key("classifierFile").
				Title("Taxonomy Classifier").
				Value(&m.classifierFile).
				Placeholder("classifier.qza"),

			huh.NewInput().
				Key("outputDir").
				Title("Output Directory").
				Value(&m.outputDir).
				Placeholder("output"),
		).Title("Pipeline Inputs"),

		huh.NewGroup(
			huh.NewInput().
				Key("qiimeCommand").
				Title("QIIME Command").
				Value(&m.qiimeCommand).
				Placeholder("qiime"),

			huh.NewInput().
				Key("biomCommand").
				Title("Biom Command").
				Value(&m.biomCommand).
				Placeholder("biom"),

			huh.NewInput().
				Key("combineCommand").
				Title("Combine Script").
				Value(&m.combineCommand).
				Placeholder("generate_combined_feature_table.py"),
		).Title("Tool Commands"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	// Delegate to form
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	// Check if form is completed
	if m.form.State == huh.StateCompleted {
		m.applyFormToConfig()

		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}

		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
		}

		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form field values back to the config struct.
func (m *SettingsPaneModel) applyFormToConfig() {
	m.config.ManifestFile = m.manifestFile
	m.config.Taxonomy.Classifier = m.classifierFile
	m.config.OutputDir = m.outputDir
	m.config.Tools.Qiime = m.qiimeCommand
	m.config.Tools.Biom = m.biomCommand
	m.config.Tools.Combine = m.combineCommand
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string

	if m.saved && m.form.State == huh.StateCompleted {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true).
			Render("✓ Settings saved successfully!")
	} else if m.err != nil {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	body := style.Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Rebuild the form to reset its state when showing
	if v && m.form != nil {
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
