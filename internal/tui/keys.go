package tui

// Key strings as bubbletea reports them.
const (
	KeyTab      = "tab"
	KeyShiftTab = "shift+tab"
	KeyQuit     = "q"
	KeyCtrlC    = "ctrl+c"
	KeyUp       = "up"
	KeyDown     = "down"
	KeyJ        = "j"
	KeyK        = "k"
	KeySettings = "s"
)

// HelpView renders the bottom help bar.
func HelpView() string {
	return StyleHelp.Render("Tab: cycle focus | j/k: select stage | s: settings | q: quit")
}
