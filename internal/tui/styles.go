package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#1a1a2e")).
			Padding(0, 1)

	statusLineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	spinnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5599FF"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5599FF"))

	toastStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700")).
			Padding(0, 1)

	toastErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4444")).
			Padding(0, 1)

	hotkeysStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 1)

	statusConnected  = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusConnecting = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFAA00"))
	statusDown       = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444"))
)
