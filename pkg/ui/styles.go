package ui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	userStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	systemStyle   = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("#AFAFAF"))
	composeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	noticeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	badgeOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badgeOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	badgeUnknown  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	widgetStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)
