package main

import "github.com/charmbracelet/lipgloss"

var (
	styleBanner = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	styleLevel  = map[string]lipgloss.Style{
		"safe":     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"cautious": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"risky":    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleWarn    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func renderLevel(level string) string {
	if s, ok := styleLevel[level]; ok {
		return s.Render("[" + level + "]")
	}
	return "[" + level + "]"
}
