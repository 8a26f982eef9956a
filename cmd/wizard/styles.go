package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	passStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	titleStyle     = lipgloss.NewStyle().Bold(true)
)

// promptFor returns the input prompt, or nothing when stdin is piped.
func promptFor(f *os.File) string {
	if term.IsTerminal(int(f.Fd())) {
		return "> "
	}
	return ""
}
