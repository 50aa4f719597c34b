// Package ui renders terminal output for the edebt CLI.
//
// Styling is applied only when stdout is a terminal whose environment
// supports colour; otherwise every Render function returns its input.
package ui

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	mu      sync.RWMutex
	colored bool

	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#86d993"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#b26a00", Dark: "#ffcc66"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ff7a7a"}).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#73b8ff"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#757575", Dark: "#8a8a8a"})
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

func init() {
	SetColor(IsTerminal() && termenv.EnvColorProfile() != termenv.Ascii)
}

// IsTerminal reports whether stdout and stdin are terminals.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// SetColor turns styling on or off, e.g. for --no-color.
func SetColor(on bool) {
	mu.Lock()
	defer mu.Unlock()
	colored = on
	if on {
		lipgloss.SetColorProfile(termenv.EnvColorProfile())
	} else {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func render(style lipgloss.Style, s string) string {
	mu.RLock()
	defer mu.RUnlock()
	if !colored {
		return s
	}
	return style.Render(s)
}

// RenderPass renders a success marker.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn renders a warning marker.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail renders a failure marker.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent renders a heading marker.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderMuted renders secondary text.
func RenderMuted(s string) string { return render(mutedStyle, s) }

// RenderBold renders emphasized text.
func RenderBold(s string) string { return render(boldStyle, s) }
