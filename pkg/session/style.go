package session

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	colorUser      = lipgloss.Color("#88C0D0")
	colorAssistant = lipgloss.Color("#A3BE8C")
	colorError     = lipgloss.Color("#FF6B6B")
	colorSubtle    = lipgloss.Color("#666666")
)

// styler renders prompt labels. The zero value renders plain text.
type styler struct {
	enabled   bool
	user      lipgloss.Style
	assistant lipgloss.Style
	err       lipgloss.Style
	subtle    lipgloss.Style
}

// newStyler enables styling only when out is a terminal.
func newStyler(out io.Writer) styler {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return styler{}
	}
	return styler{
		enabled:   true,
		user:      lipgloss.NewStyle().Bold(true).Foreground(colorUser),
		assistant: lipgloss.NewStyle().Bold(true).Foreground(colorAssistant),
		err:       lipgloss.NewStyle().Bold(true).Foreground(colorError),
		subtle:    lipgloss.NewStyle().Foreground(colorSubtle),
	}
}

func (s styler) render(style lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return style.Render(text)
}

// Labels are styled without their trailing space.

func (s styler) userLabel() string      { return s.render(s.user, "You:") + " " }
func (s styler) assistantLabel() string { return s.render(s.assistant, "Assistant:") + " " }
func (s styler) errorLabel() string     { return s.render(s.err, "Error:") + " " }
func (s styler) note(text string) string {
	return s.render(s.subtle, text)
}
