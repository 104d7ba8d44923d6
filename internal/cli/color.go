package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	passStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	warnStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	labelStyle = lipgloss.NewStyle().Faint(true)
)

// painter renders styled text, or plain text when output is not a terminal.
type painter struct {
	color bool
}

func newPainter(w io.Writer) painter {
	return painter{color: isTerminal(w)}
}

func (p painter) render(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p painter) Pass(text string) string  { return p.render(passStyle, text) }
func (p painter) Fail(text string) string  { return p.render(failStyle, text) }
func (p painter) Warn(text string) string  { return p.render(warnStyle, text) }
func (p painter) Label(text string) string { return p.render(labelStyle, text) }
