package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/liangyou/nvc/internal/logging"
)

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	currentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)
)

// styles 只在终端输出时渲染颜色，管道与测试中保持纯文本。
type styles struct {
	enabled bool
}

func newStyles(w io.Writer) styles {
	return styles{enabled: logging.IsTerminal(w)}
}

func (s styles) render(style lipgloss.Style, text string) string {
	if !s.enabled {
		return text
	}
	return style.Render(text)
}

func (s styles) success(text string) string { return s.render(successStyle, text) }
func (s styles) current(text string) string { return s.render(currentStyle, text) }
func (s styles) dim(text string) string     { return s.render(mutedStyle, text) }

func (s styles) errorLine(msg string) string {
	return s.render(errorStyle, "error:") + " " + msg
}
