package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/grovetools/cncctl/tui/theme"
)

// PrettyLogger provides pretty formatted console output for commands.
type PrettyLogger struct {
	writer io.Writer
	styles PrettyStyles
}

// PrettyStyles contains lipgloss styles for different output types
type PrettyStyles struct {
	Success lipgloss.Style
	Info    lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Key     lipgloss.Style
	Value   lipgloss.Style
}

// DefaultPrettyStyles returns the default styling derived from the active theme
func DefaultPrettyStyles() PrettyStyles {
	t := theme.DefaultTheme
	return PrettyStyles{
		Success: t.Success,
		Info:    t.Info,
		Warning: t.Warning,
		Error:   t.Error,
		Key:     t.Muted,
		Value:   t.Bold,
	}
}

// NewPrettyLogger creates a pretty logger writing to stdout
func NewPrettyLogger() *PrettyLogger {
	return &PrettyLogger{
		writer: os.Stdout,
		styles: DefaultPrettyStyles(),
	}
}

// WithWriter sets a custom writer for pretty output
func (p *PrettyLogger) WithWriter(w io.Writer) *PrettyLogger {
	p.writer = w
	return p
}

// Success prints a success message
func (p *PrettyLogger) Success(message string) {
	fmt.Fprintf(p.writer, "%s %s\n",
		p.styles.Success.Render(theme.IconSuccess),
		p.styles.Success.Render(message))
}

// Info prints an informational message
func (p *PrettyLogger) Info(message string) {
	fmt.Fprintf(p.writer, "%s\n", p.styles.Info.Render(message))
}

// Warn prints a warning
func (p *PrettyLogger) Warn(message string) {
	fmt.Fprintf(p.writer, "%s %s\n",
		p.styles.Warning.Render(theme.IconWarning),
		p.styles.Warning.Render(message))
}

// Error prints an error with an optional cause
func (p *PrettyLogger) Error(message string, err error) {
	fmt.Fprintf(p.writer, "%s %s",
		p.styles.Error.Render(theme.IconError),
		p.styles.Error.Render(message))
	if err != nil {
		fmt.Fprintf(p.writer, ": %s", p.styles.Error.Render(err.Error()))
	}
	fmt.Fprintln(p.writer)
}

// Field prints a key-value pair
func (p *PrettyLogger) Field(key string, value interface{}) {
	fmt.Fprintf(p.writer, "%s: %s\n",
		p.styles.Key.Render(key),
		p.styles.Value.Render(fmt.Sprint(value)))
}

// Mode prints a machine control mode in its status color
func (p *PrettyLogger) Mode(label, mode string) {
	shown := mode
	if shown == "" {
		shown = "-"
	}
	fmt.Fprintf(p.writer, "%s: %s\n",
		p.styles.Key.Render(label),
		theme.DefaultTheme.ModeStyle(mode).Render(shown))
}

// Divider prints a visual divider
func (p *PrettyLogger) Divider() {
	fmt.Fprintln(p.writer, p.styles.Key.Render(strings.Repeat("─", 40)))
}

// Blank prints a blank line
func (p *PrettyLogger) Blank() {
	fmt.Fprintln(p.writer)
}
