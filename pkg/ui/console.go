// Package ui renders the short, icon-prefixed progress lines the CLI prints
// while applying a plan. Diagnostic detail goes to the session log instead.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	stepStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	infoStyle = lipgloss.NewStyle().Faint(true)
)

// Console writes styled status lines. The zero value writes to stdout.
type Console struct {
	Out io.Writer
	mu  sync.Mutex
}

// NewConsole returns a console writing to w (stdout when nil).
func NewConsole(w io.Writer) *Console {
	return &Console{Out: w}
}

// Discard returns a console that prints nothing.
func Discard() *Console {
	return &Console{Out: io.Discard}
}

func (c *Console) writer() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Console) line(style lipgloss.Style, icon, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(c.writer(), style.Render(icon+" "+msg))
}

// Step announces the start of a unit of work.
func (c *Console) Step(format string, args ...any) { c.line(stepStyle, "▶", format, args...) }

// OK reports success.
func (c *Console) OK(format string, args ...any) { c.line(okStyle, "✔", format, args...) }

// Warn reports a recoverable problem.
func (c *Console) Warn(format string, args ...any) { c.line(warnStyle, "⚠", format, args...) }

// Err reports a failure.
func (c *Console) Err(format string, args ...any) { c.line(errStyle, "✖", format, args...) }

// Info prints a dim informational line.
func (c *Console) Info(format string, args ...any) { c.line(infoStyle, "·", format, args...) }
