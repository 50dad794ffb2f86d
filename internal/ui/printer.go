// Package ui renders agent messages and operator prompts in the terminal.
package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/metalagman/anvil/internal/logging"
)

// Category classifies an agent message.
type Category int

const (
	AICall Category = iota
	UnitTest
	Issue
)

var agentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

var categoryStyles = map[Category]lipgloss.Style{
	AICall:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
	UnitTest: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	Issue:    lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
}

// Printer writes one line per agent message.
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter creates a printer. Colors are used only when out is a terminal.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out, color: logging.IsTerminal(out)}
}

// Print writes "Agent: <position>: <msg>" styled for cat.
func (p *Printer) Print(cat Category, position, msg string) {
	prefix := fmt.Sprintf("Agent: %s: ", position)
	if p.color {
		prefix = agentStyle.Render(prefix)
		msg = categoryStyles[cat].Render(msg)
	}
	_, _ = fmt.Fprintln(p.out, prefix+msg)
}
