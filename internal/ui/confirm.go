package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/huh"
	"github.com/metalagman/anvil/internal/logging"
)

// ErrNoAnswer is returned when input ends before a valid answer was given.
var ErrNoAnswer = errors.New("no confirmation answer")

const question = "Are you happy for the generated code to be built and executed?"

// AutoConfirmer approves every request.
type AutoConfirmer struct{}

// Confirm always returns true.
func (AutoConfirmer) Confirm(context.Context, string) (bool, error) {
	return true, nil
}

// TerminalConfirmer asks the operator before generated code is executed.
// On an interactive terminal it shows the source and a form; otherwise it reads answers line by line.
type TerminalConfirmer struct {
	In       io.Reader
	Out      io.Writer
	Language string
	Review   bool
}

// Confirm shows source for review when enabled and asks for approval.
func (c *TerminalConfirmer) Confirm(ctx context.Context, source string) (bool, error) {
	if c.Review && source != "" {
		rendered, err := RenderSource(source, c.Language, logging.IsTerminal(c.Out))
		if err != nil {
			logger := logging.Component("ui")
			logger.Debug().Err(err).Msg("render source failed, printing raw")
			rendered = source + "\n"
		}
		_, _ = io.WriteString(c.Out, rendered)
	}
	if c.interactive() {
		return c.form(ctx)
	}
	return c.lines()
}

func (c *TerminalConfirmer) interactive() bool {
	f, ok := c.In.(*os.File)
	return ok && logging.IsTerminal(f) && logging.IsTerminal(c.Out)
}

func (c *TerminalConfirmer) form(ctx context.Context) (bool, error) {
	var ok bool
	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(question).
			Description("The code will be built and started on this machine.").
			Affirmative("Yes").
			Negative("No").
			Value(&ok),
	)).WithInput(c.In).WithOutput(c.Out).RunWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("confirmation form: %w", err)
	}
	return ok, nil
}

func (c *TerminalConfirmer) lines() (bool, error) {
	scanner := bufio.NewScanner(c.In)
	for {
		_, _ = fmt.Fprintf(c.Out, "WARNING: %s\n[1] ok / y / yes\n[2] no / n\n> ", question)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return false, fmt.Errorf("read confirmation: %w", err)
			}
			return false, ErrNoAnswer
		}
		if answer, valid := ParseAnswer(scanner.Text()); valid {
			return answer, nil
		}
		_, _ = fmt.Fprintln(c.Out, "Invalid input, please answer 1 (yes) or 2 (no).")
	}
}

// ParseAnswer maps a typed answer to a decision. valid is false for unrecognised input.
func ParseAnswer(s string) (answer, valid bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "ok", "y", "yes":
		return true, true
	case "2", "no", "n":
		return false, true
	default:
		return false, false
	}
}

// RenderSource formats source as a fenced markdown block. Styling is applied only for terminals.
func RenderSource(source, language string, color bool) (string, error) {
	style := glamour.WithStandardStyle("notty")
	if color {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(0))
	if err != nil {
		return "", fmt.Errorf("create renderer: %w", err)
	}
	md := "```" + language + "\n" + strings.TrimRight(source, "\n") + "\n```\n"
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("render source: %w", err)
	}
	return out, nil
}
