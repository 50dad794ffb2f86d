package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/metalagman/anvil/internal/logging"
)

const descriptionQuestion = "What web server are we building today?"

// AskDescription asks the operator for the project description until a non-empty line is given.
func AskDescription(ctx context.Context, in io.Reader, out io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && logging.IsTerminal(f) && logging.IsTerminal(out) {
		var desc string
		err := huh.NewForm(huh.NewGroup(
			huh.NewInput().
				Title(descriptionQuestion).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("description must not be empty")
					}
					return nil
				}).
				Value(&desc),
		)).WithInput(in).WithOutput(out).RunWithContext(ctx)
		if err != nil {
			return "", fmt.Errorf("description form: %w", err)
		}
		return strings.TrimSpace(desc), nil
	}

	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprintf(out, "%s\n> ", descriptionQuestion)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("read description: %w", err)
			}
			return "", ErrNoAnswer
		}
		if desc := strings.TrimSpace(scanner.Text()); desc != "" {
			return desc, nil
		}
	}
}
