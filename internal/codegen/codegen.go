// Package codegen talks to the code generation oracle.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Mode selects what the oracle is asked to produce.
type Mode string

const (
	ModeInitial       Mode = "initial"
	ModeImprove       Mode = "improve"
	ModeFix           Mode = "fix"
	ModeExtractSchema Mode = "extract_schema"
)

// Client generates text for a mode from a free-form context.
type Client interface {
	Generate(ctx context.Context, mode Mode, input string) (string, error)
}

// ErrEmptyResponse is wrapped in a TransportError when the oracle answers with no content.
var ErrEmptyResponse = errors.New("empty response")

// TransportError reports that the oracle could not be reached or produced no usable answer.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func transportErr(provider string, err error) error {
	return &TransportError{Provider: provider, Err: err}
}

// Prompter renders the instructions sent alongside every request.
type Prompter struct {
	Language string
}

// System returns the system instruction for mode.
func (p Prompter) System(mode Mode) string {
	var b strings.Builder
	b.WriteString("You are a function printer. You ONLY print the result of the function described below. ")
	b.WriteString("Nothing else. No commentary.\n\n")

	lang := p.Language
	if lang == "" {
		lang = "rust"
	}
	libs := libraries[lang]

	switch mode {
	case ModeInitial:
		b.WriteString("INPUT: a PROJECT_DESCRIPTION and a CODE_TEMPLATE for a ")
		b.WriteString(lang)
		b.WriteString(" web server backend.\n")
		b.WriteString("FUNCTION: update or rewrite the CODE_TEMPLATE so it serves the purpose in the PROJECT_DESCRIPTION.\n")
		b.WriteString("- The template is only an example. Change as much as the description requires.\n")
		b.WriteString("- Honour PROJECT_SCOPE and call only the listed EXTERNAL_URLS when external calls are required.\n")
	case ModeImprove:
		b.WriteString("INPUT: a PROJECT_DESCRIPTION and the CURRENT_SOURCE of a ")
		b.WriteString(lang)
		b.WriteString(" web server backend.\n")
		b.WriteString("FUNCTION:\n")
		b.WriteString("1. Remove any bugs and add minor missing functionality.\n")
		b.WriteString("2. Make sure everything the description asks for from a backend standpoint is implemented now.\n")
	case ModeFix:
		b.WriteString("INPUT: ")
		b.WriteString(lang)
		b.WriteString(" BROKEN_CODE and the ERROR_BUGS reported by the build.\n")
		b.WriteString("FUNCTION: remove the bugs from the code.\n")
	case ModeExtractSchema:
		b.WriteString("INPUT: ")
		b.WriteString(lang)
		b.WriteString(" web server CODE_INPUT.\n")
		b.WriteString("FUNCTION: print a JSON array describing every url endpoint with these keys:\n")
		b.WriteString("  \"route\": the url path of the endpoint\n")
		b.WriteString("  \"is_route_dynamic\": \"true\" if the route has a placeholder such as {id}, otherwise \"false\"\n")
		b.WriteString("  \"method\": the lowercase HTTP method (get, post, put, delete, patch)\n")
		b.WriteString("  \"request_body\": the request body shape, or \"None\"\n")
		b.WriteString("  \"response\": the response shape, or \"None\"\n")
		b.WriteString("All values are strings, even booleans. Print ONLY the JSON array.\n")
		return b.String()
	}

	if libs != "" {
		b.WriteString("IMPORTANT: only these libraries are installed, use no others: ")
		b.WriteString(libs)
		b.WriteString("\n")
	}
	b.WriteString("OUTPUT: print ONLY the complete source code.\n")
	return b.String()
}

// User wraps the request context for mode.
func (p Prompter) User(mode Mode, input string) string {
	return fmt.Sprintf("Here is the input to the %s function:\n%s\n\nPrint out what the function will return.", mode, input)
}

var libraries = map[string]string{
	"rust": "reqwest, serde, serde_json, tokio, actix-web, async-trait, actix_cors",
	"java": "spring-boot-starter-web, spring-boot-starter-data-jpa, spring-boot-starter-security, spring-boot-starter-json, lombok, h2",
	"go":   "the Go standard library",
}
