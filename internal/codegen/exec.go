package codegen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/metalagman/ainvoke"
	"github.com/metalagman/anvil/internal/logging"
)

const execInputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "mode": { "type": "string", "enum": ["initial", "improve", "fix", "extract_schema"] },
    "input": { "type": "string" }
  },
  "required": ["mode", "input"]
}`

const execOutputSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "text": { "type": "string", "minLength": 1 }
  },
  "required": ["text"]
}`

type execRequest struct {
	Mode  Mode   `json:"mode"`
	Input string `json:"input"`
}

type execResponse struct {
	Text string `json:"text"`
}

// ExecClient delegates generation to an external agent CLI.
type ExecClient struct {
	runner   ainvoke.Runner
	cmd      []string
	workRoot string
	output   io.Writer
	prompter Prompter
}

// ExecOptions configures an ExecClient.
type ExecOptions struct {
	Cmd      []string
	UseTTY   bool
	WorkRoot string
	Output   io.Writer
	Language string
}

// NewExecClient creates a client running opts.Cmd once per request.
func NewExecClient(opts ExecOptions) (*ExecClient, error) {
	if len(opts.Cmd) == 0 {
		return nil, fmt.Errorf("exec generator requires cmd")
	}
	runner, err := ainvoke.NewRunner(ainvoke.AgentConfig{
		Cmd:    opts.Cmd,
		UseTTY: opts.UseTTY,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec runner: %w", err)
	}
	output := opts.Output
	if output == nil {
		output = io.Discard
	}
	return &ExecClient{
		runner:   runner,
		cmd:      opts.Cmd,
		workRoot: opts.WorkRoot,
		output:   output,
		prompter: Prompter{Language: opts.Language},
	}, nil
}

// Generate runs the agent in a scratch directory and reads its structured answer.
func (c *ExecClient) Generate(ctx context.Context, mode Mode, input string) (string, error) {
	runDir, err := os.MkdirTemp(c.workRoot, "codegen-"+string(mode)+"-*")
	if err != nil {
		return "", fmt.Errorf("create codegen run dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(runDir) }()

	logger := logging.Component("codegen")
	logger.Debug().Str("provider", "exec").Strs("cmd", c.cmd).Str("mode", string(mode)).Msg("invoking agent")

	inv := ainvoke.Invocation{
		RunDir:       runDir,
		SystemPrompt: c.prompter.System(mode),
		Input:        execRequest{Mode: mode, Input: input},
		InputSchema:  execInputSchema,
		OutputSchema: execOutputSchema,
	}
	out, _, exitCode, err := c.runner.Run(ctx, inv, ainvoke.WithStdout(c.output), ainvoke.WithStderr(c.output))
	if err != nil {
		return "", transportErr("exec", fmt.Errorf("agent exit code %d: %w", exitCode, err))
	}

	var resp execResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return "", transportErr("exec", fmt.Errorf("decode agent output: %w", err))
	}
	if resp.Text == "" {
		return "", transportErr("exec", ErrEmptyResponse)
	}
	return resp.Text, nil
}
