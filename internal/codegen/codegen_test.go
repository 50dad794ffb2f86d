package codegen

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/metalagman/anvil/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	calls atomic.Int32
	errs  []error
	text  string
}

func (c *scriptedClient) Generate(_ context.Context, _ Mode, _ string) (string, error) {
	n := int(c.calls.Add(1)) - 1
	if n < len(c.errs) && c.errs[n] != nil {
		return "", c.errs[n]
	}
	return c.text, nil
}

func TestRetrying_RetriesTransportErrorOnce(t *testing.T) {
	next := &scriptedClient{
		errs: []error{transportErr("test", errors.New("connection reset"))},
		text: "fn main() {}",
	}
	got, err := NewRetrying(next, 0).Generate(context.Background(), ModeInitial, "ctx")
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}", got)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestRetrying_SecondTransportErrorIsFatal(t *testing.T) {
	next := &scriptedClient{errs: []error{
		transportErr("test", errors.New("first")),
		transportErr("test", errors.New("second")),
		nil,
	}}
	_, err := NewRetrying(next, 0).Generate(context.Background(), ModeFix, "ctx")
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Contains(t, te.Error(), "second")
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestRetrying_OtherErrorsAreNotRetried(t *testing.T) {
	sentinel := errors.New("bad request")
	next := &scriptedClient{errs: []error{sentinel}}
	_, err := NewRetrying(next, 0).Generate(context.Background(), ModeImprove, "ctx")
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestRetrying_OtherErrorOnLastAttemptIsUnwrapped(t *testing.T) {
	sentinel := errors.New("bad request")
	next := &scriptedClient{errs: []error{
		transportErr("test", errors.New("first")),
		sentinel,
	}}
	_, err := NewRetrying(next, 0).Generate(context.Background(), ModeImprove, "ctx")
	require.Error(t, err)
	assert.Same(t, sentinel, err)

	var perm *backoff.PermanentError
	assert.False(t, errors.As(err, &perm))
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestOpenAIClient_Generate(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"fn main() {}"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIOptions{APIKey: "secret", BaseURL: srv.URL, Temperature: 0.1, Language: "rust"})
	text, err := c.Generate(context.Background(), ModeInitial, "PROJECT_DESCRIPTION: todo api")
	require.NoError(t, err)
	assert.Equal(t, "fn main() {}", text)

	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 0.001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "actix-web")
	assert.Contains(t, got.Messages[1].Content, "todo api")
}

func TestOpenAIClient_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIOptions{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), ModeInitial, "x")
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestOpenAIClient_EmptyChoicesIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIOptions{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Generate(context.Background(), ModeInitial, "x")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestGeminiClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-test:generateContent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"package main"}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), GeminiOptions{APIKey: "k", BaseURL: srv.URL, Model: "gemini-test"})
	require.NoError(t, err)
	text, err := c.Generate(context.Background(), ModeImprove, "source")
	require.NoError(t, err)
	assert.Equal(t, "package main", text)
}

func TestExecClient_Generate(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "agent.sh")
	content := `#!/bin/sh
cat > /dev/null
RESP='{"text":"fn main() { println!(\"hi\"); }"}'
echo "$RESP" > output.json
echo "$RESP"
`
	require.NoError(t, os.WriteFile(script, []byte(content), 0o755))

	c, err := NewExecClient(ExecOptions{Cmd: []string{script}, WorkRoot: dir})
	require.NoError(t, err)

	text, err := c.Generate(context.Background(), ModeInitial, "ctx")
	require.NoError(t, err)
	assert.Contains(t, text, "println!")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "codegen-"), "scratch dir %s left behind", e.Name())
	}
}

func TestExecClient_FailureIsTransport(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "agent.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho boom 1>&2\nexit 1\n"), 0o755))

	c, err := NewExecClient(ExecOptions{Cmd: []string{script}, WorkRoot: dir})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), ModeFix, "ctx")
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestNewExecClient_RequiresCmd(t *testing.T) {
	_, err := NewExecClient(ExecOptions{})
	assert.Error(t, err)
}

func TestNew_SelectsProvider(t *testing.T) {
	c, err := New(context.Background(), config.GeneratorConfig{Provider: config.ProviderOpenAI, APIKey: "k"}, "rust", t.TempDir(), nil)
	require.NoError(t, err)
	r, ok := c.(*Retrying)
	require.True(t, ok)
	_, ok = r.next.(*OpenAIClient)
	assert.True(t, ok)

	_, err = New(context.Background(), config.GeneratorConfig{Provider: "telepathy"}, "rust", t.TempDir(), nil)
	assert.Error(t, err)
}

func TestAPIKey_Resolution(t *testing.T) {
	t.Setenv("OPEN_ROUTER_AI_KEY", "from-openrouter")
	t.Setenv("ANVIL_TEST_KEY", "from-custom")

	assert.Equal(t, "inline", apiKey(config.GeneratorConfig{APIKey: "inline"}, config.ProviderOpenAI))
	assert.Equal(t, "from-custom", apiKey(config.GeneratorConfig{APIKeyEnv: "ANVIL_TEST_KEY"}, config.ProviderOpenAI))
	assert.Equal(t, "from-openrouter", apiKey(config.GeneratorConfig{}, config.ProviderOpenAI))
}

func TestPrompter_SystemPerMode(t *testing.T) {
	p := Prompter{Language: "java"}
	assert.Contains(t, p.System(ModeInitial), "CODE_TEMPLATE")
	assert.Contains(t, p.System(ModeImprove), "spring-boot-starter-web")
	assert.Contains(t, p.System(ModeFix), "ERROR_BUGS")

	schema := p.System(ModeExtractSchema)
	assert.Contains(t, schema, "is_route_dynamic")
	assert.NotContains(t, schema, "spring-boot-starter-web")
}

func TestStripFences(t *testing.T) {
	cases := map[string]struct {
		in   string
		want string
	}{
		"plain":       {in: "  fn main() {}\n", want: "fn main() {}"},
		"fenced":      {in: "```rust\nfn main() {}\n```", want: "fn main() {}"},
		"fenced json": {in: "```json\n[{\"route\":\"/\"}]\n```\n", want: `[{"route":"/"}]`},
		"unclosed":    {in: "```\nfn main() {}", want: "fn main() {}"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, StripFences(tc.in))
		})
	}
}
