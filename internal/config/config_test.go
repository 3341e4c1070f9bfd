// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/llm-chat/internal/transport"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:9000"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/prom"

reasoning:
  hidden: false

sessions:
  - name: local
    transport: completions
    endpoint: "http://localhost:1234/v1/chat/completions"
    system_prompt: "You are terse."
    timeout: "30s"
  - name: claude
    transport: content-array
    api_key: "sk-test"
    model: "claude-3-haiku-20240307"
    max_tokens: 256
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.HTTPAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/prom", cfg.Metrics.Path)
	assert.False(t, cfg.Reasoning.IsHidden())

	require.Len(t, cfg.Sessions, 2)
	local := cfg.Sessions[0]
	assert.Equal(t, "local", local.Name)
	assert.Equal(t, transport.KindCompletions, local.Kind())
	assert.Equal(t, "You are terse.", local.SystemPrompt)
	assert.Equal(t, 30*time.Second, local.Timeout)

	claude, ok := cfg.Session("claude")
	require.True(t, ok)
	assert.Equal(t, transport.KindContentArray, claude.Kind())
	assert.Equal(t, "sk-test", claude.APIKey)
	assert.Equal(t, 256, claude.MaxTokens)
	assert.Equal(t, DefaultTimeout, claude.Timeout)

	_, ok = cfg.Session("missing")
	assert.False(t, ok)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
sessions:
  - name: local
    transport: completions
    endpoint: "http://localhost:1234/v1/chat/completions"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.HTTPAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, DefaultMetricsPath, cfg.Metrics.Path)
	assert.False(t, cfg.Metrics.Enabled)
	assert.True(t, cfg.Reasoning.IsHidden(), "reasoning is hidden unless configured otherwise")
	assert.Equal(t, DefaultTimeout, cfg.Sessions[0].Timeout)
}

func TestLoad_ZeroTimeoutDisablesBound(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
sessions:
  - name: local
    transport: completions
    endpoint: "http://localhost:1234/v1/chat/completions"
    timeout: "0s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.Sessions[0].Timeout)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[logging]
level = "warn"

[reasoning]
hidden = true

[[sessions]]
name = "local"
transport = "completions"
endpoint = "http://127.0.0.1:11434/v1/chat/completions"
timeout = "2m"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.True(t, cfg.Reasoning.IsHidden())
	require.Len(t, cfg.Sessions, 1)
	assert.Equal(t, 2*time.Minute, cfg.Sessions[0].Timeout)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_LLM_CHAT_KEY", "sk-from-env")
	t.Setenv("TEST_LLM_CHAT_ENDPOINT", "http://gpu-box:8000/v1/chat/completions")

	path := writeConfig(t, "config.yaml", `
sessions:
  - name: local
    transport: completions
    endpoint: "${TEST_LLM_CHAT_ENDPOINT}"
  - name: claude
    transport: content-array
    api_key: "${TEST_LLM_CHAT_KEY}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-box:8000/v1/chat/completions", cfg.Sessions[0].Endpoint)
	assert.Equal(t, "sk-from-env", cfg.Sessions[1].APIKey)
}

func TestLoad_UnsetEnvVarFailsValidation(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
sessions:
  - name: claude
    transport: content-array
    api_key: "${TEST_LLM_CHAT_DEFINITELY_UNSET}"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key is required")
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no sessions",
			content: "logging:\n  level: info\n",
			wantErr: "at least one session is required",
		},
		{
			name: "missing name",
			content: `
sessions:
  - transport: completions
    endpoint: "http://localhost:1234"
`,
			wantErr: "sessions[0].name is required",
		},
		{
			name: "duplicate name",
			content: `
sessions:
  - name: a
    transport: completions
    endpoint: "http://localhost:1234"
  - name: a
    transport: completions
    endpoint: "http://localhost:5678"
`,
			wantErr: "used more than once",
		},
		{
			name: "unknown transport",
			content: `
sessions:
  - name: a
    transport: carrier-pigeon
`,
			wantErr: "unknown transport",
		},
		{
			name: "missing endpoint",
			content: `
sessions:
  - name: a
    transport: completions
`,
			wantErr: "invalid endpoint",
		},
		{
			name: "relative endpoint",
			content: `
sessions:
  - name: a
    transport: completions
    endpoint: "localhost:1234/v1/chat/completions"
`,
			wantErr: "invalid endpoint",
		},
		{
			name: "negative max tokens",
			content: `
sessions:
  - name: a
    transport: content-array
    api_key: k
    max_tokens: -1
`,
			wantErr: "max_tokens must not be negative",
		},
		{
			name: "negative timeout",
			content: `
sessions:
  - name: a
    transport: completions
    endpoint: "http://localhost:1234"
    timeout: "-5s"
`,
			wantErr: "timeout must not be negative",
		},
		{
			name: "bad duration",
			content: `
sessions:
  - name: a
    transport: completions
    endpoint: "http://localhost:1234"
    timeout: "soon"
`,
			wantErr: "parsing sessions[0].timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), "error %q does not contain %q", err, tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "sessions: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("TEST_LLM_CHAT_DOTENV=loaded\n"), 0644))
	t.Setenv("TEST_LLM_CHAT_DOTENV", "")
	os.Unsetenv("TEST_LLM_CHAT_DOTENV")

	require.NoError(t, LoadDotEnv(envPath))
	assert.Equal(t, "loaded", os.Getenv("TEST_LLM_CHAT_DOTENV"))

	require.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))
}

func TestSessionConfig_SameEndpoint(t *testing.T) {
	base := SessionConfig{Name: "a", Transport: "completions", Endpoint: "http://x", SystemPrompt: "one"}

	promptOnly := base
	promptOnly.SystemPrompt = "two"
	assert.True(t, base.SameEndpoint(promptOnly))

	moved := base
	moved.Endpoint = "http://y"
	assert.False(t, base.SameEndpoint(moved))
}
