package agentcli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentboard/agentboard/internal/common/config"
)

func TestCommandArgs(t *testing.T) {
	cli := New(config.AgentConfig{
		Binary: "claude",
		Args:   []string{"-p", "--output-format", "stream-json"},
	})
	assert.Equal(t, []string{"-p", "--output-format", "stream-json"}, cli.CommandArgs())

	cli.Model = "claude-sonnet-4"
	assert.Equal(t, []string{"-p", "--output-format", "stream-json", "--model", "claude-sonnet-4"},
		cli.CommandArgs())
}

func TestAvailable(t *testing.T) {
	t.Run("bare name on PATH", func(t *testing.T) {
		cli := New(config.AgentConfig{Binary: "sh"})
		result, err := cli.Available(context.Background())
		require.NoError(t, err)
		assert.True(t, result.Available)
		assert.NotEmpty(t, result.MatchedPath)
	})

	t.Run("missing binary", func(t *testing.T) {
		cli := New(config.AgentConfig{Binary: "agentboard-no-such-binary"})
		result, err := cli.Available(context.Background())
		require.NoError(t, err)
		assert.False(t, result.Available)
	})

	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agent")
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))

		cli := New(config.AgentConfig{Binary: path})
		result, err := cli.Available(context.Background())
		require.NoError(t, err)
		assert.True(t, result.Available)
		assert.Equal(t, path, result.MatchedPath)
	})
}

func TestEnvIncludesExtras(t *testing.T) {
	cli := New(config.AgentConfig{Binary: "sh"})
	env := cli.Env(map[string]string{"AGENTBOARD_RUN_ID": "r-1"})
	assert.Contains(t, env, "AGENTBOARD_RUN_ID=r-1")
	assert.GreaterOrEqual(t, len(env), len(os.Environ()))
}

func TestAvailableCredentials(t *testing.T) {
	for _, key := range knownAPIKeyVars {
		t.Setenv(key, "")
	}
	assert.Empty(t, AvailableCredentials())

	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("GITHUB_TOKEN", "ghp-test")

	creds := AvailableCredentials()
	assert.Equal(t, []string{"ANTHROPIC_API_KEY", "GITHUB_TOKEN"}, creds)
}
