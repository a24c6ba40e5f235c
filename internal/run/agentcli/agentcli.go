// Package agentcli describes the coding-agent CLI used to execute runs:
// how to locate the binary, build its argument list, and assemble the
// environment for the subprocess.
package agentcli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/agentboard/agentboard/internal/common/config"
)

// knownAPIKeyVars lists credential environment variables forwarded to the
// agent subprocess when present in the server's environment.
var knownAPIKeyVars = []string{
	"ANTHROPIC_API_KEY",
	"OPENAI_API_KEY",
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"GITHUB_TOKEN",
	"GITLAB_TOKEN",
	"NPM_TOKEN",
}

// CLI describes an invocable agent command line.
type CLI struct {
	Binary string
	Args   []string
	Model  string
	// ProbeTimeout bounds the availability check.
	ProbeTimeout time.Duration
}

// New builds a CLI from agent configuration.
func New(cfg config.AgentConfig) *CLI {
	return &CLI{
		Binary:       cfg.Binary,
		Args:         append([]string(nil), cfg.Args...),
		Model:        cfg.Model,
		ProbeTimeout: cfg.ProbeTimeoutDuration(),
	}
}

// CommandArgs returns the full argument list for one invocation. The prompt
// itself is delivered on stdin, not as an argument.
func (c *CLI) CommandArgs() []string {
	args := append([]string(nil), c.Args...)
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}
	return args
}

// Available reports whether the agent binary can be found. An absolute or
// relative binary path is checked directly; a bare name is resolved on PATH.
func (c *CLI) Available(ctx context.Context) (*DiscoveryResult, error) {
	if strings.ContainsRune(c.Binary, os.PathSeparator) {
		return Detect(ctx, WithFileExists(c.Binary))
	}
	return Detect(ctx, WithCommand(c.Binary))
}

// Env assembles the environment for the agent subprocess: the parent
// environment, known credential variables (kept as-is since the parent env
// already carries them), plus any extras for this run.
func (c *CLI) Env(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// AvailableCredentials returns which known credential variables are set in
// the server's environment. Used for diagnostics, never logged with values.
func AvailableCredentials() []string {
	available := make([]string, 0)
	for _, key := range knownAPIKeyVars {
		if os.Getenv(key) != "" {
			available = append(available, key)
		}
	}
	return available
}
