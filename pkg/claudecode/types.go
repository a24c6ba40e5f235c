// Package claudecode provides types and an incremental parser for the
// Claude Code CLI stream-json protocol (--output-format stream-json).
// The CLI emits one self-contained JSON event per line on stdout.
package claudecode

import (
	"encoding/json"
	"sort"
)

// Message types from Claude Code CLI
const (
	// MessageTypeSystem is the initial system message with session info
	MessageTypeSystem = "system"
	// MessageTypeAssistant contains content blocks from the assistant
	MessageTypeAssistant = "assistant"
	// MessageTypeUser is a user message (prompt or tool results)
	MessageTypeUser = "user"
	// MessageTypeResult is the final result message
	MessageTypeResult = "result"
)

// SubtypeInit is the system message subtype announcing session start.
const SubtypeInit = "init"

// Tool names used by Claude Code
const (
	ToolEdit         = "Edit"
	ToolWrite        = "Write"
	ToolNotebookEdit = "NotebookEdit"
	ToolRead         = "Read"
	ToolBash         = "Bash"
	ToolGlob         = "Glob"
	ToolGrep         = "Grep"
	ToolTodoWrite    = "TodoWrite"
	ToolTask         = "Task"
	ToolWebFetch     = "WebFetch"
	ToolWebSearch    = "WebSearch"
)

// CLIMessage represents messages from Claude Code CLI stdout.
// The message type determines which fields are populated.
type CLIMessage struct {
	// Type is the message type (system, assistant, user, result)
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	// For system messages
	SessionID string `json:"session_id,omitempty"`
	Model     string `json:"model,omitempty"`

	// For assistant messages
	Message *AssistantMessage `json:"message,omitempty"`

	// For result messages.
	// Result can be either a string (summary or error message) or an object.
	Result       json.RawMessage            `json:"result,omitempty"`
	IsError      bool                       `json:"is_error,omitempty"`
	DurationMS   int64                      `json:"duration_ms,omitempty"`
	NumTurns     int                        `json:"num_turns,omitempty"`
	TotalCostUSD float64                    `json:"total_cost_usd,omitempty"`
	Usage        *Usage                     `json:"usage,omitempty"`
	ModelUsage   map[string]ModelUsageStats `json:"modelUsage,omitempty"`
}

// AssistantMessage contains the assistant's response content.
type AssistantMessage struct {
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content,omitempty"`
	Model      string         `json:"model,omitempty"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      *Usage         `json:"usage,omitempty"`
}

// ContentBlock represents a block of content in an assistant message.
type ContentBlock struct {
	Type string `json:"type"`

	// For text blocks
	Text string `json:"text,omitempty"`

	// For thinking blocks
	Thinking string `json:"thinking,omitempty"`

	// For tool_use blocks
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// For tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

// Usage contains token usage information.
type Usage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens,omitempty"`
}

// ModelUsageStats contains per-model usage statistics from the result message.
type ModelUsageStats struct {
	InputTokens   int64   `json:"inputTokens,omitempty"`
	OutputTokens  int64   `json:"outputTokens,omitempty"`
	CostUSD       float64 `json:"costUSD,omitempty"`
	ContextWindow *int64  `json:"contextWindow,omitempty"`
}

// ResultText returns the Result field rendered as free text. The CLI emits
// the result either as a plain string or as an object with a text field;
// both forms are handled. Returns "" when absent or unparseable.
func (m *CLIMessage) ResultText() string {
	if len(m.Result) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Result, &s); err == nil {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(m.Result, &obj); err == nil {
		return obj.Text
	}
	return ""
}

// ModelName returns the model identifier from the per-model usage map.
// Keys are sorted for determinism; single-model runs are the norm.
// Returns "unknown" when the map is empty.
func (m *CLIMessage) ModelName() string {
	if len(m.ModelUsage) == 0 {
		return "unknown"
	}
	keys := make([]string, 0, len(m.ModelUsage))
	for k := range m.ModelUsage {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}
