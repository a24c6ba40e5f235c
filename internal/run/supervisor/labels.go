package supervisor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agentboard/agentboard/pkg/claudecode"
)

const (
	maxCommandPreview = 60
	maxTextPreview    = 80
)

// labelFor translates a structured event into one human-readable progress
// line. Returns "" when the event produces no line (e.g. user messages).
// For assistant events with multiple content blocks, only the last
// non-empty label is kept, matching the observed upstream behavior.
func labelFor(msg *claudecode.CLIMessage) string {
	switch msg.Type {
	case claudecode.MessageTypeSystem:
		if msg.Subtype == claudecode.SubtypeInit {
			model := msg.Model
			if model == "" {
				model = "unknown"
			}
			return "Session started (model: " + model + ")"
		}
		return ""

	case claudecode.MessageTypeAssistant:
		if msg.Message == nil {
			return ""
		}
		var label string
		for _, block := range msg.Message.Content {
			if l := labelForBlock(block); l != "" {
				label = l
			}
		}
		return label

	case claudecode.MessageTypeResult:
		return resultLabel(msg)
	}
	return ""
}

func labelForBlock(block claudecode.ContentBlock) string {
	switch block.Type {
	case "text":
		return truncate(strings.TrimSpace(block.Text), maxTextPreview)
	case "tool_use":
		return labelForTool(block.Name, block.Input)
	}
	return ""
}

func labelForTool(name string, input map[string]any) string {
	switch name {
	case claudecode.ToolEdit, claudecode.ToolNotebookEdit:
		return "Editing " + fileFromInput(input)
	case claudecode.ToolWrite:
		return "Writing " + fileFromInput(input)
	case claudecode.ToolRead:
		return "Reading " + fileFromInput(input)
	case claudecode.ToolBash:
		cmd, _ := input["command"].(string)
		return "Running: " + truncate(cmd, maxCommandPreview)
	case claudecode.ToolGlob, claudecode.ToolGrep:
		pattern, _ := input["pattern"].(string)
		return "Searching: " + pattern
	case claudecode.ToolTodoWrite:
		return "Updating task list"
	default:
		return name
	}
}

func resultLabel(msg *claudecode.CLIMessage) string {
	parts := []string{"Completed"}
	if msg.IsError {
		parts[0] = "Completed with error"
	}
	if msg.TotalCostUSD > 0 {
		parts = append(parts, fmt.Sprintf("cost $%.4f", msg.TotalCostUSD))
	}
	if msg.Usage != nil {
		parts = append(parts, fmt.Sprintf("%d tokens",
			msg.Usage.InputTokens+msg.Usage.OutputTokens))
	}
	return strings.Join(parts, ", ")
}

func fileFromInput(input map[string]any) string {
	for _, key := range []string{"file_path", "notebook_path", "path"} {
		if v, ok := input[key].(string); ok && v != "" {
			return filepath.Base(v)
		}
	}
	return "file"
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
