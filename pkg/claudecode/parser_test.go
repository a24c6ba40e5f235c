package claudecode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_EventSplitAcrossChunks(t *testing.T) {
	p := NewParser()

	event := `{"type":"system","subtype":"init","model":"claude-sonnet-4"}` + "\n"
	first := event[:20]
	second := event[20:]

	lines := p.Feed([]byte(first))
	assert.Empty(t, lines, "incomplete line must be held over")

	lines = p.Feed([]byte(second))
	require.Len(t, lines, 1, "completed line must be emitted exactly once")
	require.NotNil(t, lines[0].Msg)
	assert.Equal(t, MessageTypeSystem, lines[0].Msg.Type)
	assert.Equal(t, SubtypeInit, lines[0].Msg.Subtype)
	assert.Equal(t, "claude-sonnet-4", lines[0].Msg.Model)

	assert.Empty(t, p.Feed([]byte("")), "no residue after emission")
}

func TestParser_MultipleEventsInOneChunk(t *testing.T) {
	p := NewParser()

	chunk := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}` + "\n" +
		`{"type":"result","is_error":false}` + "\n"

	lines := p.Feed([]byte(chunk))
	require.Len(t, lines, 2)
	assert.Equal(t, MessageTypeAssistant, lines[0].Msg.Type)
	assert.Equal(t, MessageTypeResult, lines[1].Msg.Type)
}

func TestParser_UnparseableLineForwardedAsRaw(t *testing.T) {
	p := NewParser()

	lines := p.Feed([]byte("npm WARN deprecated package\n"))
	require.Len(t, lines, 1)
	assert.Nil(t, lines[0].Msg)
	assert.Equal(t, "npm WARN deprecated package", lines[0].Raw)

	// Valid JSON without a type field is still not a structured event.
	lines = p.Feed([]byte(`{"foo":"bar"}` + "\n"))
	require.Len(t, lines, 1)
	assert.Nil(t, lines[0].Msg)
}

func TestParser_BlankLinesSkipped(t *testing.T) {
	p := NewParser()
	assert.Empty(t, p.Feed([]byte("\n\n  \n")))
}

func TestParser_FlushEmitsTrailingLine(t *testing.T) {
	p := NewParser()

	lines := p.Feed([]byte(`{"type":"result","is_error":true}`))
	assert.Empty(t, lines, "no newline yet")

	lines = p.Flush()
	require.Len(t, lines, 1)
	require.NotNil(t, lines[0].Msg)
	assert.True(t, lines[0].Msg.IsError)

	assert.Empty(t, p.Flush(), "flush drains the buffer")
}

func TestCLIMessage_ResultText(t *testing.T) {
	var msg CLIMessage
	assert.Equal(t, "", msg.ResultText())

	msg.Result = []byte(`"all done"`)
	assert.Equal(t, "all done", msg.ResultText())

	msg.Result = []byte(`{"text":"object form"}`)
	assert.Equal(t, "object form", msg.ResultText())
}

func TestCLIMessage_ModelName(t *testing.T) {
	var msg CLIMessage
	assert.Equal(t, "unknown", msg.ModelName())

	msg.ModelUsage = map[string]ModelUsageStats{
		"claude-sonnet-4": {InputTokens: 10},
	}
	assert.Equal(t, "claude-sonnet-4", msg.ModelName())

	msg.ModelUsage["claude-haiku-3"] = ModelUsageStats{InputTokens: 1}
	assert.Equal(t, "claude-haiku-3", msg.ModelName(), "keys are sorted for determinism")
}
