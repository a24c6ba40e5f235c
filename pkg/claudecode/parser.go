package claudecode

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Line is one complete line of agent stdout. Msg is set when the line
// parsed as a structured event; otherwise only Raw is populated and the
// line should be treated as plain text output.
type Line struct {
	Msg *CLIMessage
	Raw string
}

// Parser accumulates raw stdout chunks and yields complete
// newline-delimited events. An incomplete trailing line is held over to
// the next Feed call, so an event split across chunk boundaries is
// emitted exactly once, when its terminating newline arrives.
type Parser struct {
	buf bytes.Buffer
}

// NewParser creates an incremental stream-json parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends a chunk of stdout and returns all lines completed by it.
// A line that fails to parse as a structured event is returned as raw
// text rather than dropped; parse failures are never fatal.
func (p *Parser) Feed(chunk []byte) []Line {
	p.buf.Write(chunk)

	var lines []Line
	for {
		data := p.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		raw := string(data[:idx])
		p.buf.Next(idx + 1)

		if line, ok := parseLine(raw); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// Flush returns the held-over partial line, if any, as a final complete
// line. Call once after the subprocess's stdout reaches EOF.
func (p *Parser) Flush() []Line {
	raw := p.buf.String()
	p.buf.Reset()

	if line, ok := parseLine(raw); ok {
		return []Line{line}
	}
	return nil
}

func parseLine(raw string) (Line, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Line{}, false
	}

	var msg CLIMessage
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil || msg.Type == "" {
		return Line{Raw: trimmed}, true
	}
	return Line{Msg: &msg, Raw: trimmed}, true
}
