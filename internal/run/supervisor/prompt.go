package supervisor

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/agentboard/agentboard/internal/run/progress"
)

// behavioralInstructions are appended to every prompt regardless of task.
const behavioralInstructions = `Work incrementally: implement one unit of work at a time.
Run the relevant tests before moving on to the next unit.
Commit each completed unit of work with a descriptive message.
Stay within the stated scope; do not refactor unrelated code.`

// buildPrompt assembles the instruction prompt for a fresh run: the task's
// full requirements, the resolved working directory, and the progress log
// location, followed by fixed behavioral instructions.
func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are implementing the following task: %s\n\n", req.Title)
	b.WriteString("## Requirements\n\n")
	b.WriteString(strings.TrimSpace(req.Requirements))
	b.WriteString("\n\n")
	writePromptFooter(&b, req)
	return b.String()
}

// buildFollowUpPrompt assembles the prompt for a follow-up run: the change
// request first, then the prior requirements for context.
func buildFollowUpPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You previously implemented the task %q in this working directory.\n", req.Title)
	b.WriteString("A reviewer has requested changes.\n\n")
	b.WriteString("## Change request\n\n")
	b.WriteString(strings.TrimSpace(req.ChangeRequest))
	b.WriteString("\n\n## Original requirements (for context)\n\n")
	b.WriteString(strings.TrimSpace(req.Requirements))
	b.WriteString("\n\n")
	writePromptFooter(&b, req)
	return b.String()
}

func writePromptFooter(b *strings.Builder, req Request) {
	fmt.Fprintf(b, "Your working directory is %s.\n", req.WorkDir)
	fmt.Fprintf(b, "A human-readable progress log is kept at %s; you do not need to write to it.\n\n",
		filepath.Join(req.InstancePath, progress.TranscriptFile))
	b.WriteString("## Working style\n\n")
	b.WriteString(behavioralInstructions)
	b.WriteString("\n")
}
