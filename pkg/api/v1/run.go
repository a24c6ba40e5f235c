package v1

import "time"

// RunStatus represents the lifecycle state of an agent execution.
// LAUNCHING and the terminal states are also valid initial snapshots
// (before the subprocess spawns, or immediately on spawn failure).
// No transition leaves COMPLETED or FAILED.
type RunStatus string

const (
	RunStatusLaunching RunStatus = "LAUNCHING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Active reports whether an execution with this status is still in flight.
func (s RunStatus) Active() bool {
	return s == RunStatusLaunching || s == RunStatusRunning
}

// TokenUsage is the token breakdown reported by the agent's terminal event.
type TokenUsage struct {
	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`
}

// Report is the structured outcome of a successful agent execution.
// It is written once at termination and never mutated afterward.
// A FAILED run legitimately has no report.
type Report struct {
	Success      bool       `json:"success"`
	DurationMS   int64      `json:"durationMs"`
	TotalCostUSD float64    `json:"totalCostUsd"`
	NumTurns     int        `json:"numTurns"`
	Model        string     `json:"model"`
	Usage        TokenUsage `json:"usage"`
	Summary      string     `json:"summary,omitempty"`
}

// ProgressSnapshot is the API representation of an execution's current state.
type ProgressSnapshot struct {
	Status    RunStatus `json:"status"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Log       []string  `json:"log"`
}
