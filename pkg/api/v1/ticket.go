package v1

import "time"

// TicketState represents a ticket's position in the board workflow.
type TicketState string

const (
	TicketStateTodo       TicketState = "TODO"
	TicketStateInProgress TicketState = "IN_PROGRESS"
	TicketStateInReview   TicketState = "IN_REVIEW"
	TicketStateDone       TicketState = "DONE"
)

// ValidTicketState reports whether s is a known workflow state.
func ValidTicketState(s TicketState) bool {
	switch s {
	case TicketStateTodo, TicketStateInProgress, TicketStateInReview, TicketStateDone:
		return true
	}
	return false
}

// Ticket is the API representation of a ticket record.
type Ticket struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Description    string      `json:"description"`
	State          TicketState `json:"state"`
	CodebasePath   string      `json:"codebase_path"`
	InstancePath   string      `json:"instance_path,omitempty"`
	RunStatus      *RunStatus  `json:"run_status,omitempty"`
	RunLog         string      `json:"run_log,omitempty"`
	RunStartedAt   *time.Time  `json:"run_started_at,omitempty"`
	RunCompletedAt *time.Time  `json:"run_completed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}
