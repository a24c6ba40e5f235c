// Package models defines the ticket domain model.
package models

import (
	"time"

	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

// Ticket is a unit of work on the board. Description carries the full
// requirements text handed to the agent; the Run* fields mirror the
// state of the most recent agent execution. InstancePath is the join
// key between this record and the execution subsystem.
type Ticket struct {
	ID             string         `db:"id"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	State          v1.TicketState `db:"state"`
	CodebasePath   string         `db:"codebase_path"`
	InstancePath   string         `db:"instance_path"`
	RunStatus      *v1.RunStatus  `db:"run_status"`
	RunLog         string         `db:"run_log"`
	RunStartedAt   *time.Time     `db:"run_started_at"`
	RunCompletedAt *time.Time     `db:"run_completed_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// ToAPI converts the ticket to its API representation.
func (t *Ticket) ToAPI() *v1.Ticket {
	return &v1.Ticket{
		ID:             t.ID,
		Title:          t.Title,
		Description:    t.Description,
		State:          t.State,
		CodebasePath:   t.CodebasePath,
		InstancePath:   t.InstancePath,
		RunStatus:      t.RunStatus,
		RunLog:         t.RunLog,
		RunStartedAt:   t.RunStartedAt,
		RunCompletedAt: t.RunCompletedAt,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// Clone returns a deep copy of the ticket.
func (t *Ticket) Clone() *Ticket {
	copied := *t
	if t.RunStatus != nil {
		s := *t.RunStatus
		copied.RunStatus = &s
	}
	if t.RunStartedAt != nil {
		ts := *t.RunStartedAt
		copied.RunStartedAt = &ts
	}
	if t.RunCompletedAt != nil {
		ts := *t.RunCompletedAt
		copied.RunCompletedAt = &ts
	}
	return &copied
}
