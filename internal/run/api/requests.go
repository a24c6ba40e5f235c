// Package api provides HTTP handlers for starting, cancelling, and
// observing agent runs.
package api

import v1 "github.com/agentboard/agentboard/pkg/api/v1"

// FollowUpRequest carries the reviewer's change request for an iterative
// run against an existing instance.
type FollowUpRequest struct {
	ChangeRequest string `json:"change_request" binding:"required"`
}

// RunAcceptedResponse acknowledges that a run was accepted and is
// proceeding in the background.
type RunAcceptedResponse struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status"`
}

// StreamFrame is one websocket message on the run status stream. Log
// carries only text appended since the previous frame; the first frame
// primes the client with the full transcript.
type StreamFrame struct {
	Status    v1.RunStatus `json:"status"`
	Phase     string       `json:"phase,omitempty"`
	Message   string       `json:"message,omitempty"`
	Log       string       `json:"log,omitempty"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Terminal  bool         `json:"terminal"`
}
