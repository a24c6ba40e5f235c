// Package api provides HTTP handlers for the ticket API.
package api

import v1 "github.com/agentboard/agentboard/pkg/api/v1"

// CreateTicketRequest for creating a ticket
type CreateTicketRequest struct {
	Title        string `json:"title" binding:"required"`
	Description  string `json:"description"`
	CodebasePath string `json:"codebase_path"`
}

// UpdateTicketRequest for updating a ticket
type UpdateTicketRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	CodebasePath *string `json:"codebase_path,omitempty"`
}

// MoveTicketRequest for changing a ticket's workflow state
type MoveTicketRequest struct {
	State string `json:"state" binding:"required"`
}

// TicketsListResponse for listing tickets
type TicketsListResponse struct {
	Tickets []*v1.Ticket `json:"tickets"`
	Total   int          `json:"total"`
}
