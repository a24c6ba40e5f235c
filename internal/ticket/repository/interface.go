package repository

import (
	"context"

	"github.com/agentboard/agentboard/internal/ticket/models"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

// Repository defines the interface for ticket storage operations
type Repository interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	UpdateTicket(ctx context.Context, ticket *models.Ticket) error
	DeleteTicket(ctx context.Context, id string) error
	ListTickets(ctx context.Context) ([]*models.Ticket, error)
	UpdateTicketState(ctx context.Context, id string, state v1.TicketState) error

	// Close closes the repository (for database connections)
	Close() error
}
