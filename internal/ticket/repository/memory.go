package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentboard/agentboard/internal/common/errors"
	"github.com/agentboard/agentboard/internal/ticket/models"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

// MemoryRepository provides in-memory ticket storage operations
type MemoryRepository struct {
	tickets map[string]*models.Ticket
	mu      sync.RWMutex
}

// Ensure MemoryRepository implements Repository interface
var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates a new in-memory ticket repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		tickets: make(map[string]*models.Ticket),
	}
}

// Close is a no-op for in-memory repository
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateTicket creates a new ticket
func (r *MemoryRepository) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket.ID == "" {
		ticket.ID = uuid.New().String()
	}
	if ticket.State == "" {
		ticket.State = v1.TicketStateTodo
	}
	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

// GetTicket retrieves a ticket by ID
func (r *MemoryRepository) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return nil, errors.NotFound("ticket", id)
	}
	return ticket.Clone(), nil
}

// UpdateTicket updates an existing ticket
func (r *MemoryRepository) UpdateTicket(ctx context.Context, ticket *models.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[ticket.ID]; !ok {
		return errors.NotFound("ticket", ticket.ID)
	}
	ticket.UpdatedAt = time.Now().UTC()
	r.tickets[ticket.ID] = ticket.Clone()
	return nil
}

// DeleteTicket removes a ticket
func (r *MemoryRepository) DeleteTicket(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[id]; !ok {
		return errors.NotFound("ticket", id)
	}
	delete(r.tickets, id)
	return nil
}

// ListTickets returns all tickets ordered by creation time
func (r *MemoryRepository) ListTickets(ctx context.Context) ([]*models.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.Ticket, 0, len(r.tickets))
	for _, t := range r.tickets {
		result = append(result, t.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// UpdateTicketState changes a ticket's workflow state
func (r *MemoryRepository) UpdateTicketState(ctx context.Context, id string, state v1.TicketState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[id]
	if !ok {
		return errors.NotFound("ticket", id)
	}
	ticket.State = state
	ticket.UpdatedAt = time.Now().UTC()
	return nil
}
