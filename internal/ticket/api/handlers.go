package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentboard/agentboard/internal/common/errors"
	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/events"
	"github.com/agentboard/agentboard/internal/events/bus"
	"github.com/agentboard/agentboard/internal/ticket/models"
	"github.com/agentboard/agentboard/internal/ticket/repository"
	v1 "github.com/agentboard/agentboard/pkg/api/v1"
)

// Handler contains HTTP handlers for the ticket API
type Handler struct {
	repo   repository.Repository
	bus    bus.EventBus
	logger *logger.Logger
}

// NewHandler creates a new ticket API handler
func NewHandler(repo repository.Repository, eventBus bus.EventBus, log *logger.Logger) *Handler {
	return &Handler{
		repo:   repo,
		bus:    eventBus,
		logger: log,
	}
}

// CreateTicket creates a new ticket
// POST /api/v1/tickets
func (h *Handler) CreateTicket(c *gin.Context) {
	var req CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	ticket := &models.Ticket{
		Title:        req.Title,
		Description:  req.Description,
		CodebasePath: req.CodebasePath,
		State:        v1.TicketStateTodo,
	}

	if err := h.repo.CreateTicket(c.Request.Context(), ticket); err != nil {
		h.logger.Error("failed to create ticket", zap.Error(err))
		appErr := errors.InternalError("failed to create ticket", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	h.publish(c, events.TicketCreated, ticket.ID)
	c.JSON(http.StatusCreated, ticket.ToAPI())
}

// GetTicket retrieves a ticket by ID
// GET /api/v1/tickets/:ticketId
func (h *Handler) GetTicket(c *gin.Context) {
	ticketID := c.Param("ticketId")

	ticket, err := h.repo.GetTicket(c.Request.Context(), ticketID)
	if err != nil {
		appErr := errors.NotFound("ticket", ticketID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, ticket.ToAPI())
}

// UpdateTicket updates a ticket's editable fields
// PUT /api/v1/tickets/:ticketId
func (h *Handler) UpdateTicket(c *gin.Context) {
	ticketID := c.Param("ticketId")

	var req UpdateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	ticket, err := h.repo.GetTicket(c.Request.Context(), ticketID)
	if err != nil {
		appErr := errors.NotFound("ticket", ticketID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if req.Title != nil {
		ticket.Title = *req.Title
	}
	if req.Description != nil {
		ticket.Description = *req.Description
	}
	if req.CodebasePath != nil {
		ticket.CodebasePath = *req.CodebasePath
	}

	if err := h.repo.UpdateTicket(c.Request.Context(), ticket); err != nil {
		h.logger.Error("failed to update ticket", zap.String("ticket_id", ticketID), zap.Error(err))
		appErr := errors.InternalError("failed to update ticket", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	h.publish(c, events.TicketUpdated, ticketID)
	c.JSON(http.StatusOK, ticket.ToAPI())
}

// DeleteTicket deletes a ticket
// DELETE /api/v1/tickets/:ticketId
func (h *Handler) DeleteTicket(c *gin.Context) {
	ticketID := c.Param("ticketId")

	if err := h.repo.DeleteTicket(c.Request.Context(), ticketID); err != nil {
		if errors.IsNotFound(err) {
			appErr := errors.NotFound("ticket", ticketID)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		h.logger.Error("failed to delete ticket", zap.String("ticket_id", ticketID), zap.Error(err))
		appErr := errors.InternalError("failed to delete ticket", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	h.publish(c, events.TicketDeleted, ticketID)
	c.Status(http.StatusNoContent)
}

// ListTickets returns all tickets
// GET /api/v1/tickets
func (h *Handler) ListTickets(c *gin.Context) {
	tickets, err := h.repo.ListTickets(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list tickets", zap.Error(err))
		appErr := errors.InternalError("failed to list tickets", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	resp := TicketsListResponse{
		Tickets: make([]*v1.Ticket, len(tickets)),
		Total:   len(tickets),
	}
	for i, t := range tickets {
		resp.Tickets[i] = t.ToAPI()
	}

	c.JSON(http.StatusOK, resp)
}

// MoveTicket changes a ticket's workflow state
// PUT /api/v1/tickets/:ticketId/state
func (h *Handler) MoveTicket(c *gin.Context) {
	ticketID := c.Param("ticketId")

	var req MoveTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	state := v1.TicketState(req.State)
	if !v1.ValidTicketState(state) {
		appErr := errors.ValidationError("state", "unknown ticket state: "+req.State)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.repo.UpdateTicketState(c.Request.Context(), ticketID, state); err != nil {
		if errors.IsNotFound(err) {
			appErr := errors.NotFound("ticket", ticketID)
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
		h.logger.Error("failed to move ticket", zap.String("ticket_id", ticketID), zap.Error(err))
		appErr := errors.InternalError("failed to move ticket", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	ticket, err := h.repo.GetTicket(c.Request.Context(), ticketID)
	if err != nil {
		appErr := errors.InternalError("failed to load ticket", err)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	h.publish(c, events.TicketMoved, ticketID)
	c.JSON(http.StatusOK, ticket.ToAPI())
}

func (h *Handler) publish(c *gin.Context, eventType, ticketID string) {
	if h.bus == nil {
		return
	}
	evt := bus.NewEvent(eventType, "ticket-api", map[string]interface{}{
		"ticket_id": ticketID,
	})
	if err := h.bus.Publish(c.Request.Context(), eventType, evt); err != nil {
		h.logger.Warn("failed to publish event", zap.String("event", eventType), zap.Error(err))
	}
}
