package api

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agentboard/agentboard/internal/common/errors"
	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/run/progress"
	"github.com/agentboard/agentboard/internal/run/session"
	"github.com/agentboard/agentboard/internal/ticket/repository"
)

// Handler contains HTTP handlers for the run API
type Handler struct {
	service *session.Service
	repo    repository.Repository
	store   *progress.Store
	logger  *logger.Logger
}

// NewHandler creates a new run API handler
func NewHandler(svc *session.Service, repo repository.Repository, store *progress.Store, log *logger.Logger) *Handler {
	return &Handler{
		service: svc,
		repo:    repo,
		store:   store,
		logger:  log,
	}
}

// StartRun begins a fresh agent run for a ticket
// POST /api/v1/tickets/:ticketId/run
func (h *Handler) StartRun(c *gin.Context) {
	ticketID := c.Param("ticketId")

	if err := h.service.Start(c.Request.Context(), ticketID); err != nil {
		h.respondError(c, ticketID, "failed to start run", err)
		return
	}

	c.JSON(http.StatusAccepted, RunAcceptedResponse{TicketID: ticketID, Status: "accepted"})
}

// FollowUpRun begins a change-request run against a ticket's existing instance
// POST /api/v1/tickets/:ticketId/run/followup
func (h *Handler) FollowUpRun(c *gin.Context) {
	ticketID := c.Param("ticketId")

	var req FollowUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.service.FollowUp(c.Request.Context(), ticketID, req.ChangeRequest); err != nil {
		h.respondError(c, ticketID, "failed to start follow-up run", err)
		return
	}

	c.JSON(http.StatusAccepted, RunAcceptedResponse{TicketID: ticketID, Status: "accepted"})
}

// CancelRun requests termination of a ticket's active run
// POST /api/v1/tickets/:ticketId/run/cancel
func (h *Handler) CancelRun(c *gin.Context) {
	ticketID := c.Param("ticketId")

	if err := h.service.Cancel(c.Request.Context(), ticketID); err != nil {
		h.respondError(c, ticketID, "failed to cancel run", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket_id": ticketID, "status": "cancelled"})
}

// GetProgress returns the current progress snapshot for a ticket's run
// GET /api/v1/tickets/:ticketId/run/progress
func (h *Handler) GetProgress(c *gin.Context) {
	ticketID := c.Param("ticketId")

	snap, err := h.service.Progress(c.Request.Context(), ticketID)
	if err != nil {
		h.respondError(c, ticketID, "failed to read progress", err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// GetReport returns the terminal report for a ticket's run
// GET /api/v1/tickets/:ticketId/run/report
func (h *Handler) GetReport(c *gin.Context) {
	ticketID := c.Param("ticketId")

	report, err := h.service.Report(c.Request.Context(), ticketID)
	if err != nil {
		h.respondError(c, ticketID, "failed to read report", err)
		return
	}
	if report == nil {
		appErr := errors.NotFound("report", ticketID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, report)
}

// CleanupRun removes a ticket's instance directory and isolated checkout
// DELETE /api/v1/tickets/:ticketId/run
func (h *Handler) CleanupRun(c *gin.Context) {
	ticketID := c.Param("ticketId")

	if err := h.service.Cleanup(c.Request.Context(), ticketID); err != nil {
		h.respondError(c, ticketID, "failed to clean up run", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) respondError(c *gin.Context, ticketID, msg string, err error) {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	h.logger.Error(msg, zap.String("ticket_id", ticketID), zap.Error(err))
	appErr = errors.InternalError(msg, err)
	c.JSON(appErr.HTTPStatus, appErr)
}
