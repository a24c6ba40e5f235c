package api

import (
	"github.com/gin-gonic/gin"

	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/events/bus"
	"github.com/agentboard/agentboard/internal/ticket/repository"
)

// SetupRoutes configures the ticket API routes
func SetupRoutes(router *gin.RouterGroup, repo repository.Repository, eventBus bus.EventBus, log *logger.Logger) {
	handler := NewHandler(repo, eventBus, log)

	tickets := router.Group("/tickets")
	{
		tickets.POST("", handler.CreateTicket)
		tickets.GET("", handler.ListTickets)
		tickets.GET("/:ticketId", handler.GetTicket)
		tickets.PUT("/:ticketId", handler.UpdateTicket)
		tickets.DELETE("/:ticketId", handler.DeleteTicket)
		tickets.PUT("/:ticketId/state", handler.MoveTicket)
	}
}
