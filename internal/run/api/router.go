package api

import (
	"github.com/gin-gonic/gin"

	"github.com/agentboard/agentboard/internal/common/logger"
	"github.com/agentboard/agentboard/internal/run/progress"
	"github.com/agentboard/agentboard/internal/run/session"
	"github.com/agentboard/agentboard/internal/ticket/repository"
)

// SetupRoutes configures the run API routes
func SetupRoutes(router *gin.RouterGroup, svc *session.Service, repo repository.Repository, store *progress.Store, log *logger.Logger) {
	handler := NewHandler(svc, repo, store, log)

	runs := router.Group("/tickets/:ticketId/run")
	{
		runs.POST("", handler.StartRun)
		runs.POST("/followup", handler.FollowUpRun)
		runs.POST("/cancel", handler.CancelRun)
		runs.GET("/progress", handler.GetProgress)
		runs.GET("/report", handler.GetReport)
		runs.GET("/stream", handler.StreamRun)
		runs.DELETE("", handler.CleanupRun)
	}
}
