// Package sandbox is a local stand-in for the services the replay commands
// call. It validates request shapes, checks credentials and can be told to fail.
package sandbox

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *Dependencies, h *Handler) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "replay-sandbox",
		})
	})

	api := r.Group("/api", AuthMiddleware(deps.Token))
	{
		api.POST("/resync", h.Resync)
		api.POST("/configuration", h.Configuration)
		api.POST("/resync-failed-tasks", h.ResyncFailedTasks)
		api.POST("/replay-rejected-entities-from-data-depot", h.ReplayRejected)
		api.POST("/internal/installations/rotate/cloudid/:cloud_id/bitbucket/workspaceuuid/:workspace_uuid", h.RotateSecrets)
	}

	return r
}

// New builds a handler and its router in one step
func New(deps *Dependencies) (*Handler, *gin.Engine) {
	h := NewHandler(deps)
	return h, SetupRouter(deps, h)
}
