package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mail-gateway/internal/gateway"
)

// publishRequest is the body of the internal publish endpoint used by
// sibling processes (the SMTP ingester) to announce domain events.
type publishRequest struct {
	Channel  string            `json:"channel" binding:"required"`
	Envelope *gateway.Envelope `json:"envelope" binding:"required"`
}

// SetupRoutes configures all the routes for the gateway.
func SetupRoutes(router *gin.Engine, hub *gateway.Hub) {
	// Health check route
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Persistent-socket front end; authentication happens on the first
	// frame, not on the upgrade.
	router.GET("/ws", func(c *gin.Context) {
		gateway.ServeWS(hub, c.Writer, c.Request)
	})

	// Internal-only surface for collaborators without an in-process hub
	// reference. Deployments keep this off the public listener.
	internal := router.Group("/internal")
	{
		internal.POST("/publish", func(c *gin.Context) {
			var req publishRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if err := hub.Publish(c.Request.Context(), req.Channel, req.Envelope); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": "publish failed"})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "published"})
		})
	}
}
