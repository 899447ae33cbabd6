package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	serviceName = "aichat"
	version     = "1.0.0"
)

// HealthHandler godoc
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} Response
// @Router /health [get]
func Handler(connections ConnectionCounter, sessions SessionCounter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, Response{
			Status:      "healthy",
			Service:     serviceName,
			Version:     version,
			Connections: connections.GetClientCount(),
			Sessions:    sessions.Len(),
		})
	}
}

// responds with pong for testing
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, PingResponse{Message: "pong"})
}
