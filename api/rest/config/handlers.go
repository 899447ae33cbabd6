package config

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appconfig "github.com/semidark/aichat/internal/config"
)

// ConfigHandler godoc
// @Summary Effective streaming settings
// @Description Returns the chunk size, hand-off delay and queue depth the server streams with
// @Tags config
// @Produce json
// @Success 200 {object} appconfig.StreamSummary
// @Router /api/config [get]
func Handler(cfg *appconfig.Config) gin.HandlerFunc {
	summary := cfg.StreamSummary()

	return func(c *gin.Context) {
		c.JSON(http.StatusOK, summary)
	}
}
