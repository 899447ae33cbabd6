package config

import (
	"github.com/gin-gonic/gin"

	appconfig "github.com/semidark/aichat/internal/config"
)

// registers the read-only config route
func RegisterRoutes(router *gin.RouterGroup, cfg *appconfig.Config) {
	router.GET("/config", Handler(cfg))
}
