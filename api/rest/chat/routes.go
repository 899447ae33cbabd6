package chat

import (
	"github.com/gin-gonic/gin"

	"github.com/semidark/aichat/internal/pipeline"
	"github.com/semidark/aichat/internal/sessions"
)

// registers the streaming chat route. limit guards the endpoint and may be nil.
func RegisterRoutes(router *gin.RouterGroup, runner *pipeline.Pipeline, registry *sessions.Registry, cookies sessions.CookieConfig, limit gin.HandlerFunc) {
	handlers := []gin.HandlerFunc{Handler(runner, registry, cookies)}
	if limit != nil {
		handlers = append([]gin.HandlerFunc{limit}, handlers...)
	}

	router.POST("/chat", handlers...)
}
