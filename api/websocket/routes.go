package websocket

import (
	"github.com/gin-gonic/gin"

	ws "github.com/semidark/aichat/internal/websocket"
)

// registers the chat socket and its message handlers
func RegisterRoutes(router *gin.RouterGroup, deps *Deps) {
	deps.Hub.RegisterHandler(ws.TypeChatMessage, ws.ChatHandler())
	deps.Hub.RegisterHandler(ws.TypePing, ws.PingHandler())

	handlers := []gin.HandlerFunc{WebSocketHandler(deps)}
	if deps.Limit != nil {
		handlers = append([]gin.HandlerFunc{deps.Limit}, handlers...)
	}

	router.GET("/chat/ws", handlers...)
}
