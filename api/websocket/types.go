package websocket

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/semidark/aichat/internal/pipeline"
	"github.com/semidark/aichat/internal/sessions"
	ws "github.com/semidark/aichat/internal/websocket"
)

// everything the chat socket needs to serve a connection
type Deps struct {
	Hub      *ws.Hub
	Registry *sessions.Registry
	Runner   *pipeline.Pipeline
	Cookies  sessions.CookieConfig
	Upgrader websocket.Upgrader
	// optional, runs before the upgrade
	Limit gin.HandlerFunc
}
