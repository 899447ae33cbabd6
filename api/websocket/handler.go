package websocket

import (
	"github.com/gin-gonic/gin"

	"github.com/semidark/aichat/internal/errors"
	"github.com/semidark/aichat/internal/logger"
	"github.com/semidark/aichat/internal/sessions"
	ws "github.com/semidark/aichat/internal/websocket"
)

// ChatSocketHandler godoc
// @Summary Chat over a websocket
// @Description Upgrades to a websocket that accepts chat_message frames and answers with chunk, done and error frames
// @Tags chat
// @Success 101 {string} string "switching protocols"
// @Failure 429 {object} errors.ErrorResponse
// @Failure 503 {object} errors.ErrorResponse
// @Router /api/chat/ws [get]
func WebSocketHandler(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Hub.IsShuttingDown() {
			errors.ServiceUnavailable(c, "server is shutting down")
			return
		}

		// check connection limits before accepting new connection
		ipAddress := c.ClientIP()
		canAccept, reason := deps.Hub.CanAcceptConnection(ipAddress)

		if !canAccept {
			errors.TooManyRequests(c, reason)
			return
		}

		clientID, err := ws.GenerateClientID()
		if err != nil {
			errors.InternalError(c, "failed to generate client ID", err)
			return
		}

		// a new session cookie travels with the upgrade response
		sessionID, created := sessions.ResolveCookie(c, deps.Registry, deps.Cookies)

		// upgrade HTTP connection to WebSocket
		conn, err := deps.Upgrader.Upgrade(c.Writer, c.Request, c.Writer.Header())
		if err != nil {
			logger.ErrorErr(err, "failed to upgrade connection",
				"session_id", sessionID,
				"ip", ipAddress,
			)

			return
		}

		client := ws.NewClient(clientID, sessionID, ipAddress, conn, deps.Hub)

		if !deps.Hub.Join(client) {
			client.Close()
			conn.Close() //nolint:errcheck,gosec // G104: server is shutting down
			return
		}

		go client.WritePump()
		go client.TurnLoop(ws.RunTurn(deps.Runner))
		go client.ReadPump()

		logger.Info("websocket connection established",
			"client_id", clientID,
			"session_id", sessionID,
			"new_session", created,
			"ip", ipAddress,
		)
	}
}
