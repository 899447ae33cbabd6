package chat

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/semidark/aichat/internal/errors"
	"github.com/semidark/aichat/internal/logger"
	"github.com/semidark/aichat/internal/pipeline"
	"github.com/semidark/aichat/internal/sessions"
)

// ChatHandler godoc
// @Summary Stream a chat reply
// @Description Appends the message to the caller's conversation and streams the reply as server-sent events of html fragments
// @Tags chat
// @Accept x-www-form-urlencoded,json
// @Produce text/event-stream
// @Param message formData string true "user message"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Router /api/chat [post]
func Handler(runner *pipeline.Pipeline, registry *sessions.Registry, cookies sessions.CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req Request

		if err := c.ShouldBind(&req); err != nil {
			errors.ValidationError(c, err)
			return
		}

		if strings.TrimSpace(req.Message) == "" {
			errors.BadRequest(c, "message is required", nil)
			return
		}

		sessionID, created := sessions.ResolveCookie(c, registry, cookies)
		c.Set("session_id", sessionID)

		log := logger.FromContext(c.Request.Context()).With("session_id", sessionID)
		if created {
			log.Info("new chat session")
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
		c.Writer.Flush()

		ctx := logger.WithContext(c.Request.Context(), log)

		result, err := runner.Run(ctx, pipeline.Request{SessionID: sessionID, Message: req.Message}, newSSESink(c))
		if err != nil {
			log.Error("chat turn lost", "error", err, "state", result.State.String())
			return
		}

		if result.State == pipeline.StateCancelled {
			log.Debug("client disconnected", "chunks", result.Chunks)
		}
	}
}
