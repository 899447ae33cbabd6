package websocket

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/semidark/aichat/internal/chunker"
	"github.com/semidark/aichat/internal/errors"
	"github.com/semidark/aichat/internal/logger"
	"github.com/semidark/aichat/internal/pipeline"
)

// validates a chat message and queues it for the client's turn loop
func ChatHandler() MessageHandler {
	return func(_ *Hub, client *Client, msg *Message) error {
		// check rate limit
		if !client.checkChatRateLimit() {
			client.SendError(errors.CodeTooManyRequests, "too many chat messages. maximum 20 per minute.", "")
			return ErrRateLimitExceeded
		}

		// parse payload
		var payload ChatMessagePayload

		if err := msg.UnmarshalPayload(&payload); err != nil {
			client.SendError(errors.CodeValidationError, "failed to parse chat message", err.Error())
			return err
		}

		// validate message size
		if utf8.RuneCountInString(payload.Message) > maxChatMessageSize {
			client.SendError(errors.CodeBadRequest, "message exceeds maximum size. maximum 5000 characters allowed.", "")
			return ErrMessageTooLarge
		}

		// validate message is not empty (after trimming whitespace)
		if strings.TrimSpace(payload.Message) == "" {
			client.SendError(errors.CodeBadRequest, "message cannot be empty", "")
			return ErrEmptyMessage
		}

		if err := client.enqueueTurn(payload.Message); err != nil {
			if err == ErrTurnQueueFull {
				client.SendError(errors.CodeTooManyRequests, "too many messages waiting for a reply", "")
			}

			return err
		}

		return nil
	}
}

// handles ping messages from clients (keep-alive)
func PingHandler() MessageHandler {
	return func(_ *Hub, client *Client, _ *Message) error {
		// respond with pong
		pongMsg, err := NewMessage(TypePong, client.SessionID, nil)
		if err != nil {
			return err
		}

		client.Send(pongMsg) //nolint:errcheck,gosec // best-effort pong
		return nil
	}
}

// streams the reply to one user message over the connection
func RunTurn(runner *pipeline.Pipeline) TurnFunc {
	return func(ctx context.Context, client *Client, message string) {
		log := logger.ForSession(client.SessionID).With("client_id", client.ID)
		ctx = logger.WithContext(ctx, log)

		result, err := runner.Run(ctx, pipeline.Request{SessionID: client.SessionID, Message: message}, &clientSink{client: client})
		if err != nil {
			log.Error("chat turn lost", "error", err)
			return
		}

		if result.State == pipeline.StateCancelled {
			log.Debug("connection closed during turn", "chunks", result.Chunks)
		}
	}
}

// delivers pipeline output as websocket frames. every call returns only
// after the frame was written, so the pipeline records exactly what the
// client received.
type clientSink struct {
	client *Client
}

func (s *clientSink) Send(ctx context.Context, chunk chunker.Chunk) error {
	msg, err := NewMessage(TypeChunk, s.client.SessionID, ChunkPayload{Seq: chunk.Seq, Text: chunk.Text})
	if err != nil {
		return err
	}

	return s.client.SendDelivered(ctx, msg)
}

func (s *clientSink) Complete(ctx context.Context) error {
	msg, err := NewMessage(TypeDone, s.client.SessionID, nil)
	if err != nil {
		return err
	}

	return s.client.SendDelivered(ctx, msg)
}

func (s *clientSink) Fail(ctx context.Context, cause error) error {
	msg, err := NewMessage(TypeError, s.client.SessionID, errors.ErrorResponse{
		Error:   errors.CodeUpstreamError,
		Message: "the reply could not be completed",
		Details: errors.Sanitize(cause),
	})
	if err != nil {
		return err
	}

	return s.client.SendDelivered(ctx, msg)
}
