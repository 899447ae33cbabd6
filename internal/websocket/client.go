package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/semidark/aichat/internal/errors"
	"github.com/semidark/aichat/internal/logger"
)

// creates a new webSocket client connection
func NewClient(id, sessionID, ipAddress string, conn *websocket.Conn, hub *Hub) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		ID:                    id,
		SessionID:             sessionID,
		IPAddress:             ipAddress,
		conn:                  conn,
		hub:                   hub,
		send:                  make(chan []byte, sendBufferSize),
		replies:               make(chan *delivery),
		turns:                 make(chan string, maxQueuedTurns),
		ctx:                   ctx,
		cancel:                cancel,
		closed:                false,
		chatMessageTimestamps: make([]time.Time, 0, maxChatMessagesPerMinute),
	}
}

// reads messages from the webSocket connection to the hub for processing
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close() //nolint:errcheck,gosec // G104: defer cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: websocket setup
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck,gosec // G104: pong handler
		return nil
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket error",
					"client_id", c.ID,
					"session_id", c.SessionID,
					"error", err,
				)
			}

			break
		}

		// parse the message
		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			logger.Debug("failed to unmarshal message",
				"client_id", c.ID,
				"session_id", c.SessionID,
				"error", err,
			)

			c.SendError(errors.CodeBadRequest, "invalid message format", err.Error())
			continue
		}

		// set session ID and client ID from the connection
		msg.SessionID = c.SessionID
		msg.ClientID = c.ID
		msg.Timestamp = time.Now()

		if !c.hub.dispatch(&msg) {
			break
		}
	}
}

// writes queued messages to the webSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck,gosec // G104: defer cleanup
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket timing

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case d := <-c.replies:
			if c.IsClosed() {
				d.written <- ErrConnectionClosed
				continue
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket timing

			err := c.conn.WriteMessage(websocket.TextMessage, d.data)
			d.written <- err

			if err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket ping timing

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.ctx.Done():
			// flush queued control frames, then say goodbye. reply frames
			// not yet handed over are dropped.
			c.drainSend()

			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket timing

			c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck,gosec // G104: close message
			return
		}
	}
}

func (c *Client) drainSend() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck,gosec // G104: websocket timing

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// answers queued user messages one at a time until the connection closes
func (c *Client) TurnLoop(run TurnFunc) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case message := <-c.turns:
			run(c.ctx, c, message)
		}
	}
}

// queues a user message behind the reply currently streaming
func (c *Client) enqueueTurn(message string) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.turns <- message:
		return nil
	default:
		return ErrTurnQueueFull
	}
}

// queues a message for the client without waiting. a full buffer means the
// client stopped reading, so the connection is closed.
func (c *Client) Send(msg *Message) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	select {
	case c.send <- messageBytes:
		return nil
	default:
		logger.Warn("send buffer full, closing connection",
			"client_id", c.ID,
			"session_id", c.SessionID,
		)

		c.Close()
		return ErrConnectionClosed
	}
}

// hands a reply frame to the writer and waits until it is on the wire.
// a nil error means the frame was written; nothing is queued behind the
// caller's back, so a reply never runs ahead of what the client received.
func (c *Client) SendDelivered(ctx context.Context, msg *Message) error {
	messageBytes, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	d := &delivery{data: messageBytes, written: make(chan error, 1)}

	select {
	case c.replies <- d:
	case <-c.ctx.Done():
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	// the writer always reports back once it took the frame
	if err := <-d.written; err != nil {
		if err == ErrConnectionClosed {
			return err
		}

		return fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}

	return nil
}

// sends an error message to the client
func (c *Client) SendError(code, message, details string) {
	// sanitize error details in production
	sanitizedDetails := details

	if details != "" {
		sanitizedDetails = errors.Sanitize(stringError(details))
	}

	errorMsg, err := NewMessage(TypeError, c.SessionID, errors.ErrorResponse{
		Error:   code,
		Message: message,
		Details: sanitizedDetails,
	})
	if err != nil {
		logger.ErrorErr(err, "failed to create error message",
			"client_id", c.ID,
			"session_id", c.SessionID,
			"error_code", code,
		)
		return
	}

	c.Send(errorMsg) //nolint:errcheck,gosec // G104: best effort error notification
}

// closes the client connection and cancels its running turn
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		c.cancel()
	}
}

// checks if the client is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.closed
}

// checks if the client can send a chat message
func (c *Client) checkChatRateLimit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	oneMinuteAgo := now.Add(-1 * time.Minute)

	// remove timestamps older than 1 minute
	validTimestamps := make([]time.Time, 0, maxChatMessagesPerMinute)
	for _, ts := range c.chatMessageTimestamps {
		if ts.After(oneMinuteAgo) {
			validTimestamps = append(validTimestamps, ts)
		}
	}

	c.chatMessageTimestamps = validTimestamps

	// check if we've exceeded the limit
	if len(c.chatMessageTimestamps) >= maxChatMessagesPerMinute {
		return false
	}

	// add current timestamp
	c.chatMessageTimestamps = append(c.chatMessageTimestamps, now)
	return true
}
