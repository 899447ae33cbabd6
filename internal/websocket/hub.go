package websocket

import (
	"time"

	"github.com/semidark/aichat/internal/logger"
)

func NewHub() *Hub {
	return &Hub{
		clients:       make(map[string]*Client),
		Register:      make(chan *Client),
		Unregister:    make(chan *Client),
		Broadcast:     make(chan *Message, 256),
		handlers:      make(map[string]MessageHandler),
		running:       false,
		shutdown:      make(chan struct{}),
		stopped:       make(chan struct{}),
		ipConnections: make(map[string]int),
	}
}

// registers a handler for a specific message type
func (h *Hub) RegisterHandler(messageType string, handler MessageHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[messageType] = handler
}

// starts the hub's main loop
func (h *Hub) Run() {
	h.mu.Lock()
	h.running = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		close(h.stopped)
	}()

	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case message := <-h.Broadcast:
			h.handleMessage(message)

		case <-h.shutdown:
			h.closeAllConnections()
			return
		}
	}
}

// hands a client to the hub. returns false once the hub is shutting down.
func (h *Hub) Join(client *Client) bool {
	if h.IsShuttingDown() {
		return false
	}

	select {
	case h.Register <- client:
		return true
	case <-h.shutdown:
		return false
	}
}

func (h *Hub) unregister(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.shutdown:
		client.Close()
	}
}

// queues a client message for processing. returns false once the hub is
// shutting down.
func (h *Hub) dispatch(msg *Message) bool {
	if h.IsShuttingDown() {
		return false
	}

	select {
	case h.Broadcast <- msg:
		return true
	case <-h.shutdown:
		return false
	}
}

// reports whether Shutdown was called
func (h *Hub) IsShuttingDown() bool {
	select {
	case <-h.shutdown:
		return true
	default:
		return false
	}
}

// adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client

	if client.IPAddress != "" {
		h.ipConnections[client.IPAddress]++
	}

	logger.Info("client registered",
		"client_id", client.ID,
		"session_id", client.SessionID,
	)
}

// removes a client from the hub
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[client.ID]; !exists {
		return
	}

	delete(h.clients, client.ID)
	client.Close()

	if client.IPAddress != "" {
		h.ipConnections[client.IPAddress]--

		if h.ipConnections[client.IPAddress] <= 0 {
			delete(h.ipConnections, client.IPAddress)
		}
	}

	logger.Info("client unregistered",
		"client_id", client.ID,
		"session_id", client.SessionID,
	)
}

// processes an incoming message
func (h *Hub) handleMessage(msg *Message) {
	h.mu.RLock()
	sender, exists := h.clients[msg.ClientID]
	handler, handled := h.handlers[msg.Type]
	h.mu.RUnlock()

	if !exists {
		logger.Warn("sender client not found for message",
			"client_id", msg.ClientID,
			"session_id", msg.SessionID,
			"message_type", msg.Type,
		)
		return
	}

	if !handled {
		// reject unhandled message types
		logger.Warn("unhandled message type received",
			"message_type", msg.Type,
			"client_id", sender.ID,
			"session_id", msg.SessionID,
		)

		sender.SendError("bad_request", "unsupported message type", "message type not recognized")
		return
	}

	// handlers only validate and queue, so they run on the hub goroutine
	// and messages of one client keep their order
	if err := handler(h, sender, msg); err != nil {
		logger.Debug("message rejected",
			"message_type", msg.Type,
			"client_id", sender.ID,
			"session_id", msg.SessionID,
			"error", err,
		)
	}
}

// returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// reports whether Run is active
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.running
}

// notifies every client, closes all connections and stops Run. safe to
// call more than once.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() {
		close(h.shutdown)
	})

	if h.IsRunning() {
		<-h.stopped
	}
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()

	logger.Info("notifying clients of server shutdown", "clients", len(h.clients))

	shutdownMsg, err := NewMessage(TypeServerShutdown, "", ServerShutdownPayload{
		Reason: "server is shutting down",
	})
	if err != nil {
		logger.ErrorErr(err, "failed to create shutdown message")
	}

	// send shutdown notification to all clients first
	for _, client := range h.clients {
		if shutdownMsg == nil {
			break
		}

		if err := client.Send(shutdownMsg); err != nil {
			logger.Debug("failed to send shutdown notification",
				"client_id", client.ID,
				"session_id", client.SessionID,
				"error", err,
			)
		}
	}

	count := len(h.clients)
	h.mu.Unlock()

	// give clients time to receive the shutdown message
	if count > 0 {
		time.Sleep(500 * time.Millisecond)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	logger.Info("closing all websocket connections")

	for clientID, client := range h.clients {
		client.Close()
		logger.Debug("closed client",
			"client_id", clientID,
			"session_id", client.SessionID,
		)
	}

	// clear all clients and connection tracking
	h.clients = make(map[string]*Client)
	h.ipConnections = make(map[string]int)
}

// checks if a new connection should be allowed based on limits
func (h *Hub) CanAcceptConnection(ipAddress string) (bool, string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := h.ipConnections[ipAddress]
	if count >= maxConnectionsPerIP {
		return false, "Maximum connections per IP address exceeded"
	}

	return true, ""
}
