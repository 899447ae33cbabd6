package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// message type constants for websocket communication
const (
	// is sent by clients with a new user message
	TypeChatMessage = "chat_message"

	// is sent for every chunk of a streamed reply
	TypeChunk = "chunk"

	// is sent after the last chunk of a completed reply
	TypeDone = "done"

	// is sent when an error occurs
	TypeError = "error"

	// is sent by clients to keep the connection alive
	TypePing = "ping"

	// is sent by server in response to ping
	TypePong = "pong"

	// is sent by server before shutdown
	TypeServerShutdown = "server_shutdown"
)

// client connection constants
const (
	// time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maximum message size allowed from peer
	maxMessageSize = 64 * 1024 // 64 KB

	// outbound control frames buffered per client
	sendBufferSize = 256

	// user messages waiting behind the reply currently streaming
	maxQueuedTurns = 4

	// rate limiting constants
	maxChatMessagesPerMinute = 20 // maximum chat messages per minute

	// content size limits
	maxChatMessageSize = 5000 // 5000 characters maximum chat message size
)

// hub connection limit constants
const (
	maxConnectionsPerIP = 10
)

// errors
var (
	ErrInvalidMessage    = errors.New("invalid message format")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrMessageTooLarge   = errors.New("message too large")
	ErrEmptyMessage      = errors.New("message is empty")
	ErrTurnQueueFull     = errors.New("too many messages waiting for a reply")
)

// represents a websocket message with typed payload
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	ClientID  string          `json:"-"` // internal only, not sent to clients
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// contains a chat message from a user
type ChatMessagePayload struct {
	Message string `json:"message"`
}

// one chunk of a streamed reply
type ChunkPayload struct {
	Seq  int    `json:"seq"`
	Text string `json:"text"`
}

// a reply frame together with the outcome of writing it
type delivery struct {
	data    []byte
	written chan error
}

// contains information about server shutdown
type ServerShutdownPayload struct {
	Reason string `json:"reason"`
}

// represents a websocket client connection
type Client struct {
	// unique identifier for this client
	ID string

	// chat session this connection streams for
	SessionID string

	// IP address of the client (for connection tracking)
	IPAddress string

	// websocket connection
	conn *websocket.Conn

	// hub reference for message dispatch
	hub *Hub

	// buffered channel of outbound control messages
	send chan []byte

	// reply frames, handed to WritePump one at a time
	replies chan *delivery

	// user messages waiting to be answered, in arrival order
	turns chan string

	// canceled when the connection closes; aborts a running turn
	ctx    context.Context
	cancel context.CancelFunc

	// mutex for thread-safe operations
	mu sync.RWMutex

	// flag indicating if client is closed
	closed bool

	// rate limiting: chat message timestamps (sliding window)
	chatMessageTimestamps []time.Time
}

// maintains the set of active clients and dispatches their messages
type Hub struct {
	// registered clients by client ID
	clients map[string]*Client

	// register requests from clients
	Register chan *Client

	// unregister requests from clients
	Unregister chan *Client

	// messages read from clients, waiting for dispatch
	Broadcast chan *Message

	// mutex for thread-safe access to clients
	mu sync.RWMutex

	// message handlers for different message types
	handlers map[string]MessageHandler

	// flag indicating if hub is running
	running bool

	// channel to signal shutdown
	shutdown     chan struct{}
	shutdownOnce sync.Once

	// closed when Run has returned
	stopped chan struct{}

	// connection tracking: IP address -> count of connections
	ipConnections map[string]int
}

// processes a specific message type
type MessageHandler func(hub *Hub, client *Client, msg *Message) error

// answers one user message on a connection
type TurnFunc func(ctx context.Context, client *Client, message string)
