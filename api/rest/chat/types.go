package chat

// body of POST /api/chat, as a form or JSON
type Request struct {
	Message string `form:"message" json:"message"`
}

// SSE event names
const (
	EventMessage = "message"
	EventDone    = "done"
	EventError   = "error"
)
