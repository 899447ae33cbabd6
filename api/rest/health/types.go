package health

// Response represents the health check response
type Response struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version,omitempty"`
	Connections int    `json:"connections"`
	Sessions    int    `json:"sessions"`
}

type PingResponse struct {
	Message string `json:"message"`
}

// reports open websocket connections
type ConnectionCounter interface {
	GetClientCount() int
}

// reports sessions tracked in memory
type SessionCounter interface {
	Len() int
}
