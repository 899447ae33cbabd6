package history

import (
	"errors"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// returned (wrapped) by Load when a history file exists but cannot be
	// read or decoded. the returned history is still usable.
	ErrCorruptHistory = errors.New("history file unreadable or corrupt")

	ErrInvalidSessionID = errors.New("invalid session id")
)

// one turn of a conversation. messages are never modified once appended.
type Message struct {
	Role       string `json:"role"`
	Content    string `json:"content"`
	Timestamp  int64  `json:"timestamp"`
	Incomplete bool   `json:"incomplete,omitempty"`
}

// the persisted conversation of one session
type History struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"created_at"`
	UpdatedAt int64     `json:"updated_at"`
}

// durable per-session message log
type Store interface {
	Load(sessionID string) (*History, error)
	Commit(sessionID string, h *History) error
	Exists(sessionID string) bool
}

// returns an empty history for a session
func New(sessionID string, now time.Time) *History {
	return &History{
		SessionID: sessionID,
		Messages:  []Message{},
		CreatedAt: now.Unix(),
		UpdatedAt: now.Unix(),
	}
}

// appends a message and bumps UpdatedAt
func (h *History) Append(msg Message) {
	h.Messages = append(h.Messages, msg)

	if msg.Timestamp > h.UpdatedAt {
		h.UpdatedAt = msg.Timestamp
	}
}

// returns a copy whose message slice can be appended to independently
func (h *History) Clone() *History {
	c := *h
	c.Messages = make([]Message, len(h.Messages), len(h.Messages)+2)
	copy(c.Messages, h.Messages)

	return &c
}
