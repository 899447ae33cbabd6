package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/semidark/aichat/internal/chunker"
	"github.com/semidark/aichat/internal/history"
	"github.com/semidark/aichat/internal/llm"
	"github.com/semidark/aichat/internal/sessions"
)

// lifecycle of one chat turn
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var (
	// both commit attempts failed; the turn is not on disk
	ErrTurnLost = errors.New("turn could not be persisted")

	// the transport refused a chunk, usually because the client went away
	ErrTransportClosed = errors.New("transport closed")
)

// the transport side of a run. Send is called once per chunk in sequence
// order. exactly one of Complete or Fail is called at the end of a turn
// that was not cancelled.
type Sink interface {
	Send(ctx context.Context, chunk chunker.Chunk) error
	Complete(ctx context.Context) error
	Fail(ctx context.Context, err error) error
}

// the part of the conversation store a run needs
type HistoryStore interface {
	Load(sessionID string) (*history.History, error)
	Commit(sessionID string, h *history.History) error
}

type Config struct {
	Chunking chunker.Options

	// zero disables the upstream idle watchdog
	UpstreamIdleTimeout time.Duration
}

// runs chat turns: one Run call per user message
type Pipeline struct {
	registry *sessions.Registry
	store    HistoryStore
	streamer llm.Streamer
	config   Config
	now      func() time.Time
}

type Request struct {
	SessionID string
	Message   string
}

// outcome of one Run
type Result struct {
	SessionID  string
	State      State
	Chunks     int
	Transcript string

	// upstream error for Failed, cancellation cause for Cancelled
	Err error

	Committed bool
	Duration  time.Duration
}
