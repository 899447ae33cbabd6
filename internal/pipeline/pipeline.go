package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/semidark/aichat/internal/chunker"
	"github.com/semidark/aichat/internal/history"
	"github.com/semidark/aichat/internal/llm"
	"github.com/semidark/aichat/internal/logger"
	"github.com/semidark/aichat/internal/sessions"
)

func New(registry *sessions.Registry, store HistoryStore, streamer llm.Streamer, config Config) *Pipeline {
	return &Pipeline{
		registry: registry,
		store:    store,
		streamer: streamer,
		config:   config,
		now:      time.Now,
	}
}

// runs one chat turn for a session: waits for the session's lease, loads
// the history, streams the model's reply through the chunker into sink and
// commits the turn. the returned error is non-nil only when the turn could
// not be persisted; every other outcome is described by Result.
func (p *Pipeline) Run(ctx context.Context, req Request, sink Sink) (*Result, error) {
	log := logger.FromContext(ctx).With("session_id", req.SessionID)
	started := p.now()

	result := &Result{SessionID: req.SessionID, State: StateIdle}

	if p.registry.Busy(req.SessionID) {
		log.Debug("session busy, waiting for the running turn")
	}

	lease, err := p.registry.Acquire(ctx, req.SessionID)
	if err != nil {
		// never started, nothing to persist
		result.State = StateCancelled
		result.Err = err
		log.Debug("client left while waiting for session", "error", err)

		return result, nil
	}
	defer lease.Release()

	hist, err := p.store.Load(req.SessionID)
	if err != nil {
		log.Warn("conversation history unavailable, starting fresh", "error", err)
	}

	if hist == nil {
		hist = history.New(req.SessionID, started)
	}

	turn := hist.Clone()
	turn.Append(history.Message{
		Role:      history.RoleUser,
		Content:   req.Message,
		Timestamp: started.Unix(),
	})

	result.State = StateStreaming
	log.Debug("turn started", "history_messages", len(hist.Messages), "model", p.streamer.Model())

	transcript, chunks, streamErr := p.stream(ctx, history.PromptText(turn.Messages), sink)
	result.Transcript = transcript
	result.Chunks = chunks

	// a reply that reached its end counts as completed even when the client
	// left right after the last chunk
	switch {
	case streamErr == nil:
		result.State = StateCompleted
	case errors.Is(streamErr, ErrTransportClosed) || ctx.Err() != nil:
		result.State = StateCancelled
		result.Err = streamErr
	default:
		result.State = StateFailed
		result.Err = streamErr
	}

	turn.Append(history.Message{
		Role:       history.RoleAssistant,
		Content:    transcript,
		Timestamp:  p.now().Unix(),
		Incomplete: result.State != StateCompleted,
	})

	commitErr := p.commit(req.SessionID, turn, log)
	result.Committed = commitErr == nil
	result.Duration = p.now().Sub(started)

	if result.State != StateCancelled {
		p.notify(ctx, sink, result, commitErr, log)
	}

	log.Info("turn finished",
		"state", result.State.String(),
		"chunks", result.Chunks,
		"committed", result.Committed,
		"duration_ms", result.Duration.Milliseconds(),
		"lease_held_ms", lease.Held().Milliseconds(),
	)

	return result, commitErr
}

// drives upstream -> chunker -> sink. returns the text of every chunk the
// sink accepted, how many there were and why streaming stopped (nil when
// the model finished).
func (p *Pipeline) stream(ctx context.Context, prompt string, sink Sink) (string, int, error) {
	upstreamCtx, cancelUpstream := context.WithCancelCause(ctx)
	defer cancelUpstream(nil)

	chunkCtx, cancelChunks := context.WithCancel(ctx)
	defer cancelChunks()

	idle := p.config.UpstreamIdleTimeout

	var watchdog *time.Timer
	if idle > 0 {
		watchdog = time.AfterFunc(idle, func() { cancelUpstream(llm.ErrUpstreamTimeout) })
		defer watchdog.Stop()
	}

	upstream, err := p.streamer.Stream(upstreamCtx, prompt)
	if watchdog != nil {
		watchdog.Stop()
	}

	if err != nil {
		if cause := context.Cause(upstreamCtx); errors.Is(cause, llm.ErrUpstreamTimeout) {
			err = cause
		}

		return "", 0, fmt.Errorf("open upstream: %w", err)
	}

	fragments := make(chan chunker.Fragment)
	pumpDone := make(chan struct{})

	go func() {
		defer close(pumpDone)
		pump(upstreamCtx, chunkCtx.Done(), upstream, fragments, watchdog, idle)
	}()

	defer func() {
		cancelUpstream(context.Canceled)
		upstream.Close() //nolint:errcheck,gosec // unblocks a pending Recv
		<-pumpDone
	}()

	acc := chunker.Start(chunkCtx, fragments, p.config.Chunking)

	var (
		transcript strings.Builder
		sent       int
		sendErr    error
		drained    = true
	)

	for chunk := range acc.Chunks() {
		if ctx.Err() != nil {
			drained = false
			break
		}

		if err := sink.Send(ctx, chunk); err != nil {
			sendErr = fmt.Errorf("%w: %w", ErrTransportClosed, err)
			drained = false
			break
		}

		transcript.WriteString(chunk.Text)
		sent++
	}

	// stop the accumulator and let it exit
	cancelChunks()
	for range acc.Chunks() {
	}

	switch {
	case sendErr != nil:
		return transcript.String(), sent, sendErr
	case !drained:
		return transcript.String(), sent, ctx.Err()
	case acc.Err() != nil && ctx.Err() != nil:
		return transcript.String(), sent, ctx.Err()
	default:
		return transcript.String(), sent, acc.Err()
	}
}

// reads fragments until the upstream ends. the watchdog only runs while
// Recv is blocked, so a slow client never counts as a silent upstream.
func pump(ctx context.Context, done <-chan struct{}, upstream llm.FragmentStream, out chan<- chunker.Fragment, watchdog *time.Timer, idle time.Duration) {
	defer close(out)

	for {
		if watchdog != nil {
			watchdog.Reset(idle)
		}

		text, err := upstream.Recv()

		if watchdog != nil {
			watchdog.Stop()
		}

		if errors.Is(err, io.EOF) {
			return
		}

		frag := chunker.Fragment{Text: text}
		if err != nil {
			if cause := context.Cause(ctx); errors.Is(cause, llm.ErrUpstreamTimeout) {
				err = cause
			}

			frag = chunker.Fragment{Err: err}
		}

		select {
		case out <- frag:
		case <-done:
			return
		}

		if frag.Err != nil {
			return
		}
	}
}

// writes the turn, retrying once
func (p *Pipeline) commit(sessionID string, turn *history.History, log *slog.Logger) error {
	err := p.store.Commit(sessionID, turn)
	if err == nil {
		return nil
	}

	log.Warn("commit failed, retrying", "error", err)

	if err := p.store.Commit(sessionID, turn); err != nil {
		log.Error("turn lost", "error", err, "messages", len(turn.Messages))
		return fmt.Errorf("%w: %w", ErrTurnLost, err)
	}

	return nil
}

// sends the terminal event for a turn the client is still listening to
func (p *Pipeline) notify(ctx context.Context, sink Sink, result *Result, commitErr error, log *slog.Logger) {
	var err error

	switch {
	case result.State == StateFailed:
		err = sink.Fail(ctx, result.Err)
	case commitErr != nil:
		err = sink.Fail(ctx, commitErr)
	default:
		err = sink.Complete(ctx)
	}

	if err != nil {
		log.Debug("terminal event not delivered", "error", err)
	}
}
