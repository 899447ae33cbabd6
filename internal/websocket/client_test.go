package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semidark/aichat/internal/chunker"
	apperrors "github.com/semidark/aichat/internal/errors"
	"github.com/semidark/aichat/internal/history"
	"github.com/semidark/aichat/internal/llm"
	"github.com/semidark/aichat/internal/pipeline"
	"github.com/semidark/aichat/internal/sessions"
)

func newTestClient(hub *Hub) *Client {
	return NewClient("client-1", "session-1", "10.0.0.1", nil, hub)
}

func chatMessage(t *testing.T, text string) *Message {
	t.Helper()

	msg, err := NewMessage(TypeChatMessage, "", ChatMessagePayload{Message: text})
	require.NoError(t, err)

	return msg
}

// pops the next queued outbound frame
func nextFrame(t *testing.T, c *Client) Message {
	t.Helper()

	select {
	case raw := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no frame queued")
		return Message{}
	}
}

// stands in for WritePump: takes n reply frames, reports each as written
// and passes it on
func acceptReplies(client *Client, n int) <-chan Message {
	out := make(chan Message, n)

	go func() {
		defer close(out)

		for i := 0; i < n; i++ {
			select {
			case d := <-client.replies:
				var msg Message
				_ = json.Unmarshal(d.data, &msg)

				out <- msg
				d.written <- nil
			case <-client.ctx.Done():
				return
			}
		}
	}()

	return out
}

func errorCode(t *testing.T, msg Message) string {
	t.Helper()

	require.Equal(t, TypeError, msg.Type)

	var resp apperrors.ErrorResponse
	require.NoError(t, msg.UnmarshalPayload(&resp))

	return resp.Error
}

func TestChatHandlerQueuesMessages(t *testing.T) {
	client := newTestClient(nil)
	handler := ChatHandler()

	require.NoError(t, handler(nil, client, chatMessage(t, "first")))
	require.NoError(t, handler(nil, client, chatMessage(t, "second")))

	assert.Equal(t, "first", <-client.turns)
	assert.Equal(t, "second", <-client.turns)
	assert.Empty(t, client.send)
}

func TestChatHandlerRejectsInvalidMessages(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		err  error
		code string
	}{
		{
			name: "empty message",
			msg:  chatMessage(t, "  \n "),
			err:  ErrEmptyMessage,
			code: apperrors.CodeBadRequest,
		},
		{
			name: "oversized message",
			msg:  chatMessage(t, strings.Repeat("ä", maxChatMessageSize+1)),
			err:  ErrMessageTooLarge,
			code: apperrors.CodeBadRequest,
		},
		{
			name: "missing payload",
			msg:  &Message{Type: TypeChatMessage},
			err:  ErrInvalidMessage,
			code: apperrors.CodeValidationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(nil)

			err := ChatHandler()(nil, client, tt.msg)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.code, errorCode(t, nextFrame(t, client)))
			assert.Empty(t, client.turns)
		})
	}
}

func TestChatHandlerLimitsQueuedTurns(t *testing.T) {
	client := newTestClient(nil)
	handler := ChatHandler()

	for i := 0; i < maxQueuedTurns; i++ {
		require.NoError(t, handler(nil, client, chatMessage(t, "hi")))
	}

	err := handler(nil, client, chatMessage(t, "one too many"))
	assert.ErrorIs(t, err, ErrTurnQueueFull)
	assert.Equal(t, apperrors.CodeTooManyRequests, errorCode(t, nextFrame(t, client)))
}

func TestChatHandlerRateLimit(t *testing.T) {
	client := newTestClient(nil)
	handler := ChatHandler()

	for i := 0; i < maxChatMessagesPerMinute; i++ {
		require.NoError(t, handler(nil, client, chatMessage(t, "hi")))
		<-client.turns
	}

	err := handler(nil, client, chatMessage(t, "hi"))
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, apperrors.CodeTooManyRequests, errorCode(t, nextFrame(t, client)))
}

func TestEnqueueAfterCloseFails(t *testing.T) {
	client := newTestClient(nil)
	client.Close()

	assert.ErrorIs(t, client.enqueueTurn("hi"), ErrConnectionClosed)
	assert.True(t, client.IsClosed())

	// closing twice is harmless
	client.Close()
}

func TestPingHandlerAnswersPong(t *testing.T) {
	client := newTestClient(nil)

	require.NoError(t, PingHandler()(nil, client, &Message{Type: TypePing}))

	pong := nextFrame(t, client)
	assert.Equal(t, TypePong, pong.Type)
	assert.Equal(t, "session-1", pong.SessionID)
}

func TestSendClosesClientWhenBufferIsFull(t *testing.T) {
	client := newTestClient(nil)
	msg, err := NewMessage(TypePong, client.SessionID, nil)
	require.NoError(t, err)

	for i := 0; i < sendBufferSize; i++ {
		require.NoError(t, client.Send(msg))
	}

	assert.ErrorIs(t, client.Send(msg), ErrConnectionClosed)
	assert.True(t, client.IsClosed())
	assert.ErrorIs(t, client.Send(msg), ErrConnectionClosed)
}

func TestSendDeliveredWaitsForWriter(t *testing.T) {
	client := newTestClient(nil)
	sink := &clientSink{client: client}

	// nobody writes, so no chunk is ever accepted
	accepted := 0
	for seq := 1; seq <= 5; seq++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		err := sink.Send(ctx, chunker.Chunk{Seq: seq, Text: "x"})
		cancel()

		if err == nil {
			accepted++
			continue
		}

		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	assert.Zero(t, accepted)
	assert.Empty(t, client.send)

	frames := acceptReplies(client, 1)
	require.NoError(t, sink.Send(context.Background(), chunker.Chunk{Seq: 6, Text: "y"}))
	assert.Equal(t, TypeChunk, (<-frames).Type)

	client.Close()
	assert.ErrorIs(t, sink.Send(context.Background(), chunker.Chunk{Seq: 7, Text: "z"}), ErrConnectionClosed)
}

func TestTurnCommitsOnlyDeliveredChunks(t *testing.T) {
	tests := []struct {
		name      string
		delivered int
	}{
		{name: "client never reads", delivered: 0},
		{name: "client leaves after two chunks", delivered: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := history.NewFileStore(t.TempDir())
			require.NoError(t, err)

			registry := sessions.NewRegistry(store)
			runner := pipeline.New(registry, store, llm.NewEchoStreamer(llm.EchoConfig{}), pipeline.Config{
				Chunking: chunker.Options{MaxSize: 3, QueueDepth: 2},
			})

			sessionID := sessions.NewSessionID()
			client := NewClient("client-1", sessionID, "10.0.0.1", nil, nil)

			ctx, cancel := context.WithTimeout(client.ctx, 5*time.Second)
			defer cancel()

			frames := acceptReplies(client, tt.delivered)

			done := make(chan struct{})
			go func() {
				defer close(done)
				RunTurn(runner)(ctx, client, "one two three four five six")
			}()

			var delivered strings.Builder
			for frame := range frames {
				var chunk ChunkPayload
				require.NoError(t, frame.UnmarshalPayload(&chunk))
				delivered.WriteString(chunk.Text)
			}

			if tt.delivered == 0 {
				time.Sleep(20 * time.Millisecond)
			}

			client.Close()

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("turn did not end")
			}

			h, err := store.Load(sessionID)
			require.NoError(t, err)
			require.Len(t, h.Messages, 2)

			assert.Equal(t, delivered.String(), h.Messages[1].Content)
			assert.True(t, h.Messages[1].Incomplete)
		})
	}
}

func TestTurnLoopRunsTurnsInOrder(t *testing.T) {
	client := newTestClient(nil)

	var (
		mu   sync.Mutex
		seen []string
	)

	done := make(chan struct{})
	go func() {
		client.TurnLoop(func(_ context.Context, _ *Client, message string) {
			mu.Lock()
			seen = append(seen, message)
			mu.Unlock()
		})
		close(done)
	}()

	for _, m := range []string{"a", "b", "c"} {
		require.NoError(t, client.enqueueTurn(m))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)

	client.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("turn loop did not stop")
	}

	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestTurnContextEndsOnClose(t *testing.T) {
	client := newTestClient(nil)

	started := make(chan struct{})
	canceled := make(chan error, 1)

	go client.TurnLoop(func(ctx context.Context, _ *Client, _ string) {
		close(started)
		<-ctx.Done()
		canceled <- ctx.Err()
	})

	require.NoError(t, client.enqueueTurn("long reply"))
	<-started

	client.Close()

	select {
	case err := <-canceled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("turn was not canceled")
	}
}

func TestClientSinkFrames(t *testing.T) {
	client := newTestClient(nil)
	sink := &clientSink{client: client}
	ctx := context.Background()

	frames := acceptReplies(client, 3)

	require.NoError(t, sink.Send(ctx, chunker.Chunk{Seq: 3, Text: "Hello"}))
	require.NoError(t, sink.Complete(ctx))
	require.NoError(t, sink.Fail(ctx, errors.New("upstream gone")))

	chunk := <-frames
	assert.Equal(t, TypeChunk, chunk.Type)

	var payload ChunkPayload
	require.NoError(t, chunk.UnmarshalPayload(&payload))
	assert.Equal(t, ChunkPayload{Seq: 3, Text: "Hello"}, payload)

	assert.Equal(t, TypeDone, (<-frames).Type)
	assert.Equal(t, apperrors.CodeUpstreamError, errorCode(t, <-frames))

	// control frames stay out of the reply path
	assert.Empty(t, client.send)
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name       string
		origin     string
		allowed    []string
		production bool
		want       bool
	}{
		{name: "development accepts anything", origin: "http://evil.test", want: true},
		{name: "development accepts no origin", want: true},
		{name: "production rejects missing origin", production: true, allowed: []string{"https://chat.test"}},
		{name: "production rejects when unconfigured", origin: "https://chat.test", production: true},
		{name: "production accepts listed origin", origin: "https://chat.test", allowed: []string{"https://chat.test"}, production: true, want: true},
		{name: "production rejects other origin", origin: "https://evil.test", allowed: []string{"https://chat.test"}, production: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/chat/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}

			assert.Equal(t, tt.want, NewOriginChecker(tt.allowed, tt.production)(r))
		})
	}
}

func TestGenerateClientID(t *testing.T) {
	a, err := GenerateClientID()
	require.NoError(t, err)
	b, err := GenerateClientID()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
