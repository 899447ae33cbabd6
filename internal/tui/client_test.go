package tui

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semidark/aichat/api/rest/chat"
	"github.com/semidark/aichat/internal/chunker"
	"github.com/semidark/aichat/internal/history"
	"github.com/semidark/aichat/internal/llm"
	"github.com/semidark/aichat/internal/pipeline"
	"github.com/semidark/aichat/internal/sessions"
)

func newChatServer(t *testing.T) (*httptest.Server, *history.FileStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := history.NewFileStore(t.TempDir())
	require.NoError(t, err)

	registry := sessions.NewRegistry(store)
	runner := pipeline.New(registry, store, llm.NewEchoStreamer(llm.EchoConfig{}), pipeline.Config{
		Chunking: chunker.Options{MaxSize: 8, QueueDepth: 2},
	})

	router := gin.New()
	chat.RegisterRoutes(router.Group("/api"), runner, registry, sessions.CookieConfig{MaxAge: time.Hour}, nil)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return server, store
}

func TestFragmentText(t *testing.T) {
	tests := []struct {
		markup string
		want   string
	}{
		{markup: `<span class="chunk" data-seq="1">hello </span>`, want: "hello "},
		{markup: `<span class="chunk" data-seq="2">a &lt;b&gt; &amp; c</span>`, want: "a <b> & c"},
		{markup: `<span class="chunk" data-seq="3">one<br>two<BR/></span>`, want: "one\ntwo\n"},
		{markup: `<span class="done"></span>`, want: ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FragmentText(tt.markup))
	}
}

func TestChatClientStreamsAndKeepsSession(t *testing.T) {
	server, store := newChatServer(t)

	client, err := NewChatClient(server.URL + "/")
	require.NoError(t, err)

	var chunks []string
	require.NoError(t, client.Send(context.Background(), "hello there", func(text string) {
		chunks = append(chunks, text)
	}))

	assert.Equal(t, []string{"You said", ": hello ", "there"}, chunks)

	require.NoError(t, client.Send(context.Background(), "again", func(string) {}))

	// both turns landed in the same conversation
	entries, err := readDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	h, err := store.Load(strings.TrimSuffix(entries[0], ".json"))
	require.NoError(t, err)
	assert.Len(t, h.Messages, 4)
}

func TestChatClientReportsRejectedRequests(t *testing.T) {
	server, _ := newChatServer(t)

	client, err := NewChatClient(server.URL)
	require.NoError(t, err)

	err = client.Send(context.Background(), "   ", func(string) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "message is required")
}

func TestChatClientReportsErrorEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("id:1\nevent:message\ndata:<span class=\"chunk\" data-seq=\"1\">par</span>\n\n"))
		_, _ = w.Write([]byte("event:error\ndata:<span class=\"error\">upstream gone</span>\n\n"))
	}))
	t.Cleanup(server.Close)

	client, err := NewChatClient(server.URL)
	require.NoError(t, err)

	var got string
	err = client.Send(context.Background(), "hi", func(text string) { got += text })

	var replyErr *ReplyError
	require.ErrorAs(t, err, &replyErr)
	assert.Equal(t, "upstream gone", replyErr.Message)
	assert.Equal(t, "par", got)
}

func TestChatClientTruncatedStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event:message\ndata:<span class=\"chunk\" data-seq=\"1\">par</span>\n\n"))
	}))
	t.Cleanup(server.Close)

	client, err := NewChatClient(server.URL)
	require.NoError(t, err)

	err = client.Send(context.Background(), "hi", func(string) {})
	assert.ErrorContains(t, err, "stream ended")
}

func TestRunPlain(t *testing.T) {
	server, _ := newChatServer(t)

	client, err := NewChatClient(server.URL)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, RunPlain(context.Background(), client, strings.NewReader("hello\n\n  \nbye\n"), &out))

	assert.Equal(t, "You said: hello\nYou said: bye\n", out.String())
}

func TestModelStreamsReply(t *testing.T) {
	server, _ := newChatServer(t)

	client, err := NewChatClient(server.URL)
	require.NoError(t, err)

	m := NewModel(client)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	m.input.SetValue("hello")
	_, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.streaming)
	require.Len(t, m.Transcript(), 2)

	// feed the background events back into the model the way the program would
	for m.streaming {
		msg := waitForEvent(m.events)()
		require.NotNil(t, msg)
		m.Update(msg)
	}

	transcript := m.Transcript()
	assert.Equal(t, Entry{Role: RoleUser, Content: "hello"}, transcript[0])
	assert.Equal(t, Entry{Role: RoleAssistant, Content: "You said: hello"}, transcript[1])
	assert.Empty(t, m.input.Value())
}

func TestModelMarksFailedReply(t *testing.T) {
	m := NewModel(nil)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	m.transcript = []Entry{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "par"}}
	m.streaming = true

	m.Update(ReplyErrorMsg{Err: &ReplyError{Message: "upstream gone"}})

	assert.False(t, m.streaming)
	assert.True(t, m.transcript[1].Failed)
	assert.Equal(t, "par\n\nreply failed: upstream gone", m.transcript[1].Content)
}
