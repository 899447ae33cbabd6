package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/semidark/aichat/internal/chunker"
	"github.com/semidark/aichat/internal/eventstream"
	"github.com/semidark/aichat/internal/history"
	"github.com/semidark/aichat/internal/llm"
	"github.com/semidark/aichat/internal/pipeline"
	"github.com/semidark/aichat/internal/sessions"
)

type failingStreamer struct{}

func (failingStreamer) Model() string { return "failing" }

func (failingStreamer) Stream(context.Context, string) (llm.FragmentStream, error) {
	return nil, errors.New("provider unavailable")
}

type testServer struct {
	router *gin.Engine
	store  *history.FileStore
}

func newTestServer(t *testing.T, streamer llm.Streamer) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := history.NewFileStore(t.TempDir())
	require.NoError(t, err)

	registry := sessions.NewRegistry(store)
	runner := pipeline.New(registry, store, streamer, pipeline.Config{
		Chunking: chunker.Options{MaxSize: 8, Delay: 0, QueueDepth: 2},
	})

	router := gin.New()
	RegisterRoutes(router.Group("/api"), runner, registry, sessions.CookieConfig{MaxAge: 30 * 24 * time.Hour}, nil)

	return &testServer{router: router, store: store}
}

func (s *testServer) postForm(message string, cookie *http.Cookie) *httptest.ResponseRecorder {
	form := url.Values{"message": {message}}
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if cookie != nil {
		req.AddCookie(cookie)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	return w
}

func readEvents(t *testing.T, body string) []eventstream.Event {
	t.Helper()

	r := eventstream.NewReader(strings.NewReader(body))

	var events []eventstream.Event
	for {
		ev, err := r.Next()
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == sessions.CookieName {
			return c
		}
	}

	return nil
}

func TestChatStreamsChunksThenDone(t *testing.T) {
	s := newTestServer(t, llm.NewEchoStreamer(llm.EchoConfig{}))

	w := s.postForm("hello there", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	events := readEvents(t, w.Body.String())
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, EventDone, last.Type)
	assert.Equal(t, `<span class="done"></span>`, last.Data)

	// "You said: hello there" in runs of 8
	want := []string{"You said", ": hello ", "there"}
	chunks := events[:len(events)-1]
	require.Len(t, chunks, len(want))

	for i, ev := range chunks {
		assert.Equal(t, EventMessage, ev.Type)
		assert.Equal(t, strconv.Itoa(i+1), ev.ID)
		assert.Equal(t, ChunkMarkup(chunker.Chunk{Seq: i + 1, Text: want[i]}), ev.Data)
	}

	h, err := s.store.Load(cookie.Value)
	require.NoError(t, err)
	require.Len(t, h.Messages, 2)
	assert.Equal(t, "hello there", h.Messages[0].Content)
	assert.Equal(t, "You said: hello there", h.Messages[1].Content)
}

func TestChatReusesSessionCookie(t *testing.T) {
	s := newTestServer(t, llm.NewEchoStreamer(llm.EchoConfig{}))

	first := s.postForm("one", nil)
	cookie := sessionCookie(first)
	require.NotNil(t, cookie)

	second := s.postForm("two", &http.Cookie{Name: sessions.CookieName, Value: cookie.Value})
	require.Equal(t, http.StatusOK, second.Code)
	assert.Nil(t, sessionCookie(second))

	h, err := s.store.Load(cookie.Value)
	require.NoError(t, err)
	require.Len(t, h.Messages, 4)
	assert.Equal(t, "two", h.Messages[2].Content)
	assert.Equal(t, "You said: two", h.Messages[3].Content)
}

func TestChatAcceptsJSON(t *testing.T) {
	s := newTestServer(t, llm.NewEchoStreamer(llm.EchoConfig{}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	events := readEvents(t, w.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, EventDone, events[len(events)-1].Type)
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	s := newTestServer(t, llm.NewEchoStreamer(llm.EchoConfig{}))

	for _, message := range []string{"", "   \n\t"} {
		w := s.postForm(message, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, "%q", message)
		assert.Contains(t, w.Body.String(), `"error":"bad_request"`)
		assert.Nil(t, sessionCookie(w))
	}
}

func TestChatReportsUpstreamFailure(t *testing.T) {
	s := newTestServer(t, failingStreamer{})

	w := s.postForm("hello", nil)
	require.Equal(t, http.StatusOK, w.Code)

	events := readEvents(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.True(t, strings.HasPrefix(events[0].Data, `<span class="error">`))
	assert.Contains(t, events[0].Data, "provider unavailable")

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)

	h, err := s.store.Load(cookie.Value)
	require.NoError(t, err)
	require.Len(t, h.Messages, 2)
	assert.True(t, h.Messages[1].Incomplete)
}

func TestChunkMarkupEscapesText(t *testing.T) {
	got := ChunkMarkup(chunker.Chunk{Seq: 7, Text: "<b>a & b</b>\nnext\r\nline"})
	assert.Equal(t, `<span class="chunk" data-seq="7">&lt;b&gt;a &amp; b&lt;/b&gt;<br>next<br>line</span>`, got)
}

func TestChunkMarkupLineBreakSplitAcrossChunks(t *testing.T) {
	first := ChunkMarkup(chunker.Chunk{Seq: 1, Text: "end\r"})
	second := ChunkMarkup(chunker.Chunk{Seq: 2, Text: "\nstart"})

	assert.Equal(t, `<span class="chunk" data-seq="1">end</span>`, first)
	assert.Equal(t, `<span class="chunk" data-seq="2"><br>start</span>`, second)
	assert.Equal(t, 1, strings.Count(first+second, "<br>"))
	assert.NotContains(t, first+second, "\r")
}

func TestErrorMarkupEscapesText(t *testing.T) {
	got := ErrorMarkup(errors.New(`bad <input> "quoted"`))
	assert.Equal(t, `<span class="error">bad &lt;input&gt; &#34;quoted&#34;</span>`, got)
}
