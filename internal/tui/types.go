package tui

import (
	"net/http"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// talks to the chat endpoint of a running server. the cookie jar keeps the
// session cookie, so consecutive messages share one conversation.
type ChatClient struct {
	baseURL string
	http    *http.Client
}

// reported when the server ends a reply with an error event
type ReplyError struct {
	Message string
}

func (e *ReplyError) Error() string {
	return "reply failed: " + e.Message
}

// one entry of the on-screen transcript
type Entry struct {
	Role    string
	Content string
	Failed  bool
}

// main TUI application model
type Model struct {
	client     *ChatClient
	input      textinput.Model
	viewport   viewport.Model
	spinner    spinner.Model
	renderer   *glamour.TermRenderer
	transcript []Entry
	events     <-chan tea.Msg
	streaming  bool
	ready      bool
	width      int
	height     int
}

// sent for every chunk of the reply being streamed
type ChunkMsg struct {
	Text string
}

// sent when the reply finished successfully
type ReplyDoneMsg struct{}

// sent when the reply failed or the request could not be made
type ReplyErrorMsg struct {
	Err error
}
