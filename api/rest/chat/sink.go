package chat

import (
	"context"
	"html"
	"strconv"
	"strings"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/semidark/aichat/internal/chunker"
	"github.com/semidark/aichat/internal/errors"
)

// writes pipeline output to the response as server-sent events
type sseSink struct {
	c *gin.Context
}

func newSSESink(c *gin.Context) *sseSink {
	return &sseSink{c: c}
}

func (s *sseSink) Send(ctx context.Context, chunk chunker.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.write(sse.Event{
		Id:    strconv.Itoa(chunk.Seq),
		Event: EventMessage,
		Data:  ChunkMarkup(chunk),
	})
}

func (s *sseSink) Complete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.write(sse.Event{Event: EventDone, Data: `<span class="done"></span>`})
}

func (s *sseSink) Fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return s.write(sse.Event{Event: EventError, Data: ErrorMarkup(err)})
}

func (s *sseSink) write(event sse.Event) error {
	if err := sse.Encode(s.c.Writer, event); err != nil {
		return err
	}

	s.c.Writer.Flush()

	return nil
}

// html fragment for one chunk, ready to be appended to the page
func ChunkMarkup(chunk chunker.Chunk) string {
	var b strings.Builder

	b.WriteString(`<span class="chunk" data-seq="`)
	b.WriteString(strconv.Itoa(chunk.Seq))
	b.WriteString(`">`)
	b.WriteString(escapeText(chunk.Text))
	b.WriteString(`</span>`)

	return b.String()
}

func ErrorMarkup(err error) string {
	return `<span class="error">` + escapeText(errors.Sanitize(err)) + `</span>`
}

// escapes text for html and renders line breaks. carriage returns are
// dropped, so a CRLF split between two chunks still renders one break.
func escapeText(text string) string {
	escaped := html.EscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\r", "")

	return strings.ReplaceAll(escaped, "\n", "<br>")
}
