package tui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/semidark/aichat/internal/errors"
	"github.com/semidark/aichat/internal/eventstream"
)

var (
	lineBreakPattern = regexp.MustCompile(`(?i)<br\s*/?>`)
	tagPattern       = regexp.MustCompile(`<[^>]*>`)
)

// creates a client for the server at baseURL, e.g. http://localhost:8080
func NewChatClient(baseURL string) (*ChatClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &ChatClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar: jar,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		},
	}, nil
}

// posts a message and calls onChunk with the plain text of every chunk as
// it arrives. returns nil once the server reports the reply as done.
func (c *ChatClient) Send(ctx context.Context, message string, onChunk func(string)) error {
	form := url.Values{"message": {message}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}

	events := eventstream.NewReader(resp.Body)

	for {
		ev, err := events.Next()
		if errors.Is(err, io.EOF) {
			return errors.New("stream ended before the reply finished")
		}
		if err != nil {
			return fmt.Errorf("failed to read stream: %w", err)
		}

		switch ev.Type {
		case "message", "":
			onChunk(FragmentText(ev.Data))
		case "done":
			return nil
		case "error":
			return &ReplyError{Message: FragmentText(ev.Data)}
		}
	}
}

// turns a chunk fragment back into the text it carries
func FragmentText(markup string) string {
	text := lineBreakPattern.ReplaceAllString(markup, "\n")
	text = tagPattern.ReplaceAllString(text, "")

	return html.UnescapeString(text)
}

func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024)) //nolint:errcheck

	var apiErr apperrors.ErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Message)
	}

	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
