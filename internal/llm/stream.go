package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/semidark/aichat/internal/eventstream"
)

// decodes one provider event into a text fragment. done reports the
// provider's end-of-message marker.
type eventDecoder func(ev eventstream.Event) (text string, done bool, err error)

// FragmentStream over a server-sent events response body
type sseStream struct {
	body      io.ReadCloser
	events    *eventstream.Reader
	decode    eventDecoder
	done      bool
	closeOnce sync.Once
}

func newSSEStream(body io.ReadCloser, decode eventDecoder) *sseStream {
	return &sseStream{
		body:   body,
		events: eventstream.NewReader(body),
		decode: decode,
	}
}

func (s *sseStream) Recv() (string, error) {
	for !s.done {
		ev, err := s.events.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("%w: stream ended without a stop event", ErrUpstreamFailed)
			}

			return "", fmt.Errorf("read stream: %w", err)
		}

		text, done, err := s.decode(ev)
		if err != nil {
			return "", err
		}

		if done {
			s.done = true
		}

		if text != "" {
			return text, nil
		}
	}

	return "", io.EOF
}

func (s *sseStream) Close() error {
	var err error

	s.closeOnce.Do(func() {
		err = s.body.Close()
	})

	return err
}

// sends a prepared request after waiting for the rate limiter and turns
// non-200 responses into errors
func doStreamingRequest(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	if err := upstreamRateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}
