package llm

import (
	"context"
	"io"
	"strings"
	"time"
)

type EchoConfig struct {
	// pause before each fragment
	Delay time.Duration
}

// offline streamer that answers with the last turn of the prompt, one
// word per fragment. used for local development and tests.
type EchoStreamer struct {
	config EchoConfig
}

func NewEchoStreamer(config EchoConfig) *EchoStreamer {
	return &EchoStreamer{config: config}
}

func (e *EchoStreamer) Model() string {
	return "echo"
}

func (e *EchoStreamer) Stream(ctx context.Context, prompt string) (FragmentStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	last := prompt
	if i := strings.LastIndex(prompt, "\n\n"); i >= 0 {
		last = prompt[i+2:]
	}

	return &echoStream{
		ctx:       ctx,
		delay:     e.config.Delay,
		fragments: splitWords("You said: " + last),
	}, nil
}

type echoStream struct {
	ctx       context.Context
	delay     time.Duration
	fragments []string
}

func (s *echoStream) Recv() (string, error) {
	if len(s.fragments) == 0 {
		return "", io.EOF
	}

	if s.delay > 0 {
		t := time.NewTimer(s.delay)
		defer t.Stop()

		select {
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		case <-t.C:
		}
	} else if err := s.ctx.Err(); err != nil {
		return "", err
	}

	next := s.fragments[0]
	s.fragments = s.fragments[1:]

	return next, nil
}

func (s *echoStream) Close() error {
	return nil
}

// splits text after each space, keeping the spaces
func splitWords(text string) []string {
	var out []string

	for text != "" {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			out = append(out, text)
			break
		}

		out = append(out, text[:i+1])
		text = text[i+1:]
	}

	return out
}
