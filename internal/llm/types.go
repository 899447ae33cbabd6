package llm

import (
	"context"
	"errors"
)

// represents different LLM providers
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderEcho      Provider = "echo"
)

var (
	// reported when the upstream stays silent longer than the configured idle timeout
	ErrUpstreamTimeout = errors.New("upstream produced no output before the idle timeout")

	// reported by adapters when the provider signals an error mid-stream
	ErrUpstreamFailed = errors.New("upstream stream failed")
)

// produces a lazy, finite-or-failing sequence of text fragments for a prompt
type Streamer interface {
	Stream(ctx context.Context, prompt string) (FragmentStream, error)
	Model() string
}

// an open upstream response. Recv returns io.EOF after the last fragment.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// holds configuration for LLM initialization
type Config struct {
	Provider     Provider
	APIKey       string
	Model        string
	BaseURL      string
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
