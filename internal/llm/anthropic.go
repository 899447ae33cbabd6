package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/semidark/aichat/internal/eventstream"
)

const (
	anthropicBaseURL      = "https://api.anthropic.com"
	anthropicVersion      = "2023-06-01"
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultMaxTokens      = 1024
	defaultTemperature    = 0.7
)

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float32   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// the subset of streaming event payloads we act on
type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type AnthropicConfig struct {
	APIKey       string
	Model        string // e.g., "claude-3-5-haiku-latest"
	BaseURL      string // defaults to the public API
	SystemPrompt string
	MaxTokens    int     // max tokens for response
	Temperature  float32 // 0.0 to 1.0
}

// streams replies from the Anthropic Messages API
type AnthropicStreamer struct {
	config     AnthropicConfig
	httpClient *http.Client
}

func NewAnthropicStreamer(config AnthropicConfig) *AnthropicStreamer {
	if config.Model == "" {
		config.Model = defaultAnthropicModel
	}

	if config.MaxTokens == 0 {
		config.MaxTokens = defaultMaxTokens
	}

	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}

	if config.BaseURL == "" {
		config.BaseURL = anthropicBaseURL
	}

	return &AnthropicStreamer{
		config:     config,
		httpClient: streamingHTTPClient,
	}
}

func (a *AnthropicStreamer) Model() string {
	return a.config.Model
}

// opens a streaming completion for the prompt
func (a *AnthropicStreamer) Stream(ctx context.Context, prompt string) (FragmentStream, error) {
	reqBody := anthropicRequest{
		Model:       a.config.Model,
		MaxTokens:   a.config.MaxTokens,
		System:      a.config.SystemPrompt,
		Temperature: a.config.Temperature,
		Stream:      true,
		Messages: []message{
			{Role: "user", Content: prompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(a.config.BaseURL, "/") + "/v1/messages"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-api-key", a.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := doStreamingRequest(ctx, a.httpClient, req)
	if err != nil {
		return nil, err
	}

	return newSSEStream(resp.Body, decodeAnthropicEvent), nil
}

func decodeAnthropicEvent(ev eventstream.Event) (string, bool, error) {
	if ev.Data == "" {
		return "", false, nil
	}

	var payload anthropicEvent
	if err := json.Unmarshal([]byte(ev.Data), &payload); err != nil {
		return "", false, fmt.Errorf("failed to decode %s event: %w", ev.Type, err)
	}

	switch payload.Type {
	case "content_block_delta":
		if payload.Delta.Type == "text_delta" {
			return payload.Delta.Text, false, nil
		}

	case "message_stop":
		return "", true, nil

	case "error":
		return "", false, fmt.Errorf("%w: %s: %s", ErrUpstreamFailed, payload.Error.Type, payload.Error.Message)
	}

	// message_start, content_block_start/stop, message_delta, ping
	return "", false, nil
}
