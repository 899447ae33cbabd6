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
	openaiBaseURL      = "https://api.openai.com/v1"
	defaultOpenAIModel = "gpt-4o-mini"
	openaiDoneMarker   = "[DONE]"
)

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type OpenAIConfig struct {
	APIKey       string
	Model        string // e.g., "gpt-4o-mini"
	BaseURL      string // any OpenAI-compatible endpoint, including the /v1 suffix
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
}

// streams replies from an OpenAI-compatible chat completions endpoint
type OpenAIStreamer struct {
	config     OpenAIConfig
	httpClient *http.Client
}

func NewOpenAIStreamer(config OpenAIConfig) *OpenAIStreamer {
	if config.Model == "" {
		config.Model = defaultOpenAIModel
	}

	if config.BaseURL == "" {
		config.BaseURL = openaiBaseURL
	}

	if config.Temperature == 0 {
		config.Temperature = defaultTemperature
	}

	return &OpenAIStreamer{
		config:     config,
		httpClient: streamingHTTPClient, // use shared client with connection pooling
	}
}

func (o *OpenAIStreamer) Model() string {
	return o.config.Model
}

// opens a streaming completion for the prompt
func (o *OpenAIStreamer) Stream(ctx context.Context, prompt string) (FragmentStream, error) {
	messages := make([]message, 0, 2)
	if o.config.SystemPrompt != "" {
		messages = append(messages, message{Role: "system", Content: o.config.SystemPrompt})
	}
	messages = append(messages, message{Role: "user", Content: prompt})

	reqBody := chatCompletionRequest{
		Model:       o.config.Model,
		Messages:    messages,
		MaxTokens:   o.config.MaxTokens,
		Temperature: o.config.Temperature,
		Stream:      true,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(o.config.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", o.config.APIKey))

	resp, err := doStreamingRequest(ctx, o.httpClient, req)
	if err != nil {
		return nil, err
	}

	return newSSEStream(resp.Body, decodeOpenAIEvent), nil
}

func decodeOpenAIEvent(ev eventstream.Event) (string, bool, error) {
	data := strings.TrimSpace(ev.Data)

	if data == "" {
		return "", false, nil
	}

	if data == openaiDoneMarker {
		return "", true, nil
	}

	var chunk chatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", false, fmt.Errorf("failed to decode stream chunk: %w", err)
	}

	if chunk.Error != nil {
		return "", false, fmt.Errorf("%w: %s: %s", ErrUpstreamFailed, chunk.Error.Type, chunk.Error.Message)
	}

	var b strings.Builder
	for _, choice := range chunk.Choices {
		b.WriteString(choice.Delta.Content)
	}

	return b.String(), false, nil
}
