package llm

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// shared HTTP client for streaming provider calls. there is no overall
// Timeout because a response body stays open for the whole reply.
var streamingHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	},
}

// rate limiter for provider API calls (50 requests/second with burst capacity of 10)
var upstreamRateLimiter = rate.NewLimiter(50, 10)

// creates the streamer for the configured provider
func New(config Config) (Streamer, error) {
	switch config.Provider {
	case ProviderAnthropic:
		return NewAnthropicStreamer(AnthropicConfig{
			APIKey:       config.APIKey,
			Model:        config.Model,
			BaseURL:      config.BaseURL,
			SystemPrompt: config.SystemPrompt,
			MaxTokens:    config.MaxTokens,
			Temperature:  config.Temperature,
		}), nil

	case ProviderOpenAI:
		return NewOpenAIStreamer(OpenAIConfig{
			APIKey:       config.APIKey,
			Model:        config.Model,
			BaseURL:      config.BaseURL,
			SystemPrompt: config.SystemPrompt,
			MaxTokens:    config.MaxTokens,
			Temperature:  config.Temperature,
		}), nil

	case ProviderEcho:
		return NewEchoStreamer(EchoConfig{}), nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
}
