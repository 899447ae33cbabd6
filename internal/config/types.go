package config

import "time"

const (
	DefaultPort          = "8080"
	DefaultDataDir       = "data"
	DefaultStaticDir     = "static"
	DefaultChunkSize     = 24
	DefaultDelayMS       = 300
	DefaultQueueDepth    = 2
	DefaultSessionTTL    = 30 * time.Minute
	DefaultCookieMaxAge  = 30 * 24 * time.Hour
	DefaultChatRateLimit = "30-M"
	DefaultMaxTokens     = 1024
	DefaultTemperature   = 0.7
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderEcho      = "echo"
)

type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	DataDir        string
	StaticDir      string
	AllowedOrigins []string
	ChatRateLimit  string
	Stream         StreamConfig
	Session        SessionConfig
	LLM            LLMConfig
}

// pacing and buffering of outgoing chunks
type StreamConfig struct {
	ChunkSize  int
	Delay      time.Duration
	QueueDepth int

	// zero disables the upstream idle watchdog
	UpstreamIdleTimeout time.Duration
}

type SessionConfig struct {
	CookieMaxAge time.Duration
	CookieSecure bool
	IdleTTL      time.Duration
}

type LLMConfig struct {
	Provider     string
	Model        string
	BaseURL      string
	APIKey       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float32
}

// process-start overrides from the command line. zero values (and -1 for
// the numeric ones) leave the environment value in place.
type Flags struct {
	Port       string
	DataDir    string
	Provider   string
	ChunkSize  int
	DelayMS    int
	QueueDepth int
}

// the subset of the configuration exposed by the debug endpoint
type StreamSummary struct {
	ChunkSize  int   `json:"chunk_size"`
	DelayMS    int64 `json:"delay_ms"`
	QueueDepth int   `json:"queue_depth"`
}
