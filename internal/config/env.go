package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// loads configuration from environment variables
func LoadEnvironmentVariables() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		_ = err // not an error - production environments may not have .env file
	}

	return FromEnvironment()
}

// builds the configuration from the current process environment
func FromEnvironment() (*Config, error) {
	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	cfg := &Config{
		Port:           envString("PORT", DefaultPort),
		Environment:    environment,
		LogLevel:       os.Getenv("LOG_LEVEL"),
		DataDir:        envString("DATA_DIR", DefaultDataDir),
		StaticDir:      envString("STATIC_DIR", DefaultStaticDir),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		ChatRateLimit:  envString("CHAT_RATE_LIMIT", DefaultChatRateLimit),
		LLM: LLMConfig{
			Provider:     strings.ToLower(envString("LLM_PROVIDER", ProviderAnthropic)),
			Model:        os.Getenv("LLM_MODEL"),
			BaseURL:      os.Getenv("LLM_BASE_URL"),
			SystemPrompt: os.Getenv("LLM_SYSTEM_PROMPT"),
		},
	}

	var err error

	if cfg.Stream.ChunkSize, err = envInt("STREAM_CHUNK_SIZE", DefaultChunkSize); err != nil {
		return nil, err
	}

	delayMS, err := envInt("STREAM_DELAY_MS", DefaultDelayMS)
	if err != nil {
		return nil, err
	}
	cfg.Stream.Delay = time.Duration(delayMS) * time.Millisecond

	if cfg.Stream.QueueDepth, err = envInt("STREAM_QUEUE_DEPTH", DefaultQueueDepth); err != nil {
		return nil, err
	}

	if cfg.Stream.UpstreamIdleTimeout, err = envDuration("UPSTREAM_IDLE_TIMEOUT", 0); err != nil {
		return nil, err
	}

	if cfg.Session.IdleTTL, err = envDuration("SESSION_IDLE_TTL", DefaultSessionTTL); err != nil {
		return nil, err
	}

	if cfg.Session.CookieMaxAge, err = envDuration("SESSION_COOKIE_MAX_AGE", DefaultCookieMaxAge); err != nil {
		return nil, err
	}

	if cfg.Session.CookieSecure, err = envBool("SESSION_COOKIE_SECURE", environment == "production"); err != nil {
		return nil, err
	}

	if cfg.LLM.MaxTokens, err = envInt("LLM_MAX_TOKENS", DefaultMaxTokens); err != nil {
		return nil, err
	}

	temperature, err := envFloat("LLM_TEMPERATURE", DefaultTemperature)
	if err != nil {
		return nil, err
	}
	cfg.LLM.Temperature = float32(temperature)

	cfg.resolveAPIKey()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applies command line overrides and re-validates
func (c *Config) ApplyFlags(f Flags) error {
	if f.Port != "" {
		c.Port = f.Port
	}

	if f.DataDir != "" {
		c.DataDir = f.DataDir
	}

	if f.Provider != "" {
		c.LLM.Provider = strings.ToLower(f.Provider)
		c.resolveAPIKey()
	}

	if f.ChunkSize >= 0 {
		c.Stream.ChunkSize = f.ChunkSize
	}

	if f.DelayMS >= 0 {
		c.Stream.Delay = time.Duration(f.DelayMS) * time.Millisecond
	}

	if f.QueueDepth >= 0 {
		c.Stream.QueueDepth = f.QueueDepth
	}

	return c.Validate()
}

// checks value ranges and provider requirements
func (c *Config) Validate() error {
	if c.Stream.ChunkSize < 1 {
		return fmt.Errorf("STREAM_CHUNK_SIZE must be at least 1, got %d", c.Stream.ChunkSize)
	}

	if c.Stream.Delay < 0 {
		return fmt.Errorf("STREAM_DELAY_MS must not be negative")
	}

	if c.Stream.QueueDepth < 1 {
		return fmt.Errorf("STREAM_QUEUE_DEPTH must be at least 1, got %d", c.Stream.QueueDepth)
	}

	if c.Stream.UpstreamIdleTimeout < 0 {
		return fmt.Errorf("UPSTREAM_IDLE_TIMEOUT must not be negative")
	}

	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}

	switch c.LLM.Provider {
	case ProviderAnthropic:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
		}
	case ProviderOpenAI:
		if c.LLM.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
	case ProviderEcho:
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER: %s", c.LLM.Provider)
	}

	return nil
}

// returns the values reported by the streaming config endpoint
func (c *Config) StreamSummary() StreamSummary {
	return StreamSummary{
		ChunkSize:  c.Stream.ChunkSize,
		DelayMS:    c.Stream.Delay.Milliseconds(),
		QueueDepth: c.Stream.QueueDepth,
	}
}

// reports whether the process runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) resolveAPIKey() {
	switch c.LLM.Provider {
	case ProviderOpenAI:
		c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	case ProviderAnthropic:
		c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	default:
		c.LLM.APIKey = ""
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}

	return def
}

func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}

	return v, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}

	return v, nil
}

func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}

	return v, nil
}

// accepts Go duration strings ("45s") or a bare number of seconds
func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}

	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}

	return v, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
