// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port         string
	FrontendURL  string
	CORSOrigins  []string
	DBPath       string
	LogLevel     slog.Level
	AgentsConfig string
	// IdentityHeader names the header a trusted upstream sets for authenticated principals.
	IdentityHeader string
	GRPCHealthAddr string
	Models         ModelConfig
	History        HistoryConfig
	RateLimit      RateLimitConfig
	SSE            SSEConfig
}

// ModelConfig carries provider credentials and routing defaults.
type ModelConfig struct {
	GoogleAPIKey     string
	GoogleModelName  string
	GoogleBaseURL    string
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	OllamaHost       string
	DefaultFamily    string
	MaxTokens        int
	// AnalysisModel serves the structured file analysis and insight endpoints.
	AnalysisModel string
}

// HistoryConfig controls the asynchronous history side-channel.
type HistoryConfig struct {
	QueueSize    int
	Retention    time.Duration // 0 disables pruning
	DefaultLimit int
}

// RateLimitConfig bounds chat requests per owner.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// SSEConfig bounds the streaming chat endpoint.
type SSEConfig struct {
	MaxBodyBytes int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("HISTORY_QUEUE_SIZE", 256)
	if queueSize <= 0 {
		queueSize = 256
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		CORSOrigins:    getEnvList("CORS_ORIGINS", []string{"*"}),
		DBPath:         getEnv("DB_PATH", "./data/agentdesk.db"),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		AgentsConfig:   getEnv("AGENTS_CONFIG", ""),
		IdentityHeader: getEnv("IDENTITY_HEADER", "X-Authenticated-User"),
		GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ""),
		Models: ModelConfig{
			GoogleAPIKey:     getEnv("GOOGLE_GENERATIVE_AI_API_KEY", ""),
			GoogleModelName:  getEnv("GOOGLE_MODEL_NAME", ""),
			GoogleBaseURL:    getEnv("GOOGLE_GEMINI_BASE_URL", ""),
			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
			AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicBaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
			OllamaHost:       getEnv("OLLAMA_HOST", "http://127.0.0.1:11434"),
			DefaultFamily:    strings.ToLower(getEnv("DEFAULT_MODEL_FAMILY", "gemini")),
			MaxTokens:        getEnvInt("MODEL_MAX_TOKENS", 4096),
			AnalysisModel:    getEnv("ANALYSIS_MODEL", "gemini-2.0-flash-exp"),
		},
		History: HistoryConfig{
			QueueSize:    queueSize,
			Retention:    getEnvDuration("HISTORY_RETENTION", 0),
			DefaultLimit: getEnvInt("HISTORY_DEFAULT_LIMIT", 50),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 20),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SSE: SSEConfig{
			MaxBodyBytes: int64(getEnvInt("SSE_MAX_BODY_BYTES", 1<<20)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.IdentityHeader == "" {
		return fmt.Errorf("IDENTITY_HEADER cannot be empty")
	}
	switch c.Models.DefaultFamily {
	case "gemini", "openai", "anthropic", "ollama":
	default:
		return fmt.Errorf("DEFAULT_MODEL_FAMILY %q is not one of gemini, openai, anthropic, ollama", c.Models.DefaultFamily)
	}
	if c.Models.MaxTokens <= 0 {
		return fmt.Errorf("MODEL_MAX_TOKENS must be > 0")
	}
	if c.Models.AnalysisModel == "" {
		return fmt.Errorf("ANALYSIS_MODEL cannot be empty")
	}
	if c.History.QueueSize <= 0 {
		return fmt.Errorf("HISTORY_QUEUE_SIZE must be > 0")
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("HISTORY_RETENTION cannot be negative")
	}
	if c.History.DefaultLimit <= 0 {
		return fmt.Errorf("HISTORY_DEFAULT_LIMIT must be > 0")
	}
	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.SSE.MaxBodyBytes <= 0 {
		return fmt.Errorf("SSE_MAX_BODY_BYTES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
