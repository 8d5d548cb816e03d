// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/statefultalk/internal/letta"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	DBPath         string
	CharactersFile string // optional YAML override of the bundled directory
	GRPCPort       string // empty disables the gRPC health server
	Letta          LettaConfig
	Agent          AgentConfig
	Chat           ChatConfig
	Notify         NotifyConfig
}

// LettaConfig configures the remote platform client.
type LettaConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

// AgentConfig overrides the defaults used when creating character agents.
// Empty values keep the built-in defaults.
type AgentConfig struct {
	Model     string
	Embedding string
	Tools     []string
}

// ChatConfig controls chat transports.
type ChatConfig struct {
	RateLimit          int
	RateWindow         time.Duration
	SSEKeepalive       time.Duration
	MaxRequestBodySize int64
	// ViewTTL closes in-memory chat views unused for this long.
	ViewTTL time.Duration
}

// NotifyConfig controls the notification queue.
type NotifyConfig struct {
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		DBPath:         getEnv("DB_PATH", "./data/statefultalk.db"),
		CharactersFile: getEnv("CHARACTERS_FILE", ""),
		GRPCPort:       getEnv("GRPC_PORT", ""),
		Letta: LettaConfig{
			BaseURL:        getEnv("LETTA_BASE_URL", letta.DefaultBaseURL),
			RequestTimeout: getEnvDuration("LETTA_REQUEST_TIMEOUT", 30*time.Second),
		},
		Agent: AgentConfig{
			Model:     getEnv("AGENT_MODEL", ""),
			Embedding: getEnv("AGENT_EMBEDDING", ""),
			Tools:     getEnvList("AGENT_TOOLS"),
		},
		Chat: ChatConfig{
			RateLimit:          getEnvInt("CHAT_RATE_LIMIT", 10),
			RateWindow:         getEnvDuration("CHAT_RATE_WINDOW", time.Minute),
			SSEKeepalive:       getEnvDuration("SSE_KEEPALIVE", 10*time.Second),
			MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 1<<20)),
			ViewTTL:            getEnvDuration("CHAT_VIEW_TTL", 30*time.Minute),
		},
		Notify: NotifyConfig{
			QueueSize: getEnvInt("NOTIFY_QUEUE_SIZE", 50),
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
	if c.Letta.BaseURL == "" {
		return fmt.Errorf("LETTA_BASE_URL cannot be empty")
	}
	if c.Letta.RequestTimeout <= 0 {
		return fmt.Errorf("LETTA_REQUEST_TIMEOUT must be > 0")
	}
	if c.Chat.RateLimit <= 0 {
		return fmt.Errorf("CHAT_RATE_LIMIT must be > 0")
	}
	if c.Chat.RateWindow <= 0 {
		return fmt.Errorf("CHAT_RATE_WINDOW must be > 0")
	}
	if c.Chat.SSEKeepalive <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE must be > 0")
	}
	if c.Chat.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
	}
	if c.Chat.ViewTTL <= 0 {
		return fmt.Errorf("CHAT_VIEW_TTL must be > 0")
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be > 0")
	}
	if c.GRPCPort != "" && c.GRPCPort == c.Port {
		return fmt.Errorf("GRPC_PORT must differ from PORT")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	origins := []string{"http://localhost:" + c.Port, "http://127.0.0.1:" + c.Port}
	if c.FrontendURL != "" {
		origins = append(origins, strings.TrimRight(c.FrontendURL, "/"))
	}
	return origins
}

// LettaClientConfig returns the client configuration for letta.NewFactory.
func (c *Config) LettaClientConfig() letta.Config {
	return letta.Config{
		BaseURL: c.Letta.BaseURL,
		Timeout: c.Letta.RequestTimeout,
	}
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

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
