package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{
		"FRONTEND_URL", "AGENT_TOOLS", "GRPC_PORT", "CHAT_RATE_LIMIT", "CHAT_RATE_WINDOW",
		"LETTA_REQUEST_TIMEOUT", "SSE_KEEPALIVE", "NOTIFY_QUEUE_SIZE", "MAX_REQUEST_BODY_SIZE", "CHAT_VIEW_TTL",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("PORT", "8080")
	t.Setenv("DB_PATH", "./data/statefultalk.db")
	t.Setenv("LETTA_BASE_URL", "https://api.letta.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Letta.RequestTimeout)
	assert.Empty(t, cfg.Agent.Tools)
	assert.Equal(t, 30*time.Minute, cfg.Chat.ViewTTL)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_PATH", "/tmp/x.db")
	t.Setenv("LETTA_BASE_URL", "http://letta.local:8283")
	t.Setenv("LETTA_REQUEST_TIMEOUT", "5s")
	t.Setenv("AGENT_TOOLS", " web_search , ,run_code")
	t.Setenv("CHAT_RATE_LIMIT", "3")
	t.Setenv("CHAT_RATE_WINDOW", "bogus")
	t.Setenv("GRPC_PORT", "9001")
	t.Setenv("FRONTEND_URL", "https://talk.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Letta.RequestTimeout)
	assert.Equal(t, []string{"web_search", "run_code"}, cfg.Agent.Tools)
	assert.Equal(t, 3, cfg.Chat.RateLimit)
	assert.Equal(t, time.Minute, cfg.Chat.RateWindow, "unparseable durations fall back")
	assert.Equal(t, "9001", cfg.GRPCPort)
	assert.False(t, cfg.IsDevelopment())
	assert.Contains(t, cfg.AllowedOrigins(), "https://talk.example.com")
	assert.Equal(t, "http://letta.local:8283", cfg.LettaClientConfig().BaseURL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Port:   "8080",
			DBPath: "x.db",
			Letta:  LettaConfig{BaseURL: "http://x", RequestTimeout: time.Second},
			Chat:   ChatConfig{RateLimit: 1, RateWindow: time.Second, SSEKeepalive: time.Second, MaxRequestBodySize: 1, ViewTTL: time.Minute},
			Notify: NotifyConfig{QueueSize: 1},
		}
	}
	require.NoError(t, base().Validate())

	tests := map[string]func(c *Config){
		"empty port":     func(c *Config) { c.Port = "" },
		"empty db":       func(c *Config) { c.DBPath = "" },
		"zero timeout":   func(c *Config) { c.Letta.RequestTimeout = 0 },
		"zero limit":     func(c *Config) { c.Chat.RateLimit = 0 },
		"zero queue":     func(c *Config) { c.Notify.QueueSize = 0 },
		"zero view ttl":  func(c *Config) { c.Chat.ViewTTL = 0 },
		"same grpc port": func(c *Config) { c.GRPCPort = "8080" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}
