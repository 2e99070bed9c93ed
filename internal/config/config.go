// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// History window defaults used when a caller omits limit.
	ChatHistoryLimit  int
	AgentHistoryLimit int

	// FeedPollInterval controls how often the live message feed re-reads the
	// transcript for connected websocket clients.
	FeedPollInterval time.Duration

	Voice   VoiceConfig
	Browser BrowserConfig
}

// VoiceConfig holds realtime-voice token issuance settings.
type VoiceConfig struct {
	WsURL     string
	APIKey    string
	APISecret string
	AgentName string
	TokenTTL  time.Duration
}

// BrowserConfig holds the hosted-browser provider settings.
type BrowserConfig struct {
	APIURL    string
	APIKey    string
	ProjectID string
	Timeout   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	chatLimit := getEnvInt("CHAT_HISTORY_LIMIT", 50)
	if chatLimit <= 0 {
		chatLimit = 50
	}
	agentLimit := getEnvInt("AGENT_HISTORY_LIMIT", 100)
	if agentLimit <= 0 {
		agentLimit = 100
	}

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		FrontendURL:       getEnv("FRONTEND_URL", ""),
		DBPath:            getEnv("DB_PATH", "./data/browserteacher.db"),
		ChatHistoryLimit:  chatLimit,
		AgentHistoryLimit: agentLimit,
		FeedPollInterval:  getEnvDuration("FEED_POLL_INTERVAL", 1*time.Second),
		Voice: VoiceConfig{
			WsURL:     getEnv("LIVEKIT_URL", ""),
			APIKey:    getEnv("LIVEKIT_API_KEY", ""),
			APISecret: getEnv("LIVEKIT_API_SECRET", ""),
			AgentName: getEnv("AGENT_NAME", "teacher-agent"),
			TokenTTL:  getEnvDuration("VOICE_TOKEN_TTL", 6*time.Hour),
		},
		Browser: BrowserConfig{
			APIURL:    getEnv("BROWSER_API_URL", "https://api.browserbase.com"),
			APIKey:    getEnv("BROWSERBASE_API_KEY", ""),
			ProjectID: getEnv("BROWSERBASE_PROJECT_ID", ""),
			Timeout:   getEnvDuration("BROWSER_API_TIMEOUT", 30*time.Second),
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
	if c.FeedPollInterval <= 0 {
		return fmt.Errorf("FEED_POLL_INTERVAL must be > 0")
	}
	if c.Browser.APIURL == "" {
		return fmt.Errorf("BROWSER_API_URL cannot be empty")
	}
	return nil
}

// VoiceEnabled returns true if token issuance credentials are configured.
func (c *Config) VoiceEnabled() bool {
	return c.Voice.APIKey != "" && c.Voice.APISecret != ""
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
