package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerConfig configures the mock chat backend.
type ServerConfig struct {
	Port           int      `env:"MOCK_PORT" envDefault:"8000"`
	APIKeys        []string `env:"MOCK_API_KEYS" envSeparator:","`
	RedisURL       string   `env:"MOCK_REDIS_URL"`
	AllowedOrigins []string `env:"MOCK_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	LogLevel       string   `env:"MOCK_LOG_LEVEL" envDefault:"info"`

	RateLimitPerMin      int   `env:"MOCK_RATE_LIMIT_PER_MIN" envDefault:"120"`
	MaxBodyBytes         int64 `env:"MOCK_MAX_BODY_BYTES" envDefault:"1048576"`
	ConversationTTLHours int   `env:"MOCK_CONVERSATION_TTL_HOURS" envDefault:"24"`
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *ServerConfig) ConversationTTL() time.Duration {
	return time.Duration(c.ConversationTTLHours) * time.Hour
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("MOCK_PORT %d is out of range", c.Port)
	}
	if c.RateLimitPerMin <= 0 {
		return fmt.Errorf("MOCK_RATE_LIMIT_PER_MIN must be positive")
	}
	if c.ConversationTTLHours <= 0 {
		return fmt.Errorf("MOCK_CONVERSATION_TTL_HOURS must be positive")
	}
	return nil
}

func LoadServer() (*ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse server config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return &cfg, nil
}
