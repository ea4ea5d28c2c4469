package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Locale string

const (
	LocaleEnglish Locale = "en"
	LocaleMyanmar Locale = "my"
	LocaleChinese Locale = "zh"
)

var SupportedLocales = []Locale{LocaleEnglish, LocaleMyanmar, LocaleChinese}

type Position string

const (
	PositionBottomRight Position = "bottom-right"
	PositionBottomLeft  Position = "bottom-left"
)

type Theme struct {
	PrimaryColor   string   `yaml:"primary_color" env:"PRIMARY_COLOR"`
	SecondaryColor string   `yaml:"secondary_color" env:"SECONDARY_COLOR"`
	Position       Position `yaml:"position" env:"POSITION"`
}

type Labels struct {
	WelcomeMessage string `yaml:"welcome_message" env:"WELCOME_MESSAGE"`
	Placeholder    string `yaml:"placeholder" env:"PLACEHOLDER"`
	SendButton     string `yaml:"send_button" env:"SEND_BUTTON"`
}

type Config struct {
	APIKey     string `env:"WIDGET_API_KEY,required"`
	VendorID   string `env:"WIDGET_VENDOR_ID"`
	APIBaseURL string `env:"WIDGET_API_BASE_URL" envDefault:"http://localhost:8000"`
	SocketURL  string `env:"WIDGET_SOCKET_URL"`
	NoRealtime bool   `env:"WIDGET_REALTIME_DISABLED"`
	Locale     string `env:"WIDGET_LOCALE"`
	ConfigFile string `env:"WIDGET_CONFIG_FILE"`
	LogLevel   string `env:"WIDGET_LOG_LEVEL" envDefault:"info"`

	StorageBackend    string `env:"WIDGET_STORAGE" envDefault:"file"`
	StorageDir        string `env:"WIDGET_STORAGE_DIR" envDefault:".wecare"`
	StorageSlot       string `env:"WIDGET_STORAGE_SLOT" envDefault:"wecare_widget_session"`
	DatabaseURL       string `env:"WIDGET_DATABASE_URL"`
	RedisURL          string `env:"WIDGET_REDIS_URL"`
	SessionTTLSeconds int    `env:"WIDGET_SESSION_TTL_SECONDS" envDefault:"0"`

	RequestTimeoutSeconds int `env:"WIDGET_REQUEST_TIMEOUT_SECONDS" envDefault:"15"`
	ReconnectDelayMillis  int `env:"WIDGET_RECONNECT_DELAY_MS" envDefault:"1000"`
	ReconnectMaxMillis    int `env:"WIDGET_RECONNECT_MAX_DELAY_MS" envDefault:"5000"`

	Theme  Theme  `envPrefix:"WIDGET_THEME_"`
	Labels Labels `envPrefix:"WIDGET_LABEL_"`
}

// fileConfig is the optional YAML overlay for presentation settings.
type fileConfig struct {
	Locale string `yaml:"locale"`
	Theme  Theme  `yaml:"theme"`
	Labels Labels `yaml:"labels"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMillis) * time.Millisecond
}

func (c *Config) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.ReconnectMaxMillis) * time.Millisecond
}

func (c *Config) ResolvedLocale() Locale {
	return Locale(c.Locale)
}

func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.APIBaseURL); err != nil {
		return fmt.Errorf("WIDGET_API_BASE_URL is not a valid URL: %w", err)
	}

	switch c.StorageBackend {
	case "file", "memory":
	case "sqlite", "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("WIDGET_DATABASE_URL is required for %s storage", c.StorageBackend)
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("WIDGET_REDIS_URL is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown WIDGET_STORAGE %q (want file, sqlite, postgres, redis or memory)", c.StorageBackend)
	}

	if c.StorageSlot == "" {
		return fmt.Errorf("WIDGET_STORAGE_SLOT must not be empty")
	}

	if c.Theme.Position != PositionBottomRight && c.Theme.Position != PositionBottomLeft {
		return fmt.Errorf("theme position %q must be bottom-right or bottom-left", c.Theme.Position)
	}

	return nil
}

// Resolve fills derived values. It runs once at startup; core components
// only ever see the resolved config.
func (c *Config) Resolve() {
	switch {
	case c.NoRealtime:
		c.SocketURL = ""
		log.Warn().Msg("realtime channel disabled: new agent messages arrive only on refresh")
	case c.SocketURL == "":
		c.SocketURL = c.APIBaseURL
	}
	c.Locale = string(DetectLocale(c.Locale, os.Getenv("LC_ALL"), os.Getenv("LANG")))

	if c.Theme.PrimaryColor == "" {
		c.Theme.PrimaryColor = DefaultPrimaryColor
	}
	if c.Theme.SecondaryColor == "" {
		c.Theme.SecondaryColor = DefaultSecondaryColor
	}
	if c.Theme.Position == "" {
		c.Theme.Position = PositionBottomRight
	}
}

// NormalizeLocale maps tags like "zh-CN" or "my_MM.UTF-8" onto a supported
// locale. ok is false when the tag is unsupported.
func NormalizeLocale(value string) (Locale, bool) {
	if value == "" {
		return "", false
	}
	tag := strings.ToLower(value)
	if i := strings.IndexAny(tag, "-_."); i >= 0 {
		tag = tag[:i]
	}
	for _, l := range SupportedLocales {
		if string(l) == tag {
			return l, true
		}
	}
	return "", false
}

// DetectLocale returns the first supported candidate, defaulting to English.
func DetectLocale(candidates ...string) Locale {
	for _, c := range candidates {
		if l, ok := NormalizeLocale(c); ok {
			return l
		}
	}
	return LocaleEnglish
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyFile overlays presentation settings from a YAML file. Values already
// set from the environment win.
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	c.Locale = firstNonEmpty(c.Locale, fc.Locale)
	c.Theme.PrimaryColor = firstNonEmpty(c.Theme.PrimaryColor, fc.Theme.PrimaryColor)
	c.Theme.SecondaryColor = firstNonEmpty(c.Theme.SecondaryColor, fc.Theme.SecondaryColor)
	c.Theme.Position = Position(firstNonEmpty(string(c.Theme.Position), string(fc.Theme.Position)))
	c.Labels.WelcomeMessage = firstNonEmpty(c.Labels.WelcomeMessage, fc.Labels.WelcomeMessage)
	c.Labels.Placeholder = firstNonEmpty(c.Labels.Placeholder, fc.Labels.Placeholder)
	c.Labels.SendButton = firstNonEmpty(c.Labels.SendButton, fc.Labels.SendButton)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
