// Package config loads client settings from .env, the environment and flags.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"communitychat/realtime"
)

const (
	MinHistoryLimit = 1
	MaxHistoryLimit = 200
)

var (
	ErrInvalidBaseURL  = errors.New("api base url must be an absolute http or https url")
	ErrInvalidDuration = errors.New("duration must be positive")
)

// Config holds the client configuration.
type Config struct {
	APIBaseURL        string        `env:"CHAT_API_BASE_URL" envDefault:"http://localhost:8080/api"`
	RealtimePath      string        `env:"CHAT_REALTIME_PATH" envDefault:"/chat/ws"`
	Token             string        `env:"CHAT_TOKEN"`
	HeartbeatInterval time.Duration `env:"CHAT_HEARTBEAT_INTERVAL" envDefault:"25s"`
	ReconnectDelay    time.Duration `env:"CHAT_RECONNECT_DELAY" envDefault:"3s"`
	ReconnectBackoff  bool          `env:"CHAT_RECONNECT_BACKOFF" envDefault:"false"`
	ReconnectMaxDelay time.Duration `env:"CHAT_RECONNECT_MAX_DELAY" envDefault:"30s"`
	PollInterval      time.Duration `env:"CHAT_POLL_INTERVAL" envDefault:"10s"`
	HistoryLimit      int           `env:"CHAT_HISTORY_LIMIT" envDefault:"50"`
	MentionDebounce   time.Duration `env:"CHAT_MENTION_DEBOUNCE" envDefault:"300ms"`
	HTTPTimeout       time.Duration `env:"CHAT_HTTP_TIMEOUT" envDefault:"10s"`
	BridgeAddr        string        `env:"CHAT_BRIDGE_ADDR" envDefault:"127.0.0.1:8090"`
	BridgeToken       string        `env:"CHAT_BRIDGE_TOKEN"`
	ArchivePath       string        `env:"CHAT_ARCHIVE_PATH"`
	LogLevel          string        `env:"CHAT_LOG_LEVEL" envDefault:"info"`
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding ones already set.
func LoadDotEnv(paths ...string) error {
	return godotenv.Load(paths...)
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.APIBaseURL, "api", cfg.APIBaseURL, "Chat API base URL")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "Session token")
	fs.StringVar(&cfg.BridgeAddr, "bridge-addr", cfg.BridgeAddr, "Local bridge listen address")
	fs.StringVar(&cfg.ArchivePath, "archive", cfg.ArchivePath, "SQLite transcript archive path (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	fs.BoolVar(&cfg.ReconnectBackoff, "backoff", cfg.ReconnectBackoff, "Use exponential reconnect backoff with jitter")
	fs.IntVar(&cfg.HistoryLimit, "history", cfg.HistoryLimit, "Messages fetched by companion reads")
	if args == nil {
		args = []string{}
	}
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration and clamps the history limit.
func (c *Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.APIBaseURL))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.APIBaseURL)
	}

	durations := map[string]time.Duration{
		"CHAT_HEARTBEAT_INTERVAL":  c.HeartbeatInterval,
		"CHAT_RECONNECT_DELAY":     c.ReconnectDelay,
		"CHAT_RECONNECT_MAX_DELAY": c.ReconnectMaxDelay,
		"CHAT_POLL_INTERVAL":       c.PollInterval,
		"CHAT_MENTION_DEBOUNCE":    c.MentionDebounce,
		"CHAT_HTTP_TIMEOUT":        c.HTTPTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s: %w", name, ErrInvalidDuration)
		}
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("CHAT_LOG_LEVEL: %w", err)
	}

	c.HistoryLimit = min(max(c.HistoryLimit, MinHistoryLimit), MaxHistoryLimit)
	return nil
}

// Level returns the configured log level.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// ReconnectPolicy returns the reconnect delay policy the settings describe.
func (c Config) ReconnectPolicy() realtime.ReconnectPolicy {
	if c.ReconnectBackoff {
		return realtime.JitteredBackoff(c.ReconnectDelay, c.ReconnectMaxDelay)
	}
	return realtime.FixedDelay(c.ReconnectDelay)
}

// Manager returns the realtime manager settings.
func (c Config) Manager() realtime.Config {
	return realtime.Config{
		APIBaseURL:        c.APIBaseURL,
		Path:              c.RealtimePath,
		HeartbeatInterval: c.HeartbeatInterval,
		DialTimeout:       c.HTTPTimeout,
		Policy:            c.ReconnectPolicy(),
	}
}
