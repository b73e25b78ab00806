package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/veranemoloko/download-panel/internal/validation"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	BackendURL   string        `envconfig:"BACKEND_URL" default:"http://localhost:8000"`
	LiveURL      string        `envconfig:"LIVE_URL"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
	ReadRetryMax int           `envconfig:"READ_RETRY_MAX" default:"2"`

	QueuePollInterval   time.Duration `envconfig:"QUEUE_POLL_INTERVAL" default:"5s"`
	HistoryPollInterval time.Duration `envconfig:"HISTORY_POLL_INTERVAL" default:"30s"`

	ReconnectMin time.Duration `envconfig:"RECONNECT_MIN" default:"500ms"`
	ReconnectMax time.Duration `envconfig:"RECONNECT_MAX" default:"30s"`
	EventBuffer  int           `envconfig:"EVENT_BUFFER" default:"64"`

	ListenPort int    `envconfig:"LISTEN_PORT" default:"8090"`
	StateFile  string `envconfig:"STATE_FILE" default:"./panel-state.json"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if err := validation.ValidateBaseURL(c.BackendURL, "http", "https"); err != nil {
		return fmt.Errorf("invalid backend URL: %w", err)
	}

	if c.LiveURL != "" {
		if err := validation.ValidateBaseURL(c.LiveURL, "ws", "wss"); err != nil {
			return fmt.Errorf("invalid live URL: %w", err)
		}
	}

	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP timeout must be positive: %s", c.HTTPTimeout)
	}

	if c.ReadRetryMax < 0 {
		return fmt.Errorf("read retry max cannot be negative: %d", c.ReadRetryMax)
	}

	if c.QueuePollInterval <= 0 {
		return fmt.Errorf("queue poll interval must be positive: %s", c.QueuePollInterval)
	}
	if c.HistoryPollInterval <= 0 {
		return fmt.Errorf("history poll interval must be positive: %s", c.HistoryPollInterval)
	}

	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("invalid reconnect backoff: min=%s max=%s", c.ReconnectMin, c.ReconnectMax)
	}

	if c.EventBuffer <= 0 {
		return fmt.Errorf("event buffer must be positive: %d", c.EventBuffer)
	}

	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("invalid listen port: %d", c.ListenPort)
	}

	return nil
}

// LiveChannelURL returns the configured live URL, or derives it from the
// backend URL by switching to the websocket scheme.
func (c *Config) LiveChannelURL() string {
	if c.LiveURL != "" {
		return c.LiveURL
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/progress"
	return u.String()
}
