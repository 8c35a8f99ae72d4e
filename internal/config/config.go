// Package config loads the correlated daemon configuration from a YAML file
// with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-correlate/pkg/anomaly"
	"github.com/teslashibe/go-correlate/pkg/correlation"
	"github.com/teslashibe/go-correlate/pkg/feed"
	"github.com/teslashibe/go-correlate/pkg/mqttsource"
)

// Default daemon settings.
const (
	DefaultAddr      = ":8090"
	DefaultLogLevel  = "info"
	DefaultQueueSize = 256
)

// Scorer names accepted by engine.scorer.
const (
	ScorerStdDev = "stddev"
	ScorerZScore = "zscore"
)

// Config is the daemon configuration.
type Config struct {
	Server  ServerConfig      `yaml:"server"`
	Engine  EngineConfig      `yaml:"engine"`
	MQTT    mqttsource.Config `yaml:"mqtt"`
	Feed    FeedConfig        `yaml:"feed"`
	Webhook WebhookConfig     `yaml:"webhook"`
	Log     LogConfig         `yaml:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Debug bool   `yaml:"debug"` // request logging
}

// EngineConfig is the correlation engine configuration plus daemon-only
// settings.
type EngineConfig struct {
	correlation.Config `yaml:",inline"`

	Scorer    string `yaml:"scorer"`     // stddev or zscore
	QueueSize int    `yaml:"queue_size"` // notification queue length
	AutoStart bool   `yaml:"auto_start"` // start the scheduler at boot
}

// FeedConfig configures the optional upstream sensor feed.
type FeedConfig struct {
	URL        string        `yaml:"url"`
	MinBackoff time.Duration `yaml:"min_backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

// WebhookConfig configures the optional alert webhook.
type WebhookConfig struct {
	URL     string                  `yaml:"url"`
	Timeout time.Duration           `yaml:"timeout"`
	Kinds   []correlation.EventKind `yaml:"kinds"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: DefaultAddr},
		Engine: EngineConfig{
			Config:    correlation.DefaultConfig(),
			Scorer:    ScorerStdDev,
			QueueSize: DefaultQueueSize,
			AutoStart: true,
		},
		MQTT: mqttsource.DefaultConfig(),
		Feed: FeedConfig{
			MinBackoff: feed.DefaultMinBackoff,
			MaxBackoff: feed.DefaultMaxBackoff,
		},
		Webhook: WebhookConfig{Timeout: 5 * time.Second},
		Log:     LogConfig{Level: DefaultLogLevel},
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from CORRELATE_ADDR, MQTT_BROKER, FEED_URL,
// WEBHOOK_URL and LOG_LEVEL.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("CORRELATE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("FEED_URL"); v != "" {
		c.Feed.URL = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Webhook.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks every section. MQTT is only validated when a broker is set.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if err := c.Engine.Config.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	switch c.Engine.Scorer {
	case ScorerStdDev, ScorerZScore:
	default:
		return fmt.Errorf("engine.scorer must be %s or %s, got %q", ScorerStdDev, ScorerZScore, c.Engine.Scorer)
	}
	if c.Engine.QueueSize < 1 {
		return fmt.Errorf("engine.queue_size must be at least 1, got %d", c.Engine.QueueSize)
	}
	if c.MQTT.Broker != "" {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	if c.Feed.URL != "" && (c.Feed.MinBackoff <= 0 || c.Feed.MaxBackoff < c.Feed.MinBackoff) {
		return fmt.Errorf("feed backoff must satisfy 0 < min <= max, got %v/%v", c.Feed.MinBackoff, c.Feed.MaxBackoff)
	}
	return nil
}

// NewScorer builds the configured anomaly scorer.
func (e EngineConfig) NewScorer() anomaly.Scorer {
	if e.Scorer == ScorerZScore {
		return anomaly.NewZScorer()
	}
	return anomaly.NewStdDevScorer()
}
