// Package config loads the domprobe YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Query   QueryConfig   `yaml:"query"`
	Extract ExtractConfig `yaml:"extract"`
	Observe ObserveConfig `yaml:"observe"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	Server  ServerConfig  `yaml:"server"`
}

// BrowserConfig controls the Chrome instance.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Bin             string        `yaml:"bin"`
	Mode            string        `yaml:"mode"` // headless | headful | plain
	HeapLimit       int64         `yaml:"heap_limit"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	BlockResources  []string      `yaml:"block_resources"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
	XvfbDisplay     string        `yaml:"xvfb_display"`
	StartURL        string        `yaml:"start_url"`

	// AllowPrivate lets sessions load loopback and private-network hosts.
	AllowPrivate bool `yaml:"allow_private"`
}

// QueryConfig controls element queries and the structure outline.
type QueryConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxDepth        int           `yaml:"max_depth"`
	SignificantTags []string      `yaml:"significant_tags"`
}

// ExtractConfig controls the Markdown pipeline.
type ExtractConfig struct {
	MinContentLength int      `yaml:"min_content_length"`
	Selectors        []string `yaml:"selectors"`
}

// ObserveConfig controls mutation subscriptions.
type ObserveConfig struct {
	// Buffer is the per-subscription poll queue size.
	Buffer       int           `yaml:"buffer"`
	CloseTimeout time.Duration `yaml:"close_timeout"`
}

// SinkConfig defines an extra output for every subscription.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook
	URL     string `yaml:"url"`  // webhook only
	Retries int    `yaml:"retries"`
}

// ServerConfig controls how the tools are served.
type ServerConfig struct {
	Transport string `yaml:"transport"` // stdio | http
	Listen    string `yaml:"listen"`

	// RateLimit caps requests per client IP per minute in http mode.
	// Zero disables the limit.
	RateLimit int `yaml:"rate_limit"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.HeapLimit <= 0 {
		c.Browser.HeapLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Query.Timeout <= 0 {
		c.Query.Timeout = 5 * time.Second
	}
	if c.Query.MaxDepth <= 0 {
		c.Query.MaxDepth = 3
	}
	if c.Extract.MinContentLength <= 0 {
		c.Extract.MinContentLength = 100
	}
	if c.Observe.Buffer <= 0 {
		c.Observe.Buffer = 1000
	}
	if c.Observe.CloseTimeout <= 0 {
		c.Observe.CloseTimeout = 2 * time.Second
	}
	if c.Server.Transport == "" {
		c.Server.Transport = "stdio"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8931"
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "webhook" && c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
	}
}

func (c *Config) validate() error {
	switch c.Browser.Mode {
	case "headless", "headful", "plain":
	default:
		return fmt.Errorf("config: browser.mode %q: want headless, headful or plain", c.Browser.Mode)
	}
	switch c.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("config: server.transport %q: want stdio or http", c.Server.Transport)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}
