// Package config loads web-bridge settings from YAML.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Ambiguity policies for selectors that match more than one element.
const (
	AmbiguityBestEffort = "best-effort"
	AmbiguityStrict     = "strict"
)

// Config is the full configuration file.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Secondary SecondaryConfig `yaml:"secondary"`
	Page      PageConfig      `yaml:"page"`
	HTTP      HTTPConfig      `yaml:"http"`
	CDP       CDPConfig       `yaml:"cdp"`
	Log       LogConfig       `yaml:"log"`
}

// BridgeConfig controls the primary websocket channel.
type BridgeConfig struct {
	URL            string        `yaml:"url"`
	Name           string        `yaml:"name"`
	UserAgent      string        `yaml:"user_agent"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

// SecondaryConfig controls the length-prefixed fallback channel.
type SecondaryConfig struct {
	// Command is the host binary to spawn. Empty disables the fallback.
	Command      string        `yaml:"command"`
	Args         []string      `yaml:"args"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxFrameSize int           `yaml:"max_frame_size"`
}

// PageConfig controls the page engine and relay.
type PageConfig struct {
	RelayTimeout   time.Duration `yaml:"relay_timeout"`
	WatchDebounce  time.Duration `yaml:"watch_debounce"`
	WatchThreshold int           `yaml:"watch_threshold"`
	SettleDelay    time.Duration `yaml:"settle_delay"`
	Ambiguity      string        `yaml:"ambiguity"`
	ConsoleBuffer  int           `yaml:"console_buffer"`
	NetworkBuffer  int           `yaml:"network_buffer"`
	ViewportWidth  float64       `yaml:"viewport_width"`
	ViewportHeight float64       `yaml:"viewport_height"`
}

// HTTPConfig controls the optional HTTP API.
type HTTPConfig struct {
	Listen string `yaml:"listen"`
}

// CDPConfig points screenshot capture at a Chrome instance. An empty URL
// launches a local headless Chrome.
type CDPConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig selects log level and handler format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Bridge: BridgeConfig{
			URL:            "ws://127.0.0.1:3457/extension",
			Name:           "web-bridge",
			UserAgent:      "web-bridge (headless)",
			ReconnectDelay: 3 * time.Second,
		},
		Secondary: SecondaryConfig{
			Timeout:      10 * time.Second,
			MaxFrameSize: 1 << 20,
		},
		Page: PageConfig{
			RelayTimeout:   5 * time.Second,
			WatchDebounce:  250 * time.Millisecond,
			WatchThreshold: 10,
			SettleDelay:    300 * time.Millisecond,
			Ambiguity:      AmbiguityBestEffort,
			ConsoleBuffer:  500,
			NetworkBuffer:  200,
			ViewportWidth:  1280,
			ViewportHeight: 800,
		},
		CDP: CDPConfig{Timeout: 30 * time.Second},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path and merges it over the defaults. A missing file yields the
// defaults.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and merges it over the defaults.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) withDefaults() Config {
	d := Default()
	if strings.TrimSpace(c.Bridge.URL) != "" {
		d.Bridge.URL = c.Bridge.URL
	}
	if strings.TrimSpace(c.Bridge.Name) != "" {
		d.Bridge.Name = c.Bridge.Name
	}
	if strings.TrimSpace(c.Bridge.UserAgent) != "" {
		d.Bridge.UserAgent = c.Bridge.UserAgent
	}
	if c.Bridge.ReconnectDelay != 0 {
		d.Bridge.ReconnectDelay = c.Bridge.ReconnectDelay
	}
	if strings.TrimSpace(c.Secondary.Command) != "" {
		d.Secondary.Command = c.Secondary.Command
		d.Secondary.Args = c.Secondary.Args
	}
	if c.Secondary.Timeout != 0 {
		d.Secondary.Timeout = c.Secondary.Timeout
	}
	if c.Secondary.MaxFrameSize != 0 {
		d.Secondary.MaxFrameSize = c.Secondary.MaxFrameSize
	}
	if c.Page.RelayTimeout != 0 {
		d.Page.RelayTimeout = c.Page.RelayTimeout
	}
	if c.Page.WatchDebounce != 0 {
		d.Page.WatchDebounce = c.Page.WatchDebounce
	}
	if c.Page.WatchThreshold != 0 {
		d.Page.WatchThreshold = c.Page.WatchThreshold
	}
	if c.Page.SettleDelay != 0 {
		d.Page.SettleDelay = c.Page.SettleDelay
	}
	if strings.TrimSpace(c.Page.Ambiguity) != "" {
		d.Page.Ambiguity = strings.ToLower(strings.TrimSpace(c.Page.Ambiguity))
	}
	if c.Page.ConsoleBuffer != 0 {
		d.Page.ConsoleBuffer = c.Page.ConsoleBuffer
	}
	if c.Page.NetworkBuffer != 0 {
		d.Page.NetworkBuffer = c.Page.NetworkBuffer
	}
	if c.Page.ViewportWidth != 0 {
		d.Page.ViewportWidth = c.Page.ViewportWidth
	}
	if c.Page.ViewportHeight != 0 {
		d.Page.ViewportHeight = c.Page.ViewportHeight
	}
	if strings.TrimSpace(c.HTTP.Listen) != "" {
		d.HTTP.Listen = c.HTTP.Listen
	}
	if strings.TrimSpace(c.CDP.URL) != "" {
		d.CDP.URL = c.CDP.URL
	}
	if c.CDP.Timeout != 0 {
		d.CDP.Timeout = c.CDP.Timeout
	}
	if strings.TrimSpace(c.Log.Level) != "" {
		d.Log.Level = c.Log.Level
	}
	if strings.TrimSpace(c.Log.Format) != "" {
		d.Log.Format = c.Log.Format
	}
	return d
}

// Validate checks whether the config is usable.
func (c Config) Validate() error {
	u, err := url.Parse(c.Bridge.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("bridge.url must be a ws:// or wss:// URL, got %q", c.Bridge.URL)
	}
	if c.Bridge.ReconnectDelay <= 0 {
		return errors.New("bridge.reconnect_delay must be greater than zero")
	}
	if c.Secondary.Timeout <= 0 {
		return errors.New("secondary.timeout must be greater than zero")
	}
	if c.Secondary.MaxFrameSize <= 0 {
		return errors.New("secondary.max_frame_size must be greater than zero")
	}
	if c.Page.RelayTimeout <= 0 {
		return errors.New("page.relay_timeout must be greater than zero")
	}
	if c.Page.WatchDebounce <= 0 {
		return errors.New("page.watch_debounce must be greater than zero")
	}
	if c.Page.WatchThreshold < 1 {
		return errors.New("page.watch_threshold must be at least 1")
	}
	switch c.Page.Ambiguity {
	case AmbiguityBestEffort, AmbiguityStrict:
	default:
		return fmt.Errorf("page.ambiguity must be %q or %q, got %q", AmbiguityBestEffort, AmbiguityStrict, c.Page.Ambiguity)
	}
	if c.Page.ConsoleBuffer < 1 || c.Page.NetworkBuffer < 1 {
		return errors.New("page console_buffer and network_buffer must be positive")
	}
	return nil
}
