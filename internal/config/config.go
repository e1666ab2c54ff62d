// Package config holds all unichat configuration: browser settings, wait
// timeouts, service URLs and the DOM selector maps the scrapers depend on.
// Selectors live in config rather than code because the third-party markup
// changes out from under us; patching a YAML file beats a rebuild.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all unichat configuration.
type Config struct {
	// DataDir is the root for the database, browser profile and logs.
	// Defaults to ~/.unichat.
	DataDir string `yaml:"data_dir"`

	// Shared document-wait timeouts (seconds).
	TimeoutSec      int `yaml:"timeout_sec"`
	ShortTimeoutSec int `yaml:"short_timeout_sec"`

	Browser   BrowserConfig   `yaml:"browser"`
	WhatsApp  WhatsAppConfig  `yaml:"whatsapp"`
	Instagram InstagramConfig `yaml:"instagram"`
	Fetcher   FetcherConfig   `yaml:"fetcher"`
}

// BrowserConfig configures the shared Chrome session.
type BrowserConfig struct {
	Headless            bool   `yaml:"headless"`
	DebugPort           int    `yaml:"debug_port"`
	DebugHost           string `yaml:"debug_host"`
	NavigationTimeoutMs int    `yaml:"navigation_timeout_ms"`
}

// WhatsAppConfig configures the WhatsApp web scraper.
type WhatsAppConfig struct {
	URL       string            `yaml:"url"`
	Selectors WhatsAppSelectors `yaml:"selectors"`
}

// InstagramConfig configures the Instagram web scraper.
type InstagramConfig struct {
	URL        string             `yaml:"url"`
	MessageURL string             `yaml:"message_url"`
	// SelfSender is the sender label Instagram renders for own messages.
	SelfSender string             `yaml:"self_sender"`
	Selectors  InstagramSelectors `yaml:"selectors"`
}

// FetcherConfig configures the background poller.
type FetcherConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	ChatLimit  int `yaml:"chat_limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:         filepath.Join(home, ".unichat"),
		TimeoutSec:      60,
		ShortTimeoutSec: 5,
		Browser: BrowserConfig{
			Headless:            true,
			DebugPort:           9222,
			DebugHost:           "localhost",
			NavigationTimeoutMs: 30000,
		},
		WhatsApp: WhatsAppConfig{
			URL:       "https://web.whatsapp.com/",
			Selectors: defaultWhatsAppSelectors(),
		},
		Instagram: InstagramConfig{
			URL:        "https://www.instagram.com/",
			MessageURL: "https://www.instagram.com/direct",
			SelfSender: "You sent",
			Selectors:  defaultInstagramSelectors(),
		},
		Fetcher: FetcherConfig{
			IntervalMs: 500,
			ChatLimit:  20,
		},
	}
}

// Load reads the config file at path, layered over the defaults. A missing
// file is not an error; the defaults are returned as-is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Timeout returns the global document-wait timeout.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// ShortTimeout returns the timeout for quick render waits.
func (c Config) ShortTimeout() time.Duration {
	if c.ShortTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.ShortTimeoutSec) * time.Second
}

// NavigationTimeout returns the page navigation timeout.
func (c BrowserConfig) NavigationTimeout() time.Duration {
	if c.NavigationTimeoutMs <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// PollInterval returns the fetcher poll interval.
func (c FetcherConfig) PollInterval() time.Duration {
	if c.IntervalMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.IntervalMs) * time.Millisecond
}

// DatabasePath returns the SQLite database location.
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "unichat.db")
}

// LogsDir returns the log file directory.
func (c Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// BrowserUserDataDir returns the persistent Chrome profile directory, so
// login cookies survive restarts.
func (c Config) BrowserUserDataDir() string {
	return filepath.Join(c.DataDir, "browser-userdata")
}

// TabStorePath returns the tab metadata persistence file.
func (c Config) TabStorePath() string {
	return filepath.Join(c.DataDir, "tabs.json")
}

// ConfigPath returns the default config file location.
func ConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".unichat", "config.yaml")
}
