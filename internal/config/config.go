// Package config owns the engine configuration file: strict decoding
// (JSON or YAML), validation, and hot reload via fsnotify.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MKWorldWide/MKronoSphere/internal/event"
)

// Config is the full on-disk configuration surface.
//
// Durations are strings ("30s", "1m", or bare seconds) parsed via
// ParseDurationField so the file stays editor-friendly in both JSON and YAML.
type Config struct {
	Log       LogConfig       `json:"log"`
	Sync      SyncConfig      `json:"sync"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
}

type LogConfig struct {
	Level   string        `json:"level"`
	Console *bool         `json:"console,omitempty"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type SyncConfig struct {
	MaxConcurrent int         `json:"max_concurrent"`
	Timeout       string      `json:"timeout,omitempty"`
	Retry         RetryConfig `json:"retry"`
}

type RetryConfig struct {
	Enabled   *bool  `json:"enabled,omitempty"`
	Max       int    `json:"max"`
	BaseDelay string `json:"base_delay,omitempty"`
}

type BroadcastConfig struct {
	MaxConcurrent int            `json:"max_concurrent"`
	Timeout       string         `json:"timeout,omitempty"`
	RatePerSec    int            `json:"rate_per_sec,omitempty"`
	Filter        FilterConfig   `json:"filter"`
	Channels      ChannelsConfig `json:"channels"`
}

// ChannelsConfig enables and tunes the built-in broadcast channels.
// Channels registered programmatically are unaffected by this section.
type ChannelsConfig struct {
	Console  ConsoleChannelConfig  `json:"console"`
	File     FileChannelConfig     `json:"file"`
	Webhook  WebhookChannelConfig  `json:"webhook"`
	Telegram TelegramChannelConfig `json:"telegram"`
	Sound    SoundChannelConfig    `json:"sound"`
}

type ConsoleChannelConfig struct {
	Enabled  *bool `json:"enabled,omitempty"` // default on
	Priority int   `json:"priority,omitempty"`
}

type FileChannelConfig struct {
	Enabled  bool   `json:"enabled"`
	Path     string `json:"path,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

type WebhookChannelConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url,omitempty"`
	Token    string `json:"token,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

type TelegramChannelConfig struct {
	Enabled  bool   `json:"enabled"`
	Token    string `json:"token,omitempty"`
	ChatID   int64  `json:"chat_id,omitempty"`
	Priority int    `json:"priority,omitempty"`
}

type SoundChannelConfig struct {
	Enabled  bool `json:"enabled"`
	Priority int  `json:"priority,omitempty"`
}

type FilterConfig struct {
	MinPriority        int      `json:"min_priority"`
	RequiredTags       []string `json:"required_tags,omitempty"`
	ExcludedCategories []string `json:"excluded_categories,omitempty"`
}

type SchedulerConfig struct {
	Timezone string `json:"timezone,omitempty"`
}

type StorageConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// Defaults applied where the file is silent.
const (
	DefaultSyncMaxConcurrent      = 5
	DefaultSyncTimeout            = 30 * time.Second
	DefaultRetryMax               = 3
	DefaultRetryBaseDelay         = 2 * time.Second
	DefaultBroadcastMaxConcurrent = 10
	DefaultBroadcastTimeout       = 5 * time.Second
)

// Default returns a runnable baseline configuration.
func Default() *Config {
	on := true
	return &Config{
		Log: LogConfig{Level: "info", Console: &on},
		Sync: SyncConfig{
			MaxConcurrent: DefaultSyncMaxConcurrent,
			Retry:         RetryConfig{Enabled: &on, Max: DefaultRetryMax},
		},
		Broadcast: BroadcastConfig{
			MaxConcurrent: DefaultBroadcastMaxConcurrent,
		},
	}
}

// Validate checks cross-field constraints that strict decoding cannot.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if c.Sync.MaxConcurrent < 0 {
		return fmt.Errorf("sync.max_concurrent must be >= 0")
	}
	if c.Broadcast.MaxConcurrent < 0 {
		return fmt.Errorf("broadcast.max_concurrent must be >= 0")
	}
	if c.Sync.Retry.Max < 0 {
		return fmt.Errorf("sync.retry.max must be >= 0")
	}
	if c.Broadcast.Filter.MinPriority < 0 || c.Broadcast.Filter.MinPriority > 10 {
		return fmt.Errorf("broadcast.filter.min_priority must be in 0..10")
	}
	for _, raw := range c.Broadcast.Filter.ExcludedCategories {
		if !event.Category(strings.ToLower(strings.TrimSpace(raw))).Valid() {
			return fmt.Errorf("broadcast.filter.excluded_categories: unknown category %q", raw)
		}
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	if _, err := ParseDurationField("sync.timeout", c.Sync.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("sync.retry.base_delay", c.Sync.Retry.BaseDelay); err != nil {
		return err
	}
	if _, err := ParseDurationField("broadcast.timeout", c.Broadcast.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	ch := c.Broadcast.Channels
	if ch.File.Enabled && strings.TrimSpace(ch.File.Path) == "" {
		return fmt.Errorf("broadcast.channels.file: path required when enabled")
	}
	if ch.Webhook.Enabled && strings.TrimSpace(ch.Webhook.URL) == "" {
		return fmt.Errorf("broadcast.channels.webhook: url required when enabled")
	}
	if ch.Telegram.Enabled {
		if strings.TrimSpace(ch.Telegram.Token) == "" {
			return fmt.Errorf("broadcast.channels.telegram: token required when enabled")
		}
		if ch.Telegram.ChatID == 0 {
			return fmt.Errorf("broadcast.channels.telegram: chat_id required when enabled")
		}
	}
	return nil
}

// ConsoleChannel reports whether the console channel is on. Defaults to true.
func (c *Config) ConsoleChannel() bool {
	if c.Broadcast.Channels.Console.Enabled == nil {
		return true
	}
	return *c.Broadcast.Channels.Console.Enabled
}

// SyncTimeout resolves the per-call sync timeout with its default.
func (c *Config) SyncTimeout() time.Duration {
	d, err := ParseDurationOrDefault("sync.timeout", c.Sync.Timeout, DefaultSyncTimeout)
	if err != nil {
		return DefaultSyncTimeout
	}
	return d
}

// RetryBaseDelay resolves the retry base delay with its default.
func (c *Config) RetryBaseDelay() time.Duration {
	d, err := ParseDurationOrDefault("sync.retry.base_delay", c.Sync.Retry.BaseDelay, DefaultRetryBaseDelay)
	if err != nil {
		return DefaultRetryBaseDelay
	}
	return d
}

// BroadcastTimeout resolves the per-channel broadcast timeout with its default.
func (c *Config) BroadcastTimeout() time.Duration {
	d, err := ParseDurationOrDefault("broadcast.timeout", c.Broadcast.Timeout, DefaultBroadcastTimeout)
	if err != nil {
		return DefaultBroadcastTimeout
	}
	return d
}

// RetryEnabled defaults to true when unset.
func (c *Config) RetryEnabled() bool {
	if c.Sync.Retry.Enabled == nil {
		return true
	}
	return *c.Sync.Retry.Enabled
}

// ConsoleLog defaults to true when unset.
func (c *Config) ConsoleLog() bool {
	if c.Log.Console == nil {
		return true
	}
	return *c.Log.Console
}
