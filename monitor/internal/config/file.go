// Package config handles kbmon configuration: YAML files with defaults,
// optional overrides from a SQLite ops database, and secrets from the
// environment.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/locate"
)

// Config is the top-level kbmon configuration.
type Config struct {
	Browser     BrowserConfig    `yaml:"browser"`
	Monitoring  MonitoringConfig `yaml:"monitoring"`
	Screenshots ScreenshotConfig `yaml:"screenshots"`
	Notify      NotifyConfig     `yaml:"notify"`
}

// BrowserConfig controls the Chrome session.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via the rod launcher.
	Remote string `yaml:"remote"`

	// Headful disables headless mode, for local debugging.
	Headful bool `yaml:"headful"`

	// ResourceBlocking lists resource types to block while monitoring
	// (fonts, media, stylesheets). Images are never blocked, even when
	// listed: blocking them would blank the evidence screenshots.
	ResourceBlocking []string `yaml:"resource_blocking"`
}

// MonitoringConfig describes the target console and the scan rules.
type MonitoringConfig struct {
	// BaseURL is the console's login page.
	BaseURL string `yaml:"base_url"`

	// TargetURL is the direct URL of the monitoring view. Empty =
	// follow NavigationPath link texts instead.
	TargetURL string `yaml:"target_url"`

	// NavigationPath is the sequence of link texts clicked to reach
	// the monitoring view when no direct URL is configured.
	NavigationPath []string `yaml:"navigation_path"`

	FailureMarkers    []string `yaml:"failure_markers"`
	ProcessingMarkers []string `yaml:"processing_markers"`
	SuccessMarkers    []string `yaml:"success_markers"`

	// RetryLabels are the captions of per-row retry controls, tried in
	// order.
	RetryLabels []string `yaml:"retry_labels"`

	// Regions overrides the built-in locator chains per region name.
	Regions map[string][]locate.Strategy `yaml:"regions"`

	// Timezone for report timestamps. Default: Asia/Tokyo.
	Timezone string `yaml:"timezone"`

	// OpsDB is an optional SQLite database path whose monitor_regions
	// and monitor_markers tables override the settings above.
	OpsDB string `yaml:"ops_db"`

	Timeouts TimeoutConfig `yaml:"timeouts"`
	Retry    RetryConfig   `yaml:"retry"`
}

// TimeoutConfig holds the bounded waits, in milliseconds.
type TimeoutConfig struct {
	AuthMs   int `yaml:"auth_ms"`   // post-login indicator wait
	NavMs    int `yaml:"nav_ms"`    // navigation / page load wait
	LocateMs int `yaml:"locate_ms"` // per-region element wait
	AckMs    int `yaml:"ack_ms"`    // retry acknowledgement wait
}

// Auth returns the post-login wait as a duration.
func (t TimeoutConfig) Auth() time.Duration { return time.Duration(t.AuthMs) * time.Millisecond }

// Nav returns the navigation wait as a duration.
func (t TimeoutConfig) Nav() time.Duration { return time.Duration(t.NavMs) * time.Millisecond }

// Locate returns the element wait as a duration.
func (t TimeoutConfig) Locate() time.Duration { return time.Duration(t.LocateMs) * time.Millisecond }

// Ack returns the acknowledgement wait as a duration.
func (t TimeoutConfig) Ack() time.Duration { return time.Duration(t.AckMs) * time.Millisecond }

// RetryConfig bounds the per-item click retry.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts"`
	InitialDelayMs int `yaml:"initial_delay_ms"`
	BackoffBase    int `yaml:"backoff_base"`
}

// InitialDelay returns the first backoff as a duration.
func (r RetryConfig) InitialDelay() time.Duration {
	return time.Duration(r.InitialDelayMs) * time.Millisecond
}

// ScreenshotConfig controls evidence capture.
type ScreenshotConfig struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
}

// NotifyConfig lists the notification sinks.
type NotifyConfig struct {
	Sinks []SinkConfig `yaml:"sinks"`
}

// SinkConfig defines one notification backend. Endpoint secrets
// (webhook URL, bot token) come from the environment, never from the
// config file.
type SinkConfig struct {
	Type     string `yaml:"type"`      // stdout | lark | slack
	Channel  string `yaml:"channel"`   // slack channel ID
	MaxItems int    `yaml:"max_items"` // failed items listed per message
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for runs
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	m := &c.Monitoring
	if m.BaseURL == "" {
		m.BaseURL = "https://admin.gbase.ai"
	}
	if len(m.FailureMarkers) == 0 {
		m.FailureMarkers = []string{"失敗", "エラー", "error", "failed"}
	}
	if len(m.ProcessingMarkers) == 0 {
		m.ProcessingMarkers = []string{"処理中", "processing"}
	}
	if len(m.SuccessMarkers) == 0 {
		m.SuccessMarkers = []string{"成功", "完了", "success", "completed"}
	}
	if len(m.RetryLabels) == 0 {
		m.RetryLabels = []string{"再試行", "リトライ", "Retry", "再実行"}
	}
	if m.Timezone == "" {
		m.Timezone = "Asia/Tokyo"
	}
	if m.Timeouts.AuthMs <= 0 {
		m.Timeouts.AuthMs = 15000
	}
	if m.Timeouts.NavMs <= 0 {
		m.Timeouts.NavMs = 30000
	}
	if m.Timeouts.LocateMs <= 0 {
		m.Timeouts.LocateMs = 10000
	}
	if m.Timeouts.AckMs <= 0 {
		m.Timeouts.AckMs = 5000
	}
	if m.Retry.MaxAttempts <= 0 {
		m.Retry.MaxAttempts = 3
	}
	if m.Retry.InitialDelayMs <= 0 {
		m.Retry.InitialDelayMs = 1000
	}
	if m.Retry.BackoffBase <= 1 {
		m.Retry.BackoffBase = 2
	}
	if c.Screenshots.Directory == "" {
		c.Screenshots.Directory = "screenshots"
	}
	if c.Screenshots.Prefix == "" {
		c.Screenshots.Prefix = "kb_monitor_"
	}
	if len(c.Notify.Sinks) == 0 {
		c.Notify.Sinks = []SinkConfig{{Type: "stdout"}}
	}
}

// Registry builds the locator registry: built-in chains overlaid with
// the per-region overrides from configuration.
func (c *Config) Registry() locate.Registry {
	reg := locate.DefaultRegistry()
	for region, strategies := range c.Monitoring.Regions {
		reg.Override(region, strategies)
	}
	return reg
}
