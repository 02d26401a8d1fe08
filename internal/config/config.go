// Package config captures all tunable settings for the tabhost server.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"tabhost-server/internal/snapshot"

	"gopkg.in/yaml.v3"
)

// Config is the root YAML document.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Browser  BrowserConfig  `yaml:"browser"`
	Limits   LimitsConfig   `yaml:"limits"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Recorder RecorderConfig `yaml:"recorder"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	// Listen address for the HTTP API (e.g. ":8090").
	Addr string `yaml:"addr"`
	// Development switches zap to its human-readable console encoder.
	Development bool `yaml:"development"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url"`
	// Optional launch command to start Chrome in detached mode.
	Launch []string `yaml:"launch"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Default navigation timeout (e.g., "15s").
	DefaultNavigationTimeout string `yaml:"default_navigation_timeout"`
	// Default timeout for element actions like click and fill (e.g., "10s").
	DefaultActionTimeout string `yaml:"default_action_timeout"`
	// Viewport width for new pages (default: 1920).
	ViewportWidth int `yaml:"viewport_width"`
	// Viewport height for new pages (default: 1080).
	ViewportHeight int `yaml:"viewport_height"`
}

// LimitsConfig is the admission control: once at capacity, creation requests
// fail fast rather than queue.
type LimitsConfig struct {
	// Maximum live sessions across all tenants (default: 32).
	MaxSessions int `yaml:"max_sessions"`
	// Maximum open tabs per session, counted across groups (default: 8).
	MaxTabsPerSession int `yaml:"max_tabs_per_session"`
	// Idle time before a session is swept (e.g., "30m").
	SessionTimeout string `yaml:"session_timeout"`
	// How often the idle sweeper runs (e.g., "60s").
	SweepInterval string `yaml:"sweep_interval"`
}

// SnapshotConfig bounds snapshot payloads.
type SnapshotConfig struct {
	// Hard ceiling on one snapshot chunk (default: 40000 chars).
	MaxChars int `yaml:"max_chars"`
	// Suffix of the page text included in every chunk (default: 2000).
	TailChars int `yaml:"tail_chars"`
}

// RecorderConfig controls the rotating action-trace recorder.
type RecorderConfig struct {
	Enabled bool `yaml:"enabled"`
	// Directory for trace files (default: data/traces).
	Dir string `yaml:"dir"`
}

// DefaultConfig provides reasonable defaults for local development.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "tabhost",
			Version: "0.1.0",
			Addr:    ":8090",
		},
		Browser: BrowserConfig{
			DefaultNavigationTimeout: "15s",
			DefaultActionTimeout:     "10s",
			ViewportWidth:            1920,
			ViewportHeight:           1080,
		},
		Limits: LimitsConfig{
			MaxSessions:       32,
			MaxTabsPerSession: 8,
			SessionTimeout:    "30m",
			SweepInterval:     "60s",
		},
		Snapshot: SnapshotConfig{
			MaxChars:  40000,
			TailChars: 2000,
		},
		Recorder: RecorderConfig{
			Enabled: false,
			Dir:     "data/traces",
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate ensures required fields exist so the server can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
		return errors.New("browser.debugger_url or browser.launch must be provided")
	}
	if c.Limits.MaxSessions <= 0 {
		return errors.New("limits.max_sessions must be positive")
	}
	if c.Limits.MaxTabsPerSession <= 0 {
		return errors.New("limits.max_tabs_per_session must be positive")
	}
	if c.Snapshot.GetMaxChars()-c.Snapshot.GetTailChars() <= snapshot.MarkerReserve {
		return fmt.Errorf("snapshot.max_chars must exceed snapshot.tail_chars by more than %d", snapshot.MarkerReserve)
	}
	return nil
}

// NavigationTimeout returns the parsed navigation timeout with a sane default.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	return parseDuration(b.DefaultNavigationTimeout, 15*time.Second)
}

// ActionTimeout returns the parsed element-action timeout with a sane default.
func (b BrowserConfig) ActionTimeout() time.Duration {
	return parseDuration(b.DefaultActionTimeout, 10*time.Second)
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// GetSessionTimeout returns the parsed idle timeout with a sane default.
func (l LimitsConfig) GetSessionTimeout() time.Duration {
	return parseDuration(l.SessionTimeout, 30*time.Minute)
}

// GetSweepInterval returns the parsed sweep interval with a sane default.
func (l LimitsConfig) GetSweepInterval() time.Duration {
	return parseDuration(l.SweepInterval, 60*time.Second)
}

// GetMaxChars returns the snapshot chunk ceiling with a sane default.
func (s SnapshotConfig) GetMaxChars() int {
	if s.MaxChars <= 0 {
		return 40000
	}
	return s.MaxChars
}

// GetTailChars returns the snapshot tail size with a sane default.
func (s SnapshotConfig) GetTailChars() int {
	if s.TailChars <= 0 {
		return 2000
	}
	return s.TailChars
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
