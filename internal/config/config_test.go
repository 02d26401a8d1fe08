package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Name != "tabhost" {
		t.Errorf("expected server name 'tabhost', got %q", cfg.Server.Name)
	}
	if cfg.Server.Addr != ":8090" {
		t.Errorf("expected addr ':8090', got %q", cfg.Server.Addr)
	}
	if cfg.Browser.DefaultNavigationTimeout != "15s" {
		t.Errorf("expected navigation timeout '15s', got %q", cfg.Browser.DefaultNavigationTimeout)
	}
	if cfg.Limits.MaxSessions != 32 {
		t.Errorf("expected 32 max sessions, got %d", cfg.Limits.MaxSessions)
	}
	if cfg.Limits.MaxTabsPerSession != 8 {
		t.Errorf("expected 8 max tabs per session, got %d", cfg.Limits.MaxTabsPerSession)
	}
	if cfg.Snapshot.MaxChars != 40000 {
		t.Errorf("expected 40000 max chars, got %d", cfg.Snapshot.MaxChars)
	}
	if cfg.Snapshot.TailChars != 2000 {
		t.Errorf("expected 2000 tail chars, got %d", cfg.Snapshot.TailChars)
	}
	if cfg.Recorder.Enabled {
		t.Error("expected recorder disabled by default")
	}
}

func TestLoadMissingPath(t *testing.T) {
	_, err := Load("")
	if err == nil {
		t.Error("expected error for empty config path")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	raw := `
server:
  addr: ":9999"
browser:
  debugger_url: "ws://localhost:9222"
limits:
  max_sessions: 4
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9999" {
		t.Errorf("expected overridden addr, got %q", cfg.Server.Addr)
	}
	if cfg.Server.Name != "tabhost" {
		t.Errorf("expected default name preserved, got %q", cfg.Server.Name)
	}
	if cfg.Limits.MaxSessions != 4 {
		t.Errorf("expected 4 max sessions, got %d", cfg.Limits.MaxSessions)
	}
	if cfg.Limits.MaxTabsPerSession != 8 {
		t.Errorf("expected default tab quota preserved, got %d", cfg.Limits.MaxTabsPerSession)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := DefaultConfig()
		cfg.Browser.DebuggerURL = "ws://localhost:9222"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing name", func(c *Config) { c.Server.Name = "" }, true},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, true},
		{"no browser endpoint", func(c *Config) {
			c.Browser.DebuggerURL = ""
			c.Browser.Launch = nil
		}, true},
		{"launch instead of debugger url", func(c *Config) {
			c.Browser.DebuggerURL = ""
			c.Browser.Launch = []string{"chromium", "--remote-debugging-port=9222"}
		}, false},
		{"zero sessions", func(c *Config) { c.Limits.MaxSessions = 0 }, true},
		{"negative tabs", func(c *Config) { c.Limits.MaxTabsPerSession = -1 }, true},
		{"tail larger than max", func(c *Config) {
			c.Snapshot.MaxChars = 100
			c.Snapshot.TailChars = 100
		}, true},
		{"tail leaves no room for the marker", func(c *Config) {
			c.Snapshot.MaxChars = 2100
			c.Snapshot.TailChars = 2000
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		check    func(Config) time.Duration
		expected time.Duration
	}{
		{
			"navigation timeout parsed",
			Config{Browser: BrowserConfig{DefaultNavigationTimeout: "30s"}},
			func(c Config) time.Duration { return c.Browser.NavigationTimeout() },
			30 * time.Second,
		},
		{
			"navigation timeout default",
			Config{},
			func(c Config) time.Duration { return c.Browser.NavigationTimeout() },
			15 * time.Second,
		},
		{
			"navigation timeout invalid falls back",
			Config{Browser: BrowserConfig{DefaultNavigationTimeout: "bogus"}},
			func(c Config) time.Duration { return c.Browser.NavigationTimeout() },
			15 * time.Second,
		},
		{
			"action timeout parsed",
			Config{Browser: BrowserConfig{DefaultActionTimeout: "5s"}},
			func(c Config) time.Duration { return c.Browser.ActionTimeout() },
			5 * time.Second,
		},
		{
			"session timeout default",
			Config{},
			func(c Config) time.Duration { return c.Limits.GetSessionTimeout() },
			30 * time.Minute,
		},
		{
			"session timeout parsed",
			Config{Limits: LimitsConfig{SessionTimeout: "10m"}},
			func(c Config) time.Duration { return c.Limits.GetSessionTimeout() },
			10 * time.Minute,
		},
		{
			"sweep interval default",
			Config{},
			func(c Config) time.Duration { return c.Limits.GetSweepInterval() },
			60 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.check(tt.cfg); got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestIsHeadless(t *testing.T) {
	var cfg BrowserConfig
	if !cfg.IsHeadless() {
		t.Error("expected headless by default")
	}

	headful := false
	cfg.Headless = &headful
	if cfg.IsHeadless() {
		t.Error("expected explicit headless=false to win")
	}
}

func TestViewportDefaults(t *testing.T) {
	tests := []struct {
		name             string
		width, height    int
		expectW, expectH int
	}{
		{"zero uses defaults", 0, 0, 1920, 1080},
		{"negative uses defaults", -1, -1, 1920, 1080},
		{"explicit preserved", 1280, 720, 1280, 720},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := BrowserConfig{ViewportWidth: tt.width, ViewportHeight: tt.height}
			if got := cfg.GetViewportWidth(); got != tt.expectW {
				t.Errorf("width = %d, want %d", got, tt.expectW)
			}
			if got := cfg.GetViewportHeight(); got != tt.expectH {
				t.Errorf("height = %d, want %d", got, tt.expectH)
			}
		})
	}
}

func TestSnapshotAccessors(t *testing.T) {
	var cfg SnapshotConfig
	if cfg.GetMaxChars() != 40000 {
		t.Errorf("expected default max chars, got %d", cfg.GetMaxChars())
	}
	if cfg.GetTailChars() != 2000 {
		t.Errorf("expected default tail chars, got %d", cfg.GetTailChars())
	}

	cfg = SnapshotConfig{MaxChars: 1000, TailChars: 50}
	if cfg.GetMaxChars() != 1000 || cfg.GetTailChars() != 50 {
		t.Error("expected explicit snapshot budgets preserved")
	}
}
