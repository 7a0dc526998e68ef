// CLAUDE:SUMMARY Defines censo config structs and parses YAML configuration files with defaults.
// Package config handles censo configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/censo/internal/browser"
	"github.com/hazyhaar/censo/verifier"
)

// Config is the top-level censo configuration.
type Config struct {
	Server  ServerConfig    `yaml:"server"`
	Browser BrowserConfig   `yaml:"browser"`
	Lookup  verifier.Config `yaml:"lookup"`
	Pool    PoolConfig      `yaml:"pool"`
	Cache   CacheConfig     `yaml:"cache"`
	Rate    RateConfig      `yaml:"rate"`
	Guard   GuardConfig     `yaml:"guard"`
	Store   StoreConfig     `yaml:"store"`
	Capture CaptureConfig   `yaml:"capture"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`

	// RateLimit replaces the stored per-client limit of the validation
	// endpoint at startup. Zero keeps the stored rule.
	RateLimit RequestLimitConfig `yaml:"rate_limit"`
}

// RequestLimitConfig caps requests per client IP over a window.
type RequestLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Bin              string   `yaml:"bin"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	Stealth          string   `yaml:"stealth"` // headless | headful
	XvfbDisplay      string   `yaml:"xvfb_display"`
	UserAgent        string   `yaml:"user_agent"`
	ViewportWidth    int      `yaml:"viewport_width"`
	ViewportHeight   int      `yaml:"viewport_height"`
}

// PoolConfig sizes the session pool.
type PoolConfig struct {
	Size           int           `yaml:"size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	Warm           bool          `yaml:"warm"` // start sessions at boot
}

// CacheConfig bounds reuse of authoritative results.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"` // 0 disables the cache
}

// RateConfig paces requests to the lookup site.
type RateConfig struct {
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

// GuardConfig suspends lookups while the site keeps refusing us.
type GuardConfig struct {
	Threshold int           `yaml:"threshold"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

// StoreConfig locates the verification database.
type StoreConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// CaptureConfig enables debug captures.
type CaptureConfig struct {
	Dir string `yaml:"dir"` // empty disables captures
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used without a file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 4 << 10
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.ResourceBlocking == nil {
		c.Browser.ResourceBlocking = []string{"images", "stylesheets", "fonts", "media"}
	}
	c.Lookup.Defaults()
	if c.Pool.Size <= 0 {
		c.Pool.Size = 1
	}
	if c.Pool.AcquireTimeout <= 0 {
		c.Pool.AcquireTimeout = 45 * time.Second
	}
	if c.Rate.PerMinute <= 0 {
		c.Rate.PerMinute = 20
	}
	if c.Rate.Burst <= 0 {
		c.Rate.Burst = 1
	}
	if c.Guard.Threshold <= 0 {
		c.Guard.Threshold = 5
	}
	if c.Guard.Cooldown <= 0 {
		c.Guard.Cooldown = 2 * time.Minute
	}
	if c.Store.Path == "" {
		c.Store.Path = "censo.db"
	}
	if c.Store.Retention <= 0 {
		c.Store.Retention = 30 * 24 * time.Hour
	}
}

func (c *Config) validate() error {
	if _, err := browser.ParseStealth(c.Browser.Stealth); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Server.RateLimit.Requests > 0 && c.Server.RateLimit.Window < time.Second {
		return fmt.Errorf("config: server.rate_limit.window must be at least 1s")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("config: cache.ttl must not be negative")
	}
	return nil
}

// BrowserManagerConfig converts the browser section for browser.NewManager.
func (c *Config) BrowserManagerConfig() browser.Config {
	level, _ := browser.ParseStealth(c.Browser.Stealth)
	return browser.Config{
		RemoteURL:        c.Browser.Remote,
		Bin:              c.Browser.Bin,
		ResourceBlocking: c.Browser.ResourceBlocking,
		Stealth:          level,
		XvfbDisplay:      c.Browser.XvfbDisplay,
		UserAgent:        c.Browser.UserAgent,
		ViewportWidth:    c.Browser.ViewportWidth,
		ViewportHeight:   c.Browser.ViewportHeight,
	}
}
