package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all host configuration read from the environment.
type Config struct {
	Server      ServerConfig
	Browser     BrowserConfig
	Paths       PathsConfig
	Layout      LayoutConfig
	Broadcast   BroadcastConfig
	Persistence PersistenceConfig
	Navigation  NavigationConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
}

// ServerConfig holds the command-surface listener.
type ServerConfig struct {
	Port string `envconfig:"TABWALL_PORT" default:"7600"`
	Host string `envconfig:"TABWALL_HOST" default:"127.0.0.1"`
	// AllowedOrigins may call the surface from a browser in addition to
	// loopback pages.
	AllowedOrigins []string `envconfig:"TABWALL_ALLOWED_ORIGINS"`
}

// BrowserConfig selects how panels get a browser. With DevToolsURL empty
// TabWall launches one browser per partition, each with its own profile
// under ProfileDir, so logins survive restarts. With DevToolsURL set it
// attaches to that browser and partitions are in-memory browser contexts.
type BrowserConfig struct {
	DevToolsURL      string        `envconfig:"TABWALL_DEVTOOLS_URL"`
	ChromePath       string        `envconfig:"TABWALL_CHROME_PATH"`
	ProfileDir       string        `envconfig:"TABWALL_PROFILE_DIR"`
	Headless         bool          `envconfig:"TABWALL_HEADLESS" default:"false"`
	DiscoveryTimeout time.Duration `envconfig:"TABWALL_DEVTOOLS_TIMEOUT" default:"15s"`
	SurfaceTimeout   time.Duration `envconfig:"TABWALL_SURFACE_TIMEOUT" default:"15s"`
	UserAgent        string        `envconfig:"TABWALL_USER_AGENT"`
}

// Launches reports whether TabWall starts its own browsers.
func (b BrowserConfig) Launches() bool { return b.DevToolsURL == "" }

// PathsConfig holds file locations. An empty StateFile resolves to the
// user config directory.
type PathsConfig struct {
	PanelFile string `envconfig:"TABWALL_PANEL_FILE" default:"config.json"`
	StateFile string `envconfig:"TABWALL_STATE_FILE"`
	WatchFile bool   `envconfig:"TABWALL_WATCH_PANEL_FILE" default:"true"`
}

// LayoutConfig holds the fixed strip geometry.
type LayoutConfig struct {
	ToolbarHeight   int `envconfig:"TABWALL_TOOLBAR_HEIGHT" default:"40"`
	ScrollbarHeight int `envconfig:"TABWALL_SCROLLBAR_HEIGHT" default:"14"`
	DefaultWidth    int `envconfig:"TABWALL_WINDOW_WIDTH" default:"1920"`
	DefaultHeight   int `envconfig:"TABWALL_WINDOW_HEIGHT" default:"1080"`
}

// BroadcastConfig holds dispatcher timings. Per-site attach hints in the
// panel file override the attach values.
type BroadcastConfig struct {
	SettleDelay      time.Duration `envconfig:"TABWALL_SETTLE_DELAY" default:"700ms"`
	AttachSettle     time.Duration `envconfig:"TABWALL_ATTACH_SETTLE" default:"500ms"`
	AttachRetryDelay time.Duration `envconfig:"TABWALL_ATTACH_RETRY_DELAY" default:"800ms"`
	PostAttachDelay  time.Duration `envconfig:"TABWALL_POST_ATTACH_DELAY" default:"1600ms"`
	MaxConcurrency   int           `envconfig:"TABWALL_BROADCAST_CONCURRENCY" default:"8"`
}

// PersistenceConfig holds snapshot timing.
type PersistenceConfig struct {
	AutosaveInterval time.Duration `envconfig:"TABWALL_AUTOSAVE_INTERVAL" default:"2m"`
}

// NavigationConfig is the policy applied to user-typed URLs.
type NavigationConfig struct {
	DefaultScheme string   `envconfig:"TABWALL_DEFAULT_SCHEME" default:"https"`
	AllowedHosts  []string `envconfig:"TABWALL_ALLOWED_HOSTS"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"TABWALL_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"TABWALL_LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for the API.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"TABWALL_RATE_LIMIT_RPS" default:"50"`
	Burst             int  `envconfig:"TABWALL_RATE_LIMIT_BURST" default:"100"`
	Enabled           bool `envconfig:"TABWALL_RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Paths.StateFile = resolveStateFile(cfg.Paths.StateFile)
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "7600",
			Host: "127.0.0.1",
		},
		Browser: BrowserConfig{
			DiscoveryTimeout: 15 * time.Second,
			SurfaceTimeout:   15 * time.Second,
		},
		Paths: PathsConfig{
			PanelFile: "config.json",
			StateFile: resolveStateFile(""),
			WatchFile: true,
		},
		Layout: LayoutConfig{
			ToolbarHeight:   40,
			ScrollbarHeight: 14,
			DefaultWidth:    1920,
			DefaultHeight:   1080,
		},
		Broadcast: BroadcastConfig{
			SettleDelay:      700 * time.Millisecond,
			AttachSettle:     500 * time.Millisecond,
			AttachRetryDelay: 800 * time.Millisecond,
			PostAttachDelay:  1600 * time.Millisecond,
			MaxConcurrency:   8,
		},
		Persistence: PersistenceConfig{
			AutosaveInterval: 2 * time.Minute,
		},
		Navigation: NavigationConfig{
			DefaultScheme: "https",
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 50,
			Burst:             100,
			Enabled:           true,
		},
	}
}

// ProfileRoot is where launched browsers keep partition profiles: the
// configured ProfileDir, else "partitions" next to the state file.
func (c *Config) ProfileRoot() string {
	if c.Browser.ProfileDir != "" {
		return c.Browser.ProfileDir
	}
	return filepath.Join(filepath.Dir(c.Paths.StateFile), "partitions")
}

func resolveStateFile(path string) string {
	if path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "tabwall", "state.json")
}
