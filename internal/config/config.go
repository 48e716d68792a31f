package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the entire application configuration
type Config struct {
	Cache    CacheConfig    `mapstructure:"cache"`
	Servers  []ServerConfig `mapstructure:"servers"`
	Watch    WatchConfig    `mapstructure:"watch"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
}

// CacheConfig contains cache settings
type CacheConfig struct {
	RootDir            string         `mapstructure:"root_dir"`
	RomsDir            string         `mapstructure:"roms_dir"`
	ESConfigDir        string         `mapstructure:"es_config_dir"`
	MaxSizeGB          float64        `mapstructure:"max_size_gb"`
	CleanupThreshold   float64        `mapstructure:"cleanup_threshold"`
	MinFreeSpaceGB     float64        `mapstructure:"min_free_space_gb"`
	FavoriteProtection bool           `mapstructure:"favorite_protection"`
	PlatformPriority   map[string]int `mapstructure:"platform_priority"`
}

// ServerConfig describes one remote ROM server
type ServerConfig struct {
	Name          string            `mapstructure:"name"`
	BaseURL       string            `mapstructure:"base_url"`
	AuthHeaders   map[string]string `mapstructure:"auth_headers"`
	PlatformPaths map[string]string `mapstructure:"platform_paths"`
}

// WatchConfig contains fetch pipeline settings
type WatchConfig struct {
	ProbeTimeout           string `mapstructure:"probe_timeout"`
	ListingRefreshInterval string `mapstructure:"listing_refresh_interval"`
	GamelistExportInterval string `mapstructure:"gamelist_export_interval"`
}

// HTTPConfig contains HTTP server configuration
type HTTPConfig struct {
	BindAddr     string `mapstructure:"bind_addr"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
	IdleTimeout  string `mapstructure:"idle_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from the specified file path
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("cache.root_dir", "/var/lib/rom-cache")
	viper.SetDefault("cache.roms_dir", "/var/lib/rom-cache/roms")
	viper.SetDefault("cache.max_size_gb", 50.0)
	viper.SetDefault("cache.cleanup_threshold", 0.9)
	viper.SetDefault("cache.min_free_space_gb", 5.0)
	viper.SetDefault("cache.favorite_protection", true)
	viper.SetDefault("cache.es_config_dir", "/etc/emulationstation")
	viper.SetDefault("watch.probe_timeout", "5s")
	viper.SetDefault("watch.listing_refresh_interval", "5m")
	viper.SetDefault("watch.gamelist_export_interval", "15m")
	viper.SetDefault("http.bind_addr", "0.0.0.0:8080")
	viper.SetDefault("http.read_timeout", "30s")
	viper.SetDefault("http.write_timeout", "30s")
	viper.SetDefault("http.idle_timeout", "60s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("database.path", "")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Cache.PlatformPriority == nil {
		config.Cache.PlatformPriority = DefaultPlatformPriority()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// DefaultPlatformPriority returns the default platform weights
// (higher = retained longer).
func DefaultPlatformPriority() map[string]int {
	return map[string]int{
		"nes": 10, "snes": 10, "gb": 10, "gbc": 10, "gba": 9,
		"genesis": 8, "n64": 7, "psx": 6, "ps2": 5,
		"gamecube": 4, "wii": 3, "xbox": 2, "ps3": 1, "xbox360": 1,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Cache.MaxSizeGB <= 0 {
		return fmt.Errorf("cache.max_size_gb must be positive")
	}
	if c.Cache.CleanupThreshold <= 0 || c.Cache.CleanupThreshold > 1 {
		return fmt.Errorf("cache.cleanup_threshold must be in (0, 1]")
	}
	if c.Cache.MinFreeSpaceGB < 0 {
		return fmt.Errorf("cache.min_free_space_gb must not be negative")
	}
	if len(c.Servers) == 0 {
		return fmt.Errorf("at least one rom server must be configured")
	}
	for i, srv := range c.Servers {
		if srv.Name == "" {
			return fmt.Errorf("servers[%d].name is required", i)
		}
		if srv.BaseURL == "" {
			return fmt.Errorf("servers[%d].base_url is required", i)
		}
	}

	if _, err := time.ParseDuration(c.Watch.ProbeTimeout); err != nil {
		return fmt.Errorf("invalid watch.probe_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Watch.ListingRefreshInterval); err != nil {
		return fmt.Errorf("invalid watch.listing_refresh_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Watch.GamelistExportInterval); err != nil {
		return fmt.Errorf("invalid watch.gamelist_export_interval: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}

	return nil
}

// GetProbeTimeout returns the probe timeout as time.Duration
func (c *WatchConfig) GetProbeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ProbeTimeout)
	if d == 0 {
		return 5 * time.Second
	}
	return d
}

// GetListingRefreshInterval returns the listing refresh interval
func (c *WatchConfig) GetListingRefreshInterval() time.Duration {
	d, _ := time.ParseDuration(c.ListingRefreshInterval)
	if d == 0 {
		return 5 * time.Minute
	}
	return d
}

// GetGamelistExportInterval returns the gamelist export interval
func (c *WatchConfig) GetGamelistExportInterval() time.Duration {
	d, _ := time.ParseDuration(c.GamelistExportInterval)
	if d == 0 {
		return 15 * time.Minute
	}
	return d
}

// GetReadTimeout returns the read timeout as time.Duration
func (c *HTTPConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ReadTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetWriteTimeout returns the write timeout as time.Duration
func (c *HTTPConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(c.WriteTimeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// GetIdleTimeout returns the idle timeout as time.Duration
func (c *HTTPConfig) GetIdleTimeout() time.Duration {
	d, _ := time.ParseDuration(c.IdleTimeout)
	if d == 0 {
		return 60 * time.Second
	}
	return d
}
