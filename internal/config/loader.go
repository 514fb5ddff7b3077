package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("HAMRSS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("hamrss")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hamrss")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "hamrss"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine when not explicitly requested.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "sqlite", "mongodb":
	default:
		return fmt.Errorf("unknown storage backend %q (expected sqlite or mongodb)", c.Storage.Backend)
	}
	if c.Scraper.MaxItems < 0 {
		return fmt.Errorf("scraper.max_items must be >= 0")
	}
	return nil
}

// setDefaults registers default values in viper so that partial config
// files and env overrides merge cleanly.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("scraper.enabled_drivers", cfg.Scraper.EnabledDrivers)
	v.SetDefault("scraper.max_items", cfg.Scraper.MaxItems)
	v.SetDefault("scraper.interval", cfg.Scraper.Interval)
	v.SetDefault("scraper.run_on_start", cfg.Scraper.RunOnStart)
	v.SetDefault("scraper.category_timeout", cfg.Scraper.CategoryTimeout)

	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)

	v.SetDefault("browser.control_url", cfg.Browser.ControlURL)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.wait_timeout", cfg.Browser.WaitTimeout)

	v.SetDefault("drivers.qrz.username", cfg.Drivers.QRZ.Username)
	v.SetDefault("drivers.qrz.password", cfg.Drivers.QRZ.Password)

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.uri", cfg.Storage.URI)
	v.SetDefault("storage.database", cfg.Storage.Database)
	v.SetDefault("storage.collection", cfg.Storage.Collection)

	v.SetDefault("publisher.listen", cfg.Publisher.Listen)
	v.SetDefault("publisher.feed_title", cfg.Publisher.FeedTitle)
	v.SetDefault("publisher.feed_link", cfg.Publisher.FeedLink)
	v.SetDefault("publisher.feed_description", cfg.Publisher.FeedDescription)
	v.SetDefault("publisher.max_feed_items", cfg.Publisher.MaxFeedItems)
	v.SetDefault("publisher.cache_ttl", cfg.Publisher.CacheTTL)
	v.SetDefault("publisher.cache_size", cfg.Publisher.CacheSize)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
}
